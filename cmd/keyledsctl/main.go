// Command keyledsctl is the standalone query/control tool:
// list connected keyboards, query their layout, and read/write their LED
// state directly without the daemon running.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/keyledsd/keyledsd/internal/discovery"
	"github.com/keyledsd/keyledsd/internal/hidpp"
	"github.com/keyledsd/keyledsd/internal/hidpp/endpoint"
	"github.com/keyledsd/keyledsd/internal/hidpp/feature"
	"github.com/keyledsd/keyledsd/internal/render/color"
)

// Exit codes for scriptable callers.
const (
	exitOK              = 0
	exitOptionParse     = 1
	exitNoDevice        = 2
	exitDeviceQuery     = 3
	exitInvalidBlock    = 4
	exitLEDReadFailure  = 5
)

type deviceFlag struct {
	Device string `short:"d" help:"hidraw device path. Defaults to KEYLEDS_DEVICE, or the first Logitech keyboard found." name:"device"`
}

func (f *deviceFlag) resolve() (string, error) {
	if f.Device != "" {
		return f.Device, nil
	}
	if v := os.Getenv("KEYLEDS_DEVICE"); v != "" {
		return v, nil
	}
	devices, err := discovery.New(discovery.VendorLogitech).Scan()
	if err != nil || len(devices) == 0 {
		return "", errNoDevice
	}
	return devices[0].Path, nil
}

var errNoDevice = errors.New("no device found")

// CLI is keyledsctl's full command grammar.
type CLI struct {
	List    ListCmd    `cmd:"" help:"List connected Logitech keyboards."`
	Info    InfoCmd    `cmd:"" help:"Print the LED block and feature layout of a device."`
	GetLEDs GetLEDsCmd `cmd:"" name:"get-leds" help:"Read a device's current LED colors."`
	SetLEDs SetLEDsCmd `cmd:"" name:"set-leds" help:"Set individual key colors on a device."`
	GKeys   GKeysCmd   `cmd:"" help:"Enable or disable the G-key row."`
	Gamemode GamemodeCmd `cmd:"" help:"Block a set of keys from reaching the host."`
}

type ListCmd struct{}

func (c *ListCmd) Run() error {
	devices, err := discovery.New(discovery.VendorLogitech).Scan()
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%s\tserial=%s vendor=%#04x product=%#04x\n", d.Path, d.Serial, d.VendorID, d.ProductID)
	}
	return nil
}

type InfoCmd struct {
	deviceFlag
}

func (c *InfoCmd) Run() error {
	path, err := c.resolve()
	if err != nil {
		return exitErr(exitNoDevice, err)
	}
	client, closer, err := openClient(path)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	defer closer.Close()

	name, _ := feature.GetName(client, defaultTarget)
	version, err := feature.GetVersion(client, defaultTarget)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	blocks, err := feature.GetLEDBlocks(client, defaultTarget)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}

	fmt.Printf("name: %s\n", name)
	fmt.Printf("model: % x\n", version.Model)
	fmt.Printf("led blocks:\n")
	for _, b := range blocks {
		fmt.Printf("  block %#02x: %d keys, max rgb %d/%d/%d\n", b.ID, b.KeyCount, b.MaxRed, b.MaxGreen, b.MaxBlue)
	}
	return nil
}

type GetLEDsCmd struct {
	deviceFlag
	Block uint8 `short:"b" help:"LED block id to read." default:"0"`
}

func (c *GetLEDsCmd) Run() error {
	path, err := c.resolve()
	if err != nil {
		return exitErr(exitNoDevice, err)
	}
	client, closer, err := openClient(path)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	defer closer.Close()

	blocks, err := feature.GetLEDBlocks(client, defaultTarget)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	block, ok := findBlock(blocks, c.Block)
	if !ok {
		return exitErr(exitInvalidBlock, fmt.Errorf("keyledsctl: no such block %#02x", c.Block))
	}

	leds, err := feature.GetLEDs(client, defaultTarget, c.Block, 0, block.KeyCount)
	if err != nil {
		return exitErr(exitLEDReadFailure, err)
	}
	for _, led := range leds {
		rgb := color.RGB{R: led.R, G: led.G, B: led.B}
		fmt.Printf("key %d: %s\n", led.ID, rgb)
	}
	return nil
}

type SetLEDsCmd struct {
	deviceFlag
	Block uint8    `short:"b" help:"LED block id to write." default:"0"`
	Pairs []string `arg:"" name:"key=color" help:"One or more key_id=#rrggbb pairs."`
}

func (c *SetLEDsCmd) Run() error {
	path, err := c.resolve()
	if err != nil {
		return exitErr(exitNoDevice, err)
	}
	client, closer, err := openClient(path)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	defer closer.Close()

	blocks, err := feature.GetLEDBlocks(client, defaultTarget)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	if _, ok := findBlock(blocks, c.Block); !ok {
		return exitErr(exitInvalidBlock, fmt.Errorf("keyledsctl: no such block %#02x", c.Block))
	}

	leds, err := parseLEDPairs(c.Pairs)
	if err != nil {
		return exitErr(exitOptionParse, err)
	}
	if err := feature.SetLEDs(client, defaultTarget, c.Block, leds); err != nil {
		return exitErr(exitLEDReadFailure, err)
	}
	return exitErr(exitLEDReadFailure, feature.CommitLEDs(client, defaultTarget))
}

type GKeysCmd struct {
	deviceFlag
	State string `arg:"" enum:"on,off" help:"off resets game mode; on sends nothing to the device."`
}

func (c *GKeysCmd) Run() error {
	// The G-key row is handled through the gamemode feature: "off" resets
	// game mode via feature.ResetGameMode; "on" opens the device and issues
	// no command.
	path, err := c.resolve()
	if err != nil {
		return exitErr(exitNoDevice, err)
	}
	client, closer, err := openClient(path)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	defer closer.Close()

	if c.State == "off" {
		return exitErr(exitDeviceQuery, feature.ResetGameMode(client, defaultTarget))
	}
	return nil
}

type GamemodeCmd struct {
	deviceFlag
	Keys []uint8 `arg:"" name:"key" help:"Key ids to block from reaching the host."`
}

func (c *GamemodeCmd) Run() error {
	path, err := c.resolve()
	if err != nil {
		return exitErr(exitNoDevice, err)
	}
	client, closer, err := openClient(path)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	defer closer.Close()

	maxCount, err := feature.GetGameModeMaxCount(client, defaultTarget)
	if err != nil {
		return exitErr(exitDeviceQuery, err)
	}
	if len(c.Keys) > maxCount {
		return exitErr(exitOptionParse, fmt.Errorf("keyledsctl: device accepts at most %d blocked keys", maxCount))
	}
	return exitErr(exitDeviceQuery, feature.BlockKeys(client, defaultTarget, c.Keys))
}

const defaultTarget uint8 = 0xff
const appID uint8 = 0x01

func openClient(path string) (*hidpp.Client, *clientCloser, error) {
	rawDev, reports, err := hidpp.OpenDevice(path)
	if err != nil {
		return nil, nil, err
	}
	maxPayload := 0
	for _, r := range reports {
		if r.Payload > maxPayload {
			maxPayload = r.Payload
		}
	}
	ep := endpoint.New(rawDev, maxPayload+1)
	client, err := hidpp.Open(ep, reports, appID)
	if err != nil {
		ep.Close()
		return nil, nil, err
	}
	return client, &clientCloser{ep: ep}, nil
}

type clientCloser struct{ ep *endpoint.Endpoint }

func (c *clientCloser) Close() error { return c.ep.Close() }

func findBlock(blocks []feature.LEDBlock, id uint8) (feature.LEDBlock, bool) {
	for _, b := range blocks {
		if b.ID == id {
			return b, true
		}
	}
	return feature.LEDBlock{}, false
}

func parseLEDPairs(pairs []string) ([]feature.LED, error) {
	out := make([]feature.LED, 0, len(pairs))
	for _, p := range pairs {
		key, colorStr, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("keyledsctl: %q is not key=color", p)
		}
		id, err := parseKeyID(key)
		if err != nil {
			return nil, err
		}
		rgb, err := color.ParseRGB(colorStr)
		if err != nil {
			return nil, err
		}
		out = append(out, feature.LED{ID: id, R: rgb.R, G: rgb.G, B: rgb.B})
	}
	return out, nil
}

func parseKeyID(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("keyledsctl: %q is not a valid key id", s)
	}
	return uint8(v), nil
}

// exitErr wraps err (if non-nil) with a specific exit code so main can
// translate it to os.Exit after kong's Run returns.
func exitErr(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func main() {
	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("keyledsctl"),
		kong.Description("Query and control Logitech HID++ keyboard lighting directly."),
		kong.UsageOnError(),
		kong.Exit(func(code int) { os.Exit(exitOptionParse) }),
	)
	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
		return
	}

	runErr := kctx.Run()
	if runErr == nil {
		os.Exit(exitOK)
	}
	var ce *codedError
	if errors.As(runErr, &ce) {
		fmt.Fprintln(os.Stderr, ce.Error())
		os.Exit(ce.code)
	}
	fmt.Fprintln(os.Stderr, runErr.Error())
	os.Exit(exitDeviceQuery)
}
