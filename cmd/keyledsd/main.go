// Command keyledsd is the per-key RGB lighting daemon: it
// discovers Logitech HID++ 2.0 keyboards, drives a fixed-rate render loop
// per device, and dispatches effects by active window/desktop context.
package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/keyledsd/keyledsd/internal/config"
	"github.com/keyledsd/keyledsd/internal/daemon"
	"github.com/keyledsd/keyledsd/internal/discovery"
	"github.com/keyledsd/keyledsd/internal/log"
	"github.com/keyledsd/keyledsd/internal/paths"
	"github.com/keyledsd/keyledsd/internal/plugin"

	_ "github.com/keyledsd/keyledsd/internal/effects/breathe"
	_ "github.com/keyledsd/keyledsd/internal/effects/feedback"
	_ "github.com/keyledsd/keyledsd/internal/effects/fill"
	_ "github.com/keyledsd/keyledsd/internal/effects/script"
	_ "github.com/keyledsd/keyledsd/internal/effects/stars"
	_ "github.com/keyledsd/keyledsd/internal/effects/wave"
)

// CLI is keyledsd's full flag surface; kong.Configuration also lets every
// field be set from a JSON/YAML/TOML configuration file.
type CLI struct {
	Config        string `help:"Path to the configuration file." type:"path"`
	PluginPath    []string `help:"Additional directories to search for fx_<name>.so plugins." name:"plugin-path"`
	PollIntervalMS int   `help:"Device discovery poll interval, in milliseconds." default:"1000"`
	AutoQuit      bool   `help:"Exit once the last tracked device is removed."`

	Log struct {
		Level   string `help:"Log level: critical, error, warning, info, verbose, debug, trace." default:"info"`
		File    string `help:"Write logs to this file instead of stdout/stderr."`
		RawFile string `help:"Raw HID++ wire log file (accepted, but nothing is written to it)." name:"log-raw-file"`
	} `embed:"" prefix:"log-"`
}

func main() {
	userCfg := findUserConfig(os.Args[1:])
	candidates := paths.ConfigCandidates(userCfg)

	var cli CLI
	kong.Parse(&cli,
		kong.Name("keyledsd"),
		kong.Description("Per-key RGB lighting daemon for Logitech HID++ 2.0 keyboards"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, candidates...),
		kong.Configuration(kongyaml.Loader, candidates...),
		kong.Configuration(kongtoml.Loader, candidates...),
	)

	logger, closers, err := log.Setup(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to set up logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	configPath := paths.FirstExisting(candidates)
	if configPath == "" {
		logger.Error("no configuration file found", "candidates", candidates)
		os.Exit(1)
	}

	f, err := os.Open(configPath)
	if err != nil {
		logger.Error("failed to open configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	doc, err := config.Parse(f)
	f.Close()
	if err != nil {
		logger.Error("failed to parse configuration", "path", configPath, "error", err)
		os.Exit(1)
	}

	pluginMgr := plugin.NewManager(paths.PluginSearchPaths(cli.PluginPath), plugin.Host{
		Major: 1, Minor: 0,
		OnError: func(msg string) { logger.Error("plugin host error", "message", msg) },
	}, logger)

	currentDoc := doc
	opener := daemon.NewHIDPPOpener(logger, pluginMgr, firstLayoutDir(doc.PluginPaths), func() *config.Document { return currentDoc })

	d := daemon.New(daemon.Config{
		Logger:     logger,
		Opener:     opener,
		ConfigPath: configPath,
		AutoQuit:   cli.AutoQuit,
	})

	scanner := discovery.New(discovery.VendorLogitech)
	if err := d.Run(context.Background(), scanner, time.Duration(cli.PollIntervalMS)*time.Millisecond); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func firstLayoutDir(dirs []string) string {
	if len(dirs) == 0 {
		return ""
	}
	return dirs[0]
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("KEYLEDSD_CONFIG"); v != "" {
		return v
	}
	return ""
}
