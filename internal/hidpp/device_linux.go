//go:build linux

package hidpp

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hidiocGRDescSize and hidiocGRDesc are the fixed-size ioctl numbers for
// HIDIOCGRDESCSIZE and HIDIOCGRDESC on Linux (linux/hidraw.h): read the
// report descriptor's length, then the descriptor itself (max 4096 bytes).
const (
	hidiocGRDescSize = 0x80044801
	hidiocGRDesc     = 0x90044802
	maxDescriptorLen = 4096
)

type hidrawReportDescriptor struct {
	Size  uint32
	Value [maxDescriptorLen]byte
}

// rawDevice wraps an open /dev/hidraw* file descriptor as the endpoint
// package's HIDDevice transport.
type rawDevice struct {
	f *os.File
}

// OpenDevice opens the hidraw node at path and parses its report
// descriptor, returning both the transport and the parsed report list
// Client.Open needs.
func OpenDevice(path string) (dev *rawDevice, reports []Report, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("hidpp: open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	desc, err := readReportDescriptor(f)
	if err != nil {
		return nil, nil, err
	}
	reports, err = ParseReportDescriptor(desc)
	if err != nil {
		return nil, nil, err
	}
	return &rawDevice{f: f}, reports, nil
}

func readReportDescriptor(f *os.File) ([]byte, error) {
	var size uint32
	if err := ioctl(f.Fd(), hidiocGRDescSize, unsafe.Pointer(&size)); err != nil {
		return nil, fmt.Errorf("hidpp: HIDIOCGRDESCSIZE: %w", err)
	}

	var desc hidrawReportDescriptor
	desc.Size = size
	if err := ioctl(f.Fd(), hidiocGRDesc, unsafe.Pointer(&desc)); err != nil {
		return nil, fmt.Errorf("hidpp: HIDIOCGRDESC: %w", err)
	}
	return desc.Value[:size], nil
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *rawDevice) Read(p []byte) (int, error)  { return d.f.Read(p) }
func (d *rawDevice) Write(p []byte) (int, error) { return d.f.Write(p) }
func (d *rawDevice) Close() error                { return d.f.Close() }
