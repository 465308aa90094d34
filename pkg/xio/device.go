// Package xio provides the controller's input and output devices: the
// interactive console (stdio or a serial port), the websocket console, the
// write-only error output and program-resident script playback.
//
// Every readable device answers ReadLine without blocking. Bytes arrive on
// a producer goroutine and are assembled into lines on the caller's
// goroutine, so the dispatch loop never waits on I/O.
package xio

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"tinyg-go/pkg/status"
)

// DeviceID names a device slot.
type DeviceID int

const (
	DevUSB DeviceID = iota
	DevNet
	DevStdError
	DevPGM
)

var deviceNames = map[DeviceID]string{
	DevUSB:      "usb",
	DevNet:      "net",
	DevStdError: "stderr",
	DevPGM:      "pgm",
}

func (d DeviceID) String() string {
	if n, ok := deviceNames[d]; ok {
		return n
	}
	return fmt.Sprintf("dev%d", int(d))
}

// ParseDeviceID maps a configuration name to a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, name := range deviceNames {
		if name == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown device %q", s)
}

// Flags describe what a device can do.
type Flags uint8

const (
	FlagReadable Flags = 1 << iota
	FlagWritable
	FlagInteractive
	FlagFileLike
)

func (f Flags) Has(x Flags) bool { return f&x == x }

// Device is one I/O endpoint known to the controller.
type Device interface {
	ID() DeviceID
	Flags() Flags

	// ReadLine returns the next complete line without its terminator.
	// status.Eagain means no complete line is buffered yet and
	// status.EOF is returned only by file-like devices.
	ReadLine() (string, status.Code)

	io.Writer

	// TxQueueDepth is the number of output bytes accepted but not yet
	// delivered.
	TxQueueDepth() int

	Close() error
}

// ErrNotWritable is returned by Write on read-only devices.
var ErrNotWritable = errors.New("xio: device is not writable")

// Devices is the table of open devices, indexed by slot.
type Devices struct {
	m map[DeviceID]Device
}

// NewDevices returns an empty table.
func NewDevices() *Devices {
	return &Devices{m: make(map[DeviceID]Device)}
}

// Register installs d in its slot, replacing any previous device.
func (ds *Devices) Register(d Device) {
	ds.m[d.ID()] = d
}

// Get returns the device in slot id.
func (ds *Devices) Get(id DeviceID) (Device, bool) {
	d, ok := ds.m[id]
	return d, ok
}

// Unregister removes slot id and returns the device that held it.
func (ds *Devices) Unregister(id DeviceID) Device {
	d := ds.m[id]
	delete(ds.m, id)
	return d
}

// IDs returns the occupied slots in order.
func (ds *Devices) IDs() []DeviceID {
	ids := make([]DeviceID, 0, len(ds.m))
	for id := range ds.m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll closes every device and returns the first error.
func (ds *Devices) CloseAll() error {
	var first error
	for _, id := range ds.IDs() {
		if err := ds.m[id].Close(); err != nil && first == nil {
			first = err
		}
		delete(ds.m, id)
	}
	return first
}
