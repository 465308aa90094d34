package xio

import (
	"errors"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	cerrors "tinyg-go/pkg/errors"
)

// SerialConfig configures a serial console.
type SerialConfig struct {
	Port       string
	Baud       int
	LineBuffer int
	Intercept  func(byte) bool
	Notify     func()
}

const serialPollTimeout = 100 * time.Millisecond

// OpenSerial opens a serial port as the interactive console device.
func OpenSerial(cfg SerialConfig) (*Stream, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, cerrors.DeviceOpenError(cfg.Port, err)
	}
	// A bounded read lets the reader goroutine notice Close.
	if err := port.SetReadTimeout(serialPollTimeout); err != nil {
		port.Close()
		return nil, cerrors.DeviceOpenError(cfg.Port, err)
	}
	return NewStream(DevUSB, &pollingReader{port}, port, StreamConfig{
		LineBuffer:  cfg.LineBuffer,
		Intercept:   cfg.Intercept,
		Notify:      cfg.Notify,
		Interactive: true,
	}, port), nil
}

// pollingReader reports a closed port as io.EOF. Timed-out reads return
// (0, nil) and the stream's read loop simply tries again.
type pollingReader struct {
	port serial.Port
}

func (p *pollingReader) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	var perr *serial.PortError
	if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
		return n, io.EOF
	}
	return n, err
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates serial ports with their USB details.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrDeviceIO, "enumerate serial ports")
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return out, nil
}
