// Package transport opens the byte stream the sensor radio is attached to.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	tcpScheme   = "tcp://"
	dialTimeout = 5 * time.Second
)

// Opener opens a fresh connection to the radio link.
type Opener interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (f OpenerFunc) Open(ctx context.Context) (io.ReadWriteCloser, error) { return f(ctx) }

// Link opens the configured address at the configured baud rate.
type Link struct {
	Address  string
	BaudRate int
}

// Open dials tcp://host:port addresses, starts a Simulator for sim://ID,ID,...
// and treats anything else as a serial device opened 8N1 at BaudRate.
func (l Link) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if strings.HasPrefix(l.Address, simScheme) {
		return NewSimulator(simNodeIDs(l.Address), defaultSimTick), nil
	}
	if strings.HasPrefix(l.Address, tcpScheme) {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(l.Address, tcpScheme))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", l.Address, err)
		}
		return conn, nil
	}

	port, err := serial.Open(l.Address, &serial.Mode{
		BaudRate: l.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s at %d baud: %w", l.Address, l.BaudRate, err)
	}
	return port, nil
}

// IsTCP reports whether address points at a network bridge instead of a device.
func IsTCP(address string) bool { return strings.HasPrefix(address, tcpScheme) }
