package trigger

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when no baud rate is configured.
const DefaultBaudRate = 115200

// Sink receives triggers. Send never reports failure to the caller.
type Sink interface {
	Send(t Trigger)
}

// NopSink drops every trigger. Used when no hardware is attached.
type NopSink struct{}

// Send implements Sink.
func (NopSink) Send(Trigger) {}

// RecordingSink keeps every trigger it receives, in order.
type RecordingSink struct {
	Sent []Trigger
}

// Send implements Sink.
func (r *RecordingSink) Send(t Trigger) {
	r.Sent = append(r.Sent, t)
}

// PortSink writes one byte per trigger to a serial port.
type PortSink struct {
	port   io.WriteCloser
	warn   io.Writer
	warned bool
}

// Open connects to the serial port at path. An empty path, or a port that
// cannot be opened, yields a NopSink; the reason goes to warn.
func Open(path string, baud int, warn io.Writer) Sink {
	if path == "" {
		return NopSink{}
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		warnf(warn, "trigger port %s unavailable, triggers disabled: %v\n", path, err)
		return NopSink{}
	}
	return NewPortSink(port, warn)
}

// NewPortSink wraps an already opened port.
func NewPortSink(port io.WriteCloser, warn io.Writer) *PortSink {
	return &PortSink{port: port, warn: warn}
}

// Send implements Sink. Only the first write failure is reported.
func (p *PortSink) Send(t Trigger) {
	if _, err := p.port.Write([]byte{t.Byte()}); err != nil && !p.warned {
		p.warned = true
		warnf(p.warn, "failed to send trigger %s: %v\n", t, err)
	}
}

// Close releases the port.
func (p *PortSink) Close() error {
	return p.port.Close()
}

func warnf(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		// Best-effort warning.
		_ = err
	}
}
