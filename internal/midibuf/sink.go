package midibuf

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// Sink accepts MIDI messages stamped with a sample position.
type Sink interface {
	Write(t int64, msg midi.Message) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(t int64, msg midi.Message) error

// Write calls f.
func (f SinkFunc) Write(t int64, msg midi.Message) error {
	return f(t, msg)
}

// PortSink writes to a MIDI output through a gomidi send function. The
// timestamp is dropped; messages go out immediately.
type PortSink struct {
	name string
	send func(msg midi.Message) error
}

// NewPortSink wraps send, as returned by midi.SendTo.
func NewPortSink(name string, send func(msg midi.Message) error) *PortSink {
	return &PortSink{name: name, send: send}
}

// Write sends msg to the port.
func (p *PortSink) Write(_ int64, msg midi.Message) error {
	if p.send == nil {
		return fmt.Errorf("port %s: not open", p.name)
	}
	if err := p.send(msg); err != nil {
		return fmt.Errorf("port %s: %w", p.name, err)
	}
	return nil
}

func (p *PortSink) String() string {
	return p.name
}

// Tee writes every message to each sink in order and returns the first
// error seen. All sinks are written even if an earlier one fails.
type Tee []Sink

// Write fans msg out to every sink.
func (t Tee) Write(ts int64, msg midi.Message) error {
	var first error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Write(ts, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
