// Package midibuf holds timestamped MIDI events and the destinations they are
// written to.
package midibuf

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// DefaultCapacity is the number of events a Buffer holds when created with
// a non-positive capacity.
const DefaultCapacity = 1024

// ErrBufferFull is returned by Write when the buffer has no room left.
var ErrBufferFull = errors.New("midi buffer full")

// Event is a raw MIDI message at a sample position.
type Event struct {
	Time int64
	Msg  midi.Message
}

func (e Event) String() string {
	return fmt.Sprintf("%d %s", e.Time, e.Msg.String())
}

// Buffer is an ordered, bounded list of events.
type Buffer struct {
	events   []Event
	capacity int
}

// NewBuffer creates a buffer that holds at most capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// PushBack appends ev and reports whether there was room for it.
func (b *Buffer) PushBack(ev Event) bool {
	if len(b.events) >= b.capacity {
		return false
	}
	// copy the message so callers can reuse their byte slices
	msg := make(midi.Message, len(ev.Msg))
	copy(msg, ev.Msg)
	b.events = append(b.events, Event{Time: ev.Time, Msg: msg})
	return true
}

// Write appends msg at time t. It makes a Buffer usable as a Sink.
func (b *Buffer) Write(t int64, msg midi.Message) error {
	if !b.PushBack(Event{Time: t, Msg: msg}) {
		return ErrBufferFull
	}
	return nil
}

// Events returns the buffered events in insertion order. The slice is
// owned by the buffer and is only valid until the next Clear.
func (b *Buffer) Events() []Event {
	return b.events
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Cap returns the maximum number of events the buffer holds.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Clear drops all events but keeps the allocation.
func (b *Buffer) Clear() {
	b.events = b.events[:0]
}
