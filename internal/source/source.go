package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var (
	// ErrNotLocked is returned when an append is made without holding the
	// source's lock.
	ErrNotLocked = errors.New("source not locked by caller")
	// ErrOutOfOrder is returned when an append would move time backwards.
	ErrOutOfOrder = errors.New("event time before end of source")
)

// Event is a MIDI message at a musical time.
type Event struct {
	Time Beats
	Msg  midi.Message
}

// Source is an append-only list of MIDI events in musical time. Writers
// must hold the advisory Lock for the duration of a batch of appends.
type Source struct {
	mu     sync.Mutex
	held   *Lock
	name   string
	bpm    float64
	events []Event
}

// Lock is proof that the caller holds a Source's lock.
type Lock struct {
	src      *Source
	released bool
}

// New creates an empty source. A non-positive bpm defaults to 120.
func New(name string, bpm float64) *Source {
	if bpm <= 0 {
		bpm = 120
	}
	return &Source{name: name, bpm: bpm}
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Lock blocks until the source is free and returns the held lock.
func (s *Source) Lock() *Lock {
	s.mu.Lock()
	l := &Lock{src: s}
	s.held = l
	return l
}

// Release gives the lock back. Releasing twice is a no-op.
func (l *Lock) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	l.src.held = nil
	l.src.mu.Unlock()
}

func (s *Source) locked(l *Lock) bool {
	return l != nil && !l.released && l.src == s && s.held == l
}

// AppendEventBeats appends msg at time t. Times must not decrease.
func (s *Source) AppendEventBeats(l *Lock, t Beats, msg midi.Message) error {
	if !s.locked(l) {
		return fmt.Errorf("%s: %w", s.name, ErrNotLocked)
	}
	if n := len(s.events); n > 0 && t < s.events[n-1].Time {
		return fmt.Errorf("%s: append at %s, end is %s: %w", s.name, t, s.events[n-1].Time, ErrOutOfOrder)
	}
	cp := make(midi.Message, len(msg))
	copy(cp, msg)
	s.events = append(s.events, Event{Time: t, Msg: cp})
	return nil
}

// End returns the time of the last event, or 0 for an empty source.
func (s *Source) End(l *Lock) Beats {
	if !s.locked(l) || len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].Time
}

// Events returns a copy of the source's events.
func (s *Source) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// SMF renders the source as a two-track Standard MIDI File: a tempo track
// and one track holding every event.
func (s *Source) SMF() (*smf.SMF, error) {
	events := s.Events()

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(PPQN)

	var track0 smf.Track
	track0.Add(0, smf.MetaMeter(4, 4))
	track0.Add(0, smf.MetaTempo(s.bpm))
	track0.Close(0)
	if err := sm.Add(track0); err != nil {
		return nil, fmt.Errorf("error adding tempo track: %w", err)
	}

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(s.name))
	var last Beats
	for _, ev := range events {
		delta := ev.Time - last
		if delta < 0 {
			delta = 0
		}
		track.Add(uint32(delta), ev.Msg) //nolint:gosec // appends are time ordered
		last = ev.Time
	}
	track.Close(0)
	if err := sm.Add(track); err != nil {
		return nil, fmt.Errorf("error adding event track: %w", err)
	}
	return sm, nil
}

// WriteTo writes the source as a Standard MIDI File. It takes the lock
// itself, so it must not be called while the caller holds it.
func (s *Source) WriteTo(w io.Writer) (int64, error) {
	sm, err := s.SMF()
	if err != nil {
		return 0, err
	}
	n, err := sm.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("error writing MIDI: %w", err)
	}
	return n, nil
}

// WriteFile writes the source to path as a Standard MIDI File.
func (s *Source) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if _, err := s.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
