// Package song loads Standard MIDI Files into a single time-ordered list of
// channel messages.
package song

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/icco/voicetrack/internal/midibuf"
)

// ErrNoTracks is returned for files without any track.
var ErrNoTracks = errors.New("no tracks in MIDI file")

const defaultBPM = 120

// Song is the channel-message content of a MIDI file. Event times are
// absolute ticks at Resolution ticks per quarter note.
type Song struct {
	Name       string
	BPM        float64
	Resolution uint16
	Length     int64 // tick of the last end-of-track
	Events     []midibuf.Event
}

// Load reads the file at path.
func Load(path string) (*Song, error) {
	rd, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	s, err := FromSMF(rd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Name = path
	return s, nil
}

// Read parses a MIDI file from r.
func Read(r io.Reader) (*Song, error) {
	rd, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("error reading MIDI: %w", err)
	}
	return FromSMF(rd)
}

// FromSMF flattens every track of sm, keeping only channel messages.
func FromSMF(sm *smf.SMF) (*Song, error) {
	if len(sm.Tracks) == 0 {
		return nil, ErrNoTracks
	}

	s := &Song{BPM: defaultBPM, Resolution: 960}
	if mt, ok := sm.TimeFormat.(smf.MetricTicks); ok {
		s.Resolution = mt.Resolution()
	}
	if tc := sm.TempoChanges(); len(tc) > 0 && tc[0].BPM > 0 {
		s.BPM = tc[0].BPM
	}

	err := forEachEvent(sm, func(tick int64, msg smf.Message) {
		if tick > s.Length {
			s.Length = tick
		}
		if !isChannelMessage(msg) {
			return
		}
		s.Events = append(s.Events, midibuf.Event{Time: tick, Msg: []byte(msg)})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func isChannelMessage(msg []byte) bool {
	return len(msg) > 0 && msg[0] >= 0x80 && msg[0] < 0xF0
}

// forEachEvent walks all tracks merged by time. Ties go to the lower track.
func forEachEvent(sm *smf.SMF, yield func(tick int64, msg smf.Message)) error {
	// pos is the index of the next event in each track, at the absolute
	// time of the last event taken from it.
	pos := make([]int, len(sm.Tracks))
	at := make([]int64, len(sm.Tracks))
	for {
		next := -1
		var nextTime int64
		for i, tr := range sm.Tracks {
			if pos[i] >= len(tr) {
				continue
			}
			t := at[i] + int64(tr[pos[i]].Delta)
			if next < 0 || t < nextTime {
				next, nextTime = i, t
			}
		}
		if next < 0 {
			return nil
		}
		yield(nextTime, sm.Tracks[next][pos[next]].Message)
		pos[next]++
		at[next] = nextTime
	}
}

// Ticks converts a position in quarter notes to ticks.
func (s *Song) Ticks(beats float64) int64 {
	return int64(beats * float64(s.Resolution))
}

// Until returns the events strictly before tick.
func (s *Song) Until(tick int64) []midibuf.Event {
	i := sort.Search(len(s.Events), func(i int) bool {
		return s.Events[i].Time >= tick
	})
	return s.Events[:i]
}

// Between returns the events in [from, to).
func (s *Song) Between(from, to int64) []midibuf.Event {
	lo := sort.Search(len(s.Events), func(i int) bool {
		return s.Events[i].Time >= from
	})
	hi := sort.Search(len(s.Events), func(i int) bool {
		return s.Events[i].Time >= to
	})
	if hi < lo {
		hi = lo
	}
	return s.Events[lo:hi]
}

// Channels reports which channels carry at least one event.
func (s *Song) Channels() [16]bool {
	var used [16]bool
	for _, ev := range s.Events {
		used[ev.Msg[0]&0x0F] = true
	}
	return used
}
