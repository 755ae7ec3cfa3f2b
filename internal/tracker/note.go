// Package tracker follows the sounding state of the 16 MIDI channels as
// channel-voice messages go past, so that held notes can be silenced and
// controller state replayed later without the message history.
package tracker

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"golang.org/x/time/rate"

	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/source"
)

const (
	NumChannels = 16
	NumNotes    = 128
	NumControls = 127
)

// Status nibbles and the few full status bytes the trackers look at.
const (
	statusNoteOff         = 0x80
	statusNoteOn          = 0x90
	statusPolyPressure    = 0xA0
	statusControl         = 0xB0
	statusProgram         = 0xC0
	statusChannelPressure = 0xD0
	statusPitchBend       = 0xE0
	statusSystemReset     = 0xFF

	ctlAllNotesOff = 123
)

const maxVoices = math.MaxUint16

var discard = slog.New(slog.DiscardHandler)

// Note is a (channel, note) pair.
type Note struct {
	Channel uint8
	Note    uint8
}

func (n Note) String() string {
	return fmt.Sprintf("%d/%d", n.Channel+1, n.Note)
}

// BeatsWriter is a durable destination in musical time. Callers hold the
// writer's lock for the whole call; the tracker never takes it.
type BeatsWriter interface {
	AppendEventBeats(l *source.Lock, t source.Beats, msg midi.Message) error
}

// NoteTracker counts the voices sounding on every (channel, note). The
// zero value is an empty tracker that does not log.
type NoteTracker struct {
	voices [NumChannels * NumNotes]uint16
	on     int

	log  *slog.Logger
	warn *rate.Limiter
}

// NewNoteTracker creates an empty tracker.
func NewNoteTracker() *NoteTracker {
	t := &NoteTracker{}
	t.SetLogger(nil)
	return t
}

// SetLogger sets where trace lines and dropped-write warnings go. A nil
// logger discards everything.
func (t *NoteTracker) SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	t.log = l
	t.warn = rate.NewLimiter(rate.Every(time.Second), 4)
}

// LogValue identifies the tracker instance in log output.
func (t *NoteTracker) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("%p", t))
}

func (t *NoteTracker) logger() *slog.Logger {
	if t.log == nil {
		return discard
	}
	return t.log
}

// dropped reports a write the destination refused. It never fails.
func (t *NoteTracker) dropped(op string, msg midi.Message, err error) {
	if t.warn != nil && !t.warn.Allow() {
		return
	}
	t.logger().Warn("destination rejected event",
		"tracker", t, "op", op, "msg", msg.String(), "err", err)
}

func index(note, channel uint8) int {
	return int(note) + NumNotes*int(channel)
}

// Reset silences every voice without emitting anything.
func (t *NoteTracker) Reset() {
	t.logger().Debug("reset", "tracker", t)
	t.voices = [NumChannels * NumNotes]uint16{}
	t.on = 0
}

// Add counts one more voice on note/channel.
func (t *NoteTracker) Add(note, channel uint8) {
	if note >= NumNotes || channel >= NumChannels {
		return
	}
	i := index(note, channel)
	if t.voices[i] == maxVoices {
		t.logger().Warn("voice count saturated",
			"tracker", t, "note", note, "channel", channel, "voices", t.voices[i])
		return
	}
	if t.voices[i] == 0 {
		t.on++
	}
	t.voices[i]++

	t.logger().Debug("on", "tracker", t, "note", note, "channel", channel,
		"voices", t.voices[i], "on", t.on)
}

// Remove drops one voice from note/channel. Removing a silent note does
// nothing.
func (t *NoteTracker) Remove(note, channel uint8) {
	if note >= NumNotes || channel >= NumChannels {
		return
	}
	i := index(note, channel)
	switch t.voices[i] {
	case 0:
	case 1:
		t.voices[i] = 0
		t.on--
	default:
		t.voices[i]--
	}

	t.logger().Debug("off", "tracker", t, "note", note, "channel", channel,
		"voices", t.voices[i], "on", t.on)
}

// channelMessage splits a status byte. ok is false for anything that is
// not a channel-voice message.
func channelMessage(msg []byte) (kind, channel uint8, ok bool) {
	if len(msg) == 0 || msg[0] < statusNoteOff || msg[0] >= 0xF0 {
		return 0, 0, false
	}
	return msg[0] & 0xF0, msg[0] & 0x0F, true
}

// Track applies one raw MIDI message. Note-on with velocity 0 counts as
// note-off; all-notes-off (controller 123) resets the tracker. Everything
// else is ignored.
func (t *NoteTracker) Track(msg []byte) {
	kind, ch, ok := channelMessage(msg)
	if !ok || len(msg) < 2 {
		return
	}
	switch kind {
	case statusControl:
		if msg[1] == ctlAllNotesOff {
			t.Reset()
		}
	case statusNoteOn:
		t.trackNoteOn(msg, ch)
	case statusNoteOff:
		t.Remove(msg[1], ch)
	}
}

func (t *NoteTracker) trackNoteOn(msg []byte, ch uint8) {
	if len(msg) >= 3 && msg[2] == 0 {
		t.Remove(msg[1], ch)
		return
	}
	t.Add(msg[1], ch)
}

// TrackEvents applies Track to each event in order.
func (t *NoteTracker) TrackEvents(evs []midibuf.Event) {
	for _, ev := range evs {
		t.Track(ev.Msg)
	}
}

// On returns the number of (channel, note) pairs with at least one voice.
func (t *NoteTracker) On() int {
	return t.on
}

// Voices returns the voice count on note/channel.
func (t *NoteTracker) Voices(note, channel uint8) int {
	if note >= NumNotes || channel >= NumChannels {
		return 0
	}
	return int(t.voices[index(note, channel)])
}

// ActiveNotes returns every sounding (channel, note), channel-major and
// ascending.
func (t *NoteTracker) ActiveNotes() []Note {
	if t.on == 0 {
		return nil
	}
	out := make([]Note, 0, t.on)
	for ch := 0; ch < NumChannels; ch++ {
		for n := 0; n < NumNotes; n++ {
			if t.voices[n+NumNotes*ch] > 0 {
				out = append(out, Note{Channel: uint8(ch), Note: uint8(n)}) //nolint:gosec // bounded by loop constants
			}
		}
	}
	return out
}

// drain calls emit once per sounding voice, channel 0..15 then note
// 0..127, and leaves the tracker silent.
func (t *NoteTracker) drain(op string, emit func(channel, note uint8)) {
	if t.on == 0 {
		return
	}
	for ch := 0; ch < NumChannels; ch++ {
		for n := 0; n < NumNotes; n++ {
			i := n + NumNotes*ch
			for t.voices[i] > 0 {
				emit(uint8(ch), uint8(n)) //nolint:gosec // bounded by loop constants
				t.voices[i]--
				t.logger().Debug(op, "tracker", t, "note", n, "channel", ch)
			}
		}
	}
	t.on = 0
}

// ResolveNotes appends a note-off at time at for every sounding voice and
// leaves the tracker silent. Events the buffer has no room for are lost.
func (t *NoteTracker) ResolveNotes(dst *midibuf.Buffer, at int64) {
	t.logger().Debug("resolve buffer", "tracker", t, "time", at, "on", t.on)
	t.drain("buffer resolved", func(ch, n uint8) {
		msg := midi.NoteOff(ch, n)
		if !dst.PushBack(midibuf.Event{Time: at, Msg: msg}) {
			t.dropped("resolve", msg, midibuf.ErrBufferFull)
		}
	})
}

// ResolveNotesToSink writes a note-off at time at for every sounding voice
// and leaves the tracker silent. Write errors are logged, not returned.
func (t *NoteTracker) ResolveNotesToSink(dst midibuf.Sink, at int64) {
	t.logger().Debug("resolve sink", "tracker", t, "time", at, "on", t.on)
	t.drain("sink resolved", func(ch, n uint8) {
		msg := midi.NoteOff(ch, n)
		if err := dst.Write(at, msg); err != nil {
			t.dropped("resolve", msg, err)
		}
	})
}

// ResolveNotesToSource appends a note-off for every sounding voice to a
// musical-time destination and leaves the tracker silent. The first event
// goes at at and each later one a tick after the previous, so no two share
// a time. The caller must hold l for the duration of the call.
func (t *NoteTracker) ResolveNotesToSource(dst BeatsWriter, l *source.Lock, at source.Beats) {
	t.logger().Debug("resolve source", "tracker", t, "time", at.String(), "on", t.on)
	t.drain("source resolved", func(ch, n uint8) {
		msg := midi.NoteOff(ch, n)
		if err := dst.AppendEventBeats(l, at, msg); err != nil {
			t.dropped("resolve", msg, err)
		}
		at += source.OneTick
	})
}

// FlushNotes appends a note-on with velocity 0 for every sounding voice
// and leaves the tracker silent. Unlike ResolveNotes it emits note-on
// status bytes.
func (t *NoteTracker) FlushNotes(dst *midibuf.Buffer, at int64) {
	t.logger().Debug("flush notes", "tracker", t, "time", at, "on", t.on)
	t.drain("buffer flushed", func(ch, n uint8) {
		msg := midi.Message{statusNoteOn | ch, n, 0}
		if !dst.PushBack(midibuf.Event{Time: at, Msg: msg}) {
			t.dropped("flush", msg, midibuf.ErrBufferFull)
		}
	})
}

// Dump writes every sounding note and its voice count to w.
func (t *NoteTracker) Dump(w io.Writer) {
	fmt.Fprintln(w, "******")
	for ch := 0; ch < NumChannels; ch++ {
		for n := 0; n < NumNotes; n++ {
			if v := t.voices[n+NumNotes*ch]; v > 0 {
				fmt.Fprintf(w, "Channel %d Note %d is on (%d times)\n", ch+1, n, v)
			}
		}
	}
	fmt.Fprintln(w, "+++++")
}
