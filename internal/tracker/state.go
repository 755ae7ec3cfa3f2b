package tracker

import (
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/midibuf"
)

// unset marks a state slot that no message has written yet.
const unset = 0x80

func isSet(v uint8) bool {
	return v&unset == 0
}

// StateTracker is a NoteTracker that also remembers the last program,
// channel pressure and controller values seen on each channel. Use
// NewStateTracker; the zero value reports every slot as set to 0.
type StateTracker struct {
	NoteTracker

	program  [NumChannels]uint8
	pressure [NumChannels]uint8
	control  [NumChannels][NumControls]uint8
}

// NewStateTracker creates a tracker with no notes and no remembered state.
func NewStateTracker() *StateTracker {
	t := &StateTracker{}
	t.SetLogger(nil)
	t.Reset()
	return t
}

// Reset silences every voice and forgets all channel state.
func (t *StateTracker) Reset() {
	t.NoteTracker.Reset()

	for ch := range t.program {
		t.program[ch] = unset
		t.pressure[ch] = unset
		for c := range t.control[ch] {
			t.control[ch][c] = unset
		}
	}
}

// Track applies one raw MIDI message. All-notes-off only resets voices;
// system reset forgets everything. Poly pressure and pitch bend are not
// remembered.
func (t *StateTracker) Track(msg []byte) {
	if len(msg) > 0 && msg[0] == statusSystemReset {
		t.Reset()
		return
	}

	kind, ch, ok := channelMessage(msg)
	if !ok || len(msg) < 2 || msg[1] > 0x7F {
		return
	}

	switch kind {
	case statusNoteOn:
		t.trackNoteOn(msg, ch)
	case statusNoteOff:
		t.Remove(msg[1], ch)
	case statusControl:
		t.trackControl(msg, ch)
	case statusProgram:
		t.program[ch] = msg[1]
	case statusChannelPressure:
		t.pressure[ch] = msg[1]
	case statusPolyPressure, statusPitchBend:
	}
}

func (t *StateTracker) trackControl(msg []byte, ch uint8) {
	cc := msg[1]
	switch {
	case cc == ctlAllNotesOff:
		t.NoteTracker.Reset()
	case cc < NumControls && len(msg) >= 3 && msg[2] <= 0x7F:
		t.control[ch][cc] = msg[2]
	}
}

// TrackEvents applies Track to each event in order.
func (t *StateTracker) TrackEvents(evs []midibuf.Event) {
	for _, ev := range evs {
		t.Track(ev.Msg)
	}
}

// Program returns the last program seen on channel.
func (t *StateTracker) Program(channel uint8) (uint8, bool) {
	if channel >= NumChannels {
		return 0, false
	}
	v := t.program[channel]
	return v, isSet(v)
}

// Pressure returns the last channel pressure seen on channel.
func (t *StateTracker) Pressure(channel uint8) (uint8, bool) {
	if channel >= NumChannels {
		return 0, false
	}
	v := t.pressure[channel]
	return v, isSet(v)
}

// Control returns the last value of controller cc seen on channel.
func (t *StateTracker) Control(channel, cc uint8) (uint8, bool) {
	if channel >= NumChannels || cc >= NumControls {
		return 0, false
	}
	v := t.control[channel][cc]
	return v, isSet(v)
}

// Flush writes the remembered program, pressure and controller values to
// dst at time at, so a fresh receiver ends up in the same state. Notes are
// not touched; use ResolveNotesToSink or FlushNotes for those.
func (t *StateTracker) Flush(dst midibuf.Sink, at int64) {
	t.logger().Debug("flush state", "tracker", t, "time", at)

	write := func(msg midi.Message) {
		if err := dst.Write(at, msg); err != nil {
			t.dropped("flush state", msg, err)
		}
	}

	for ch := uint8(0); ch < NumChannels; ch++ {
		if v := t.program[ch]; isSet(v) {
			write(midi.ProgramChange(ch, v))
		}
	}
	for ch := uint8(0); ch < NumChannels; ch++ {
		if v := t.pressure[ch]; isSet(v) {
			write(midi.AfterTouch(ch, v))
		}
	}
	for ch := uint8(0); ch < NumChannels; ch++ {
		for cc := uint8(0); cc < NumControls; cc++ {
			if v := t.control[ch][cc]; isSet(v) {
				write(midi.ControlChange(ch, cc, v))
			}
		}
	}
}

// Dump writes the sounding notes followed by the remembered state of
// every channel that has any.
func (t *StateTracker) Dump(w io.Writer) {
	t.NoteTracker.Dump(w)

	for ch := 0; ch < NumChannels; ch++ {
		if v := t.program[ch]; isSet(v) {
			fmt.Fprintf(w, "Channel %d Program %d\n", ch+1, v)
		}
		if v := t.pressure[ch]; isSet(v) {
			fmt.Fprintf(w, "Channel %d Pressure %d\n", ch+1, v)
		}
		for cc := 0; cc < NumControls; cc++ {
			if v := t.control[ch][cc]; isSet(v) {
				fmt.Fprintf(w, "Channel %d Controller %d = %d\n", ch+1, cc, v)
			}
		}
	}
	fmt.Fprintln(w, "=====")
}
