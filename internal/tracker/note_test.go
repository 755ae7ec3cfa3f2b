package tracker

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/source"
)

// countNonZero walks the whole grid, independent of the on counter.
func countNonZero(t *NoteTracker) int {
	n := 0
	for ch := uint8(0); ch < NumChannels; ch++ {
		for note := uint8(0); note < NumNotes; note++ {
			if t.Voices(note, ch) > 0 {
				n++
			}
		}
	}
	return n
}

func TestAddRemoveOverlappingVoices(t *testing.T) {
	tr := NewNoteTracker()

	tr.Add(60, 0)
	tr.Add(60, 0)
	tr.Remove(60, 0)

	if v := tr.Voices(60, 0); v != 1 {
		t.Errorf("expected 1 voice on 0/60, got %d", v)
	}
	if tr.On() != 1 {
		t.Errorf("expected 1 note on, got %d", tr.On())
	}

	tr.Remove(60, 0)
	if tr.On() != 0 || tr.Voices(60, 0) != 0 {
		t.Errorf("expected silence, on=%d voices=%d", tr.On(), tr.Voices(60, 0))
	}
}

func TestRemoveSilentNoteIsNoop(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(64, 3)

	tr.Remove(60, 3)
	tr.Remove(60, 3)

	if tr.On() != 1 {
		t.Errorf("expected on=1, got %d", tr.On())
	}
	if v := tr.Voices(60, 3); v != 0 {
		t.Errorf("voice count underflowed to %d", v)
	}
}

func TestOutOfRangeIgnored(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(128, 0)
	tr.Add(0, 16)
	tr.Remove(200, 0)

	if tr.On() != 0 {
		t.Errorf("expected nothing on, got %d", tr.On())
	}
	if tr.Voices(128, 0) != 0 || tr.Voices(0, 16) != 0 {
		t.Error("out of range lookups should report 0")
	}
}

func TestVoiceCountSaturates(t *testing.T) {
	tr := NewNoteTracker()
	for i := 0; i < maxVoices+10; i++ {
		tr.Add(1, 1)
	}
	if v := tr.Voices(1, 1); v != maxVoices {
		t.Errorf("expected saturation at %d, got %d", maxVoices, v)
	}
	if tr.On() != 1 {
		t.Errorf("expected on=1, got %d", tr.On())
	}
}

func TestOnCountMatchesGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := NewNoteTracker()
	model := map[Note]int{}

	for i := 0; i < 5000; i++ {
		n := Note{Channel: uint8(rng.Intn(3)), Note: uint8(60 + rng.Intn(8))}
		if rng.Intn(2) == 0 {
			tr.Add(n.Note, n.Channel)
			model[n]++
		} else {
			tr.Remove(n.Note, n.Channel)
			if model[n] > 0 {
				model[n]--
			}
		}

		want := 0
		for _, c := range model {
			if c > 0 {
				want++
			}
		}
		if tr.On() != want {
			t.Fatalf("step %d: on=%d, model says %d", i, tr.On(), want)
		}
		if got := countNonZero(tr); got != tr.On() {
			t.Fatalf("step %d: on=%d but %d slots are non-zero", i, tr.On(), got)
		}
	}
}

func TestTrackClassifiesMessages(t *testing.T) {
	tests := []struct {
		name   string
		msgs   [][]byte
		wantOn int
	}{
		{"note on", [][]byte{midi.NoteOn(0, 60, 100)}, 1},
		{"note off", [][]byte{midi.NoteOn(0, 60, 100), midi.NoteOff(0, 60)}, 0},
		// note-on with velocity 0 is a note-off, never another voice
		{"velocity zero is off", [][]byte{midi.NoteOn(2, 60, 100), {0x92, 60, 0}}, 0},
		{"velocity zero releases one voice", [][]byte{midi.NoteOn(2, 60, 100), midi.NoteOn(2, 60, 100), {0x92, 60, 0}}, 1},
		{"velocity zero on silent note", [][]byte{{0x92, 60, 0}}, 0},
		{"all notes off", [][]byte{midi.NoteOn(0, 60, 100), midi.NoteOn(5, 70, 100), midi.ControlChange(9, 123, 0)}, 0},
		{"other controller", [][]byte{midi.NoteOn(0, 60, 100), midi.ControlChange(0, 7, 100)}, 1},
		{"program ignored", [][]byte{midi.ProgramChange(0, 4)}, 0},
		{"empty and short", [][]byte{{}, {0x90}}, 0},
		{"running data byte", [][]byte{{0x3C, 0x40}}, 0},
		{"system message", [][]byte{{0xF8}, {0xFF}}, 0},
		{"channels are distinct", [][]byte{midi.NoteOn(0, 60, 1), midi.NoteOn(1, 60, 1), midi.NoteOff(2, 60)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewNoteTracker()
			for _, m := range tt.msgs {
				tr.Track(m)
			}
			if tr.On() != tt.wantOn {
				t.Errorf("on = %d, want %d", tr.On(), tt.wantOn)
			}
		})
	}
}

func TestTrackEvents(t *testing.T) {
	buf := midibuf.NewBuffer(8)
	buf.PushBack(midibuf.Event{Time: 0, Msg: midi.NoteOn(0, 60, 100)})
	buf.PushBack(midibuf.Event{Time: 10, Msg: midi.NoteOn(0, 64, 100)})
	buf.PushBack(midibuf.Event{Time: 20, Msg: midi.NoteOff(0, 60)})

	tr := NewNoteTracker()
	tr.TrackEvents(buf.Events())

	got := tr.ActiveNotes()
	if len(got) != 1 || got[0] != (Note{Channel: 0, Note: 64}) {
		t.Errorf("unexpected active notes %v", got)
	}
}

func TestResolveNotesToBuffer(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(60, 0)
	tr.Add(64, 0)

	buf := midibuf.NewBuffer(16)
	tr.ResolveNotes(buf, 100)

	evs := buf.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	for i, note := range []uint8{60, 64} {
		var ch, key, vel uint8
		if !evs[i].Msg.GetNoteOff(&ch, &key, &vel) {
			t.Fatalf("event %d is not a note off: %v", i, evs[i].Msg)
		}
		if evs[i].Time != 100 || ch != 0 || key != note || vel != 0 {
			t.Errorf("event %d = %v, want note off 0/%d at 100", i, evs[i], note)
		}
	}
	if tr.On() != 0 || countNonZero(tr) != 0 {
		t.Errorf("tracker not silent after resolve")
	}
}

func TestResolveEmitsOnePerVoiceInOrder(t *testing.T) {
	tr := NewNoteTracker()
	// turned on out of order on purpose
	tr.Add(10, 15)
	tr.Add(90, 2)
	tr.Add(5, 2)
	tr.Add(5, 2)
	tr.Add(127, 0)

	var got []Note
	sink := midibuf.SinkFunc(func(_ int64, msg midi.Message) error {
		got = append(got, Note{Channel: msg[0] & 0x0F, Note: msg[1]})
		return nil
	})
	tr.ResolveNotesToSink(sink, 7)

	want := []Note{{0, 127}, {2, 5}, {2, 5}, {2, 90}, {15, 10}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResolveSilentEmitsNothing(t *testing.T) {
	tr := NewNoteTracker()
	calls := 0
	sink := midibuf.SinkFunc(func(int64, midi.Message) error {
		calls++
		return nil
	})

	tr.ResolveNotesToSink(sink, 0)
	buf := midibuf.NewBuffer(4)
	tr.ResolveNotes(buf, 0)
	tr.FlushNotes(buf, 0)

	if calls != 0 || buf.Len() != 0 {
		t.Errorf("silent tracker emitted %d sink writes and %d buffered events", calls, buf.Len())
	}
}

func TestResolveIgnoresWriteFailures(t *testing.T) {
	var logs bytes.Buffer
	tr := NewNoteTracker()
	tr.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	tr.Add(60, 0)
	tr.Add(61, 0)
	tr.Add(62, 0)

	buf := midibuf.NewBuffer(1)
	tr.ResolveNotes(buf, 0)

	if buf.Len() != 1 {
		t.Errorf("expected 1 event to fit, got %d", buf.Len())
	}
	if tr.On() != 0 || countNonZero(tr) != 0 {
		t.Error("tracker should be silent even when writes fail")
	}
	if !strings.Contains(logs.String(), "destination rejected event") {
		t.Errorf("expected a warning, got %q", logs.String())
	}

	tr.Add(60, 1)
	tr.ResolveNotesToSink(midibuf.SinkFunc(func(int64, midi.Message) error {
		return errors.New("port gone")
	}), 0)
	if tr.On() != 0 {
		t.Error("sink failure should still drain")
	}
}

func TestResolveNotesToSourceSpacesByTick(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(60, 0)
	tr.Add(62, 0)
	tr.Add(67, 1)

	src := source.New("resolve", 120)
	l := src.Lock()
	start := source.NewBeats(4, 0)
	tr.ResolveNotesToSource(src, l, start)
	l.Release()

	evs := src.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	for i, ev := range evs {
		if want := start + source.Beats(i)*source.OneTick; ev.Time != want {
			t.Errorf("event %d at %s, want %s", i, ev.Time, want)
		}
		if ev.Msg[0]&0xF0 != statusNoteOff || ev.Msg[2] != 0 {
			t.Errorf("event %d is %v, want note off", i, ev.Msg)
		}
	}
	if tr.On() != 0 {
		t.Error("tracker should be silent")
	}
}

func TestResolveNotesToSourceWithoutLock(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(60, 0)

	src := source.New("unlocked", 120)
	tr.ResolveNotesToSource(src, nil, 0)

	if len(src.Events()) != 0 {
		t.Error("unlocked append should have been refused")
	}
	if tr.On() != 0 {
		t.Error("tracker should be silent")
	}
}

func TestFlushNotesEmitsNoteOnZeroVelocity(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(64, 4)
	tr.Add(60, 4)
	tr.Add(60, 4)

	buf := midibuf.NewBuffer(8)
	tr.FlushNotes(buf, 33)

	evs := buf.Events()
	want := []uint8{60, 60, 64}
	if len(evs) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(evs))
	}
	for i, ev := range evs {
		if ev.Msg[0] != 0x94 || ev.Msg[1] != want[i] || ev.Msg[2] != 0 || ev.Time != 33 {
			t.Errorf("event %d = %v", i, ev)
		}
	}
	if tr.On() != 0 {
		t.Error("tracker should be silent")
	}
}

func TestDump(t *testing.T) {
	tr := NewNoteTracker()
	tr.Add(60, 0)
	tr.Add(60, 0)
	tr.Add(72, 9)

	var b strings.Builder
	tr.Dump(&b)

	want := "******\n" +
		"Channel 1 Note 60 is on (2 times)\n" +
		"Channel 10 Note 72 is on (1 times)\n" +
		"+++++\n"
	if b.String() != want {
		t.Errorf("dump = %q, want %q", b.String(), want)
	}
	if tr.On() != 2 {
		t.Error("dump must not change state")
	}
}

func TestZeroValueUsable(t *testing.T) {
	var tr NoteTracker
	tr.Add(1, 2)
	tr.ResolveNotes(midibuf.NewBuffer(0), 0)
	if tr.On() != 0 {
		t.Error("zero value tracker should resolve")
	}
}
