package song

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func testSMF(t *testing.T) *smf.SMF {
	t.Helper()

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)

	var track0 smf.Track
	track0.Add(0, smf.MetaMeter(4, 4))
	track0.Add(0, smf.MetaTempo(125))
	track0.Close(0)

	var track1 smf.Track
	track1.Add(0, midi.ProgramChange(0, 5))
	track1.Add(0, midi.NoteOn(0, 60, 100))
	track1.Add(480, midi.NoteOff(0, 60))
	track1.Close(480)

	var track2 smf.Track
	track2.Add(240, midi.NoteOn(1, 48, 90))
	track2.Add(240, midi.NoteOff(1, 48))
	track2.Close(0)

	for _, tr := range []smf.Track{track0, track1, track2} {
		if err := sm.Add(tr); err != nil {
			t.Fatalf("add track: %v", err)
		}
	}
	return sm
}

func TestLoadMergesTracks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mid")
	if err := testSMF(t).WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if s.Name != path || s.BPM != 125 || s.Resolution != 480 || s.Length != 960 {
		t.Errorf("unexpected header: name=%s bpm=%v res=%d len=%d", s.Name, s.BPM, s.Resolution, s.Length)
	}

	want := []struct {
		tick   int64
		status byte
	}{
		{0, 0xC0},
		{0, 0x90},
		{240, 0x91},
		{480, 0x80},
		{480, 0x81},
	}
	if len(s.Events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(s.Events), s.Events)
	}
	for i, w := range want {
		if s.Events[i].Time != w.tick || s.Events[i].Msg[0] != w.status {
			t.Errorf("event %d = %v, want %X at %d", i, s.Events[i], w.status, w.tick)
		}
	}

	used := s.Channels()
	if !used[0] || !used[1] || used[2] {
		t.Errorf("unexpected channel usage %v", used)
	}
}

func TestRead(t *testing.T) {
	var buf bytes.Buffer
	if _, err := testSMF(t).WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(s.Events) != 5 {
		t.Errorf("expected 5 events, got %d", len(s.Events))
	}
}

func TestFromSMFWithoutTracks(t *testing.T) {
	if _, err := FromSMF(smf.New()); !errors.Is(err, ErrNoTracks) {
		t.Errorf("expected ErrNoTracks, got %v", err)
	}
}

func TestUntilAndBetween(t *testing.T) {
	s, err := FromSMF(testSMF(t))
	if err != nil {
		t.Fatalf("from smf: %v", err)
	}

	if n := len(s.Until(0)); n != 0 {
		t.Errorf("Until(0) = %d events", n)
	}
	if n := len(s.Until(480)); n != 3 {
		t.Errorf("Until(480) = %d events, want 3", n)
	}
	if n := len(s.Between(240, 481)); n != 3 {
		t.Errorf("Between(240,481) = %d events, want 3", n)
	}
	if n := len(s.Between(500, 100)); n != 0 {
		t.Errorf("inverted range = %d events", n)
	}
	if s.Ticks(1.5) != 720 {
		t.Errorf("Ticks(1.5) = %d", s.Ticks(1.5))
	}
}
