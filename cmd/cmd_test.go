package cmd

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/song"
	"github.com/icco/voicetrack/internal/source"
)

// writeSong writes a three beat file: program 5 and volume 100 on the first
// channel, 60 held throughout, 64 for beat two and 67 on the last beat.
func writeSong(t *testing.T, dir string) string {
	t.Helper()

	src := source.New("test", 120)
	l := src.Lock()
	for _, ev := range []source.Event{
		{Time: 0, Msg: midi.ProgramChange(0, 5)},
		{Time: 0, Msg: midi.ControlChange(0, 7, 100)},
		{Time: 0, Msg: midi.NoteOn(0, 60, 90)},
		{Time: source.NewBeats(1, 0), Msg: midi.NoteOn(0, 64, 90)},
		{Time: source.NewBeats(2, 0), Msg: midi.NoteOff(0, 64)},
		{Time: source.NewBeats(3, 0), Msg: midi.NoteOn(0, 67, 90)},
	} {
		if err := src.AppendEventBeats(l, ev.Time, ev.Msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	l.Release()

	path := filepath.Join(dir, "test.mid")
	if err := src.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer

	h, err := newHandler(&buf, "json", slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	slog.New(h).Info("hello", "n", 1)
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected json output, got %q", buf.String())
	}

	if _, err := newHandler(&buf, "xml", slog.LevelInfo); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestCutSongResolvesHeldNotes(t *testing.T) {
	s, err := song.Load(writeSong(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}

	src, notes, err := cutSong(s, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if notes != 1 {
		t.Errorf("expected 1 hanging note, got %d", notes)
	}

	evs := src.Events()
	if len(evs) != 6 {
		t.Fatalf("expected 5 copied events and 1 off, got %d", len(evs))
	}
	last := evs[len(evs)-1]
	var ch, key, vel uint8
	if !last.Msg.GetNoteOff(&ch, &key, &vel) || key != 60 {
		t.Errorf("expected an off for 60, got %v", last.Msg)
	}
	if last.Time != source.BeatsFromFloat(2.5) {
		t.Errorf("off at %s, want 2:0960", last.Time)
	}
}

func TestCutSongAtEnd(t *testing.T) {
	s, err := song.Load(writeSong(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}

	src, notes, err := cutSong(s, -1)
	if err != nil {
		t.Fatal(err)
	}
	if notes != 2 {
		t.Fatalf("expected 2 hanging notes, got %d", notes)
	}

	evs := src.Events()
	end := source.NewBeats(3, 0)
	offs := evs[len(evs)-2:]
	if offs[0].Time != end || offs[1].Time != end+source.OneTick {
		t.Errorf("offs at %s and %s, want consecutive ticks from %s", offs[0].Time, offs[1].Time, end)
	}
}

func TestChaseSendsStateAndNotes(t *testing.T) {
	s, err := song.Load(writeSong(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}

	out := midibuf.NewBuffer(16)
	n, err := chase(s, 2.5, false, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || out.Len() != 2 {
		t.Fatalf("expected program and volume, got %v", out.Events())
	}
	var ch, prog uint8
	if !out.Events()[0].Msg.GetProgramChange(&ch, &prog) || prog != 5 {
		t.Errorf("expected program 5 first, got %v", out.Events()[0].Msg)
	}
	if tick := out.Events()[0].Time; tick != s.Ticks(2.5) {
		t.Errorf("written at %d, want %d", tick, s.Ticks(2.5))
	}

	out.Clear()
	n, err = chase(s, 2.5, true, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected a note too, got %v", out.Events())
	}
	if msg := out.Events()[2].Msg; msg[0] != 0x90 || msg[1] != 60 || msg[2] != 0 {
		t.Errorf("expected silent note on for 60, got % X", []byte(msg))
	}
}

func TestDumpCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeSong(t, dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"dump", "--at", "2.5", "--log-level", "error", path, filepath.Join(dir, "missing.mid")})
	defer func() {
		rootCmd.SetArgs(nil)
		dumpAt = -1
	}()

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an error for the missing file")
	}

	got := out.String()
	for _, want := range []string{
		"5 events",
		"1 notes sounding",
		"Channel 1 Note 60 is on (1 times)",
		"Channel 1 Program 5",
		"Channel 1 Controller 7 = 100",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dump output missing %q:\n%s", want, got)
		}
	}
}

func TestChaseKeepsEveryStackedVoice(t *testing.T) {
	const stacked = 40

	var evs []midibuf.Event
	for ch := uint8(0); ch < 16; ch++ {
		evs = append(evs,
			midibuf.Event{Time: 0, Msg: midi.ProgramChange(ch, 1)},
			midibuf.Event{Time: 0, Msg: midi.AfterTouch(ch, 2)})
		for cc := uint8(0); cc < 127; cc++ {
			evs = append(evs, midibuf.Event{Time: 0, Msg: midi.ControlChange(ch, cc, 3)})
		}
	}
	for i := 0; i < stacked; i++ {
		evs = append(evs, midibuf.Event{Time: 1, Msg: midi.NoteOn(0, 60, 90)})
	}
	s := &song.Song{Name: "stacked", BPM: 120, Resolution: 4, Length: 8, Events: evs}

	// controller 123 is a reset, not state
	wantState := 16*2 + 16*126
	out := midibuf.NewBuffer(wantState + stacked)
	n, err := chase(s, -1, true, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != wantState+stacked {
		t.Errorf("chased %d messages, want %d", n, wantState+stacked)
	}

	notes := 0
	for _, ev := range out.Events() {
		if ev.Msg[0] == 0x90 {
			notes++
		}
	}
	if notes != stacked {
		t.Errorf("sent %d silent note ons, want %d", notes, stacked)
	}
}
