package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/icco/voicetrack/internal/tracker"
)

const (
	firstOctave = 2 // C2
	lastOctave  = 5 // B5
)

var (
	whiteKeyStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#FFFFFF")).Foreground(lipgloss.Color("#000000"))
	blackKeyStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#000000")).Foreground(lipgloss.Color("#FFFFFF"))
	activeWhiteKey = lipgloss.NewStyle().Background(lipgloss.Color("#00FF00")).Foreground(lipgloss.Color("#000000"))
	activeBlackKey = lipgloss.NewStyle().Background(lipgloss.Color("#00AA00")).Foreground(lipgloss.Color("#FFFFFF"))
)

// renderKeyboard draws the keys from C2 to B5, lighting every pitch that
// sounds on any channel.
func renderKeyboard(active []tracker.Note) string {
	var lit [tracker.NumNotes]bool
	for _, n := range active {
		lit[n.Note] = true
	}

	whiteKeys := []uint8{0, 2, 4, 5, 7, 9, 11}
	// black key after each white key, -1 for none
	blackKeys := []int{1, 3, -1, 6, 8, 10, -1}

	var top, bottom strings.Builder
	for octave := firstOctave; octave <= lastOctave; octave++ {
		base := uint8(octave*12 + 12) //nolint:gosec // octave range is constant

		for _, b := range blackKeys {
			switch {
			case b < 0:
				top.WriteString(" ")
			case lit[base+uint8(b)]: //nolint:gosec // b is 1..10
				top.WriteString(activeBlackKey.Render("█"))
			default:
				top.WriteString(blackKeyStyle.Render("█"))
			}
			top.WriteString(" ")
		}

		for _, offset := range whiteKeys {
			if lit[base+offset] {
				bottom.WriteString(activeWhiteKey.Render("█"))
			} else {
				bottom.WriteString(whiteKeyStyle.Render("█"))
			}
			bottom.WriteString(" ")
		}
	}

	return top.String() + "\n" + bottom.String()
}

// renderActiveNotes lists sounding notes as Ch<n>:<name>, with a voice
// count when a pitch is stacked.
func renderActiveNotes(st *tracker.StateTracker) string {
	active := st.ActiveNotes()
	if len(active) == 0 {
		return "  (no notes playing)"
	}
	parts := make([]string, 0, len(active))
	for _, n := range active {
		label := "Ch" + strconv.Itoa(int(n.Channel)+1) + ":" + midiNoteName(n.Note)
		if v := st.Voices(n.Note, n.Channel); v > 1 {
			label += "x" + strconv.Itoa(v)
		}
		parts = append(parts, label)
	}
	return "  " + noteStyle.Render(strings.Join(parts, " "))
}
