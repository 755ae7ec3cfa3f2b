package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/icco/voicetrack/internal/tracker"
)

// controllers shown by name in the channel table
var controllerNames = map[uint8]string{
	1:  "mod",
	7:  "vol",
	10: "pan",
	11: "expr",
	64: "sus",
	74: "cut",
}

const maxControllersShown = 6

var (
	channelLabelStyle = lipgloss.NewStyle().Width(6).Foreground(lipgloss.Color("#00AAFF")).Bold(true)
	stateCellStyle    = lipgloss.NewStyle().Width(10)
)

// renderChannelState prints one row per channel that has a program,
// pressure, controller or sounding note.
func renderChannelState(st *tracker.StateTracker) string {
	var b strings.Builder

	var sounding [tracker.NumChannels]int
	for _, n := range st.ActiveNotes() {
		sounding[n.Channel]++
	}

	rows := 0
	for ch := uint8(0); ch < tracker.NumChannels; ch++ {
		prog, hasProg := st.Program(ch)
		press, hasPress := st.Pressure(ch)

		var ccs []string
		more := 0
		for cc := uint8(0); cc < tracker.NumControls; cc++ {
			v, ok := st.Control(ch, cc)
			if !ok {
				continue
			}
			if len(ccs) == maxControllersShown {
				more++
				continue
			}
			name, named := controllerNames[cc]
			if !named {
				name = "cc" + strconv.Itoa(int(cc))
			}
			ccs = append(ccs, fmt.Sprintf("%s=%d", name, v))
		}
		if more > 0 {
			ccs = append(ccs, fmt.Sprintf("+%d", more))
		}

		if !hasProg && !hasPress && len(ccs) == 0 && sounding[ch] == 0 {
			continue
		}
		rows++

		b.WriteString(channelLabelStyle.Render("Ch" + strconv.Itoa(int(ch)+1)))
		b.WriteString(stateCellStyle.Render(optional("prog", prog, hasProg)))
		b.WriteString(stateCellStyle.Render(optional("press", press, hasPress)))
		b.WriteString(stateCellStyle.Render("notes " + strconv.Itoa(sounding[ch])))
		b.WriteString(logStyle.Render(strings.Join(ccs, " ")))
		b.WriteString("\n")
	}

	if rows == 0 {
		return "  (no channel state)\n"
	}
	return b.String()
}

func optional(label string, v uint8, ok bool) string {
	if !ok {
		return label + " -"
	}
	return fmt.Sprintf("%s %d", label, v)
}
