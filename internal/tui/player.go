package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/icco/voicetrack/internal/player"
)

const (
	stepsPerBar  = 16
	stepsPerBeat = 4
)

// tickMsg advances playback by one sixteenth note. Ticks from an earlier
// start carry an older gen and are dropped.
type tickMsg struct {
	gen int
}

// PlayerModel drives a player from the terminal.
type PlayerModel struct {
	player  *player.Player
	gen     int
	message string
	width   int
	height  int
}

// NewPlayer wraps p in a model.
func NewPlayer(p *player.Player) *PlayerModel {
	return &PlayerModel{player: p}
}

func (m *PlayerModel) Init() tea.Cmd {
	return nil
}

// stepTicks is the length of a sixteenth note in song ticks.
func (m *PlayerModel) stepTicks() int64 {
	return max(1, int64(m.player.Song().Resolution)/stepsPerBeat)
}

func (m *PlayerModel) beatTicks() int64 {
	return max(1, int64(m.player.Song().Resolution))
}

func (m *PlayerModel) bpm() int {
	return max(1, int(m.player.Song().BPM))
}

func tickWithBPM(bpm, gen int) tea.Cmd {
	// BPM = beats per minute, one tick per sixteenth
	stepIntervalMs := 60000 / bpm / stepsPerBeat
	return tea.Tick(time.Millisecond*time.Duration(stepIntervalMs), func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

func (m *PlayerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	p := m.player

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if msg.gen != m.gen || !p.Playing() {
			return m, nil
		}
		if p.Advance(m.stepTicks()) && !p.Playing() {
			m.message = "End of song"
			return m, nil
		}
		return m, tickWithBPM(m.bpm(), m.gen)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			p.Stop()
			return m, tea.Quit
		case " ", "p":
			m.gen++
			if p.Playing() {
				p.Stop()
				m.message = "Stopped"
				return m, nil
			}
			if p.Position() >= p.Song().Length {
				p.Seek(0)
			}
			p.Start()
			m.message = "Playing"
			return m, tickWithBPM(m.bpm(), m.gen)
		case "m":
			p.SetMute(!p.Muted())
			m.message = fmt.Sprintf("Mute: %v", p.Muted())
		case "o":
			p.SetLoop(!p.Looping())
			m.message = fmt.Sprintf("Loop: %v", p.Looping())
		case keyLeft, "h":
			p.Seek(p.Position() - m.beatTicks())
			m.message = "Seek " + m.position()
		case keyRight, "l":
			p.Seek(p.Position() + m.beatTicks())
			m.message = "Seek " + m.position()
		case "0", "home":
			p.Seek(0)
			m.message = "Seek " + m.position()
		}
	}

	return m, nil
}

// position formats the song position as bar.beat.sixteenth, 1-based.
func (m *PlayerModel) position() string {
	step := m.player.Position() / m.stepTicks()
	bar := step/stepsPerBar + 1
	beat := (step%stepsPerBar)/stepsPerBeat + 1
	return fmt.Sprintf("%d.%d.%d", bar, beat, step%stepsPerBeat+1)
}

func (m *PlayerModel) View() string {
	p := m.player
	s := p.Song()

	var b strings.Builder

	b.WriteString(titleStyle.Render("voicetrack player") + "\n\n")
	b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	b.WriteString(fmt.Sprintf("BPM: %d   Position: %s   Loop: %v   Mute: %v\n\n",
		m.bpm(), m.position(), p.Looping(), p.Muted()))

	step := int(p.Position()/m.stepTicks()) % stepsPerBar
	b.WriteString(renderClockBar(p.Playing(), step) + "\n\n")

	st := p.State()
	b.WriteString(subtitleStyle.Render("Active Notes:") + "\n")
	b.WriteString(renderActiveNotes(st) + "\n\n")
	b.WriteString(renderKeyboard(st.ActiveNotes()) + "\n\n")
	b.WriteString(subtitleStyle.Render("Channel State:") + "\n")
	b.WriteString(renderChannelState(st))

	if m.message != "" {
		b.WriteString("\n" + noteStyle.Render(m.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("space/p: play/stop • ←/→: seek beat • 0: start • m: mute • o: loop • q: quit"))

	return b.String()
}

func renderClockBar(isPlaying bool, currentStep int) string {
	// gradient from cyan to magenta
	colors := []string{
		"#00FFFF", "#00E5FF", "#00CCFF", "#00B2FF",
		"#0099FF", "#0080FF", "#0066FF", "#1A4DFF",
		"#3333FF", "#4D1AFF", "#6600FF", "#8000FF",
		"#9900FF", "#B300FF", "#CC00FF", "#FF00FF",
	}

	var bar strings.Builder
	bar.WriteString("Clock ")

	for i := 0; i < stepsPerBar; i++ {
		var cell string
		var cellStyle lipgloss.Style

		switch {
		case isPlaying && i == currentStep:
			cell = " ▶ "
			cellStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color(colors[i])).
				Bold(true)
		case i <= currentStep:
			cell = " █ "
			cellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i]))
		default:
			cell = " · "
			cellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
		}
		bar.WriteString(cellStyle.Render(cell))
	}

	if isPlaying {
		bar.WriteString(statusStyle.Render(" Playing"))
	} else {
		bar.WriteString(subtitleStyle.Render(" Stopped"))
	}
	return bar.String()
}
