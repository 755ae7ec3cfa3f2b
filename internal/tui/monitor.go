package tui

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/tracker"
)

const maxMessageHistory = 20

// MIDIMsg carries one raw message received from an input port.
type MIDIMsg struct {
	Data      []byte
	Timestamp int64
}

// PortMsg reports that the input port is open, or why it is not.
type PortMsg struct {
	Name string
	Err  error
}

// MonitorModel shows what is sounding on a MIDI input and lets the user
// silence or resynchronize whatever is downstream of it.
type MonitorModel struct {
	title    string
	portName string
	state    *tracker.StateTracker
	out      midibuf.Sink
	log      *slog.Logger

	lastMessage    string
	messageHistory []string
	messageCount   int
	showDump       bool
	err            error
	width          int
	height         int
}

// NewMonitor creates a monitor that tracks into state and forwards every
// message to out. out may be nil.
func NewMonitor(title string, state *tracker.StateTracker, out midibuf.Sink) *MonitorModel {
	if out == nil {
		out = midibuf.Tee{}
	}
	return &MonitorModel{
		title:          title,
		state:          state,
		out:            out,
		log:            slog.New(slog.DiscardHandler),
		messageHistory: make([]string, 0, maxMessageHistory),
	}
}

// SetLogger sets where forwarding failures are reported.
func (m *MonitorModel) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	m.log = l
}

func (m *MonitorModel) Init() tea.Cmd {
	return nil
}

func (m *MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case PortMsg:
		m.portName = msg.Name
		m.err = msg.Err

	case MIDIMsg:
		m.handleMIDI(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.state.ResolveNotesToSink(m.out, m.now())
			return m, tea.Quit
		case "r":
			n := m.state.On()
			m.state.ResolveNotesToSink(m.out, m.now())
			m.lastMessage = fmt.Sprintf("Resolved %d sounding notes", n)
		case "f":
			m.state.Flush(m.out, m.now())
			m.lastMessage = "Flushed program and controller state"
		case "d":
			m.showDump = !m.showDump
		case "x":
			m.state.Reset()
			m.lastMessage = "Forgot all state"
		}
	}

	return m, nil
}

func (m *MonitorModel) now() int64 {
	return int64(m.messageCount)
}

func (m *MonitorModel) handleMIDI(msg MIDIMsg) {
	m.messageCount++
	m.state.Track(msg.Data)
	if err := m.out.Write(msg.Timestamp, msg.Data); err != nil {
		m.log.Warn("forward failed", "msg", midi.Message(msg.Data).String(), "err", err)
	}

	message := describe(msg.Data)
	if message == "" {
		return
	}
	m.lastMessage = message
	m.messageHistory = append([]string{message}, m.messageHistory...)
	if len(m.messageHistory) > maxMessageHistory {
		m.messageHistory = m.messageHistory[:maxMessageHistory]
	}
}

// describe renders a message for the log, or "" for ones not worth showing.
func describe(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if data[0] == 0xFF {
		return "System Reset"
	}
	if data[0] < 0x80 || data[0] >= 0xF0 || len(data) < 2 {
		return ""
	}
	ch := int(data[0]&0x0F) + 1

	third := func() uint8 {
		if len(data) > 2 {
			return data[2]
		}
		return 0
	}

	switch data[0] & 0xF0 {
	case 0x90:
		if third() > 0 {
			return fmt.Sprintf("Note On:  Ch%d %-4s vel:%d", ch, midiNoteName(data[1]&0x7F), third())
		}
		return fmt.Sprintf("Note Off: Ch%d %-4s", ch, midiNoteName(data[1]&0x7F))
	case 0x80:
		return fmt.Sprintf("Note Off: Ch%d %-4s", ch, midiNoteName(data[1]&0x7F))
	case 0xA0:
		return fmt.Sprintf("Poly AT:  Ch%d %-4s val:%d", ch, midiNoteName(data[1]&0x7F), third())
	case 0xB0:
		return fmt.Sprintf("CC:       Ch%d ctrl:%d val:%d", ch, data[1], third())
	case 0xC0:
		return fmt.Sprintf("Program:  Ch%d %d", ch, data[1])
	case 0xD0:
		return fmt.Sprintf("Pressure: Ch%d %d", ch, data[1])
	case 0xE0:
		return fmt.Sprintf("Pitch Bend: Ch%d", ch)
	}
	return ""
}

func (m *MonitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title) + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
		b.WriteString(helpStyle.Render("Press q to quit"))
		return b.String()
	}

	if m.portName != "" {
		b.WriteString(subtitleStyle.Render("MIDI Port: ") + statusStyle.Render(m.portName) + "\n")
	} else {
		b.WriteString(subtitleStyle.Render("MIDI Port: ") + "Initializing...\n")
	}
	b.WriteString(subtitleStyle.Render("Sounding: ") + fmt.Sprintf("%d notes\n\n", m.state.On()))

	b.WriteString(subtitleStyle.Render("Active Notes:") + "\n")
	b.WriteString(renderActiveNotes(m.state) + "\n\n")

	b.WriteString(subtitleStyle.Render("Channel State:") + "\n")
	b.WriteString(renderChannelState(m.state))

	if m.showDump {
		var dump strings.Builder
		m.state.Dump(&dump)
		b.WriteString("\n" + logStyle.Render(dump.String()) + "\n")
	}

	b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("Message Log: [%d total]", m.messageCount)) + "\n")
	if len(m.messageHistory) == 0 {
		b.WriteString("  " + logStyle.Render("(waiting for input)") + "\n")
	} else {
		shown := min(len(m.messageHistory), 10)
		for i, line := range m.messageHistory[:shown] {
			if i == 0 {
				b.WriteString("  " + logHighlightStyle.Render("▶ "+line) + "\n")
			} else {
				b.WriteString("  " + logStyle.Render("  "+line) + "\n")
			}
		}
	}

	b.WriteString("\n" + renderKeyboard(m.state.ActiveNotes()) + "\n")

	if m.lastMessage != "" {
		b.WriteString("\n" + noteStyle.Render(m.lastMessage) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("r: resolve notes • f: flush state • d: dump • x: forget state • q: quit"))

	return b.String()
}
