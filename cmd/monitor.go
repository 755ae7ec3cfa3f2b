package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/icco/voicetrack/internal/audio"
	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/tracker"
	"github.com/icco/voicetrack/internal/tui"
)

var (
	monitorName    string
	monitorThru    string
	monitorNoAudio bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track a virtual MIDI input and show what is sounding",
	Long: `Create a virtual MIDI input that other applications can send to, and keep
track of every note held and the program, pressure and controller values of
all 16 channels.

Received messages are played on the built-in synthesizer and, with --thru,
forwarded to a MIDI output. Held notes can be resolved and the channel state
resent from the keyboard; quitting always resolves hanging notes.

Example:
  voicetrack monitor --name "Tracker" --thru "IAC Driver Bus 1"
`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorName, "name", "n", "voicetrack", "Name for the virtual MIDI input")
	monitorCmd.Flags().StringVar(&monitorThru, "thru", "", "MIDI output port to forward to")
	monitorCmd.Flags().BoolVar(&monitorNoAudio, "no-audio", false, "Don't play through the built-in synthesizer")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	var sinks midibuf.Tee

	if !monitorNoAudio {
		synth, err := audio.NewSynth()
		if err != nil {
			return err
		}
		defer synth.Close()
		sinks = append(sinks, synth)
	}

	driver, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("failed to initialize MIDI driver: %w", err)
	}
	defer driver.Close()

	if monitorThru != "" {
		thru, out, err := openOut(monitorThru)
		if err != nil {
			return err
		}
		defer out.Close()
		sinks = append(sinks, thru)
	}

	in, err := driver.OpenVirtualIn(monitorName)
	if err != nil {
		return fmt.Errorf("failed to create virtual MIDI port: %w", err)
	}
	defer in.Close()

	state := tracker.NewStateTracker()
	state.SetLogger(trackerLogger)

	m := tui.NewMonitor("voicetrack monitor", state, sinks)
	m.SetLogger(logger)
	p := tea.NewProgram(m, tea.WithAltScreen())

	stop, err := in.Listen(func(data []byte, timestamp int32) {
		if len(data) == 0 {
			return
		}
		// the driver reuses data once we return
		msg := make([]byte, len(data))
		copy(msg, data)
		p.Send(tui.MIDIMsg{Data: msg, Timestamp: int64(timestamp)})
	}, drivers.ListenConfig{})
	if err != nil {
		return fmt.Errorf("failed to listen to MIDI port: %w", err)
	}
	defer stop()

	go p.Send(tui.PortMsg{Name: in.String()})
	logger.Info("listening", "port", in.String(), "thru", monitorThru, "audio", !monitorNoAudio)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
