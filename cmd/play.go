package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/audio"
	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/player"
	"github.com/icco/voicetrack/internal/song"
	"github.com/icco/voicetrack/internal/tui"
)

var (
	playPort    string
	playLoop    bool
	playNoAudio bool
)

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a MIDI file without leaving notes hanging",
	Long: `Play a MIDI file on the built-in synthesizer and, with --port, a MIDI output.

Stopping, muting, looping and seeking all send note offs for whatever is still
held. Seeking also resends the program, pressure and controller values in
effect at the new position.

Example:
  voicetrack play --loop --port "IAC Driver Bus 1" song.mid
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playPort, "port", "p", "", "MIDI output port to play to")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "Start over at the end of the file")
	playCmd.Flags().BoolVar(&playNoAudio, "no-audio", false, "Don't play through the built-in synthesizer")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := song.Load(args[0])
	if err != nil {
		return err
	}

	var sinks midibuf.Tee
	if !playNoAudio {
		synth, err := audio.NewSynth()
		if err != nil {
			return err
		}
		defer synth.Close()
		sinks = append(sinks, synth)
	}
	if playPort != "" {
		port, out, err := openOut(playPort)
		if err != nil {
			return err
		}
		defer midi.CloseDriver()
		defer out.Close()
		sinks = append(sinks, port)
	}

	p := player.New(s, sinks, player.WithLoop(playLoop), player.WithLogger(trackerLogger))
	logger.Info("playing", "file", args[0], "bpm", s.BPM, "events", len(s.Events), "loop", playLoop)

	prog := tea.NewProgram(tui.NewPlayer(p), tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	// a killed program skips the quit key
	p.Stop()
	return nil
}
