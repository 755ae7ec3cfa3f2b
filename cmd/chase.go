package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/song"
	"github.com/icco/voicetrack/internal/tracker"
)

var (
	chaseAt    float64
	chasePort  string
	chaseNotes bool
)

var chaseCmd = &cobra.Command{
	Use:   "chase FILE",
	Short: "Send the channel state of a MIDI file at a position",
	Long: `Replay a MIDI file up to a position and send the program, channel pressure
and controller values in effect there, so a receiver starting from that point
sounds the way it would have after playing from the top.

With --notes the notes held at that point are sent too, as note ons with
velocity 0, which lets a receiver learn about them without sounding them.

Without --port the messages are printed instead.

Example:
  voicetrack chase --at 32 --port "IAC Driver Bus 1" song.mid
`,
	Args: cobra.ExactArgs(1),
	RunE: runChase,
}

func init() {
	chaseCmd.Flags().Float64Var(&chaseAt, "at", 0, "Position in beats (quarter notes); negative means the end of the file")
	chaseCmd.Flags().StringVarP(&chasePort, "port", "p", "", "MIDI output port to send to")
	chaseCmd.Flags().BoolVar(&chaseNotes, "notes", false, "Also send the held notes as velocity 0 note ons")
	rootCmd.AddCommand(chaseCmd)
}

func runChase(cmd *cobra.Command, args []string) error {
	s, err := song.Load(args[0])
	if err != nil {
		return err
	}

	var out midibuf.Sink = printSink(cmd.OutOrStdout())
	if chasePort != "" {
		port, p, err := openOut(chasePort)
		if err != nil {
			return err
		}
		defer midi.CloseDriver()
		defer p.Close()
		out = port
	}

	n, err := chase(s, chaseAt, chaseNotes, out)
	if err != nil {
		return err
	}
	logger.Info("chased", "file", args[0], "messages", n)
	return nil
}

// chase tracks s up to at, in beats, and writes the resulting state to out.
// It returns the number of messages written.
func chase(s *song.Song, at float64, notes bool, out midibuf.Sink) (int, error) {
	evs, tick := eventsAt(s, at)

	st := tracker.NewStateTracker()
	st.SetLogger(trackerLogger)
	st.TrackEvents(evs)

	buf := midibuf.NewBuffer(2*tracker.NumChannels + tracker.NumChannels*tracker.NumControls + heldVoices(st))
	st.Flush(buf, tick)
	if notes {
		st.FlushNotes(buf, tick)
	}

	for _, ev := range buf.Events() {
		if err := out.Write(ev.Time, ev.Msg); err != nil {
			return 0, err
		}
	}
	return buf.Len(), nil
}

// heldVoices counts every sounding voice, stacked ones included.
func heldVoices(st *tracker.StateTracker) int {
	n := 0
	for _, note := range st.ActiveNotes() {
		n += st.Voices(note.Note, note.Channel)
	}
	return n
}

func printSink(w io.Writer) midibuf.SinkFunc {
	return func(t int64, msg midi.Message) error {
		_, err := fmt.Fprintf(w, "%d\t% X\t%s\n", t, []byte(msg), msg)
		return err
	}
}
