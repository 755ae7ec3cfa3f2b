package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/icco/voicetrack/internal/song"
	"github.com/icco/voicetrack/internal/source"
	"github.com/icco/voicetrack/internal/tracker"
)

var (
	resolveAt  float64
	resolveOut string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve FILE",
	Short: "Cut a MIDI file at a position without leaving notes hanging",
	Long: `Copy the channel events of a MIDI file up to a position and append a
note off for every voice still held there, so the result never leaves a
receiver with stuck notes.

Example:
  voicetrack resolve --at 8 --out intro.mid song.mid
`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().Float64Var(&resolveAt, "at", -1, "Cut position in beats (quarter notes); negative means the end of the file")
	resolveCmd.Flags().StringVarP(&resolveOut, "out", "o", "", "Output MIDI file (required)")
	_ = resolveCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	s, err := song.Load(args[0])
	if err != nil {
		return err
	}

	src, notes, err := cutSong(s, resolveAt)
	if err != nil {
		return err
	}
	if err := src.WriteFile(resolveOut); err != nil {
		return err
	}

	logger.Info("resolved", "in", args[0], "out", resolveOut, "notes", notes, "events", len(src.Events()))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d hanging notes resolved)\n", resolveOut, notes)
	return nil
}

// cutSong copies the events of s before at, in beats, into a new source and
// resolves whatever is still held there. It returns the number of notes that
// needed an off.
func cutSong(s *song.Song, at float64) (*source.Source, int, error) {
	evs, tick := eventsAt(s, at)

	src := source.New(s.Name, s.BPM)
	lock := src.Lock()
	defer lock.Release()

	nt := tracker.NewNoteTracker()
	nt.SetLogger(trackerLogger)

	for _, ev := range evs {
		if err := src.AppendEventBeats(lock, source.FromTicks(ev.Time, s.Resolution), ev.Msg); err != nil {
			return nil, 0, fmt.Errorf("copying %s: %w", ev, err)
		}
		nt.Track(ev.Msg)
	}

	notes := nt.On()
	nt.ResolveNotesToSource(src, lock, source.FromTicks(tick, s.Resolution))
	return src, notes, nil
}
