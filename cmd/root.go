package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voicetrack",
	Short: "Track sounding MIDI notes and channel state",
	Long: `voicetrack follows which MIDI notes are held and the last program, pressure and
controller values on every channel, so hanging notes can be resolved and a
receiver resynchronized after a stop, loop or seek.

It can monitor a virtual MIDI input, play a MIDI file in a loop, dump the
state of a file at any position, and write or send what is needed to bring a
receiver back in line.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogging()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	pf.BoolVar(&traceTrackers, "trace", false, "Log every tracker operation at debug level")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
