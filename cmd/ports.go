package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/icco/voicetrack/internal/midibuf"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI input and output ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, _ []string) error {
	defer midi.CloseDriver()

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Inputs:")
	for _, in := range midi.GetInPorts() {
		fmt.Fprintf(w, "  %d: %s\n", in.Number(), in.String())
	}
	fmt.Fprintln(w, "Outputs:")
	for _, out := range midi.GetOutPorts() {
		fmt.Fprintf(w, "  %d: %s\n", out.Number(), out.String())
	}
	return nil
}

// openOut opens the output port whose name matches name.
func openOut(name string) (*midibuf.PortSink, drivers.Out, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, nil, fmt.Errorf("can't find MIDI output %q: %w", name, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open port %s: %w", out.String(), err)
	}
	return midibuf.NewPortSink(out.String(), send), out, nil
}
