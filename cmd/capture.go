package cmd

import (
	"os"

	"github.com/ajxudir/asttest/pkg/capture"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture <file.pcap>",
	Short: "Summarize the SIP and RTP traffic of a test capture",
	Long: `Read a pcap written during a test run and print its SIP call flows,
the media negotiated in their SDP bodies and the RTP streams seen on the
wire with their packet loss.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func runCapture(cmd *cobra.Command, args []string) error {
	c, err := capture.ReadFile(args[0])
	if err != nil {
		return errors.NewExitError(errors.ExitSetupError, err)
	}
	c.Summary().Fprint(os.Stdout)
	return nil
}
