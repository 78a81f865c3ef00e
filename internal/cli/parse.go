/*
PURPOSE:
  Defines the 'parse' subcommand.
  Runs the telemetry parser over a saved pipeline log.
  Helps debug why a probe reported no FPS.

ARCHITECTURE INTEGRATION:
  - Calls: internal/telemetry.Parse()

USAGE:
  density-runner parse --channels 8 pipeline.log
  gst-launch-1.0 ... | density-runner parse --channels 8
*/

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/density-runner/internal/telemetry"
)

var parseChannels int

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract the FPS measurement from pipeline output",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}

		m, err := telemetry.Parse(r, parseChannels)
		if err != nil {
			return fmt.Errorf("failed to read telemetry: %w", err)
		}
		if !m.Available() {
			fmt.Fprintln(cmd.ErrOrStderr(), "no FPS counter lines found")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().IntVarP(&parseChannels, "channels", "c", 1, "Expected number of streams")
}
