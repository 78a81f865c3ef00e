/*
PURPOSE:
  Defines the 'probe' subcommand.
  Runs a single probe at a fixed stream count and prints the measurement.
  Useful to validate a pipeline before spending a full search on it.

ARCHITECTURE INTEGRATION:
  - Calls: internal/mix, internal/probe

ERROR HANDLING:
  - Spawn failures and bad templates are returned.
  - Missing telemetry is printed, not an error.

USAGE:
  density-runner probe --streams 8 --param object_detection_device=GPU
*/

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daryltucker/density-runner/internal/config"
	"github.com/daryltucker/density-runner/internal/mix"
	"github.com/daryltucker/density-runner/internal/probe"
)

var (
	probeStreams int
	probeParams  []string
	probeDryRun  bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one probe at a fixed stream count",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if flags := cmd.Flags(); flags.Changed("ai-rate") {
			cfg.AIRatePercent = aiRateOverride
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		params, err := probeParameters(cfg, probeParams)
		if err != nil {
			return err
		}

		split, err := mix.Partition(probeStreams, cfg.AIRatePercent)
		if err != nil {
			return err
		}

		builder := probe.NewTemplateBuilder(cfg, params)
		if probeDryRun {
			cmdline, err := builder.Command(split.NonAI, split.AI)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cmdline)
			return nil
		}

		r := &probe.Runner{
			Builder:  builder,
			Executor: probe.NewExecutor(cfg.PollInterval, cfg.ProbeTimeout),
		}
		m, err := r.Probe(cmd.Context(), split)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: ", split)
		if !m.Available() {
			fmt.Fprintln(cmd.OutOrStdout(), "no FPS telemetry")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "total %.2f FPS, %.2f FPS per stream over %d streams (floor %.2f, pass=%v)\n",
				m.Total(), m.PerStream(), m.Streams(), cfg.FPSFloor, m.PerStream() >= cfg.FPSFloor)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

// probeParameters starts from the first grid combination and applies key=value overrides.
func probeParameters(cfg *config.Config, overrides []string) (map[string]string, error) {
	params := cfg.Combinations()[0]
	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().IntVarP(&probeStreams, "streams", "n", 1, "Total number of streams")
	probeCmd.Flags().IntVar(&aiRateOverride, "ai-rate", 0, "Percentage of streams running inference (overrides config)")
	probeCmd.Flags().StringSliceVar(&probeParams, "param", nil, "Parameter override as key=value (repeatable)")
	probeCmd.Flags().BoolVar(&probeDryRun, "dry-run", false, "Print the probe command without running it")
}
