/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes a capacity search for every parameter combination.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails or engine run fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Engine.Run.

USAGE:
  density-runner run --fps-floor 30 --ai-rate 20

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/density-runner/internal/config"
	"github.com/daryltucker/density-runner/internal/engine"
)

var (
	fpsFloorOverride     float64
	aiRateOverride       int
	timeBudgetOverride   time.Duration
	probeTimeoutOverride time.Duration
	outputOverride       string
	metricsFileOverride  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capacity search suite",
	Long: `Searches for the maximum number of concurrent streams that keep per-stream FPS
at or above the floor, once per combination of the configured parameter grid.
Each search follows a strict protocol:
1. Growth: probe 1 stream, then jump to floor(total_fps / fps_floor) streams
   until the estimate stops changing or a probe misses the floor.
2. Refinement: binary search between the last passing and first failing count.
3. The search stops early when the time budget is spent.

Every probe is written to CSV, every search result to JSON lines.`,
	Example: `  # Run with defaults (uses density.yaml)
  density-runner run

  # 25 FPS floor, half the streams running inference, 20 minute budget per search
  density-runner run --fps-floor 25 --ai-rate 50 --time-budget 20m

  # Write outputs and Prometheus metrics to ./benchmarks
  density-runner run -o ./benchmarks --metrics-file density.prom`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// 2. Overrides
		applyRunOverrides(cmd, cfg)

		// 3. Execution
		return engine.Run(cmd.Context(), cfg)
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("fps-floor") {
		cfg.FPSFloor = fpsFloorOverride
	}
	if flags.Changed("ai-rate") {
		cfg.AIRatePercent = aiRateOverride
	}
	if flags.Changed("time-budget") {
		cfg.TimeBudget = timeBudgetOverride
	}
	if flags.Changed("probe-timeout") {
		cfg.ProbeTimeout = probeTimeoutOverride
	}
	if outputOverride != "" {
		cfg.OutputDir = outputOverride
	}
	if metricsFileOverride != "" {
		cfg.MetricsFile = metricsFileOverride
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Float64Var(&fpsFloorOverride, "fps-floor", 0, "Minimum per-stream FPS (overrides config)")
	runCmd.Flags().IntVar(&aiRateOverride, "ai-rate", 0, "Percentage of streams running inference, 0-100 (overrides config)")
	runCmd.Flags().DurationVar(&timeBudgetOverride, "time-budget", 0, "Wall-clock budget per search (overrides config)")
	runCmd.Flags().DurationVar(&probeTimeoutOverride, "probe-timeout", 0, "Kill a probe running longer than this, 0 disables (overrides config)")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for results (CSV/JSON)")
	runCmd.Flags().StringVar(&metricsFileOverride, "metrics-file", "", "Write Prometheus metrics to this file in the output directory")
}
