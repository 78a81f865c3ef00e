/*
PURPOSE:
  High-level runner that orchestrates the density benchmark.
  Loops through parameter combinations and runs one capacity search each.

REQUIREMENTS:
  User-specified:
  - Run a capacity search for every combination of the parameter grid.
  - Log results to CSV/JSON.

  Implementation-discovered:
  - Needs to report progress to CLI.
  - Metrics are flushed to a text file once all searches finish.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: Search (search.go), internal/probe, internal/output, internal/metrics

ERROR HANDLING:
  - Logs a failed search but continues with the next combination (resilience).
  - Returns the context error if the run was interrupted.

IMPLEMENTATION RULES:
  - Iterate combinations in Config.Combinations() order.
  - For each combination: build a prober, run a fresh Search, write result.
  - Searches never share state.

USAGE:
  engine.Run(ctx, cfg)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/search.go

MAINTENANCE:
  - Update iteration logic if parallel searches are introduced.
*/

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/density-runner/internal/config"
	"github.com/daryltucker/density-runner/internal/metrics"
	"github.com/daryltucker/density-runner/internal/model"
	"github.com/daryltucker/density-runner/internal/output"
	"github.com/daryltucker/density-runner/internal/probe"
)

// Suite runs one capacity search per parameter combination.
type Suite struct {
	Config *config.Config
	// NewProber builds the prober for one parameter combination.
	NewProber func(params map[string]string) Prober
	Metrics   *metrics.Recorder
}

// NewSuite creates a suite probing real processes.
func NewSuite(cfg *config.Config) *Suite {
	return &Suite{
		Config:    cfg,
		NewProber: ProcessProber(cfg),
		Metrics:   metrics.NewRecorder(),
	}
}

// ProcessProber returns a factory of probers that launch cfg's pipelines.
func ProcessProber(cfg *config.Config) func(params map[string]string) Prober {
	return func(params map[string]string) Prober {
		return &probe.Runner{
			Builder:  probe.NewTemplateBuilder(cfg, params),
			Executor: probe.NewExecutor(cfg.PollInterval, cfg.ProbeTimeout),
		}
	}
}

// SearchConfigFor derives the immutable search input for one combination.
func SearchConfigFor(cfg *config.Config, params map[string]string) SearchConfig {
	return SearchConfig{
		FPSFloor:      cfg.FPSFloor,
		AIRatePercent: cfg.AIRatePercent,
		TimeBudget:    cfg.TimeBudget,
		MaxIterations: cfg.MaxIterations,
		Parameters:    params,
	}
}

// Run executes the full benchmark suite.
func Run(ctx context.Context, cfg *config.Config) error {
	_, err := NewSuite(cfg).Run(ctx)
	return err
}

// Run executes every search and returns their results in order.
func (s *Suite) Run(ctx context.Context) ([]model.SearchResult, error) {
	cfg := s.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	// Setup Outputs
	csvPath := filepath.Join(cfg.OutputDir, cfg.OutputFile)
	csvWriter, err := output.NewCSVWriter(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}
	defer csvWriter.Close()

	jsonPath := filepath.Join(cfg.OutputDir, cfg.ResultsFile)
	jsonWriter, err := output.NewJSONWriter(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}
	defer jsonWriter.Close()

	combos := cfg.Combinations()
	output.Logger.Info("Starting density suite", "searches", len(combos), "fps_floor", cfg.FPSFloor, "ai_rate", cfg.AIRatePercent)

	var results []model.SearchResult
	for i, params := range combos {
		if ctx.Err() != nil {
			break
		}
		output.Logger.Info("Running search", "index", i+1, "of", len(combos), "parameters", params)

		search := NewSearch(SearchConfigFor(cfg, params), s.NewProber(params), s.Metrics)
		res, err := search.Run(ctx)
		if err != nil {
			output.Logger.Error("Search failed", "parameters", params, "error", err)
		} else {
			output.Logger.Info("Best Config",
				"parameters", params,
				"outcome", res.Outcome,
				"streams", res.Best.NumStreams,
				"ai_streams", res.Best.AIStreams,
				"non_ai_streams", res.Best.NonAIStreams,
				"per_stream_fps", fmt.Sprintf("%.2f", res.Best.PerStreamFPS),
			)
		}

		// Write Result
		if err := csvWriter.Write(res); err != nil {
			output.Logger.Error("Failed to write history to CSV", "error", err)
		}
		if err := jsonWriter.Write(res); err != nil {
			output.Logger.Error("Failed to write result to JSON", "error", err)
		}
		results = append(results, res)
	}

	if cfg.MetricsFile != "" {
		if err := s.Metrics.WriteFile(filepath.Join(cfg.OutputDir, cfg.MetricsFile)); err != nil {
			output.Logger.Error("Failed to write metrics", "error", err)
		}
	}

	return results, ctx.Err()
}
