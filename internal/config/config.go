/*
PURPOSE:
  Defines the configuration structure and loading logic for Density Runner.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of the FPS floor, AI rate, time budget and probe pipeline.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (DENSITY_...).
  - Parameters form a grid; one search runs per combination.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default config files fall back to defaults.
  - Validate() wraps ErrInvalid.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (e.g., 30 FPS floor, 10m budget).
  - Config is passed by value into each search; never mutated after Validate().

USAGE:
  cfg, err := config.Load("density.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the full configuration for Density Runner.
type Config struct {
	FPSFloor      float64       `yaml:"fps_floor"`
	AIRatePercent int           `yaml:"ai_rate_percent"`
	TimeBudget    time.Duration `yaml:"time_budget"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// ProbeTimeout kills a probe that runs longer. Zero waits forever.
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	MaxIterations int           `yaml:"max_iterations"`

	// Launcher prefixes the pipeline, e.g. "gst-launch-1.0 -q".
	Launcher      string `yaml:"launcher"`
	AIPipeline    string `yaml:"ai_pipeline"`
	NonAIPipeline string `yaml:"non_ai_pipeline"` // Falls back to AIPipeline
	// Constants are substituted into {NAME} placeholders of the pipelines.
	Constants map[string]string `yaml:"constants"`
	// Parameters is a grid; every combination gets its own search.
	Parameters map[string][]string `yaml:"parameters"`

	OutputDir   string `yaml:"output_dir"`
	OutputFile  string `yaml:"output_file"`
	ResultsFile string `yaml:"results_file"`
	MetricsFile string `yaml:"metrics_file"` // Prometheus text format, empty disables
	LogLevel    string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FPSFloor:      30.0,
		AIRatePercent: 20,
		TimeBudget:    10 * time.Minute,
		PollInterval:  time.Second,
		ProbeTimeout:  5 * time.Minute,
		MaxIterations: 64,
		Launcher:      "gst-launch-1.0 -q",
		AIPipeline: "filesrc location={VIDEO_PATH} ! decodebin ! queue ! " +
			"gvadetect model={OBJECT_DETECTION_MODEL_PATH} device={object_detection_device} ! queue ! " +
			"gvafpscounter ! fakesink sync=false",
		NonAIPipeline: "filesrc location={VIDEO_PATH} ! decodebin ! queue ! " +
			"gvafpscounter ! fakesink sync=false",
		Constants: map[string]string{
			"VIDEO_PATH":                  "/tmp/input.mp4",
			"OBJECT_DETECTION_MODEL_PATH": "/models/yolov5s.xml",
		},
		Parameters: map[string][]string{
			"object_detection_device": {"CPU"},
		},
		OutputDir:   ".",
		OutputFile:  "density_history.csv",
		ResultsFile: "density_results.jsonl",
		LogLevel:    "info",
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		defaults := []string{"density.yaml", "density_runner.yaml"}
		for _, name := range defaults {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if data != nil {
		// yaml.v3 merges into existing maps; a file's placeholders replace the defaults.
		cfg.Constants = nil
		cfg.Parameters = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DENSITY_FPS_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DENSITY_FPS_FLOOR: %w", err)
		}
		c.FPSFloor = f
	}
	if v := os.Getenv("DENSITY_AI_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DENSITY_AI_RATE: %w", err)
		}
		c.AIRatePercent = n
	}
	if v := os.Getenv("DENSITY_TIME_BUDGET"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DENSITY_TIME_BUDGET: %w", err)
		}
		c.TimeBudget = d
	}
	return nil
}

// Validate checks the search invariants.
func (c *Config) Validate() error {
	switch {
	case c.FPSFloor <= 0:
		return fmt.Errorf("%w: fps_floor must be > 0, got %v", ErrInvalid, c.FPSFloor)
	case c.AIRatePercent < 0 || c.AIRatePercent > 100:
		return fmt.Errorf("%w: ai_rate_percent must be in [0,100], got %d", ErrInvalid, c.AIRatePercent)
	case c.TimeBudget <= 0:
		return fmt.Errorf("%w: time_budget must be > 0, got %s", ErrInvalid, c.TimeBudget)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be > 0, got %s", ErrInvalid, c.PollInterval)
	case c.ProbeTimeout < 0:
		return fmt.Errorf("%w: probe_timeout must be >= 0, got %s", ErrInvalid, c.ProbeTimeout)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations must be >= 1, got %d", ErrInvalid, c.MaxIterations)
	case c.Launcher == "":
		return fmt.Errorf("%w: launcher is empty", ErrInvalid)
	case c.AIPipeline == "" && c.NonAIPipeline == "":
		return fmt.Errorf("%w: no pipeline configured", ErrInvalid)
	}
	for name, values := range c.Parameters {
		if len(values) == 0 {
			return fmt.Errorf("%w: parameter %q has no values", ErrInvalid, name)
		}
	}
	return nil
}

// Combinations expands Parameters into every combination, keys sorted,
// values in listed order. An empty grid yields a single empty combination.
func (c *Config) Combinations() []map[string]string {
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]string{{}}
	for _, k := range keys {
		var next []map[string]string
		for _, base := range combos {
			for _, v := range c.Parameters[k] {
				combo := make(map[string]string, len(base)+1)
				for bk, bv := range base {
					combo[bk] = bv
				}
				combo[k] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}
