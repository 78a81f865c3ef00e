package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "density.yaml")
	content := `
fps_floor: 25
ai_rate_percent: 50
time_budget: 90s
poll_interval: 250ms
launcher: "gst-launch-1.0"
ai_pipeline: "videotestsrc num-buffers={FRAMES} ! gvafpscounter ! fakesink"
constants:
  FRAMES: "300"
parameters:
  device: [CPU, GPU]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FPSFloor != 25 {
		t.Errorf("FPSFloor = %v, want 25", cfg.FPSFloor)
	}
	if cfg.AIRatePercent != 50 {
		t.Errorf("AIRatePercent = %d, want 50", cfg.AIRatePercent)
	}
	if cfg.TimeBudget != 90*time.Second {
		t.Errorf("TimeBudget = %s, want 90s", cfg.TimeBudget)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %s, want 250ms", cfg.PollInterval)
	}
	if cfg.Constants["FRAMES"] != "300" {
		t.Errorf("Constants[FRAMES] = %q, want 300", cfg.Constants["FRAMES"])
	}
	if want := map[string][]string{"device": {"CPU", "GPU"}}; !reflect.DeepEqual(cfg.Parameters, want) {
		t.Errorf("Parameters = %v, want %v", cfg.Parameters, want)
	}
	// Untouched fields keep defaults.
	if cfg.MaxIterations != 64 {
		t.Errorf("MaxIterations = %d, want default 64", cfg.MaxIterations)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("fps_floor: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DENSITY_FPS_FLOOR", "15.5")
	t.Setenv("DENSITY_AI_RATE", "75")
	t.Setenv("DENSITY_TIME_BUDGET", "2m")

	path := filepath.Join(t.TempDir(), "density.yaml")
	if err := os.WriteFile(path, []byte("fps_floor: 60\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FPSFloor != 15.5 || cfg.AIRatePercent != 75 || cfg.TimeBudget != 2*time.Minute {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadEnvInvalid(t *testing.T) {
	t.Setenv("DENSITY_AI_RATE", "lots")
	path := filepath.Join(t.TempDir(), "density.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want env parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero floor", func(c *Config) { c.FPSFloor = 0 }},
		{"negative rate", func(c *Config) { c.AIRatePercent = -1 }},
		{"rate over 100", func(c *Config) { c.AIRatePercent = 101 }},
		{"zero budget", func(c *Config) { c.TimeBudget = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"negative timeout", func(c *Config) { c.ProbeTimeout = -time.Second }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"no launcher", func(c *Config) { c.Launcher = "" }},
		{"no pipeline", func(c *Config) { c.AIPipeline = ""; c.NonAIPipeline = "" }},
		{"empty parameter", func(c *Config) { c.Parameters = map[string][]string{"device": nil} }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestCombinations(t *testing.T) {
	cfg := &Config{Parameters: map[string][]string{
		"device": {"CPU", "GPU"},
		"batch":  {"1", "8"},
	}}

	got := cfg.Combinations()
	want := []map[string]string{
		{"batch": "1", "device": "CPU"},
		{"batch": "1", "device": "GPU"},
		{"batch": "8", "device": "CPU"},
		{"batch": "8", "device": "GPU"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Combinations() = %v, want %v", got, want)
	}

	empty := (&Config{}).Combinations()
	if len(empty) != 1 || len(empty[0]) != 0 {
		t.Errorf("Combinations() on empty grid = %v, want one empty combination", empty)
	}
}
