/*
PURPOSE:
  Defines the core data structures used throughout Density Runner.
  These models represent probe measurements, stream configurations and
  capacity search results.

REQUIREMENTS:
  User-specified:
  - Record total FPS, per-stream FPS and stream count for every probe.
  - Report the best (streams, ai, non-ai, fps) configuration of a search.

  Implementation-discovered:
  - Telemetry may be absent; absence is a value, not an error.
  - Need JSON tags for the JSON-lines result file.

ARCHITECTURE INTEGRATION:
  - Used by: internal/telemetry, internal/probe, internal/engine, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Optional values are pointers so "absent" survives JSON encoding as null.

USAGE:
  m := model.Measurement{...}
  if !m.Available() { ... }

SELF-HEALING INSTRUCTIONS:
  - If new metrics are needed, add field and update CSV/JSON writers.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go

MAINTENANCE:
  - Update when adding new metrics to capture.
*/

package model

import (
	"time"
)

// Measurement is the result of a single probe.
type Measurement struct {
	TotalFPS     *float64 `json:"total_fps"`
	PerStreamFPS *float64 `json:"per_stream_fps"`
	NumStreams   *int     `json:"num_streams"`
	ExitCode     *int     `json:"exit_code"` // nil if the process had not been reaped

	// Resource usage sampled while the probe ran
	PeakRSSBytes   uint64  `json:"peak_rss_bytes,omitempty"`
	PeakCPUPercent float64 `json:"peak_cpu_percent,omitempty"`

	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// NewMeasurement builds an available measurement from one telemetry line.
func NewMeasurement(total float64, numStreams int, perStream float64) Measurement {
	return Measurement{
		TotalFPS:     &total,
		PerStreamFPS: &perStream,
		NumStreams:   &numStreams,
	}
}

// Available reports whether telemetry produced a throughput figure.
func (m Measurement) Available() bool {
	return m.TotalFPS != nil && m.PerStreamFPS != nil && m.NumStreams != nil
}

// Total returns total FPS or 0 when unavailable.
func (m Measurement) Total() float64 {
	if m.TotalFPS == nil {
		return 0
	}
	return *m.TotalFPS
}

// PerStream returns per-stream FPS or 0 when unavailable.
func (m Measurement) PerStream() float64 {
	if m.PerStreamFPS == nil {
		return 0
	}
	return *m.PerStreamFPS
}

// Streams returns the reported stream count or 0 when unavailable.
func (m Measurement) Streams() int {
	if m.NumStreams == nil {
		return 0
	}
	return *m.NumStreams
}

// WithExitCode returns a copy of m carrying the reaped exit code.
func (m Measurement) WithExitCode(code int) Measurement {
	m.ExitCode = &code
	return m
}

// StreamConfig is a (num_streams, ai_streams, non_ai_streams, per_stream_fps) tuple.
// The zero value is the "no feasible configuration" sentinel.
type StreamConfig struct {
	NumStreams   int     `json:"num_streams"`
	AIStreams    int     `json:"ai_streams"`
	NonAIStreams int     `json:"non_ai_streams"`
	PerStreamFPS float64 `json:"per_stream_fps"`
}

// IsZero reports whether c is the zero-configuration sentinel.
func (c StreamConfig) IsZero() bool {
	return c == StreamConfig{}
}

// Phase identifies which part of the search issued a probe.
type Phase string

const (
	PhaseGrowth     Phase = "growth"
	PhaseRefinement Phase = "refinement"
)

// HistoryEntry records one probe issued by a search.
type HistoryEntry struct {
	Index        int           `json:"index"`
	Phase        Phase         `json:"phase"`
	NumStreams   int           `json:"num_streams"`
	AIStreams    int           `json:"ai_streams"`
	NonAIStreams int           `json:"non_ai_streams"`
	PerStreamFPS float64       `json:"per_stream_fps"`
	Measurement  Measurement   `json:"measurement"`
	Passed       bool          `json:"passed"`
	Elapsed      time.Duration `json:"elapsed"` // since search start, after the probe
}

// Outcome classifies how a search ended.
type Outcome string

const (
	// OutcomeConverged: growth-phase estimates stopped changing.
	OutcomeConverged Outcome = "converged"
	// OutcomeRefined: the refinement phase closed its interval.
	OutcomeRefined Outcome = "refined"
	// OutcomeInfeasible: a single stream already misses the floor.
	OutcomeInfeasible Outcome = "infeasible"
	// OutcomeBudgetExhausted: the wall-clock budget ran out first.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	// OutcomeIterationCap: the probe cap was reached first.
	OutcomeIterationCap Outcome = "iteration_cap"
	// OutcomeCanceled: the caller's context was canceled.
	OutcomeCanceled Outcome = "canceled"
)

// SearchResult is the value returned by one capacity search.
type SearchResult struct {
	ID         string            `json:"id"`
	Parameters map[string]string `json:"parameters,omitempty"`
	FPSFloor   float64           `json:"fps_floor"`
	AIRate     int               `json:"ai_rate_percent"`
	Best       StreamConfig      `json:"best"`
	Outcome    Outcome           `json:"outcome"`
	History    []HistoryEntry    `json:"history"`
	Timestamp  time.Time         `json:"timestamp"`
	Elapsed    time.Duration     `json:"elapsed"`
	Error      string            `json:"error,omitempty"` // If the search was aborted
}

// Probes returns the number of probes the search issued.
func (r SearchResult) Probes() int {
	return len(r.History)
}
