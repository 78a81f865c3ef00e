/*
PURPOSE:
  Capacity search: finds the maximum number of concurrent streams whose
  per-stream FPS stays at or above the floor, within a wall-clock budget.

REQUIREMENTS:
  User-specified:
  - Growth phase: start at 1 stream, jump to floor(total_fps / fps_floor)
    after every passing probe until the estimate stops changing or cycles.
  - Refinement phase: binary search between the last good count + 1 and
    the first failing count.
  - Stop at the top of any iteration once the time budget is spent and
    return the best configuration found so far.
  - A single stream missing the floor is "infeasible", reported by the zero
    configuration, not an error.

  Implementation-discovered:
  - Estimates can keep cycling on noisy telemetry; MaxIterations caps probes.
  - An estimate equal to the count just verified is treated as converged.
  - Context cancellation is checked with the budget, and also kills the
    running probe through the prober.

ARCHITECTURE INTEGRATION:
  - Called by: Suite (runner.go), internal/cli
  - Uses: internal/mix, internal/model, internal/metrics, Prober

ERROR HANDLING:
  - Unavailable telemetry counts as "floor not met".
  - Any other prober error (spawn failure, bad command) aborts the search;
    the partial result is returned with the error.

IMPLEMENTATION RULES:
  - Probes run strictly one after another; nothing here is shared between searches.
  - The search state is created per Run and discarded; only the result escapes.

USAGE:
  s := engine.NewSearch(engine.SearchConfig{FPSFloor: 30, ...}, prober, rec)
  res, err := s.Run(ctx)

SELF-HEALING INSTRUCTIONS:
  - If searches stop too early, inspect res.History for the estimate sequence.

RELATED FILES:
  - internal/probe/runner.go
  - internal/mix/mix.go

MAINTENANCE:
  - Update outcome classification when adding new stop conditions.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/density-runner/internal/metrics"
	"github.com/daryltucker/density-runner/internal/mix"
	"github.com/daryltucker/density-runner/internal/model"
	"github.com/daryltucker/density-runner/internal/output"
)

// Prober runs one probe for a stream split.
type Prober interface {
	Probe(ctx context.Context, split mix.Split) (model.Measurement, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, split mix.Split) (model.Measurement, error)

func (f ProberFunc) Probe(ctx context.Context, split mix.Split) (model.Measurement, error) {
	return f(ctx, split)
}

// SearchConfig is the immutable input of one search.
type SearchConfig struct {
	FPSFloor      float64
	AIRatePercent int
	TimeBudget    time.Duration
	MaxIterations int               // zero means unlimited
	Parameters    map[string]string // recorded on the result only
}

func (c SearchConfig) validate() error {
	switch {
	case c.FPSFloor <= 0:
		return fmt.Errorf("fps floor must be > 0, got %v", c.FPSFloor)
	case c.AIRatePercent < 0 || c.AIRatePercent > 100:
		return fmt.Errorf("ai rate must be in [0,100], got %d", c.AIRatePercent)
	case c.TimeBudget <= 0:
		return fmt.Errorf("time budget must be > 0, got %s", c.TimeBudget)
	}
	return nil
}

// Search is a single capacity search.
type Search struct {
	cfg     SearchConfig
	prober  Prober
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewSearch creates a search. rec may be nil.
func NewSearch(cfg SearchConfig, prober Prober, rec *metrics.Recorder) *Search {
	return &Search{
		cfg:     cfg,
		prober:  prober,
		metrics: rec,
		now:     time.Now,
	}
}

// noEstimate marks an estimate slot that has not been filled yet.
const noEstimate = -1

type searchState struct {
	start        time.Time
	current      int
	lastEstimate int
	prevEstimate int // the estimate before lastEstimate
	best         model.StreamConfig
	history      []model.HistoryEntry
}

// Run executes the search. The returned result is valid even when err is
// non-nil; it then holds the best configuration found before the failure.
func (s *Search) Run(ctx context.Context) (model.SearchResult, error) {
	res := model.SearchResult{
		ID:         uuid.NewString(),
		Parameters: s.cfg.Parameters,
		FPSFloor:   s.cfg.FPSFloor,
		AIRate:     s.cfg.AIRatePercent,
	}
	if err := s.cfg.validate(); err != nil {
		res.Error = err.Error()
		return res, err
	}

	st := &searchState{
		start:        s.now(),
		current:      1,
		lastEstimate: noEstimate,
		prevEstimate: noEstimate,
	}
	res.Timestamp = st.start

	output.Logger.Info("Capacity search started",
		"id", res.ID,
		"fps_floor", s.cfg.FPSFloor,
		"ai_rate", s.cfg.AIRatePercent,
		"budget", s.cfg.TimeBudget,
		"parameters", s.cfg.Parameters,
	)

	outcome, failBound, err := s.grow(ctx, st)
	if err == nil && failBound > 0 {
		outcome, err = s.refine(ctx, st, st.best.NumStreams+1, failBound)
	}

	res.Best = st.best
	res.History = st.history
	res.Elapsed = s.now().Sub(st.start)
	res.Outcome = outcome
	if err != nil {
		res.Error = err.Error()
		output.Logger.Error("Capacity search aborted", "id", res.ID, "probes", len(st.history), "error", err)
		return res, err
	}

	s.metrics.ObserveSearch(res.ID, string(outcome), res.Best.NumStreams)
	output.Logger.Info("Capacity search finished",
		"id", res.ID,
		"outcome", outcome,
		"streams", res.Best.NumStreams,
		"ai_streams", res.Best.AIStreams,
		"non_ai_streams", res.Best.NonAIStreams,
		"per_stream_fps", res.Best.PerStreamFPS,
		"probes", len(st.history),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// grow runs the growth phase. A positive failBound means refinement is needed.
func (s *Search) grow(ctx context.Context, st *searchState) (model.Outcome, int, error) {
	for {
		if outcome, stop := s.shouldStop(ctx, st); stop {
			return outcome, 0, nil
		}

		entry, err := s.step(ctx, st, st.current, model.PhaseGrowth)
		if err != nil {
			return s.failure(ctx, err)
		}

		if !entry.Passed {
			if st.best.IsZero() {
				return model.OutcomeInfeasible, 0, nil
			}
			return "", st.current, nil
		}

		estimate := int(math.Floor(entry.Measurement.Total() / s.cfg.FPSFloor))
		if estimate < 1 {
			estimate = 1
		}
		converged := estimate == st.current ||
			estimate == st.lastEstimate ||
			estimate == st.prevEstimate
		st.prevEstimate, st.lastEstimate = st.lastEstimate, estimate

		if converged {
			output.Logger.Info("Growth converged", "streams", st.best.NumStreams, "estimate", estimate)
			return model.OutcomeConverged, 0, nil
		}
		st.current = estimate
	}
}

// refine binary-searches [low, high] for the largest passing count.
func (s *Search) refine(ctx context.Context, st *searchState, low, high int) (model.Outcome, error) {
	output.Logger.Info("Refining", "low", low, "high", high)

	for low <= high {
		if outcome, stop := s.shouldStop(ctx, st); stop {
			return outcome, nil
		}

		mid := low + (high-low)/2
		entry, err := s.step(ctx, st, mid, model.PhaseRefinement)
		if err != nil {
			outcome, _, err := s.failure(ctx, err)
			return outcome, err
		}

		if entry.Passed {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return model.OutcomeRefined, nil
}

// step probes n streams, appends the history entry and updates the best configuration.
func (s *Search) step(ctx context.Context, st *searchState, n int, phase model.Phase) (model.HistoryEntry, error) {
	split, err := mix.Partition(n, s.cfg.AIRatePercent)
	if err != nil {
		return model.HistoryEntry{}, err
	}

	m, err := s.prober.Probe(ctx, split)
	if err != nil {
		return model.HistoryEntry{}, err
	}

	entry := model.HistoryEntry{
		Index:        len(st.history),
		Phase:        phase,
		NumStreams:   split.Total,
		AIStreams:    split.AI,
		NonAIStreams: split.NonAI,
		PerStreamFPS: m.PerStream(),
		Measurement:  m,
		Passed:       m.Available() && m.PerStream() >= s.cfg.FPSFloor,
		Elapsed:      s.now().Sub(st.start),
	}
	st.history = append(st.history, entry)

	if entry.Passed && entry.NumStreams > st.best.NumStreams {
		st.best = model.StreamConfig{
			NumStreams:   entry.NumStreams,
			AIStreams:    entry.AIStreams,
			NonAIStreams: entry.NonAIStreams,
			PerStreamFPS: entry.PerStreamFPS,
		}
	}

	s.metrics.ObserveProbe(m.Available(), entry.Passed, m.PerStream(), m.Duration)
	output.Logger.Info("Probe evaluated",
		"phase", phase,
		"streams", split.Total,
		"ai_streams", split.AI,
		"non_ai_streams", split.NonAI,
		"available", m.Available(),
		"per_stream_fps", m.PerStream(),
		"passed", entry.Passed,
	)
	return entry, nil
}

func (s *Search) shouldStop(ctx context.Context, st *searchState) (model.Outcome, bool) {
	if ctx.Err() != nil {
		return model.OutcomeCanceled, true
	}
	if s.now().Sub(st.start) >= s.cfg.TimeBudget {
		output.Logger.Info("Time budget exhausted", "budget", s.cfg.TimeBudget, "probes", len(st.history))
		return model.OutcomeBudgetExhausted, true
	}
	if s.cfg.MaxIterations > 0 && len(st.history) >= s.cfg.MaxIterations {
		output.Logger.Warn("Probe cap reached", "max_iterations", s.cfg.MaxIterations)
		return model.OutcomeIterationCap, true
	}
	return "", false
}

// failure maps a prober error to an outcome. Cancellation is a normal stop.
func (s *Search) failure(ctx context.Context, err error) (model.Outcome, int, error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return model.OutcomeCanceled, 0, nil
	}
	return "", 0, err
}
