package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/daryltucker/density-runner/internal/mix"
)

func sh(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func TestExecutorRunParsesTelemetry(t *testing.T) {
	e := &Executor{PollInterval: 10 * time.Millisecond}
	script := `
echo "Setting pipeline to PLAYING ..."
echo "FpsCounter(last 1.00sec): total=58.00 fps, number-streams=2, per-stream=29.00 fps"
echo "FpsCounter(average 5.00sec): total=61.00 fps, number-streams=2, per-stream=30.50 fps" >&2
exit 3`

	m, err := e.Run(context.Background(), sh(script), 2)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !m.Available() {
		t.Fatal("Available() = false, want true")
	}
	if m.Total() != 61 || m.PerStream() != 30.5 || m.Streams() != 2 {
		t.Errorf("Run() = total %v per %v n %d, want 61/30.5/2", m.Total(), m.PerStream(), m.Streams())
	}
	if m.ExitCode == nil || *m.ExitCode != 3 {
		t.Errorf("ExitCode = %v, want 3", m.ExitCode)
	}
	if m.TimedOut {
		t.Error("TimedOut = true, want false")
	}
}

func TestExecutorRunNoTelemetry(t *testing.T) {
	e := &Executor{PollInterval: 10 * time.Millisecond}

	m, err := e.Run(context.Background(), sh("echo nothing to see"), 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m.Available() {
		t.Error("Available() = true, want false")
	}
	if m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", m.ExitCode)
	}
}

func TestExecutorRunDrainsAfterOverall(t *testing.T) {
	e := &Executor{PollInterval: 10 * time.Millisecond}
	// Far more output than a pipe buffer holds after the authoritative line.
	script := `
echo "FpsCounter(overall 10.00sec): total=90.00 fps, number-streams=3, per-stream=30.00 fps"
i=0
while [ $i -lt 20000 ]; do echo "filler line number $i padding padding padding"; i=$((i+1)); done`

	done := make(chan struct{})
	go func() {
		defer close(done)
		m, err := e.Run(context.Background(), sh(script), 3)
		if err != nil {
			t.Errorf("Run() error = %v", err)
			return
		}
		if m.Total() != 90 {
			t.Errorf("Total() = %v, want 90", m.Total())
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Run() blocked after authoritative line")
	}
}

func TestExecutorRunSpawnFailure(t *testing.T) {
	e := &Executor{PollInterval: 10 * time.Millisecond}

	_, err := e.Run(context.Background(), []string{"/nonexistent/probe-binary"}, 1)
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("Run() error = %v, want ErrSpawn", err)
	}

	if _, err := e.Run(context.Background(), nil, 1); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Run(nil) error = %v, want ErrEmptyCommand", err)
	}
}

func TestExecutorRunTimeout(t *testing.T) {
	e := &Executor{PollInterval: 10 * time.Millisecond, Timeout: 200 * time.Millisecond}
	script := `
echo "FpsCounter(last 1.00sec): total=25.00 fps, number-streams=1, per-stream=25.00 fps"
exec sleep 30`

	start := time.Now()
	m, err := e.Run(context.Background(), sh(script), 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Run() took %s, want the timeout to kill the probe", elapsed)
	}
	if !m.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if m.Total() != 25 {
		t.Errorf("Total() = %v, want telemetry emitted before the kill", m.Total())
	}
	if m.ExitCode == nil || *m.ExitCode != -1 {
		t.Errorf("ExitCode = %v, want -1 for a killed probe", m.ExitCode)
	}
}

func TestExecutorRunCanceled(t *testing.T) {
	e := &Executor{PollInterval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := e.Run(ctx, sh("exec sleep 30"), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

type fakeSampler struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSampler) Sample(_ context.Context, pid int) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return Usage{RSSBytes: uint64(s.calls * 1024), CPUPercent: float64(s.calls), Status: "running"}, nil
}

func TestExecutorRunSamplesResources(t *testing.T) {
	sampler := &fakeSampler{}
	e := &Executor{PollInterval: 10 * time.Millisecond, Sampler: sampler}

	m, err := e.Run(context.Background(), sh("sleep 0.3"), 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sampler.mu.Lock()
	calls := sampler.calls
	sampler.mu.Unlock()
	if calls == 0 {
		t.Fatal("sampler never called")
	}
	if m.PeakRSSBytes != uint64(calls*1024) {
		t.Errorf("PeakRSSBytes = %d, want %d", m.PeakRSSBytes, calls*1024)
	}
	if m.PeakCPUPercent != float64(calls) {
		t.Errorf("PeakCPUPercent = %v, want %v", m.PeakCPUPercent, float64(calls))
	}
}

func TestRunnerProbe(t *testing.T) {
	cfg := testConfig()
	cfg.Launcher = "/bin/sh -c"
	cfg.AIPipeline = `'echo "FpsCounter(overall 10.00sec): total=120.00 fps, number-streams=4, per-stream=30.00 fps"'`
	cfg.NonAIPipeline = ""

	r := &Runner{
		Builder:  NewTemplateBuilder(cfg, nil),
		Executor: &Executor{PollInterval: 10 * time.Millisecond},
	}

	// One pipeline copy: sh -c takes the first script, the rest are positional args.
	m, err := r.Probe(context.Background(), mix.Split{Total: 4, AI: 1, NonAI: 3})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if m.Streams() != 4 || m.Total() != 120 {
		t.Errorf("Probe() = n %d total %v, want 4/120", m.Streams(), m.Total())
	}
}
