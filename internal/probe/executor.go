/*
PURPOSE:
  Runs exactly one probe: spawns the workload as a child process, polls it
  until it exits and parses its combined output into a Measurement.

REQUIREMENTS:
  User-specified:
  - One child process per probe; no retries at this layer.
  - Absent telemetry is an "unavailable" measurement, never an error.
  - Spawn failure is fatal for the probe (ErrSpawn).

  Implementation-discovered:
  - Output must be drained while the child runs or it blocks on a full pipe,
    so the parser reads concurrently (errgroup) and keeps draining after an
    authoritative line.
  - Exit is detected by a dedicated Wait() goroutine instead of inspecting
    the process table for zombies.
  - A probe that never exits would block the search forever; Timeout kills it.

ARCHITECTURE INTEGRATION:
  - Called by: Runner (runner.go), internal/cli (probe command)
  - Uses: internal/telemetry, internal/output

ERROR HANDLING:
  - Returns ErrSpawn if the process cannot be started.
  - Returns the context error if the caller's context was canceled.
  - Timeouts are reported through Measurement.TimedOut.

IMPLEMENTATION RULES:
  - stdout and stderr share one pipe.
  - Resource sampling failures are logged at debug and ignored.

USAGE:
  e := probe.NewExecutor(time.Second, 5*time.Minute)
  m, err := e.Run(ctx, argv, channels)

SELF-HEALING INSTRUCTIONS:
  - If probes hang after exit, check for grandchildren holding the pipe (waitDelay).

RELATED FILES:
  - internal/telemetry/parser.go
  - internal/probe/sampler.go

MAINTENANCE:
  - None.
*/

package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daryltucker/density-runner/internal/model"
	"github.com/daryltucker/density-runner/internal/output"
	"github.com/daryltucker/density-runner/internal/telemetry"
)

// ErrSpawn is returned when the probe process could not be started.
var ErrSpawn = errors.New("failed to spawn probe")

// waitDelay bounds how long output pipes stay open after the child exits,
// e.g. when a grandchild inherited them.
const waitDelay = 5 * time.Second

// Process is a spawned probe as seen by the poll loop.
type Process interface {
	Pid() int
	// Exited reports whether the process has terminated and been reaped.
	Exited() bool
	// Done is closed once Exited would return true.
	Done() <-chan struct{}
	// ExitCode is valid only after Exited; -1 if killed by a signal.
	ExitCode() int
}

// waitedProcess reaps its child in a goroutine.
type waitedProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func watch(cmd *exec.Cmd) *waitedProcess {
	p := &waitedProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p
}

func (p *waitedProcess) Pid() int { return p.cmd.Process.Pid }

func (p *waitedProcess) Done() <-chan struct{} { return p.done }

func (p *waitedProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *waitedProcess) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Executor runs single probes.
type Executor struct {
	PollInterval time.Duration
	Timeout      time.Duration // zero disables
	Sampler      Sampler       // optional
}

// NewExecutor creates an executor sampling resources through the process table.
func NewExecutor(pollInterval, timeout time.Duration) *Executor {
	return &Executor{
		PollInterval: pollInterval,
		Timeout:      timeout,
		Sampler:      NewProcessSampler(),
	}
}

// Run spawns argv and returns the measurement for channels streams.
func (e *Executor) Run(ctx context.Context, argv []string, channels int) (model.Measurement, error) {
	if len(argv) == 0 {
		return model.Measurement{}, ErrEmptyCommand
	}

	probeCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	pr, pw := io.Pipe()
	cmd := exec.CommandContext(probeCtx, argv[0], argv[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		return model.Measurement{}, fmt.Errorf("%w: %s: %v", ErrSpawn, argv[0], err)
	}
	proc := watch(cmd)

	output.Logger.Info("Probe started", "pid", proc.Pid(), "channels", channels, "command", argv[0])

	var (
		m        model.Measurement
		parseErr error
		g        errgroup.Group
	)
	g.Go(func() error {
		m, parseErr = telemetry.Parse(pr, channels)
		_, err := io.Copy(io.Discard, pr)
		return err
	})

	peak := e.poll(ctx, proc)

	// Wait has returned, so every write to pw is done.
	pw.Close()
	if err := g.Wait(); err != nil {
		output.Logger.Debug("Probe output drain failed", "pid", proc.Pid(), "error", err)
	}
	if parseErr != nil {
		output.Logger.Debug("Probe output truncated", "pid", proc.Pid(), "error", parseErr)
	}

	m = m.WithExitCode(proc.ExitCode())
	m.Duration = time.Since(start)
	m.PeakRSSBytes = peak.RSSBytes
	m.PeakCPUPercent = peak.CPUPercent
	m.TimedOut = e.Timeout > 0 && errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	output.Logger.Info("Probe finished",
		"pid", proc.Pid(),
		"exit_code", proc.ExitCode(),
		"available", m.Available(),
		"total_fps", m.Total(),
		"per_stream_fps", m.PerStream(),
		"num_streams", m.Streams(),
		"timed_out", m.TimedOut,
		"duration", m.Duration,
	)

	if err := ctx.Err(); err != nil {
		return m, err
	}
	return m, nil
}

// poll sleeps PollInterval between liveness checks until proc exits,
// sampling resources on every tick. It returns the peak usage seen.
func (e *Executor) poll(ctx context.Context, proc Process) Usage {
	interval := e.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var peak Usage
	for {
		select {
		case <-proc.Done():
			return peak
		case <-ticker.C:
			if e.Sampler == nil || proc.Exited() {
				continue
			}
			u, err := e.Sampler.Sample(ctx, proc.Pid())
			if err != nil {
				output.Logger.Debug("Probe sample failed", "pid", proc.Pid(), "error", err)
				continue
			}
			output.Logger.Debug("Probe sample", "pid", proc.Pid(), "rss", u.RSSBytes, "cpu_pct", u.CPUPercent, "status", u.Status)
			if u.RSSBytes > peak.RSSBytes {
				peak.RSSBytes = u.RSSBytes
			}
			if u.CPUPercent > peak.CPUPercent {
				peak.CPUPercent = u.CPUPercent
			}
		}
	}
}
