package probe

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is one resource sample of a running probe.
type Usage struct {
	RSSBytes   uint64
	CPUPercent float64
	Status     string
}

// Sampler reads resource usage of a running probe.
type Sampler interface {
	Sample(ctx context.Context, pid int) (Usage, error)
}

// ProcessSampler samples through the OS process table. It keeps the handle
// of the last pid so CPU percent is computed between consecutive samples.
// Not safe for concurrent use; probes run one at a time.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler creates a sampler backed by gopsutil.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{}
}

// Sample returns current RSS, CPU percent and status of pid.
func (s *ProcessSampler) Sample(ctx context.Context, pid int) (Usage, error) {
	if s.proc == nil || s.proc.Pid != int32(pid) {
		p, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			return Usage{}, err
		}
		s.proc = p
	}

	var u Usage
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, err
	}
	u.RSSBytes = mem.RSS

	cpu, err := s.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return Usage{}, err
	}
	u.CPUPercent = cpu

	// Status is informational only.
	if st, err := s.proc.StatusWithContext(ctx); err == nil {
		u.Status = strings.Join(st, ",")
	}
	return u, nil
}
