package probe

import (
	"context"

	"github.com/daryltucker/density-runner/internal/mix"
	"github.com/daryltucker/density-runner/internal/model"
)

// Runner builds and executes a probe for a stream split.
type Runner struct {
	Builder  Builder
	Executor *Executor
}

// Probe runs one probe at split, targeting split.Total channels.
func (r *Runner) Probe(ctx context.Context, split mix.Split) (model.Measurement, error) {
	argv, err := r.Builder.Build(split.NonAI, split.AI)
	if err != nil {
		return model.Measurement{}, err
	}
	return r.Executor.Run(ctx, argv, split.Total)
}
