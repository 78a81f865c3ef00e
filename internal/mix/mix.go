// Package mix splits a total stream count into AI-processed and pass-through streams.
//
// The split is total-preserving: ai + non-ai always equals the requested total.
// A zero rate yields no AI streams; any positive rate yields at least one.
package mix

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStreams = errors.New("total streams must be at least 1")
	ErrInvalidRate    = errors.New("ai rate must be between 0 and 100")
)

// Split is one partition of a stream count.
type Split struct {
	Total int
	AI    int
	NonAI int
}

func (s Split) String() string {
	return fmt.Sprintf("%d streams (%d AI, %d non-AI)", s.Total, s.AI, s.NonAI)
}

// Partition computes ai = ceil(total * rate / 100) and non-ai = total - ai.
func Partition(total, ratePercent int) (Split, error) {
	if total < 1 {
		return Split{}, fmt.Errorf("%w: got %d", ErrInvalidStreams, total)
	}
	if ratePercent < 0 || ratePercent > 100 {
		return Split{}, fmt.Errorf("%w: got %d", ErrInvalidRate, ratePercent)
	}

	// Integer ceiling avoids float rounding at exact multiples.
	ai := (total*ratePercent + 99) / 100
	if ratePercent > 0 && ai < 1 {
		ai = 1
	}

	return Split{
		Total: total,
		AI:    ai,
		NonAI: total - ai,
	}, nil
}
