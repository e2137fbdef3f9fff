package pipeline

import (
	"errors"
	"math"

	"github.com/Brownie44l1/deepfake-api/internal/model"
)

// DefaultThreshold is the probability at or above which media is fake.
const DefaultThreshold = 0.5

// Result is the verdict for one piece of media.
type Result struct {
	Probability float64 `json:"probability"`
	IsFake      bool    `json:"is_fake"`
}

// Thresholder turns the sequence model output into a Result.
type Thresholder struct {
	Threshold float64
}

// IsFake reports whether p meets the threshold.
func (t Thresholder) IsFake(p float64) bool {
	return p >= t.Threshold
}

// Decide reads the first element of the flattened output as the fake
// probability, clamped to [0,1].
func (t Thresholder) Decide(out model.Tensor) (Result, error) {
	if len(out.Data) == 0 {
		return Result{}, errors.New("empty sequence model output")
	}
	p := float64(out.Data[0])
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return Result{}, errors.New("non-finite sequence model output")
	}
	p = min(max(p, 0), 1)
	return Result{Probability: p, IsFake: t.IsFake(p)}, nil
}
