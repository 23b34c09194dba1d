package rank

import (
	"errors"
	"fmt"
	"math"
)

// ErrWeightsSum is returned for weight sets that do not sum to 1.
var ErrWeightsSum = errors.New("ranking weights must sum to 1")

// ErrNegativeWeight is returned for weight sets with a negative component.
var ErrNegativeWeight = errors.New("ranking weights must be non-negative")

// WeightTolerance is the allowed deviation of the weight sum from 1.
const WeightTolerance = 1e-3

// Weights is the share of each component in the ranking score.
type Weights struct {
	Reputation float64 `json:"reputation" yaml:"reputation"`
	Recency    float64 `json:"recency" yaml:"recency"`
	Engagement float64 `json:"engagement" yaml:"engagement"`
	Safety     float64 `json:"safety" yaml:"safety"`
}

// DefaultWeights returns the stock configuration.
func DefaultWeights() Weights {
	return Weights{
		Reputation: 0.4,
		Recency:    0.3,
		Engagement: 0.2,
		Safety:     0.1,
	}
}

// Sum returns the total of all components.
func (w Weights) Sum() float64 {
	return w.Reputation + w.Recency + w.Engagement + w.Safety
}

// Validate rejects negative components and sums outside 1 ± WeightTolerance.
// Weights are never renormalised.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Reputation, w.Recency, w.Engagement, w.Safety} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %+v", ErrNegativeWeight, w)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w (got %.4f)", ErrWeightsSum, sum)
	}
	return nil
}
