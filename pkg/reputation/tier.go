package reputation

import (
	"fmt"
	"strings"
)

// Tier is a coarse reputation bucket. It is always derived from a score and
// never stored on its own.
type Tier int

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
)

// MaxScore is the upper bound of a reputation score.
const MaxScore = 100

// tierThresholds holds the minimum score for each tier, indexed by Tier.
var tierThresholds = [...]int{0, 25, 50, 75}

var tierNames = [...]string{"bronze", "silver", "gold", "platinum"}

// TierFromScore maps a reputation score to its tier.
func TierFromScore(score int) Tier {
	for t := TierPlatinum; t > TierBronze; t-- {
		if score >= tierThresholds[t] {
			return t
		}
	}
	return TierBronze
}

// TierFromIndex converts the integer tier returned by the ledger, clamping
// out-of-range values to the nearest tier.
func TierFromIndex(i int) Tier {
	switch {
	case i < int(TierBronze):
		return TierBronze
	case i > int(TierPlatinum):
		return TierPlatinum
	}
	return Tier(i)
}

func (t Tier) String() string {
	if t < TierBronze || t > TierPlatinum {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier accepts a tier name ("gold") or its index ("2").
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if s == name || s == fmt.Sprint(i) {
			return Tier(i), nil
		}
	}
	return TierBronze, fmt.Errorf("unknown tier %q", s)
}

// MinScore is the lowest score that reaches t.
func (t Tier) MinScore() int {
	return tierThresholds[TierFromIndex(int(t))]
}

// NextTierProgress returns the percentage (0-100) of the way score is from the
// floor of its tier to the floor of the next one. Platinum is always 100.
func NextTierProgress(score int) float64 {
	tier := TierFromScore(score)
	if tier == TierPlatinum {
		return 100
	}
	lo, hi := tierThresholds[tier], tierThresholds[tier+1]
	progress := float64(score-lo) / float64(hi-lo) * 100
	return min(100, max(0, progress))
}
