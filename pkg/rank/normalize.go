package rank

import (
	"math"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/reputation"
)

// Every normalizer maps raw post attributes to [0,1]. The calculator, the
// trending view and Explain all call these same functions.

const (
	reputationExponent = 0.7
	replyWeight        = 2
	likeWeight         = 1
	engagementCeiling  = 100
)

// NormalizeReputation applies a concave curve to a 0-100 reputation score.
func NormalizeReputation(score int) float64 {
	normalized := math.Min(float64(max(score, 0))/reputation.MaxScore, 1)
	return math.Pow(normalized, reputationExponent)
}

// NormalizeRecency decays a post's score with age. The first hour is full
// score, the first day decays over a day, and anything older decays over a
// week at half weight.
func NormalizeRecency(timestamp int64, now time.Time) float64 {
	ageHours := now.Sub(time.Unix(timestamp, 0)).Hours()
	switch {
	case ageHours <= 1:
		return 1
	case ageHours <= 24:
		return math.Exp(-ageHours / 24)
	default:
		return math.Exp(-ageHours/168) * 0.5
	}
}

// NormalizeEngagement log-compresses likes and replies, counting a reply as
// two likes. Totals above engagementCeiling saturate at 1.
func NormalizeEngagement(likes, replies uint64) float64 {
	total := float64(likes)*likeWeight + float64(replies)*replyWeight
	if total == 0 {
		return 0
	}
	return math.Min(math.Log(total+1)/math.Log(engagementCeiling+1), 1)
}

// NormalizeSafety is 0 for flagged posts and 1 otherwise.
func NormalizeSafety(flagged bool) float64 {
	if flagged {
		return 0
	}
	return 1
}
