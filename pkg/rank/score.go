package rank

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
)

// ScoredPost is a post with the scores of one ranking request.
type ScoredPost struct {
	feed.Post

	Reputation int `json:"reputation"`

	// RankingScore orders the ranked and personalized views. For personalized
	// views it includes the tier boost; BaseScore never does.
	RankingScore  float64    `json:"rankingScore"`
	BaseScore     float64    `json:"baseScore"`
	TrendingScore float64    `json:"trendingScore,omitempty"`
	Breakdown     *Breakdown `json:"breakdown,omitempty"`
}

// components holds the four normalized scores of a post.
type components struct {
	reputation float64
	recency    float64
	engagement float64
	safety     float64
}

func computeComponents(p feed.Post, rep int, now time.Time) components {
	return components{
		reputation: NormalizeReputation(rep),
		recency:    NormalizeRecency(p.Timestamp, now),
		engagement: NormalizeEngagement(p.Likes, p.Replies),
		safety:     NormalizeSafety(p.Flagged),
	}
}

// weighted returns each component multiplied by its weight.
func (c components) weighted(w Weights) components {
	return components{
		reputation: c.reputation * w.Reputation,
		recency:    c.recency * w.Recency,
		engagement: c.engagement * w.Engagement,
		safety:     c.safety * w.Safety,
	}
}

// total sums the weighted components in a fixed order.
func (c components) total(w Weights) float64 {
	wc := c.weighted(w)
	return wc.reputation + wc.recency + wc.engagement + wc.safety
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Score computes the ranking score of p given its author's reputation.
// Weights must already be valid.
func Score(p feed.Post, rep int, w Weights, now time.Time) float64 {
	return round2(computeComponents(p, rep, now).total(w))
}

// Rank scores every post and orders them by RankingScore, highest first.
// reps maps authors to reputation; missing authors count as 0.
func Rank(posts []feed.Post, reps map[feed.Address]int, w Weights, now time.Time, withBreakdown bool) []ScoredPost {
	out := make([]ScoredPost, len(posts))
	for i, p := range posts {
		rep := reps[p.Author]
		score := Score(p, rep, w, now)
		out[i] = ScoredPost{
			Post:         p,
			Reputation:   rep,
			RankingScore: score,
			BaseScore:    score,
		}
		if withBreakdown {
			b := explain(p, rep, w, now)
			out[i].Breakdown = &b
		}
	}
	sortByScore(out, func(sp ScoredPost) float64 { return sp.RankingScore })
	return out
}

// sortByScore orders posts by key descending; equal keys fall back to
// ascending post ID so output never depends on input order.
func sortByScore(posts []ScoredPost, key func(ScoredPost) float64) {
	slices.SortFunc(posts, func(a, b ScoredPost) int {
		if c := cmp.Compare(key(b), key(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
