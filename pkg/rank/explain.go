package rank

import (
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
)

// Component describes one factor of a ranking score.
type Component struct {
	Raw        any     `json:"raw"`
	Normalized float64 `json:"normalized"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
}

// EngagementRaw is the raw input of the engagement component.
type EngagementRaw struct {
	Likes   uint64 `json:"likes"`
	Replies uint64 `json:"replies"`
}

// Breakdown explains how a post's ranking score was built.
type Breakdown struct {
	PostID     uint64    `json:"postId"`
	Reputation Component `json:"reputation"`
	Recency    Component `json:"recency"`
	Engagement Component `json:"engagement"`
	Safety     Component `json:"safety"`

	// Total is the unrounded weighted sum; Score is the value the ranked
	// view sorts by.
	Total     float64   `json:"total"`
	Score     float64   `json:"score"`
	AgeHours  float64   `json:"ageHours"`
	Weights   Weights   `json:"weights"`
	Evaluated time.Time `json:"evaluatedAt"`
}

func explain(p feed.Post, rep int, w Weights, now time.Time) Breakdown {
	c := computeComponents(p, rep, now)
	wc := c.weighted(w)
	total := c.total(w)

	return Breakdown{
		PostID: p.ID,
		Reputation: Component{
			Raw:        rep,
			Normalized: c.reputation,
			Weight:     w.Reputation,
			Weighted:   wc.reputation,
		},
		Recency: Component{
			Raw:        p.Timestamp,
			Normalized: c.recency,
			Weight:     w.Recency,
			Weighted:   wc.recency,
		},
		Engagement: Component{
			Raw:        EngagementRaw{Likes: p.Likes, Replies: p.Replies},
			Normalized: c.engagement,
			Weight:     w.Engagement,
			Weighted:   wc.engagement,
		},
		Safety: Component{
			Raw:        p.Flagged,
			Normalized: c.safety,
			Weight:     w.Safety,
			Weighted:   wc.safety,
		},
		Total:     total,
		Score:     round2(total),
		AgeHours:  p.Age(now).Hours(),
		Weights:   w,
		Evaluated: now.UTC(),
	}
}
