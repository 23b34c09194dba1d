package rank

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
)

// ErrUnknownVariant is returned for feed names the builder does not know.
var ErrUnknownVariant = errors.New("unknown feed variant")

// Variant names one ordering of the post set.
type Variant string

const (
	VariantChronological Variant = "chronological"
	VariantRanked        Variant = "ranked"
	VariantPersonalized  Variant = "personalized"
	VariantTrending      Variant = "trending"
	VariantHighQuality   Variant = "highQuality"
)

// Variants lists every supported variant in display order.
var Variants = []Variant{
	VariantChronological,
	VariantRanked,
	VariantPersonalized,
	VariantTrending,
	VariantHighQuality,
}

const (
	DefaultTrendingWindow = 24 * time.Hour
	DefaultTrendingLimit  = 10

	// HighQualityMinReputation is the Silver tier floor.
	HighQualityMinReputation = 25

	trendingEngagementShare = 0.7
	trendingReputationShare = 0.3
)

// ParseVariant resolves a variant name. "algorithm" is accepted for ranked.
func ParseVariant(name string) (Variant, error) {
	key := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch key {
	case "chronological":
		return VariantChronological, nil
	case "ranked", "algorithm":
		return VariantRanked, nil
	case "personalized":
		return VariantPersonalized, nil
	case "trending":
		return VariantTrending, nil
	case "highquality":
		return VariantHighQuality, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// Chronological orders posts newest first. Posts sharing a timestamp are
// ordered by descending ID, which follows ledger insertion order.
func Chronological(posts []feed.Post) []ScoredPost {
	out := make([]ScoredPost, len(posts))
	for i, p := range posts {
		out[i] = ScoredPost{Post: p}
	}
	slices.SortFunc(out, func(a, b ScoredPost) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// TrendingCandidates returns the unflagged posts no older than window.
func TrendingCandidates(posts []feed.Post, now time.Time, window time.Duration) []feed.Post {
	var out []feed.Post
	for _, p := range posts {
		if p.Flagged || p.Age(now) > window {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Trending ranks recent unflagged posts mostly by engagement, keeping at most
// limit of them. reps must cover the authors of posts.
func Trending(posts []feed.Post, reps map[feed.Address]int, now time.Time, window time.Duration, limit int) []ScoredPost {
	candidates := TrendingCandidates(posts, now, window)
	out := make([]ScoredPost, 0, len(candidates))
	for _, p := range candidates {
		rep := reps[p.Author]
		out = append(out, ScoredPost{
			Post:       p,
			Reputation: rep,
			TrendingScore: NormalizeEngagement(p.Likes, p.Replies)*trendingEngagementShare +
				NormalizeReputation(rep)*trendingReputationShare,
		})
	}
	sortByScore(out, func(sp ScoredPost) float64 { return sp.TrendingScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HighQuality keeps unflagged posts by Silver-or-better authors, ordered by
// raw reputation and then by recency.
func HighQuality(posts []feed.Post, reps map[feed.Address]int) []ScoredPost {
	out := make([]ScoredPost, 0, len(posts))
	for _, p := range posts {
		rep := reps[p.Author]
		if p.Flagged || rep < HighQualityMinReputation {
			continue
		}
		out = append(out, ScoredPost{Post: p, Reputation: rep})
	}
	slices.SortFunc(out, func(a, b ScoredPost) int {
		if c := cmp.Compare(b.Reputation, a.Reputation); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Score returns the value the variant orders by. Variants that order by
// timestamp or raw reputation carry no score and report false.
func (v Variant) Score(sp ScoredPost) (float64, bool) {
	switch v {
	case VariantRanked, VariantPersonalized:
		return sp.RankingScore, true
	case VariantTrending:
		return sp.TrendingScore, true
	}
	return 0, false
}

// HasReputation reports whether the variant resolves author reputation.
func (v Variant) HasReputation() bool {
	return v != VariantChronological
}

// AuthorTier is the real tier of an author from their reputation score.
func AuthorTier(sp ScoredPost) reputation.Tier {
	return reputation.TierFromScore(sp.Reputation)
}
