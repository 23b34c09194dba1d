package rank

import (
	"testing"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = feed.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = feed.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol = feed.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())
	require.NoError(t, Weights{Reputation: 0.25, Recency: 0.25, Engagement: 0.25, Safety: 0.2505}.Validate())

	err := Weights{Reputation: 0.5, Recency: 0.5, Engagement: 0.5}.Validate()
	assert.ErrorIs(t, err, ErrWeightsSum)

	err = Weights{Reputation: 1.2, Recency: -0.2}.Validate()
	assert.ErrorIs(t, err, ErrNegativeWeight)
}

func TestScore_Example(t *testing.T) {
	p := feed.Post{ID: 1, Author: alice, Likes: 10, Replies: 5, Timestamp: ago(30 * time.Minute)}

	assert.Equal(t, 0.87, Score(p, 80, DefaultWeights(), testNow))

	p.Flagged = true
	assert.Equal(t, 0.77, Score(p, 80, DefaultWeights(), testNow))
}

func TestScore_SafetyDropsByWeight(t *testing.T) {
	p := feed.Post{ID: 1, Author: alice, Likes: 3, Replies: 1, Timestamp: ago(5 * time.Hour)}
	w := DefaultWeights()

	clean := explain(p, 40, w, testNow)
	p.Flagged = true
	flagged := explain(p, 40, w, testNow)

	assert.InDelta(t, w.Safety, clean.Total-flagged.Total, 1e-9)
}

func TestScore_Deterministic(t *testing.T) {
	p := feed.Post{ID: 9, Author: bob, Likes: 42, Replies: 7, Timestamp: ago(3 * time.Hour)}
	w := Weights{Reputation: 0.1, Recency: 0.2, Engagement: 0.3, Safety: 0.4}

	first := Score(p, 63, w, testNow)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Score(p, 63, w, testNow))
	}
}

func TestScore_Bounds(t *testing.T) {
	p := feed.Post{ID: 1, Author: alice, Likes: 1 << 40, Replies: 1 << 40, Timestamp: ago(0)}
	assert.Equal(t, 1.0, Score(p, 100, DefaultWeights(), testNow))

	p = feed.Post{ID: 2, Author: alice, Flagged: true, Timestamp: ago(365 * 24 * time.Hour)}
	assert.Equal(t, 0.0, Score(p, 0, DefaultWeights(), testNow))
}

func TestRank_OrdersByScoreThenID(t *testing.T) {
	posts := []feed.Post{
		{ID: 3, Author: bob, Timestamp: ago(2 * time.Hour)},
		{ID: 1, Author: alice, Likes: 50, Timestamp: ago(10 * time.Minute)},
		{ID: 2, Author: bob, Timestamp: ago(2 * time.Hour)},
	}
	reps := map[feed.Address]int{alice: 90}

	ranked := Rank(posts, reps, DefaultWeights(), testNow, false)
	require.Len(t, ranked, 3)
	assert.Equal(t, []uint64{1, 2, 3}, ids(ranked))
	assert.Equal(t, 90, ranked[0].Reputation)
	assert.Equal(t, 0, ranked[1].Reputation)
	assert.Equal(t, ranked[0].RankingScore, ranked[0].BaseScore)
	assert.Nil(t, ranked[0].Breakdown)

	// Input order is untouched.
	assert.Equal(t, uint64(3), posts[0].ID)
}

func TestRank_BreakdownMatchesScore(t *testing.T) {
	posts := []feed.Post{
		{ID: 1, Author: alice, Likes: 12, Replies: 4, Timestamp: ago(6 * time.Hour)},
		{ID: 2, Author: bob, Flagged: true, Timestamp: ago(72 * time.Hour)},
	}
	reps := map[feed.Address]int{alice: 55, bob: 10}

	for _, sp := range Rank(posts, reps, DefaultWeights(), testNow, true) {
		require.NotNil(t, sp.Breakdown)
		assert.Equal(t, sp.RankingScore, sp.Breakdown.Score)
		assert.Equal(t, sp.ID, sp.Breakdown.PostID)
	}
}

func TestPersonalize(t *testing.T) {
	base := []ScoredPost{
		{Post: feed.Post{ID: 1}, RankingScore: 0.85, BaseScore: 0.85},
		{Post: feed.Post{ID: 2}, RankingScore: 0.65, BaseScore: 0.65},
		{Post: feed.Post{ID: 3}, RankingScore: 0.45, BaseScore: 0.45},
		{Post: feed.Post{ID: 4}, RankingScore: 0.2, BaseScore: 0.2},
	}

	bronze := Personalize(base, reputation.TierBronze)
	assert.InDelta(t, 0.85*1.1*1.2, bronze[0].RankingScore, 1e-9)
	assert.InDelta(t, 0.65*1.1*1.2, bronze[1].RankingScore, 1e-9)
	assert.InDelta(t, 0.45*1.1, bronze[2].RankingScore, 1e-9)
	assert.InDelta(t, 0.2*1.1, bronze[3].RankingScore, 1e-9)

	platinum := Personalize(base, reputation.TierPlatinum)
	assert.InDelta(t, 0.85*1.1, platinum[0].RankingScore, 1e-9)
	assert.Equal(t, 0.65, platinum[1].RankingScore)

	// Re-personalizing starts from the base score.
	again := Personalize(bronze, reputation.TierPlatinum)
	assert.Equal(t, platinum, again)
	assert.Equal(t, bronze, Personalize(bronze, reputation.TierBronze))

	for _, sp := range bronze {
		assert.Equal(t, sp.BaseScore, base[sp.ID-1].BaseScore)
	}
	assert.Equal(t, 0.85, base[0].RankingScore)
}

func TestEstimateAuthorTier(t *testing.T) {
	assert.Equal(t, reputation.TierPlatinum, EstimateAuthorTier(0.8))
	assert.Equal(t, reputation.TierGold, EstimateAuthorTier(0.79))
	assert.Equal(t, reputation.TierGold, EstimateAuthorTier(0.6))
	assert.Equal(t, reputation.TierSilver, EstimateAuthorTier(0.4))
	assert.Equal(t, reputation.TierBronze, EstimateAuthorTier(0.39))
}

func ids(posts []ScoredPost) []uint64 {
	out := make([]uint64, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
