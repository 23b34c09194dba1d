package rank

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	mu      sync.Mutex
	scores  map[feed.Address]int
	tiers   map[feed.Address]reputation.Tier
	batches [][]feed.Address
}

func (s *stubResolver) Resolve(_ context.Context, authors []feed.Address) map[feed.Address]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, authors)
	out := make(map[feed.Address]int, len(authors))
	for _, a := range authors {
		out[a] = s.scores[a]
	}
	return out
}

func (s *stubResolver) ViewerTier(_ context.Context, viewer feed.Address) reputation.Tier {
	return s.tiers[viewer]
}

func newTestEngine(t *testing.T, r Resolver) *Engine {
	t.Helper()
	e, err := NewEngine(r, DefaultWeights(), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return e
}

func samplePosts() []feed.Post {
	return []feed.Post{
		{ID: 1, Author: alice, Likes: 10, Replies: 5, Timestamp: ago(30 * time.Minute)},
		{ID: 2, Author: bob, Likes: 1, Timestamp: ago(3 * time.Hour)},
		{ID: 3, Author: carol, Flagged: true, Likes: 40, Timestamp: ago(2 * time.Hour)},
		{ID: 4, Author: alice, Timestamp: ago(48 * time.Hour)},
	}
}

func TestNewEngine_RejectsInvalidWeights(t *testing.T) {
	_, err := NewEngine(&stubResolver{}, Weights{Reputation: 2})
	assert.ErrorIs(t, err, ErrWeightsSum)
}

func TestEngine_UpdateWeights(t *testing.T) {
	e := newTestEngine(t, &stubResolver{})

	err := e.UpdateWeights(Weights{Reputation: 0.5, Recency: 0.5, Engagement: 0.5})
	assert.ErrorIs(t, err, ErrWeightsSum)
	assert.Equal(t, DefaultWeights(), e.Weights())

	next := Weights{Reputation: 0.25, Recency: 0.25, Engagement: 0.25, Safety: 0.25}
	require.NoError(t, e.UpdateWeights(next))
	assert.Equal(t, next, e.Weights())
}

func TestEngine_EmptyInput(t *testing.T) {
	e := newTestEngine(t, &stubResolver{})
	for _, v := range Variants {
		out, err := e.BuildVariant(context.Background(), Request{Variant: v})
		require.NoError(t, err, v)
		assert.NotNil(t, out, v)
		assert.Empty(t, out, v)
	}
}

func TestEngine_UnknownVariant(t *testing.T) {
	e := newTestEngine(t, &stubResolver{})
	_, err := e.BuildVariant(context.Background(), Request{Variant: "mystery", Posts: samplePosts()})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestEngine_InvalidRequestWeights(t *testing.T) {
	e := newTestEngine(t, &stubResolver{})
	_, err := e.BuildVariant(context.Background(), Request{
		Variant: VariantRanked,
		Posts:   samplePosts(),
		Weights: &Weights{Reputation: 0.9},
	})
	assert.ErrorIs(t, err, ErrWeightsSum)
}

func TestEngine_Ranked(t *testing.T) {
	r := &stubResolver{scores: map[feed.Address]int{alice: 80, bob: 30, carol: 90}}
	e := newTestEngine(t, r)

	out, err := e.BuildVariant(context.Background(), Request{Variant: VariantRanked, Posts: samplePosts()})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, uint64(1), out[0].ID)
	assert.Equal(t, 0.87, out[0].RankingScore)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].RankingScore, out[i].RankingScore)
	}

	// One batch, each author once.
	require.Len(t, r.batches, 1)
	assert.ElementsMatch(t, []feed.Address{alice, bob, carol}, r.batches[0])
}

func TestEngine_PersonalizedFallsBackToRanked(t *testing.T) {
	r := &stubResolver{scores: map[feed.Address]int{alice: 80, bob: 30, carol: 90}}
	e := newTestEngine(t, r)
	ctx := context.Background()

	ranked, err := e.BuildVariant(ctx, Request{Variant: VariantRanked, Posts: samplePosts()})
	require.NoError(t, err)
	personalized, err := e.BuildVariant(ctx, Request{Variant: VariantPersonalized, Posts: samplePosts()})
	require.NoError(t, err)
	assert.Equal(t, ranked, personalized)
}

func TestEngine_PersonalizedByViewer(t *testing.T) {
	viewer := feed.Address("0xdddddddddddddddddddddddddddddddddddddddd")
	r := &stubResolver{
		scores: map[feed.Address]int{alice: 80, bob: 30, carol: 90},
		tiers:  map[feed.Address]reputation.Tier{viewer: reputation.TierPlatinum},
	}
	e := newTestEngine(t, r)
	ctx := context.Background()

	byAddress, err := e.BuildVariant(ctx, Request{Variant: VariantPersonalized, Posts: samplePosts(), ViewerAddress: viewer})
	require.NoError(t, err)

	tier := reputation.TierPlatinum
	byTier, err := e.BuildVariant(ctx, Request{Variant: VariantPersonalized, Posts: samplePosts(), Viewer: &tier})
	require.NoError(t, err)
	assert.Equal(t, byTier, byAddress)

	// 0.87 estimates as platinum, so it gets the same-tier boost only.
	assert.Equal(t, uint64(1), byTier[0].ID)
	assert.InDelta(t, 0.87*1.1, byTier[0].RankingScore, 1e-9)
	assert.Equal(t, 0.87, byTier[0].BaseScore)
}

func TestEngine_TrendingResolvesCandidatesOnly(t *testing.T) {
	r := &stubResolver{scores: map[feed.Address]int{alice: 80, bob: 30, carol: 90}}
	e := newTestEngine(t, r)

	out, err := e.BuildVariant(context.Background(), Request{Variant: VariantTrending, Posts: samplePosts()})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids(out))

	require.Len(t, r.batches, 1)
	assert.ElementsMatch(t, []feed.Address{alice, bob}, r.batches[0])
}

func TestEngine_TrendingWindowOverride(t *testing.T) {
	e := newTestEngine(t, &stubResolver{})
	out, err := e.BuildVariant(context.Background(), Request{
		Variant:        VariantTrending,
		Posts:          samplePosts(),
		TrendingWindow: 72 * time.Hour,
	})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestEngine_HighQualityAndChronological(t *testing.T) {
	r := &stubResolver{scores: map[feed.Address]int{alice: 80, bob: 30, carol: 90}}
	e := newTestEngine(t, r)
	ctx := context.Background()

	hq, err := e.BuildVariant(ctx, Request{Variant: VariantHighQuality, Posts: samplePosts()})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4, 2}, ids(hq))

	r.batches = nil
	chrono, err := e.BuildVariant(ctx, Request{Variant: VariantChronological, Posts: samplePosts()})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 2, 4}, ids(chrono))
	assert.Empty(t, r.batches)
}

func TestEngine_Explain(t *testing.T) {
	r := &stubResolver{scores: map[feed.Address]int{alice: 80}}
	e := newTestEngine(t, r)
	post := samplePosts()[0]

	b, err := e.Explain(context.Background(), post, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.87, b.Score)
	assert.Equal(t, 80, b.Reputation.Raw)
	assert.Equal(t, 1.0, b.Recency.Normalized)
	assert.InDelta(t, 0.5, b.AgeHours, 1e-9)
	assert.Equal(t, EngagementRaw{Likes: 10, Replies: 5}, b.Engagement.Raw)
	assert.InDelta(t, b.Total, b.Reputation.Weighted+b.Recency.Weighted+b.Engagement.Weighted+b.Safety.Weighted, 1e-12)

	ranked, err := e.BuildVariant(context.Background(), Request{Variant: VariantRanked, Posts: []feed.Post{post}})
	require.NoError(t, err)
	assert.Equal(t, ranked[0].RankingScore, b.Score)

	_, err = e.Explain(context.Background(), post, &Weights{Safety: 0.5})
	assert.ErrorIs(t, err, ErrWeightsSum)
}
