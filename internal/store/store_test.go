package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = feed.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = feed.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPosts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	maxID, err := s.MaxPostID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxID)

	posts := []feed.Post{
		{ID: 1, Author: alice, Content: "gm", Timestamp: 100},
		{ID: 2, Author: bob, Content: "hello", Timestamp: 300, Likes: 4},
		{ID: 3, Author: alice, Content: "later", Timestamp: 200, Flagged: true},
	}
	require.NoError(t, s.UpsertPosts(ctx, posts))

	got, err := s.GetPost(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, posts[1], *got)

	_, err = s.GetPost(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	maxID, err = s.MaxPostID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), maxID)

	all, err := s.ListPosts(ctx, ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(2), all[0].ID)
	assert.True(t, all[1].Flagged)

	byAlice, err := s.ListPosts(ctx, ListOpts{Author: alice, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byAlice, 1)
	assert.Equal(t, uint64(3), byAlice[0].ID)

	recent, err := s.ListPosts(ctx, ListOpts{Since: time.Unix(200, 0)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestUpsertPosts_RefreshesCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPosts(ctx, []feed.Post{{ID: 1, Author: alice, Content: "gm", Timestamp: 100}}))
	require.NoError(t, s.UpsertPosts(ctx, []feed.Post{{ID: 1, Author: alice, Content: "gm", Timestamp: 100, Likes: 7, Replies: 2, Flagged: true}}))

	p, err := s.GetPost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.Likes)
	assert.Equal(t, uint64(2), p.Replies)
	assert.True(t, p.Flagged)

	n, err := s.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReputationSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestReputation(ctx, alice)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AddReputationSnapshot(ctx, alice, 40))
	require.NoError(t, s.AddReputationSnapshot(ctx, alice, 55))
	require.NoError(t, s.AddReputationSnapshot(ctx, bob, 10))

	latest, err := s.LatestReputation(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 55, latest.Score)

	history, err := s.ReputationHistory(ctx, alice, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 40, history[0].Score)
	assert.Equal(t, alice, history[1].Author)
}

func TestSyncRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LastSyncRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	run, err := s.StartSyncRun(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	run.Fetched = 9
	run.Skipped = 1
	require.NoError(t, s.FinishSyncRun(ctx, run))

	last, err := s.LastSyncRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, last.ID)
	assert.Equal(t, uint64(10), last.ToID)
	assert.Equal(t, 9, last.Fetched)
	assert.Equal(t, 1, last.Skipped)
	require.NotNil(t, last.FinishedAt)
}

func TestTrendingAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertPosts(ctx, []feed.Post{
		{ID: 1, Author: alice, Timestamp: 1},
		{ID: 2, Author: bob, Timestamp: 2},
	}))

	alerted, err := s.AlertedPosts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, alerted)

	require.NoError(t, s.MarkAlerted(ctx, 2, 0.61))
	require.NoError(t, s.MarkAlerted(ctx, 2, 0.7))

	alerted, err = s.AlertedPosts(ctx, []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]bool{2: true}, alerted)
}
