package reputation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = feed.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = feed.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol = feed.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

type fakeSource struct {
	mu     sync.Mutex
	scores map[feed.Address]int
	tiers  map[feed.Address]int
	fail   map[feed.Address]bool
	calls  map[feed.Address]int
	total  atomic.Int64

	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		scores: map[feed.Address]int{alice: 80, bob: 30, carol: 10},
		tiers:  map[feed.Address]int{alice: 3, bob: 1},
		fail:   map[feed.Address]bool{},
		calls:  map[feed.Address]int{},
	}
}

func (f *fakeSource) ReputationScore(ctx context.Context, a feed.Address) (int, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.calls[a]++
	fail := f.fail[a]
	score := f.scores[a]
	f.mu.Unlock()

	if f.gate != nil {
		f.once.Do(func() { close(f.started) })
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if fail {
		return 0, errors.New("execution reverted")
	}
	return score, nil
}

func (f *fakeSource) UserTier(_ context.Context, a feed.Address) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[a] {
		return 0, errors.New("execution reverted")
	}
	return f.tiers[a], nil
}

func (f *fakeSource) callsFor(a feed.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[a]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_DeduplicatesAuthors(t *testing.T) {
	src := newFakeSource()
	r := NewResolver(src, WithLogger(quietLogger()))

	got := r.Resolve(context.Background(), []feed.Address{alice, bob, alice, carol, bob})

	assert.Equal(t, map[feed.Address]int{alice: 80, bob: 30, carol: 10}, got)
	assert.Equal(t, int64(3), src.total.Load())
}

func TestResolve_FailureIsZeroAndNotFatal(t *testing.T) {
	src := newFakeSource()
	src.fail[bob] = true
	r := NewResolver(src, WithLogger(quietLogger()), WithCache(NewMemoryCache(10, time.Minute)))

	got := r.Resolve(context.Background(), []feed.Address{alice, bob})
	assert.Equal(t, 80, got[alice])
	assert.Equal(t, 0, got[bob])

	// failures are not cached, successes are
	r.Resolve(context.Background(), []feed.Address{alice, bob})
	assert.Equal(t, 1, src.callsFor(alice))
	assert.Equal(t, 2, src.callsFor(bob))
}

func TestResolve_Empty(t *testing.T) {
	r := NewResolver(newFakeSource(), WithLogger(quietLogger()))
	assert.Empty(t, r.Resolve(context.Background(), nil))
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	src := newFakeSource()
	src.scores[alice] = 250
	r := NewResolver(src, WithLogger(quietLogger()))
	assert.Equal(t, MaxScore, r.Score(context.Background(), alice))
}

func TestScore_CoalescesConcurrentLookups(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	src.started = make(chan struct{})
	r := NewResolver(src, WithLogger(quietLogger()), WithCache(NewMemoryCache(10, time.Minute)))

	const n = 8
	results := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Score(context.Background(), alice)
		}()
	}

	<-src.started
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for _, s := range results {
		assert.Equal(t, 80, s)
	}
	assert.Equal(t, 1, src.callsFor(alice))
}

func TestScore_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	src.started = make(chan struct{})
	r := NewResolver(src, WithLogger(quietLogger()), WithCache(NewMemoryCache(10, time.Minute)))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan int, 1)
	go func() { first <- r.Score(ctx, alice) }()
	<-src.started

	second := make(chan int, 1)
	go func() { second <- r.Score(context.Background(), alice) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	close(src.gate)

	assert.Equal(t, 80, <-first)
	assert.Equal(t, 80, <-second)
	assert.Equal(t, 1, src.callsFor(alice))
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache(0, 20*time.Millisecond)
	ctx := context.Background()
	c.Set(ctx, alice, 42)

	v, ok := c.Get(ctx, alice)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(ctx, alice)
	assert.False(t, ok)
}

func TestViewerTier(t *testing.T) {
	src := newFakeSource()
	src.fail[carol] = true
	r := NewResolver(src, WithLogger(quietLogger()))
	ctx := context.Background()

	assert.Equal(t, TierPlatinum, r.ViewerTier(ctx, alice))
	assert.Equal(t, TierSilver, r.ViewerTier(ctx, bob))
	assert.Equal(t, TierBronze, r.ViewerTier(ctx, carol))
}
