package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/ledgerfeed/internal/store"
	"github.com/elonfeng/ledgerfeed/pkg/alert"
	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/ledger"
	"github.com/elonfeng/ledgerfeed/pkg/rank"
	"github.com/robfig/cron/v3"
)

// PostSource reads posts from the ledger.
type PostSource interface {
	TotalPosts(ctx context.Context) (uint64, error)
	FetchPosts(ctx context.Context, from, to uint64) (ledger.FetchResult, error)
}

// ReputationResolver looks up author scores in bulk.
type ReputationResolver interface {
	Resolve(ctx context.Context, authors []feed.Address) map[feed.Address]int
}

// FeedBuilder builds feed variants.
type FeedBuilder interface {
	BuildVariant(ctx context.Context, req rank.Request) ([]rank.ScoredPost, error)
}

// Options configures a Scheduler.
type Options struct {
	SyncSpec       string
	TrendingSpec   string
	TrendingWindow time.Duration

	// RefreshRecent re-reads this many of the newest indexed posts on every
	// sync so their like and reply counters stay current.
	RefreshRecent uint64

	// FeedURL is linked from trending alerts when set.
	FeedURL string
	Logger  *slog.Logger
}

// Scheduler runs periodic ledger sync and trending detection.
type Scheduler struct {
	store    store.Store
	posts    PostSource
	reps     ReputationResolver
	engine   FeedBuilder
	alertMgr *alert.Manager
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new scheduler.
func New(s store.Store, posts PostSource, reps ReputationResolver, engine FeedBuilder, alertMgr *alert.Manager, opts Options) *Scheduler {
	if opts.SyncSpec == "" {
		opts.SyncSpec = "@every 5m"
	}
	if opts.TrendingSpec == "" {
		opts.TrendingSpec = "@every 15m"
	}
	if opts.TrendingWindow <= 0 {
		opts.TrendingWindow = rank.DefaultTrendingWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if alertMgr == nil {
		alertMgr = alert.NewManager(nil)
	}
	return &Scheduler{
		store:    s,
		posts:    posts,
		reps:     reps,
		engine:   engine,
		alertMgr: alertMgr,
		opts:     opts,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Run syncs and detects once, then follows the cron specs until ctx is
// cancelled. Running jobs are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.opts.SyncSpec, func() { s.syncJob(ctx) }); err != nil {
		return fmt.Errorf("sync schedule %q: %w", s.opts.SyncSpec, err)
	}
	if _, err := c.AddFunc(s.opts.TrendingSpec, func() { s.trendingJob(ctx) }); err != nil {
		return fmt.Errorf("trending schedule %q: %w", s.opts.TrendingSpec, err)
	}

	s.logger.Info("initial sync")
	s.syncJob(ctx)
	s.logger.Info("initial trending detection")
	s.trendingJob(ctx)

	c.Start()
	s.logger.Info("running", "sync", s.opts.SyncSpec, "trending", s.opts.TrendingSpec)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("stopped")
	return ctx.Err()
}

func (s *Scheduler) syncJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	run, err := s.SyncPosts(ctx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return
	}
	s.logger.Info("sync done", "run", run.ID, "from", run.FromID, "to", run.ToID, "fetched", run.Fetched, "skipped", run.Skipped)
}

func (s *Scheduler) trendingJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	alerted, err := s.DetectTrending(ctx)
	if err != nil {
		s.logger.Error("trending detection failed", "error", err)
		return
	}
	if len(alerted) > 0 {
		s.logger.Info("trending alert sent", "posts", len(alerted), "destinations", s.alertMgr.Names())
	}
}

// SyncPosts copies posts above the highest indexed id into the store,
// re-reading the newest RefreshRecent posts, and snapshots the reputation of
// every author seen. Malformed posts are counted as skipped.
func (s *Scheduler) SyncPosts(ctx context.Context) (*store.SyncRun, error) {
	maxID, err := s.store.MaxPostID(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.posts.TotalPosts(ctx)
	if err != nil {
		return nil, err
	}

	from := maxID + 1 - min(maxID, s.opts.RefreshRecent)

	run, err := s.store.StartSyncRun(ctx, from, total)
	if err != nil {
		return nil, err
	}

	res, err := s.posts.FetchPosts(ctx, from, total)
	if err == nil {
		err = s.store.UpsertPosts(ctx, res.Posts)
	}
	run.Fetched = len(res.Posts)
	run.Skipped = len(res.Skipped)
	if err != nil {
		run.Error = err.Error()
	}
	if ferr := s.store.FinishSyncRun(context.WithoutCancel(ctx), run); ferr != nil {
		s.logger.Warn("could not record sync run", "run", run.ID, "error", ferr)
	}
	if err != nil {
		return run, fmt.Errorf("sync run %s: %w", run.ID, err)
	}

	if authors := feed.Authors(res.Posts); len(authors) > 0 {
		for author, score := range s.reps.Resolve(ctx, authors) {
			if err := s.store.AddReputationSnapshot(ctx, author, score); err != nil {
				s.logger.Warn("reputation snapshot failed", "author", author, "error", err)
			}
		}
	}
	return run, nil
}

// DetectTrending builds the trending feed from the index and alerts on posts
// that have not been alerted before. It returns the posts that were alerted.
func (s *Scheduler) DetectTrending(ctx context.Context) ([]rank.ScoredPost, error) {
	if !s.alertMgr.HasNotifiers() {
		return nil, nil
	}

	window := s.opts.TrendingWindow
	posts, err := s.store.ListPosts(ctx, store.ListOpts{Since: s.now().Add(-window)})
	if err != nil {
		return nil, err
	}
	trending, err := s.engine.BuildVariant(ctx, rank.Request{
		Variant:        rank.VariantTrending,
		Posts:          posts,
		TrendingWindow: window,
	})
	if err != nil {
		return nil, err
	}
	if len(trending) == 0 {
		return nil, nil
	}

	ids := make([]uint64, len(trending))
	for i, sp := range trending {
		ids[i] = sp.ID
	}
	seen, err := s.store.AlertedPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	var fresh []rank.ScoredPost
	for _, sp := range trending {
		if !seen[sp.ID] {
			fresh = append(fresh, sp)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	n := &alert.Notification{
		Title: fmt.Sprintf("%d new trending posts", len(fresh)),
		Body:  fmt.Sprintf("Most engaging unflagged posts of the last %s", window),
		URL:   s.opts.FeedURL,
		Score: fresh[0].TrendingScore,
		Posts: fresh,
	}
	if len(fresh) == 1 {
		n.Title = "New trending post"
	}
	if err := s.alertMgr.Broadcast(ctx, n); err != nil {
		return nil, fmt.Errorf("broadcast trending: %w", err)
	}

	for _, sp := range fresh {
		if err := s.store.MarkAlerted(ctx, sp.ID, sp.TrendingScore); err != nil {
			s.logger.Warn("mark alerted failed", "post", sp.ID, "error", err)
		}
	}
	return fresh, nil
}
