// Package reputation resolves per-author trust scores from the ledger,
// caching and coalescing reads so a ranking batch costs at most one read per
// distinct author.
package reputation

import (
	"context"
	"log/slog"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Source is the read-only reputation contract.
type Source interface {
	ReputationScore(ctx context.Context, author feed.Address) (int, error)
	UserTier(ctx context.Context, author feed.Address) (int, error)
}

const defaultConcurrency = 16

// Resolver fetches reputation scores, failing safe to zero.
type Resolver struct {
	source      Source
	cache       Cache
	concurrency int
	logger      *slog.Logger
	group       singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables caching of successful reads.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithConcurrency bounds the number of in-flight reads per batch.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger used for failed reads.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over src.
func NewResolver(src Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:      src,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reputation")
	return r
}

// Resolve returns the score of every distinct author. Authors whose read
// fails map to 0; the batch itself never fails.
func (r *Resolver) Resolve(ctx context.Context, authors []feed.Address) map[feed.Address]int {
	distinct := make([]feed.Address, 0, len(authors))
	seen := make(map[feed.Address]bool, len(authors))
	for _, a := range authors {
		if !seen[a] {
			seen[a] = true
			distinct = append(distinct, a)
		}
	}

	scores := make([]int, len(distinct))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, author := range distinct {
		i, author := i, author
		g.Go(func() error {
			scores[i] = r.Score(ctx, author)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[feed.Address]int, len(distinct))
	for i, author := range distinct {
		out[author] = scores[i]
	}
	return out
}

// Score returns the reputation of a single author, or 0 if it cannot be read.
func (r *Resolver) Score(ctx context.Context, author feed.Address) int {
	if r.cache != nil {
		if score, ok := r.cache.Get(ctx, author); ok {
			cacheHits.Inc()
			return score
		}
		cacheMisses.Inc()
	}

	// The read is shared with other callers, so one caller going away must
	// not fail it for the rest.
	shared := context.WithoutCancel(ctx)
	v, err, coalesced := r.group.Do(string(author), func() (any, error) {
		return r.fetchScore(shared, author)
	})
	if coalesced {
		requestsCoalesced.Inc()
	}
	if err != nil {
		r.logger.Warn("reputation lookup failed, using 0", "author", author, "error", err)
		return 0
	}
	return v.(int)
}

func (r *Resolver) fetchScore(ctx context.Context, author feed.Address) (int, error) {
	start := time.Now()
	score, err := r.source.ReputationScore(ctx, author)
	lookupDuration.WithLabelValues("score").Observe(time.Since(start).Seconds())
	if err != nil {
		lookups.WithLabelValues("score", "error").Inc()
		return 0, err
	}
	lookups.WithLabelValues("score", "ok").Inc()

	score = min(max(score, 0), MaxScore)
	if r.cache != nil {
		r.cache.Set(ctx, author, score)
	}
	return score, nil
}

// ViewerTier reads the on-ledger tier of a viewer. A failed read is Bronze.
func (r *Resolver) ViewerTier(ctx context.Context, viewer feed.Address) Tier {
	start := time.Now()
	idx, err := r.source.UserTier(ctx, viewer)
	lookupDuration.WithLabelValues("tier").Observe(time.Since(start).Seconds())
	if err != nil {
		lookups.WithLabelValues("tier", "error").Inc()
		r.logger.Warn("tier lookup failed, using bronze", "viewer", viewer, "error", err)
		return TierBronze
	}
	lookups.WithLabelValues("tier", "ok").Inc()
	return TierFromIndex(idx)
}
