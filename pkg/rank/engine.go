// Package rank turns ledger posts and author reputation into ordered feeds.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
)

// Resolver supplies reputation data to the engine.
type Resolver interface {
	Resolve(ctx context.Context, authors []feed.Address) map[feed.Address]int
	ViewerTier(ctx context.Context, viewer feed.Address) reputation.Tier
}

// Engine builds feed variants. The weight configuration is the only mutable
// state and can only be replaced through UpdateWeights.
type Engine struct {
	resolver       Resolver
	now            func() time.Time
	trendingWindow time.Duration
	trendingLimit  int
	logger         *slog.Logger

	mu      sync.RWMutex
	weights Weights
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTrendingWindow sets the default trending window.
func WithTrendingWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.trendingWindow = d
		}
	}
}

// WithTrendingLimit sets how many posts the trending view keeps.
func WithTrendingLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.trendingLimit = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with an initial weight configuration.
func NewEngine(resolver Resolver, weights Weights, opts ...Option) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		resolver:       resolver,
		now:            time.Now,
		trendingWindow: DefaultTrendingWindow,
		trendingLimit:  DefaultTrendingLimit,
		logger:         slog.Default(),
		weights:        weights,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "rank")
	return e, nil
}

// Weights returns the active weight configuration.
func (e *Engine) Weights() Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}

// UpdateWeights replaces the active configuration. Invalid weights are
// rejected and the previous configuration stays in effect.
func (e *Engine) UpdateWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	prev := e.weights
	e.weights = w
	e.mu.Unlock()

	e.logger.Info("ranking weights updated", "previous", prev, "current", w)
	return nil
}

// Request describes one feed build.
type Request struct {
	Variant Variant
	Posts   []feed.Post

	// Weights overrides the engine configuration for this request only.
	Weights *Weights

	// Viewer personalizes the feed for an explicit tier. When nil and
	// ViewerAddress is set, the viewer's tier is read from the ledger. With
	// neither, the personalized view equals the ranked view.
	Viewer        *reputation.Tier
	ViewerAddress feed.Address

	// TrendingWindow overrides the default window when positive.
	TrendingWindow time.Duration

	WithBreakdown bool
}

// BuildVariant produces the ordered posts of one variant. Input posts are
// never modified.
func (e *Engine) BuildVariant(ctx context.Context, req Request) ([]ScoredPost, error) {
	variant, err := ParseVariant(string(req.Variant))
	if err != nil {
		return nil, err
	}
	w := e.Weights()
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return nil, err
		}
		w = *req.Weights
	}

	start := time.Now()
	defer func() {
		variantBuilds.WithLabelValues(string(variant)).Inc()
		variantBuildDuration.WithLabelValues(string(variant)).Observe(time.Since(start).Seconds())
	}()

	if len(req.Posts) == 0 {
		return []ScoredPost{}, nil
	}
	now := e.now()

	switch variant {
	case VariantChronological:
		return Chronological(req.Posts), nil

	case VariantRanked:
		reps := e.resolver.Resolve(ctx, feed.Authors(req.Posts))
		return Rank(req.Posts, reps, w, now, req.WithBreakdown), nil

	case VariantPersonalized:
		reps := e.resolver.Resolve(ctx, feed.Authors(req.Posts))
		ranked := Rank(req.Posts, reps, w, now, req.WithBreakdown)
		viewer, ok := e.viewerTier(ctx, req)
		if !ok {
			return ranked, nil
		}
		return Personalize(ranked, viewer), nil

	case VariantTrending:
		window := e.trendingWindow
		if req.TrendingWindow > 0 {
			window = req.TrendingWindow
		}
		candidates := TrendingCandidates(req.Posts, now, window)
		reps := e.resolver.Resolve(ctx, feed.Authors(candidates))
		return Trending(candidates, reps, now, window, e.trendingLimit), nil

	case VariantHighQuality:
		reps := e.resolver.Resolve(ctx, feed.Authors(req.Posts))
		return HighQuality(req.Posts, reps), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
}

func (e *Engine) viewerTier(ctx context.Context, req Request) (reputation.Tier, bool) {
	if req.Viewer != nil {
		return *req.Viewer, true
	}
	if req.ViewerAddress != "" {
		return e.resolver.ViewerTier(ctx, req.ViewerAddress), true
	}
	return reputation.TierBronze, false
}

// Explain breaks down the ranking score of a single post. weights may be nil
// to use the active configuration.
func (e *Engine) Explain(ctx context.Context, post feed.Post, weights *Weights) (Breakdown, error) {
	w := e.Weights()
	if weights != nil {
		if err := weights.Validate(); err != nil {
			return Breakdown{}, err
		}
		w = *weights
	}
	reps := e.resolver.Resolve(ctx, []feed.Address{post.Author})
	return explain(post, reps[post.Author], w, e.now()), nil
}
