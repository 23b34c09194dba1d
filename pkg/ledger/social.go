package ledger

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"golang.org/x/sync/errgroup"
)

// Caller executes read-only contract calls.
type Caller interface {
	EthCall(ctx context.Context, to feed.Address, data []byte) ([]byte, error)
}

// Social reads posts from the social contract.
type Social struct {
	caller      Caller
	address     feed.Address
	concurrency int
	logger      *slog.Logger
}

// NewSocial binds the social contract at address. concurrency bounds parallel
// getPost calls; values below 1 mean 8.
func NewSocial(caller Caller, address feed.Address, concurrency int, logger *slog.Logger) *Social {
	if concurrency < 1 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Social{
		caller:      caller,
		address:     address,
		concurrency: concurrency,
		logger:      logger.With("component", "social", "contract", address),
	}
}

// TotalPosts returns the number of posts on the ledger. Post IDs run from 1 to
// this value.
func (s *Social) TotalPosts(ctx context.Context) (uint64, error) {
	out, err := s.caller.EthCall(ctx, s.address, encodeCall(selTotalPosts))
	if err != nil {
		return 0, fmt.Errorf("totalPosts: %w", err)
	}
	w, err := word(out, 0)
	if err != nil {
		decodeFailures.WithLabelValues("totalPosts").Inc()
		return 0, fmt.Errorf("totalPosts: %w", err)
	}
	n, err := DecodeUint(w)
	if err != nil {
		decodeFailures.WithLabelValues("totalPosts").Inc()
		return 0, fmt.Errorf("totalPosts: %w", err)
	}
	return n, nil
}

// GetPost reads a single post.
func (s *Social) GetPost(ctx context.Context, id uint64) (feed.Post, error) {
	out, err := s.caller.EthCall(ctx, s.address, encodeCall(selGetPost, EncodeUint(id)))
	if err != nil {
		return feed.Post{}, fmt.Errorf("getPost(%d): %w", id, err)
	}
	p, err := DecodePost(out)
	if err != nil {
		return feed.Post{}, fmt.Errorf("getPost(%d): %w", id, err)
	}
	return p, nil
}

// SkippedPost records a post that could not be read.
type SkippedPost struct {
	ID  uint64
	Err error
}

// FetchResult is the outcome of a range fetch.
type FetchResult struct {
	Posts   []feed.Post
	Skipped []SkippedPost
}

// FetchPosts reads posts from..to inclusive. Posts that fail to read or decode
// are logged and reported in Skipped; only context cancellation fails the
// whole fetch. Posts are returned in ID order.
func (s *Social) FetchPosts(ctx context.Context, from, to uint64) (FetchResult, error) {
	from = max(from, 1)
	if to < from {
		return FetchResult{}, nil
	}

	var (
		mu  sync.Mutex
		res FetchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for id := from; ; id++ {
		id := id
		g.Go(func() error {
			p, err := s.GetPost(gctx, id)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("skipping post", "id", id, "error", err)
				res.Skipped = append(res.Skipped, SkippedPost{ID: id, Err: err})
				return nil
			}
			res.Posts = append(res.Posts, p)
			return nil
		})
		// to may be the largest uint64, so the bound is checked before id++.
		if id == to {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return FetchResult{}, err
	}

	slices.SortFunc(res.Posts, func(a, b feed.Post) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(res.Skipped, func(a, b SkippedPost) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

// FetchAll reads every post on the ledger.
func (s *Social) FetchAll(ctx context.Context) (FetchResult, error) {
	total, err := s.TotalPosts(ctx)
	if err != nil {
		return FetchResult{}, err
	}
	return s.FetchPosts(ctx, 1, total)
}
