package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/ledgerfeed/internal/store"
	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/rank"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
	"github.com/go-chi/chi/v5"
)

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (s *Server) handleVariants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  rank.Variants,
		"count": len(rank.Variants),
	})
}

// handleFeed serves GET /api/v1/feeds/{variant}. A ".atom" suffix on the
// variant switches the response to an Atom document.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "variant")
	atom := strings.HasSuffix(name, ".atom")
	name = strings.TrimSuffix(name, ".atom")

	variant, err := rank.ParseVariant(name)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	req := rank.Request{
		Variant:       variant,
		WithBreakdown: q.Get("explain") == "true",
	}
	if v := q.Get("viewer"); v != "" {
		addr, err := feed.ParseAddress(v)
		if err != nil {
			writeError(w, err)
			return
		}
		req.ViewerAddress = addr
	}
	if v := q.Get("tier"); v != "" {
		tier, err := reputation.ParseTier(v)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		req.Viewer = &tier
	}
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			badRequest(w, "invalid window %q", v)
			return
		}
		req.TrendingWindow = d
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit %q", v)
			return
		}
		limit = n
	}

	req.Posts, err = s.store.ListPosts(r.Context(), store.ListOpts{})
	if err != nil {
		writeError(w, err)
		return
	}
	posts, err := s.engine.BuildVariant(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}

	if atom {
		s.writeAtom(w, r, variant, posts)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"variant":     variant,
		"data":        posts,
		"count":       len(posts),
		"weights":     s.engine.Weights(),
		"generatedAt": time.Now().UTC(),
	})
}

func (s *Server) postFromURL(w http.ResponseWriter, r *http.Request) (*feed.Post, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid post id %q", chi.URLParam(r, "id"))
		return nil, false
	}
	p, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return p, true
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.postFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	p, ok := s.postFromURL(w, r)
	if !ok {
		return
	}
	b, err := s.engine.Explain(r.Context(), *p, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Weights())
}

func (s *Server) handlePutWeights(w http.ResponseWriter, r *http.Request) {
	var weights rank.Weights
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&weights); err != nil {
		badRequest(w, "invalid weights: %v", err)
		return
	}
	if err := s.engine.UpdateWeights(weights); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   err.Error(),
			"weights": s.engine.Weights(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Weights())
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	addr, err := feed.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	score := s.reps.Score(r.Context(), addr)
	tier := reputation.TierFromScore(score)

	resp := map[string]any{
		"address":          addr,
		"score":            score,
		"tier":             tier.String(),
		"nextTierProgress": reputation.NextTierProgress(score),
	}
	if last, err := s.store.LatestReputation(r.Context(), addr); err == nil {
		resp["lastSnapshot"] = last
		resp["change"] = score - last.Score
	}
	history, err := s.store.ReputationHistory(r.Context(), addr, time.Now().Add(-30*24*time.Hour))
	if err == nil {
		resp["history"] = history
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sync is not configured"})
		return
	}
	run, err := s.syncer.SyncPosts(r.Context())
	if err != nil {
		resp := map[string]any{"error": err.Error()}
		if run != nil {
			resp["run"] = run
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
