package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/rank"
	"github.com/gorilla/feeds"
)

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// buildAtom renders posts as an Atom 1.0 feed. Entry order follows posts.
func buildAtom(base string, variant rank.Variant, posts []rank.ScoredPost, now time.Time) *feeds.AtomFeed {
	self := fmt.Sprintf("%s/api/v1/feeds/%s.atom", base, variant)
	f := &feeds.Feed{
		Title:   fmt.Sprintf("ledgerfeed: %s", variant),
		Link:    &feeds.Link{Href: self, Rel: "self", Type: "application/atom+xml"},
		Id:      self,
		Updated: now.UTC(),
	}
	for _, p := range posts {
		created := p.CreatedAt()
		f.Items = append(f.Items, &feeds.Item{
			Id:          fmt.Sprintf("urn:ledgerfeed:post:%d", p.ID),
			Title:       fmt.Sprintf("Post #%d", p.ID),
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/api/v1/posts/%d", base, p.ID)},
			Author:      &feeds.Author{Name: p.Author.String()},
			Description: entrySummary(variant, p),
			Content:     p.Content,
			Created:     created,
			Updated:     created,
		})
	}

	af := (&feeds.Atom{Feed: f}).AtomFeed()
	af.Id = self
	// Post bodies are plain text, never markup.
	for _, e := range af.Entries {
		if e.Content != nil {
			e.Content.Type = "text"
		}
		if e.Summary != nil {
			e.Summary.Type = "text"
		}
	}
	return af
}

// entrySummary lists what the variant knows about a post. Score and tier
// only appear for variants that compute them.
func entrySummary(variant rank.Variant, p rank.ScoredPost) string {
	parts := []string{fmt.Sprintf("likes %d", p.Likes), fmt.Sprintf("replies %d", p.Replies)}
	if variant.HasReputation() {
		parts = append(parts, fmt.Sprintf("reputation %d (%s)", p.Reputation, rank.AuthorTier(p)))
	}
	if score, ok := variant.Score(p); ok {
		parts = append(parts, fmt.Sprintf("score %.2f", score))
	}
	return strings.Join(parts, ", ")
}

func (s *Server) writeAtom(w http.ResponseWriter, r *http.Request, variant rank.Variant, posts []rank.ScoredPost) {
	out, err := feeds.ToXML(buildAtom(baseURL(r), variant, posts, time.Now()))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}
