package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/elonfeng/ledgerfeed/pkg/rank"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Score float64           `json:"score"`
	Posts []rank.ScoredPost `json:"posts"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Names lists the configured destinations.
func (m *Manager) Names() []string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases notifiers that hold connections.
func (m *Manager) Close() error {
	var errs []error
	for _, notifier := range m.notifiers {
		if c, ok := notifier.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

const maxListed = 5

// topPosts returns at most maxListed posts of n.
func topPosts(n *Notification) []rank.ScoredPost {
	return n.Posts[:min(len(n.Posts), maxListed)]
}

// snippet shortens post content to at most limit runes for chat previews.
func snippet(content string, limit int) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit-1]) + "…"
}

// shortAddress renders 0x1234…abcd.
func shortAddress(a fmt.Stringer) string {
	s := a.String()
	if len(s) < 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
