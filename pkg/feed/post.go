package feed

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidPost    = errors.New("invalid post")
)

// Address is a lower-cased, 0x-prefixed 20-byte account identifier.
type Address string

// ParseAddress validates s and returns its canonical lower-case form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// AddressFromBytes builds an Address from its 20 raw bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 20 {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
	return Address("0x" + hex.EncodeToString(b)), nil
}

// Bytes returns the 20 raw bytes of the address.
func (a Address) Bytes() []byte {
	b, _ := hex.DecodeString(strings.TrimPrefix(string(a), "0x"))
	return b
}

func (a Address) String() string { return string(a) }

// Post is a single ledger record. Likes and Replies change on the ledger over
// time; a Post value is a snapshot and is never mutated by this module.
type Post struct {
	ID        uint64  `json:"id" db:"id"`
	Author    Address `json:"author" db:"author"`
	Content   string  `json:"content" db:"content"`
	Flagged   bool    `json:"flagged" db:"flagged"`
	Timestamp int64   `json:"timestamp" db:"timestamp"`
	Likes     uint64  `json:"likes" db:"likes"`
	Replies   uint64  `json:"replies" db:"replies"`
}

// PostInput carries untrusted post fields before validation.
type PostInput struct {
	ID        uint64
	Author    string
	Content   string
	Flagged   bool
	Timestamp int64
	Likes     uint64
	Replies   uint64
}

// NewPost validates in and returns an immutable Post.
func NewPost(in PostInput) (Post, error) {
	author, err := ParseAddress(in.Author)
	if err != nil {
		return Post{}, fmt.Errorf("%w: post %d: %w", ErrInvalidPost, in.ID, err)
	}
	if !utf8.ValidString(in.Content) {
		return Post{}, fmt.Errorf("%w: post %d: content is not valid UTF-8", ErrInvalidPost, in.ID)
	}
	if in.Timestamp < 0 {
		return Post{}, fmt.Errorf("%w: post %d: negative timestamp", ErrInvalidPost, in.ID)
	}
	return Post{
		ID:        in.ID,
		Author:    author,
		Content:   in.Content,
		Flagged:   in.Flagged,
		Timestamp: in.Timestamp,
		Likes:     in.Likes,
		Replies:   in.Replies,
	}, nil
}

// CreatedAt returns the ledger-assigned creation time.
func (p Post) CreatedAt() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}

// Age returns how old the post is relative to now.
func (p Post) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(p.Timestamp, 0))
}

// Authors returns the distinct authors of posts in first-seen order.
func Authors(posts []Post) []Address {
	seen := make(map[Address]bool, len(posts))
	var out []Address
	for _, p := range posts {
		if seen[p.Author] {
			continue
		}
		seen[p.Author] = true
		out = append(out, p.Author)
	}
	return out
}
