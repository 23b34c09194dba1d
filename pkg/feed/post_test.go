package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	require.NoError(t, err)
	assert.Equal(t, Address("0xabcdef0123456789abcdef0123456789abcdef01"), addr)

	for _, bad := range []string{"", "0x123", "abcdef0123456789abcdef0123456789abcdef0123", "0xzzcdef0123456789abcdef0123456789abcdef01"} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestAddressBytesRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	raw[19] = 0xff
	addr, err := AddressFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, Address("0x00000000000000000000000000000000000000ff"), addr)
	assert.Equal(t, raw, addr.Bytes())

	_, err = AddressFromBytes(raw[:19])
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNewPost_Validation(t *testing.T) {
	p, err := NewPost(PostInput{
		ID:        7,
		Author:    "0x1111111111111111111111111111111111111111",
		Content:   "gm",
		Timestamp: 1700000000,
		Likes:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.ID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.CreatedAt())

	_, err = NewPost(PostInput{ID: 1, Author: "nobody"})
	assert.ErrorIs(t, err, ErrInvalidPost)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewPost(PostInput{ID: 2, Author: "0x1111111111111111111111111111111111111111", Content: "\xff\xfe"})
	assert.ErrorIs(t, err, ErrInvalidPost)
}

func TestAuthors_Dedup(t *testing.T) {
	a := Address("0x1111111111111111111111111111111111111111")
	b := Address("0x2222222222222222222222222222222222222222")
	posts := []Post{{ID: 1, Author: a}, {ID: 2, Author: b}, {ID: 3, Author: a}}

	assert.Equal(t, []Address{a, b}, Authors(posts))
	assert.Empty(t, Authors(nil))
}

func TestPostAge(t *testing.T) {
	now := time.Unix(1700003600, 0)
	p := Post{Timestamp: 1700000000}
	assert.Equal(t, time.Hour, p.Age(now))
}
