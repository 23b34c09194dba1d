package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"golang.org/x/crypto/sha3"
)

// ErrMalformed is returned for contract results that do not match the
// expected ABI layout.
var ErrMalformed = errors.New("malformed contract result")

const wordSize = 32

// postHeadWords is the number of static words in an encoded post tuple:
// id, author, content offset, flagged, timestamp, likes, replies.
const postHeadWords = 7

// Selector returns the 4-byte function selector of an ABI signature such as
// "getPost(uint256)".
func Selector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var sel [4]byte
	copy(sel[:], h.Sum(nil))
	return sel
}

var (
	selTotalPosts      = Selector("totalPosts()")
	selGetPost         = Selector("getPost(uint256)")
	selReputationScore = Selector("getReputationScore(address)")
	selUserTier        = Selector("getUserTier(address)")
)

// encodeCall packs a selector and its static arguments.
func encodeCall(sel [4]byte, args ...[]byte) []byte {
	out := make([]byte, 0, 4+len(args)*wordSize)
	out = append(out, sel[:]...)
	for _, a := range args {
		out = append(out, a...)
	}
	return out
}

// EncodeUint encodes v as a uint256 word.
func EncodeUint(v uint64) []byte {
	w := make([]byte, wordSize)
	binary.BigEndian.PutUint64(w[wordSize-8:], v)
	return w
}

// EncodeAddress left-pads an address into a word.
func EncodeAddress(a feed.Address) []byte {
	w := make([]byte, wordSize)
	copy(w[wordSize-20:], a.Bytes())
	return w
}

func word(data []byte, i int) ([]byte, error) {
	start := i * wordSize
	if start < 0 || start+wordSize > len(data) {
		return nil, fmt.Errorf("%w: word %d out of range (%d bytes)", ErrMalformed, i, len(data))
	}
	return data[start : start+wordSize], nil
}

func allZero(b []byte) bool {
	return bytes.Count(b, []byte{0}) == len(b)
}

// DecodeUint reads a uint256 word that must fit in 64 bits.
func DecodeUint(w []byte) (uint64, error) {
	if len(w) != wordSize {
		return 0, fmt.Errorf("%w: word is %d bytes", ErrMalformed, len(w))
	}
	if !allZero(w[:wordSize-8]) {
		return 0, fmt.Errorf("%w: integer overflows 64 bits", ErrMalformed)
	}
	return binary.BigEndian.Uint64(w[wordSize-8:]), nil
}

// DecodeAddress reads an address word; the upper 12 bytes must be zero.
func DecodeAddress(w []byte) (feed.Address, error) {
	if len(w) != wordSize || !allZero(w[:wordSize-20]) {
		return "", fmt.Errorf("%w: not an address word", ErrMalformed)
	}
	return feed.AddressFromBytes(w[wordSize-20:])
}

// DecodeBool reads a bool word, which must be exactly 0 or 1.
func DecodeBool(w []byte) (bool, error) {
	v, err := DecodeUint(w)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: bool word is %d", ErrMalformed, v)
}

// decodeString reads a length-prefixed string at offset. NUL padding is
// dropped.
func decodeString(data []byte, offset uint64) (string, error) {
	if offset%wordSize != 0 || offset > uint64(len(data)) || uint64(len(data))-offset < wordSize {
		return "", fmt.Errorf("%w: string offset %d out of range", ErrMalformed, offset)
	}
	n, err := DecodeUint(data[offset : offset+wordSize])
	if err != nil {
		return "", err
	}
	start := offset + wordSize
	if n > uint64(len(data))-start {
		return "", fmt.Errorf("%w: string length %d exceeds data", ErrMalformed, n)
	}
	raw := bytes.ReplaceAll(data[start:start+n], []byte{0}, nil)
	return string(raw), nil
}

// DecodePost decodes the result of getPost(uint256). Some nodes wrap the tuple
// in a leading 0x20 offset word. The wrapped layout is tried first and only
// accepted if every field validates; otherwise the data is decoded as a bare
// tuple, which keeps post 32 readable.
func DecodePost(data []byte) (feed.Post, error) {
	if w, err := word(data, 0); err == nil {
		if v, err := DecodeUint(w); err == nil && v == wordSize {
			if p, err := decodePostTuple(data[wordSize:]); err == nil {
				return p, nil
			}
		}
	}
	p, err := decodePostTuple(data)
	if err != nil {
		decodeFailures.WithLabelValues("getPost").Inc()
	}
	return p, err
}

func decodePostTuple(data []byte) (feed.Post, error) {
	if len(data) < postHeadWords*wordSize {
		return feed.Post{}, fmt.Errorf("%w: post tuple is %d bytes", ErrMalformed, len(data))
	}
	w := func(i int) []byte { return data[i*wordSize : (i+1)*wordSize] }

	id, err := DecodeUint(w(0))
	if err != nil {
		return feed.Post{}, fmt.Errorf("post id: %w", err)
	}
	author, err := DecodeAddress(w(1))
	if err != nil {
		return feed.Post{}, fmt.Errorf("post %d author: %w", id, err)
	}
	offset, err := DecodeUint(w(2))
	if err != nil {
		return feed.Post{}, fmt.Errorf("post %d content offset: %w", id, err)
	}
	if offset < postHeadWords*wordSize {
		return feed.Post{}, fmt.Errorf("%w: post %d content offset %d inside head", ErrMalformed, id, offset)
	}
	flagged, err := DecodeBool(w(3))
	if err != nil {
		return feed.Post{}, fmt.Errorf("post %d flagged: %w", id, err)
	}
	var nums [3]uint64
	for i := range nums {
		if nums[i], err = DecodeUint(w(4 + i)); err != nil {
			return feed.Post{}, fmt.Errorf("post %d word %d: %w", id, 4+i, err)
		}
	}
	timestamp, likes, replies := nums[0], nums[1], nums[2]
	if timestamp > 1<<62 {
		return feed.Post{}, fmt.Errorf("%w: post %d timestamp %d", ErrMalformed, id, timestamp)
	}
	content, err := decodeString(data, offset)
	if err != nil {
		return feed.Post{}, fmt.Errorf("post %d content: %w", id, err)
	}

	p, err := feed.NewPost(feed.PostInput{
		ID:        id,
		Author:    author.String(),
		Content:   content,
		Flagged:   flagged,
		Timestamp: int64(timestamp),
		Likes:     likes,
		Replies:   replies,
	})
	if err != nil {
		return feed.Post{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return p, nil
}
