package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
)

// Reputation reads scores and tiers from the reputation contract.
type Reputation struct {
	caller  Caller
	address feed.Address
}

// NewReputation binds the reputation contract at address.
func NewReputation(caller Caller, address feed.Address) *Reputation {
	return &Reputation{caller: caller, address: address}
}

// ReputationScore returns the raw score of author.
func (r *Reputation) ReputationScore(ctx context.Context, author feed.Address) (int, error) {
	return r.readUint(ctx, "getReputationScore", selReputationScore, author)
}

// UserTier returns the tier index the contract assigns to user.
func (r *Reputation) UserTier(ctx context.Context, user feed.Address) (int, error) {
	return r.readUint(ctx, "getUserTier", selUserTier, user)
}

func (r *Reputation) readUint(ctx context.Context, name string, sel [4]byte, addr feed.Address) (int, error) {
	out, err := r.caller.EthCall(ctx, r.address, encodeCall(sel, EncodeAddress(addr)))
	if err != nil {
		return 0, fmt.Errorf("%s(%s): %w", name, addr, err)
	}
	w, err := word(out, 0)
	if err != nil {
		decodeFailures.WithLabelValues(name).Inc()
		return 0, fmt.Errorf("%s(%s): %w", name, addr, err)
	}
	v, err := DecodeUint(w)
	if err != nil {
		decodeFailures.WithLabelValues(name).Inc()
		return 0, fmt.Errorf("%s(%s): %w", name, addr, err)
	}
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	return int(v), nil
}
