package rank

import (
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
)

const (
	sameOrHigherTierBoost = 1.10
	aspirationalBoost     = 1.20
)

// EstimateAuthorTier guesses an author's tier from a post's own ranking
// score. It does not read the author's real tier.
func EstimateAuthorTier(score float64) reputation.Tier {
	switch {
	case score >= 0.8:
		return reputation.TierPlatinum
	case score >= 0.6:
		return reputation.TierGold
	case score >= 0.4:
		return reputation.TierSilver
	}
	return reputation.TierBronze
}

// Personalize boosts posts for a viewer of the given tier and re-sorts them.
// Boosts are always applied to BaseScore, so personalizing an already
// personalized feed for another viewer does not compound.
func Personalize(posts []ScoredPost, viewer reputation.Tier) []ScoredPost {
	out := make([]ScoredPost, len(posts))
	for i, sp := range posts {
		boosted := sp.BaseScore
		authorTier := EstimateAuthorTier(sp.BaseScore)

		if authorTier >= viewer {
			boosted *= sameOrHigherTierBoost
		}
		if viewer <= reputation.TierSilver && authorTier >= reputation.TierGold {
			boosted *= aspirationalBoost
		}

		sp.RankingScore = boosted
		out[i] = sp
	}
	sortByScore(out, func(sp ScoredPost) float64 { return sp.RankingScore })
	return out
}
