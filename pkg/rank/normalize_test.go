package rank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Unix(1_700_000_000, 0)

func ago(d time.Duration) int64 {
	return testNow.Add(-d).Unix()
}

func TestNormalizeReputation(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeReputation(0))
	assert.Equal(t, 1.0, NormalizeReputation(100))
	assert.InDelta(t, 0.85539, NormalizeReputation(80), 1e-5)
	assert.Equal(t, 1.0, NormalizeReputation(500))
	assert.Equal(t, 0.0, NormalizeReputation(-3))

	prev := -1.0
	for s := 0; s <= 100; s++ {
		v := NormalizeReputation(s)
		assert.GreaterOrEqual(t, v, prev, "score %d", s)
		prev = v
	}
}

func TestNormalizeRecency_Branches(t *testing.T) {
	assert.Equal(t, 1.0, NormalizeRecency(ago(0), testNow))
	assert.Equal(t, 1.0, NormalizeRecency(ago(30*time.Minute), testNow))
	assert.Equal(t, 1.0, NormalizeRecency(ago(time.Hour), testNow))

	assert.InDelta(t, math.Exp(-2.0/24), NormalizeRecency(ago(2*time.Hour), testNow), 1e-12)
	assert.InDelta(t, math.Exp(-1), NormalizeRecency(ago(24*time.Hour), testNow), 1e-12)
	assert.InDelta(t, math.Exp(-48.0/168)*0.5, NormalizeRecency(ago(48*time.Hour), testNow), 1e-12)

	// Future timestamps count as brand new.
	assert.Equal(t, 1.0, NormalizeRecency(testNow.Add(time.Hour).Unix(), testNow))
}

func TestNormalizeRecency_MonotoneWithinBranch(t *testing.T) {
	check := func(from, to time.Duration) {
		prev := math.Inf(1)
		for age := from; age <= to; age += 10 * time.Minute {
			v := NormalizeRecency(ago(age), testNow)
			assert.LessOrEqual(t, v, prev, "age %s", age)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			prev = v
		}
	}
	check(time.Hour+time.Minute, 24*time.Hour)
	check(24*time.Hour+time.Minute, 30*24*time.Hour)
}

func TestNormalizeRecency_JumpsAtOneDay(t *testing.T) {
	atDay := NormalizeRecency(ago(24*time.Hour), testNow)
	pastDay := NormalizeRecency(ago(24*time.Hour+time.Second), testNow)
	assert.Greater(t, pastDay, atDay)
	assert.InDelta(t, 0.433, pastDay, 1e-3)
}

func TestNormalizeEngagement(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeEngagement(0, 0))
	assert.InDelta(t, math.Log(21)/math.Log(101), NormalizeEngagement(10, 5), 1e-12)
	assert.Equal(t, 1.0, NormalizeEngagement(100, 0))
	assert.Equal(t, 1.0, NormalizeEngagement(10_000, 10_000))

	// A reply is worth two likes.
	assert.Equal(t, NormalizeEngagement(4, 0), NormalizeEngagement(0, 2))

	prev := 0.0
	for likes := uint64(0); likes < 200; likes++ {
		v := NormalizeEngagement(likes, 0)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestNormalizeSafety(t *testing.T) {
	assert.Equal(t, 1.0, NormalizeSafety(false))
	assert.Equal(t, 0.0, NormalizeSafety(true))
}
