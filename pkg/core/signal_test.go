package core

import (
	goerrors "errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/emergent/pkg/errors"
)

func TestNewSignalClampsInputs(t *testing.T) {
	s := NewSignal(SignalCorrelation, "search co-occurs with auth", 1.7, -0.3, nil)

	assert.Equal(t, 1.0, s.Confidence)
	assert.Equal(t, 0.0, s.Salience)
	assert.Equal(t, 1, s.EvidenceCount)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.FirstSeen.IsZero())
}

func TestNewSignalInvalidTypeFallsBack(t *testing.T) {
	s := NewSignal(SignalType("bogus"), "odd", 0.5, 0.5, nil)
	assert.Equal(t, SignalDeviation, s.Type)
}

func TestReinforce(t *testing.T) {
	s := NewSignal(SignalSequence, "search then read", 0.4, 0.4, nil)

	s.Reinforce(0.2, "evt-1")
	assert.InDelta(t, 0.6, s.Salience, 1e-9)
	assert.InDelta(t, 0.5, s.Confidence, 1e-9)
	assert.Equal(t, 2, s.EvidenceCount)
	assert.Equal(t, []string{"evt-1"}, s.EventIDs)

	// Duplicate event ids are not recorded twice.
	s.Reinforce(0.1, "evt-1")
	assert.Equal(t, []string{"evt-1"}, s.EventIDs)
	assert.Equal(t, 3, s.EvidenceCount)
}

func TestReinforceCapsEventTrail(t *testing.T) {
	s := NewSignal(SignalCluster, "burst of search", 0.5, 0.5, nil)
	for i := 0; i < 150; i++ {
		s.Reinforce(0.001, fakeEventID(i))
	}
	assert.Len(t, s.EventIDs, 100)
}

func fakeEventID(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i%10)) + string(rune('A'+(i/10)%26))
}

func TestEffectiveSalience(t *testing.T) {
	// salience=0.5, decay_rate=0.1, 5 hours stale => 0.5 * (1 - 0.1*5) = 0.25
	s := NewSignal(SignalRecurrence, "auth lookup recurs", 0.8, 0.5, nil)
	s.DecayRate = 0.1
	now := time.Now()
	s.LastSeen = now.Add(-5 * time.Hour)

	assert.InDelta(t, 0.25, s.EffectiveSalience(now), 1e-9)
}

func TestEffectiveSalienceFloorsAtZero(t *testing.T) {
	s := NewSignal(SignalRecurrence, "old pattern", 0.8, 0.9, nil)
	s.DecayRate = 0.5
	now := time.Now()
	s.LastSeen = now.Add(-10 * time.Hour)

	assert.Equal(t, 0.0, s.EffectiveSalience(now))
}

func TestDecayMonotonic(t *testing.T) {
	s := NewSignal(SignalCorrelation, "pair", 0.6, 0.7, nil)
	now := time.Now()

	for _, factor := range []float64{0, 0.01, 0.3, 0.9, 1, 5} {
		before := s.EffectiveSalience(now)
		s.Decay(factor)
		assert.LessOrEqual(t, s.EffectiveSalience(now), before, "factor %v", factor)
	}
}

func TestDecayZeroIsIdempotent(t *testing.T) {
	s := NewSignal(SignalCorrelation, "pair", 0.6, 0.7, nil)
	before := s.Salience
	s.Decay(0)
	assert.InDelta(t, before, s.Salience, 1e-12)
}

func TestRandomMutationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewSignal(SignalDeviation, "anomalous burst", 0.5, 0.5, nil)

	for i := 0; i < 1000; i++ {
		if rng.Intn(2) == 0 {
			s.Reinforce(rng.Float64()*2-0.5, "")
		} else {
			s.Decay(rng.Float64()*2 - 0.5)
		}
		require.GreaterOrEqual(t, s.Confidence, 0.0)
		require.LessOrEqual(t, s.Confidence, 1.0)
		require.GreaterOrEqual(t, s.Salience, 0.0)
		require.LessOrEqual(t, s.Salience, 1.0)
		require.GreaterOrEqual(t, s.DecayRate, 0.0)
		require.LessOrEqual(t, s.DecayRate, 1.0)
		require.GreaterOrEqual(t, s.EvidenceCount, 1)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	t.Run("too stale", func(t *testing.T) {
		s := NewSignal(SignalCluster, "stale cluster", 0.9, 0.9, nil)
		s.DecayRate = 0
		s.LastSeen = now.Add(-25 * time.Hour)
		assert.True(t, s.IsExpired(now))
	})

	t.Run("effectively invisible", func(t *testing.T) {
		s := NewSignal(SignalCluster, "faded", 0.9, 0.04, nil)
		assert.True(t, s.IsExpired(now))
	})

	t.Run("live", func(t *testing.T) {
		s := NewSignal(SignalCluster, "live", 0.9, 0.8, nil)
		assert.False(t, s.IsExpired(now))
	})
}

func TestMerge(t *testing.T) {
	a := NewSignal(SignalCorrelation, "search+auth", 0.8, 0.6, map[string]interface{}{"pair": "search|auth"})
	a.EvidenceCount = 3
	a.EventIDs = []string{"e1", "e2"}

	b := NewSignal(SignalCorrelation, "search+auth", 0.4, 0.9, map[string]interface{}{"extra": true})
	b.EvidenceCount = 1
	b.EventIDs = []string{"e2", "e3"}
	b.FirstSeen = a.FirstSeen.Add(-time.Hour)

	require.NoError(t, a.Merge(b))

	// (0.8*3 + 0.4*1) / 4 = 0.7
	assert.InDelta(t, 0.7, a.Confidence, 1e-9)
	assert.InDelta(t, 0.9, a.Salience, 1e-9)
	assert.Equal(t, 4, a.EvidenceCount)
	assert.ElementsMatch(t, []string{"e1", "e2", "e3"}, a.EventIDs)
	assert.Equal(t, "search|auth", a.Metadata["pair"])
	assert.Equal(t, true, a.Metadata["extra"])
	assert.Equal(t, b.FirstSeen, a.FirstSeen)
}

func TestMergeTypeMismatchIsTypedError(t *testing.T) {
	a := NewSignal(SignalCorrelation, "pair", 0.5, 0.5, nil)
	b := NewSignal(SignalSequence, "run", 0.5, 0.5, nil)

	err := a.Merge(b)
	require.Error(t, err)

	var e *errors.Error
	require.True(t, goerrors.As(err, &e))
	assert.Equal(t, errors.TypeMismatch, e.Code())
}

func TestMatchScore(t *testing.T) {
	s := NewSignal(SignalCorrelation, "search co-occurs with auth", 0.9, 0.8, map[string]interface{}{"topic": "auth"})

	t.Run("substring and word overlap", func(t *testing.T) {
		assert.Greater(t, s.MatchScore("auth"), 0.3)
	})

	t.Run("type name match", func(t *testing.T) {
		assert.Greater(t, s.MatchScore("correlation"), 0.0)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Equal(t, 0.0, s.MatchScore("zebra"))
	})

	t.Run("empty query", func(t *testing.T) {
		assert.Equal(t, 0.0, s.MatchScore("  "))
	})

	t.Run("scaled by effective salience", func(t *testing.T) {
		faded := NewSignal(SignalCorrelation, "search co-occurs with auth", 0.9, 0.8, nil)
		faded.DecayRate = 0.2
		faded.LastSeen = time.Now().Add(-4 * time.Hour)
		assert.Less(t, faded.MatchScore("auth"), s.MatchScore("auth"))
	})
}

func TestSignalRoundTrip(t *testing.T) {
	s := NewSignal(SignalSaturation, "topic saturated", 0.62, 0.47, map[string]interface{}{"topic": "auth"})
	s.Reinforce(0.05, "evt-9")

	rebuilt := SignalFromDict(s.ToDict())

	assert.Equal(t, s.ID, rebuilt.ID)
	assert.Equal(t, s.Type, rebuilt.Type)
	assert.Equal(t, s.Description, rebuilt.Description)
	assert.InDelta(t, s.Confidence, rebuilt.Confidence, 0.001)
	assert.InDelta(t, s.Salience, rebuilt.Salience, 0.001)
	assert.InDelta(t, s.DecayRate, rebuilt.DecayRate, 0.001)
	assert.Equal(t, s.EvidenceCount, rebuilt.EvidenceCount)
}
