package motion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/emergent/pkg/config"
	"github.com/driftline/emergent/pkg/core"
)

func testTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(config.DefaultConfig().Tracker)
}

func track(t *testing.T, tr *Tracker, event map[string]interface{}) *core.MotionVector {
	t.Helper()
	v, err := tr.Track(context.Background(), event)
	require.NoError(t, err)
	return v
}

func TestTimestampsNeverGoBackward(t *testing.T) {
	// Ten events sharing one timestamp still produce a strictly increasing
	// recorded sequence.
	tr := testTracker(t)
	frozen := time.Now()

	for i := 0; i < 10; i++ {
		track(t, tr, map[string]interface{}{"action": "edit", "timestamp": frozen})
	}

	snapshots := tr.Snapshots()
	require.Len(t, snapshots, 10)
	for i := 1; i < len(snapshots); i++ {
		assert.True(t, snapshots[i].Timestamp.After(snapshots[i-1].Timestamp),
			"snapshot %d does not advance past snapshot %d", i, i-1)
	}
}

func TestTimestampRewindIsCorrected(t *testing.T) {
	tr := testTracker(t)
	base := time.Now()

	track(t, tr, map[string]interface{}{"action": "edit", "timestamp": base})
	v := track(t, tr, map[string]interface{}{"action": "edit", "timestamp": base.Add(-time.Hour)})

	assert.True(t, v.Timestamp.After(base))
	assert.Equal(t, v.Timestamp, tr.LastTimestamp())
}

func TestDirectionExtraction(t *testing.T) {
	cases := []struct {
		action string
		want   core.Direction
	}{
		{"search", core.DirectionExploration},
		{"debug", core.DirectionInvestigation},
		{"edit", core.DirectionExecution},
		{"summarize", core.DirectionSynthesis},
		{"review", core.DirectionReflection},
		{"switch", core.DirectionTransition},
		{"reading", core.DirectionInvestigation},
		// Contains both "debug" and "start"; precedence is fixed, so
		// investigation always wins.
		{"start_debugging", core.DirectionInvestigation},
		{"frobnicate", core.DirectionUnknown},
		{"", core.DirectionUnknown},
	}
	for _, tc := range cases {
		t.Run("action "+tc.action, func(t *testing.T) {
			tr := testTracker(t)
			v := track(t, tr, map[string]interface{}{"action": tc.action})
			assert.Equal(t, tc.want, v.Direction)
		})
	}
}

func TestTopicExtraction(t *testing.T) {
	tr := testTracker(t)

	track(t, tr, map[string]interface{}{
		"action":  "search",
		"topic":   "Auth",
		"content": "refactor the billing pipeline",
	})
	track(t, tr, map[string]interface{}{
		"action": "search",
		"topic":  "auth",
	})

	topics := tr.Topics()
	assert.Contains(t, topics, "auth")
	assert.Contains(t, topics, "refactor")
	assert.Contains(t, topics, "billing")
	assert.Contains(t, topics, "pipeline")
	assert.NotContains(t, topics, "the")

	count := 0
	for _, topic := range topics {
		if topic == "auth" {
			count++
		}
	}
	assert.Equal(t, 1, count, "topics deduplicate")
}

func TestTopicCapacityBounded(t *testing.T) {
	cfg := config.DefaultConfig().Tracker
	cfg.TopicCapacity = 3
	tr := NewTracker(cfg)

	for _, topic := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		track(t, tr, map[string]interface{}{"action": "search", "topic": topic})
	}

	topics := tr.Topics()
	assert.Equal(t, []string{"charlie", "delta", "echo"}, topics)
}

func TestVectorDetailNamesLatestTopic(t *testing.T) {
	tr := testTracker(t)
	v := track(t, tr, map[string]interface{}{"action": "debug", "topic": "checkout"})
	assert.Equal(t, "investigation around checkout", v.Detail)

	bare := testTracker(t)
	v = track(t, bare, map[string]interface{}{"action": "debug"})
	assert.Equal(t, "investigation", v.Detail)
}

func TestMomentumReflectsConsistency(t *testing.T) {
	steady := testTracker(t)
	var steadyVec *core.MotionVector
	for i := 0; i < 10; i++ {
		steadyVec = track(t, steady, map[string]interface{}{"action": "edit"})
	}

	scattered := testTracker(t)
	var scatteredVec *core.MotionVector
	actions := []string{"edit", "search", "review", "switch", "debug"}
	for i := 0; i < 10; i++ {
		scatteredVec = track(t, scattered, map[string]interface{}{"action": actions[i%len(actions)]})
	}

	assert.Greater(t, steadyVec.Momentum, scatteredVec.Momentum)
	assert.InDelta(t, 1.0, steadyVec.Momentum, 1e-9)
}

func TestDriftSignalsDirectionChange(t *testing.T) {
	turning := testTracker(t)
	var turningVec *core.MotionVector
	for i := 0; i < 10; i++ {
		turningVec = track(t, turning, map[string]interface{}{"action": "search"})
	}
	for i := 0; i < 10; i++ {
		turningVec = track(t, turning, map[string]interface{}{"action": "edit"})
	}
	assert.Greater(t, turningVec.Drift, 0.6)

	settled := testTracker(t)
	var settledVec *core.MotionVector
	for i := 0; i < 20; i++ {
		settledVec = track(t, settled, map[string]interface{}{"action": "edit"})
	}
	assert.Less(t, settledVec.Drift, 0.0)
}

func TestMagnitudeTracksEventRate(t *testing.T) {
	base := time.Now()

	fast := testTracker(t)
	var fastVec *core.MotionVector
	for i := 0; i < 5; i++ {
		fastVec = track(t, fast, map[string]interface{}{
			"action":    "edit",
			"timestamp": base.Add(time.Duration(i) * 100 * time.Millisecond),
		})
	}

	slow := testTracker(t)
	var slowVec *core.MotionVector
	for i := 0; i < 5; i++ {
		slowVec = track(t, slow, map[string]interface{}{
			"action":    "edit",
			"timestamp": base.Add(time.Duration(i) * time.Minute),
		})
	}

	assert.InDelta(t, 1.0, fastVec.Magnitude, 1e-9)
	assert.InDelta(t, magnitudeFloor, slowVec.Magnitude, 1e-9)
}

func TestSnapshotHistoryBounded(t *testing.T) {
	cfg := config.DefaultConfig().Tracker
	cfg.SnapshotHistory = 4
	tr := NewTracker(cfg)

	for i := 0; i < 10; i++ {
		track(t, tr, map[string]interface{}{"action": "edit"})
	}

	assert.Len(t, tr.Snapshots(), 4)
}

func TestVectorHistoryCapped(t *testing.T) {
	tr := testTracker(t)
	var v *core.MotionVector
	for i := 0; i < 15; i++ {
		v = track(t, tr, map[string]interface{}{"action": "edit"})
	}
	assert.LessOrEqual(t, len(v.History), 10)
}

func TestTrackCanceledContext(t *testing.T) {
	tr := testTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Track(ctx, map[string]interface{}{"action": "edit"})
	assert.Error(t, err)
}

func TestTrackWithoutTimestampUsesWallClock(t *testing.T) {
	tr := testTracker(t)
	before := time.Now()
	v := track(t, tr, map[string]interface{}{"action": "edit"})
	assert.False(t, v.Timestamp.Before(before))
}
