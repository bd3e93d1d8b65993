package patterns

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/emergent/pkg/config"
	"github.com/driftline/emergent/pkg/core"
	"github.com/driftline/emergent/pkg/logging"
)

func testEngineConfig() config.EngineConfig {
	return config.DefaultConfig().Engine
}

func observeN(t *testing.T, e *Engine, n int, event map[string]interface{}) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, e.Observe(ctx, event))
	}
}

func TestCooccurrencePromotion(t *testing.T) {
	// Three search/auth observations with min_support=3, padded to the
	// evaluation boundary, must surface a correlation signal.
	e := New(testEngineConfig(), nil)

	observeN(t, e, 3, map[string]interface{}{"action": "search", "topic": "auth"})
	observeN(t, e, 7, map[string]interface{}{"action": "noop"})

	results := e.QueryEmergent("auth")
	require.NotEmpty(t, results)
	found := false
	for _, sig := range results {
		if sig.Type == core.SignalCorrelation {
			found = true
			assert.GreaterOrEqual(t, sig.Confidence, 0.5)
			assert.Contains(t, sig.Description, "auth")
		}
	}
	assert.True(t, found, "expected a correlation signal for auth")
}

func TestNoEvaluationBeforeBoundary(t *testing.T) {
	e := New(testEngineConfig(), nil)

	observeN(t, e, 9, map[string]interface{}{"action": "search", "topic": "auth"})

	assert.Empty(t, e.QueryEmergent("auth"))
	assert.Zero(t, e.GetStats().Emitted)
}

func TestSequenceDetection(t *testing.T) {
	e := New(testEngineConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		action := "edit"
		if i%2 == 1 {
			action = "test"
		}
		require.NoError(t, e.Observe(ctx, map[string]interface{}{"action": action}))
	}

	results := e.QueryEmergent("sequence")
	require.NotEmpty(t, results)
	assert.Equal(t, core.SignalSequence, results[0].Type)
}

func TestClusterDetection(t *testing.T) {
	e := New(testEngineConfig(), nil)

	observeN(t, e, 10, map[string]interface{}{"action": "search"})

	results := e.QueryEmergent("dominates")
	require.NotEmpty(t, results)
	assert.Equal(t, core.SignalCluster, results[0].Type)
	assert.Contains(t, results[0].Description, "search")
}

func TestPromotionAttachesToSession(t *testing.T) {
	session := core.NewSessionContext("s1", 0, 0)
	e := New(testEngineConfig(), session)

	observeN(t, e, 3, map[string]interface{}{"action": "search", "topic": "auth"})
	observeN(t, e, 7, map[string]interface{}{"action": "noop"})

	assert.NotEmpty(t, session.Signals())
	assert.NotEmpty(t, session.SalienceMap())
}

func TestObservationWindowBounded(t *testing.T) {
	cfg := testEngineConfig()
	cfg.WindowCapacity = 5
	e := New(cfg, nil)

	observeN(t, e, 12, map[string]interface{}{"action": "scroll"})

	assert.Equal(t, 5, e.GetStats().Window)
	assert.Equal(t, 12, e.GetStats().Observations)
}

func TestMalformedInputIsCoerced(t *testing.T) {
	e := New(testEngineConfig(), nil)
	ctx := context.Background()

	require.NoError(t, e.Observe(ctx, 42))
	require.NoError(t, e.Observe(ctx, nil))
	require.NoError(t, e.Observe(ctx, "plain text"))
	assert.Equal(t, 3, e.GetStats().Observations)
}

func TestObserveCanceledContext(t *testing.T) {
	e := New(testEngineConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, e.Observe(ctx, map[string]interface{}{"action": "search"}))
}

func TestHookFailuresAreIsolated(t *testing.T) {
	capture := logging.NewMemoryOutput()
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.DEBUG,
		Outputs:  []logging.Output{capture},
	}))
	defer logging.SetLogger(logging.NewLogger(logging.Config{Severity: logging.ERROR}))

	e := New(testEngineConfig(), nil)
	ran := false
	require.NoError(t, e.RegisterHook("boom", func(ctx context.Context, event core.Event) error {
		panic("hook exploded")
	}))
	require.NoError(t, e.RegisterHook("fail", func(ctx context.Context, event core.Event) error {
		return fmt.Errorf("hook error")
	}))
	require.NoError(t, e.RegisterHook("ok", func(ctx context.Context, event core.Event) error {
		ran = true
		return nil
	}))

	require.NoError(t, e.Observe(context.Background(), map[string]interface{}{"action": "search"}))

	assert.True(t, ran, "healthy hook must still run")
	warned := 0
	for _, entry := range capture.Entries() {
		if entry.Severity == logging.WARN {
			warned++
		}
	}
	assert.Equal(t, 2, warned)

	assert.Error(t, e.RegisterHook("nil", nil))
}

func TestSalienceMap(t *testing.T) {
	t.Run("includes emitted signals", func(t *testing.T) {
		e := New(testEngineConfig(), nil)
		observeN(t, e, 3, map[string]interface{}{"action": "search", "topic": "auth"})
		observeN(t, e, 7, map[string]interface{}{"action": "noop"})

		m := e.SalienceMap()
		require.NotEmpty(t, m)
		for _, score := range m {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("includes near-threshold candidates scaled down", func(t *testing.T) {
		cfg := testEngineConfig()
		cfg.PromotionThreshold = 0.7 // keep candidates unpromoted
		e := New(cfg, nil)

		observeN(t, e, 3, map[string]interface{}{"action": "search", "topic": "auth"})
		observeN(t, e, 7, map[string]interface{}{"action": "noop"})

		require.Zero(t, e.GetStats().Emitted)
		m := e.SalienceMap()
		require.NotEmpty(t, m)
		for _, score := range m {
			assert.Less(t, score, 0.7)
		}
	})
}

func TestQueryEmergentUnknownReturnsEmpty(t *testing.T) {
	e := New(testEngineConfig(), nil)
	observeN(t, e, 10, map[string]interface{}{"action": "search", "topic": "auth"})

	assert.Empty(t, e.QueryEmergent("zebra migration"))
}

func TestCandidateConfidenceRecencyPenalty(t *testing.T) {
	now := time.Now()
	c := newCandidate(core.SignalCorrelation, "a co-occurs with b", now)
	c.update(4, 0.1, now)

	fresh := c.confidence(now)
	assert.Greater(t, fresh, 0.5)

	// Ten minutes later the penalty bottoms out at 0.5.
	later := c.confidence(now.Add(20 * time.Minute))
	assert.InDelta(t, fresh-0.5, later, 1e-9)
}
