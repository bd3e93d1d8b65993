package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEvent(t *testing.T) {
	t.Run("flat map passes through", func(t *testing.T) {
		e := NormalizeEvent(map[string]interface{}{
			"action": "search",
			"topic":  "auth",
		})
		assert.Equal(t, "search", e.Action())
		assert.Equal(t, "auth", e.Topic())
	})

	t.Run("nested values are stringified", func(t *testing.T) {
		e := NormalizeEvent(map[string]interface{}{
			"action": "search",
			"params": map[string]interface{}{"q": "auth"},
		})
		_, isMap := e["params"].(map[string]interface{})
		assert.False(t, isMap)
		assert.IsType(t, "", e["params"])
	})

	t.Run("unrecognized shape is coerced", func(t *testing.T) {
		e := NormalizeEvent(42)
		assert.Equal(t, Event{"raw": "42"}, e)

		e = NormalizeEvent(nil)
		assert.Equal(t, Event{"raw": ""}, e)
	})

	t.Run("discoverable payload", func(t *testing.T) {
		e := NormalizeEvent(MapPayload{"action": "read", "intent": "review"})
		assert.Equal(t, "read", e.Action())
		assert.Equal(t, "review", e.Intent())
	})
}

func TestEventAccessors(t *testing.T) {
	t.Run("action falls back to type", func(t *testing.T) {
		e := Event{"type": "navigation"}
		assert.Equal(t, "navigation", e.Action())
	})

	t.Run("id falls back to event_id", func(t *testing.T) {
		e := Event{"event_id": "e-7"}
		assert.Equal(t, "e-7", e.ID())
	})

	t.Run("timestamp parsing", func(t *testing.T) {
		now := time.Now()
		assert.Equal(t, now, Event{"timestamp": now}.Timestamp())

		iso := Event{"timestamp": "2026-01-02T15:04:05Z"}
		assert.Equal(t, 2026, iso.Timestamp().Year())

		assert.True(t, Event{"timestamp": "garbage"}.Timestamp().IsZero())
		assert.True(t, Event{}.Timestamp().IsZero())
	})

	t.Run("non-string values are ignored", func(t *testing.T) {
		e := Event{"action": 7}
		assert.Equal(t, "", e.Action())
	})
}

func TestMapPayloadDiscoverable(t *testing.T) {
	p := MapPayload{"b": 2, "a": 1}

	keys := p.DiscoveryKeys()
	assert.Equal(t, []string{"a", "b"}, keys)

	d := p.ToDict()
	require.Equal(t, 2, len(d))
	d["c"] = 3
	assert.NotContains(t, p, "c")
}
