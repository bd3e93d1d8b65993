package core

import (
	"fmt"
	"time"
)

// Event is the normalized, flat view of one raw interaction event.
type Event map[string]interface{}

// NormalizeEvent coerces an arbitrary inbound payload into a flat Event.
// Recognized shapes are flat maps with optional action/type, intent, topic,
// content, and timestamp keys. Anything else is wrapped as {"raw": text}
// rather than rejected.
func NormalizeEvent(raw interface{}) Event {
	switch v := raw.(type) {
	case nil:
		return Event{"raw": ""}
	case Event:
		return flatten(v)
	case map[string]interface{}:
		return flatten(v)
	case Discoverable:
		return flatten(v.ToDict())
	default:
		return Event{"raw": fmt.Sprintf("%v", raw)}
	}
}

// flatten copies a map, stringifying nested structures so the result stays
// one level deep.
func flatten(m map[string]interface{}) Event {
	e := make(Event, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64,
			time.Time, nil:
			e[k] = v
		default:
			e[k] = fmt.Sprintf("%v", v)
		}
	}
	return e
}

// Action returns the event's primary action, falling back to its type.
func (e Event) Action() string {
	if s := e.stringKey("action"); s != "" {
		return s
	}
	return e.stringKey("type")
}

// Intent returns the declared intent, if any.
func (e Event) Intent() string {
	return e.stringKey("intent")
}

// Topic returns the declared topic, if any.
func (e Event) Topic() string {
	return e.stringKey("topic")
}

// Content returns free-text content, if any.
func (e Event) Content() string {
	return e.stringKey("content")
}

// ID returns an explicit event identifier, if any.
func (e Event) ID() string {
	if s := e.stringKey("id"); s != "" {
		return s
	}
	return e.stringKey("event_id")
}

// Timestamp returns the event's declared timestamp, or the zero time when
// absent or unparseable.
func (e Event) Timestamp() time.Time {
	switch v := e["timestamp"].(type) {
	case time.Time:
		return v
	case string:
		return parseISOTime(v)
	default:
		return time.Time{}
	}
}

func (e Event) stringKey(key string) string {
	if v, ok := e[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Conversion helpers shared by the FromDict constructors. Each returns a
// neutral zero value for missing or mistyped input.

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}
