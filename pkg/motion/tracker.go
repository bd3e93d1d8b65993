// Package motion derives "where is this session heading" from the raw event
// stream. A Tracker consumes the same observations as the pattern engine but
// keeps independent state: a direction history, a topic list, and a bounded
// history of emitted MotionVector snapshots.
package motion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/driftline/emergent/pkg/config"
	"github.com/driftline/emergent/pkg/core"
	"github.com/driftline/emergent/pkg/errors"
)

// timestampEpsilon is the forward correction applied when an incoming event
// timestamp does not advance past the previously recorded one. Momentum and
// magnitude math assumes monotonic time, so replayed or skewed clocks are
// nudged forward instead of recorded as-is.
const timestampEpsilon = time.Microsecond

// magnitudeRate is the event rate, in events per second, that maps to full
// magnitude.
const magnitudeRate = 2.0

// magnitudeFloor keeps magnitude visible for slow but live sessions.
const magnitudeFloor = 0.05

// rateWindow bounds how many recent event times feed the rate estimate.
const rateWindow = 20

// minTopicLength filters trivial tokens out of topic extraction.
const minTopicLength = 4

// directionOrder fixes the matching precedence so that tokens containing
// keywords from more than one direction always classify the same way.
var directionOrder = []core.Direction{
	core.DirectionExploration,
	core.DirectionInvestigation,
	core.DirectionExecution,
	core.DirectionSynthesis,
	core.DirectionReflection,
	core.DirectionTransition,
}

// directionKeywords maps folded action/type tokens to a trajectory
// direction. Matching is by exact token first, then by substring, in
// directionOrder precedence.
var directionKeywords = map[core.Direction][]string{
	core.DirectionExploration:   {"search", "browse", "explore", "list", "discover", "scan"},
	core.DirectionInvestigation: {"read", "inspect", "debug", "investigate", "trace", "query", "view"},
	core.DirectionExecution:     {"edit", "write", "run", "execute", "build", "test", "create", "delete", "apply"},
	core.DirectionSynthesis:     {"summarize", "merge", "compose", "synthesize", "report", "combine"},
	core.DirectionReflection:    {"review", "reflect", "evaluate", "assess"},
	core.DirectionTransition:    {"switch", "open", "close", "start", "end", "handoff"},
}

// topicStopwords are folded tokens too generic to anchor a topic on.
var topicStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "into": true,
	"about": true, "have": true, "been": true, "were": true, "they": true,
	"there": true, "their": true, "which": true, "when": true, "then": true,
}

// Tracker turns raw events into MotionVector snapshots. One tracker per
// session; the monotonic timestamp correction assumes a single logical
// caller, but the internal lock keeps state consistent regardless.
type Tracker struct {
	mu         sync.Mutex
	cfg        config.TrackerConfig
	prev       time.Time
	directions []core.Direction
	topics     []string
	times      []time.Time
	snapshots  []*core.MotionVector
}

// NewTracker builds a tracker with the given capacities.
func NewTracker(cfg config.TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Track ingests one raw event and emits a fresh trajectory snapshot. Raw
// events are coerced the same way the pattern engine coerces them, so the
// two consumers can share a stream.
func (t *Tracker) Track(ctx context.Context, raw interface{}) (*core.MotionVector, error) {
	if err := errors.CheckContext(ctx, "track"); err != nil {
		return nil, err
	}
	ev := core.NormalizeEvent(raw)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.advanceClock(ev.Timestamp())
	direction := extractDirection(ev)
	t.pushDirection(direction)
	t.pushTopics(ev)
	t.pushTime(now)

	vector := core.NewMotionVector(
		direction,
		t.detail(direction),
		t.magnitude(),
		t.momentum(),
		t.drift(),
		t.confidence(),
		now,
		t.directions,
	)

	t.snapshots = append(t.snapshots, vector)
	if len(t.snapshots) > t.cfg.SnapshotHistory {
		t.snapshots = t.snapshots[len(t.snapshots)-t.cfg.SnapshotHistory:]
	}
	return vector, nil
}

// advanceClock enforces the monotonic timestamp sequence. A zero event
// timestamp falls back to wall time; any timestamp that fails to advance is
// moved to just past the previous one.
func (t *Tracker) advanceClock(eventTime time.Time) time.Time {
	now := eventTime
	if now.IsZero() {
		now = time.Now()
	}
	if !t.prev.IsZero() && !now.After(t.prev) {
		now = t.prev.Add(timestampEpsilon)
	}
	t.prev = now
	return now
}

// LastTimestamp returns the most recently recorded timestamp, zero before
// the first event.
func (t *Tracker) LastTimestamp() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prev
}

// Snapshots returns a copy of the vector history, oldest first.
func (t *Tracker) Snapshots() []*core.MotionVector {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*core.MotionVector, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// Topics returns a copy of the extracted topic list, oldest first.
func (t *Tracker) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.topics))
	copy(out, t.topics)
	return out
}

func (t *Tracker) pushDirection(d core.Direction) {
	t.directions = append(t.directions, d)
	if len(t.directions) > t.cfg.DirectionHistory {
		t.directions = t.directions[len(t.directions)-t.cfg.DirectionHistory:]
	}
}

func (t *Tracker) pushTime(now time.Time) {
	t.times = append(t.times, now)
	if len(t.times) > rateWindow {
		t.times = t.times[len(t.times)-rateWindow:]
	}
}

// pushTopics extracts topics from the topic field and from content tokens,
// deduplicating against the current list.
func (t *Tracker) pushTopics(ev core.Event) {
	var found []string
	if topic := core.Fold(ev.Topic()); topic != "" {
		found = append(found, topic)
	}
	for _, word := range strings.Fields(core.Fold(ev.Content())) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if len(word) >= minTopicLength && !topicStopwords[word] {
			found = append(found, word)
		}
	}

	for _, topic := range found {
		seen := false
		for _, existing := range t.topics {
			if existing == topic {
				seen = true
				break
			}
		}
		if !seen {
			t.topics = append(t.topics, topic)
		}
	}
	if len(t.topics) > t.cfg.TopicCapacity {
		t.topics = t.topics[len(t.topics)-t.cfg.TopicCapacity:]
	}
}

// extractDirection maps the event's action (falling back to its type) onto a
// direction category.
func extractDirection(ev core.Event) core.Direction {
	token := core.Fold(ev.Action())
	if token == "" {
		return core.DirectionUnknown
	}
	for _, direction := range directionOrder {
		for _, kw := range directionKeywords[direction] {
			if token == kw {
				return direction
			}
		}
	}
	for _, direction := range directionOrder {
		for _, kw := range directionKeywords[direction] {
			if strings.Contains(token, kw) {
				return direction
			}
		}
	}
	return core.DirectionUnknown
}

// detail describes the current heading, naming the freshest topic when one
// exists.
func (t *Tracker) detail(d core.Direction) string {
	if len(t.topics) == 0 {
		return string(d)
	}
	return fmt.Sprintf("%s around %s", d, t.topics[len(t.topics)-1])
}

// magnitude estimates activity intensity from the recent event rate.
func (t *Tracker) magnitude() float64 {
	if len(t.times) < 2 {
		return magnitudeFloor
	}
	span := t.times[len(t.times)-1].Sub(t.times[0]).Seconds()
	if span <= 0 {
		return 1
	}
	rate := float64(len(t.times)-1) / span
	m := rate / magnitudeRate
	if m < magnitudeFloor {
		return magnitudeFloor
	}
	if m > 1 {
		return 1
	}
	return m
}

// dominantShare returns the most common direction in a slice and its share.
func dominantShare(directions []core.Direction) (core.Direction, float64) {
	if len(directions) == 0 {
		return core.DirectionUnknown, 0
	}
	counts := make(map[core.Direction]int)
	best := directions[0]
	for _, d := range directions {
		counts[d]++
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best, float64(counts[best]) / float64(len(directions))
}

// momentum is direction consistency: the dominant direction's share of the
// history, discounted while the history is still short.
func (t *Tracker) momentum() float64 {
	_, share := dominantShare(t.directions)
	fill := float64(len(t.directions)) / 5
	if fill > 1 {
		fill = 1
	}
	return share * fill
}

// drift compares the newer half of the direction history against the older
// half. Positive drift means the session is pulling away from its
// established direction; negative drift means it is settling into one.
func (t *Tracker) drift() float64 {
	if len(t.directions) < 4 {
		return 0
	}
	mid := len(t.directions) / 2
	older, _ := dominantShare(t.directions[:mid])
	newer, newShare := dominantShare(t.directions[mid:])
	if newer == older {
		return -(newShare - 0.5)
	}
	return newShare
}

// confidence grows with direction consistency and with how much history
// backs the estimate.
func (t *Tracker) confidence() float64 {
	_, share := dominantShare(t.directions)
	depth := float64(len(t.directions))
	if depth > 10 {
		depth = 10
	}
	c := 0.2 + 0.5*share + 0.03*depth
	if c > 1 {
		return 1
	}
	return c
}
