package core

import (
	"sort"
	"sync"
	"time"

	"github.com/driftline/emergent/pkg/errors"
)

const (
	// DefaultMaxSignals bounds the signal ring per context.
	DefaultMaxSignals = 100
	// DefaultMaxAnchors bounds the anchor list per context.
	DefaultMaxAnchors = 20
	// maxArchivedSignals bounds the archive kept after retention demotion.
	maxArchivedSignals = 50
	// staleAfter marks a context stale when no interaction arrives for this long.
	staleAfter = 30 * time.Minute
	// minInteractionsForActive keeps brand-new contexts in initializing.
	minInteractionsForActive = 3
)

// SessionContext owns the anchors, signal ring, salience map, and latest
// motion vector for one session. Contexts are never shared across sessions.
type SessionContext struct {
	mu sync.RWMutex

	id           string
	status       SessionStatus
	anchors      []*Anchor
	signals      []*Signal
	archived     []*Signal
	motion       *MotionVector
	salience     map[string]float64
	windowStart  time.Time
	windowEnd    time.Time
	interactions int
	maxSignals   int
	maxAnchors   int
}

// NewSessionContext creates a context for one session. Non-positive capacity
// arguments fall back to the defaults.
func NewSessionContext(id string, maxAnchors, maxSignals int) *SessionContext {
	if maxAnchors <= 0 {
		maxAnchors = DefaultMaxAnchors
	}
	if maxSignals <= 0 {
		maxSignals = DefaultMaxSignals
	}
	now := time.Now()
	return &SessionContext{
		id:          id,
		status:      StatusInitializing,
		salience:    make(map[string]float64),
		windowStart: now,
		windowEnd:   now,
		maxSignals:  maxSignals,
		maxAnchors:  maxAnchors,
	}
}

// ID returns the owning session's identifier.
func (c *SessionContext) ID() string {
	return c.id
}

// Status returns the current lifecycle status.
func (c *SessionContext) Status() SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *SessionContext) dissolved() error {
	if c.status == StatusDissolved {
		return errors.WithFields(
			errors.New(errors.SessionDissolved, "session context is dissolved"),
			errors.Fields{"session_id": c.id})
	}
	return nil
}

// AddAnchor records a reference point, deduplicating by (type, value): a
// re-observed pair boosts the existing anchor instead of duplicating it.
// When the anchor list is full the lowest-effective-weight anchor is evicted.
func (c *SessionContext) AddAnchor(typ AnchorType, value string, weight float64) (*Anchor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dissolved(); err != nil {
		return nil, err
	}
	c.touch()

	for _, a := range c.anchors {
		if a.Type == typ && a.Value == value {
			a.Touch(weight * 0.5)
			return a, nil
		}
	}

	anchor := NewAnchor(typ, value, weight)
	if len(c.anchors) >= c.maxAnchors {
		c.evictWeakestAnchor()
	}
	c.anchors = append(c.anchors, anchor)
	return anchor, nil
}

func (c *SessionContext) evictWeakestAnchor() {
	if len(c.anchors) == 0 {
		return
	}
	now := time.Now()
	weakest := 0
	for i, a := range c.anchors {
		if a.EffectiveWeight(now) < c.anchors[weakest].EffectiveWeight(now) {
			weakest = i
		}
	}
	c.anchors = append(c.anchors[:weakest], c.anchors[weakest+1:]...)
}

// AddSignal appends to the bounded signal ring, evicting the oldest entry at
// capacity, and records the signal's salience in the salience map.
func (c *SessionContext) AddSignal(s *Signal) error {
	if s == nil {
		return errors.New(errors.InvalidInput, "cannot add nil signal")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dissolved(); err != nil {
		return err
	}
	c.touch()

	c.signals = append(c.signals, s)
	if len(c.signals) > c.maxSignals {
		c.signals = c.signals[len(c.signals)-c.maxSignals:]
	}
	c.salience[s.Description] = s.Salience
	return nil
}

// Signals returns the active signals, oldest first.
func (c *SessionContext) Signals() []*Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Signal, len(c.signals))
	copy(out, c.signals)
	return out
}

// Anchors returns the current anchors.
func (c *SessionContext) Anchors() []*Anchor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Anchor, len(c.anchors))
	copy(out, c.anchors)
	return out
}

// Archived returns signals demoted by the retention gate.
func (c *SessionContext) Archived() []*Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Signal, len(c.archived))
	copy(out, c.archived)
	return out
}

// RemoveSignal drops a signal from the active ring.
func (c *SessionContext) RemoveSignal(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.signals {
		if s.ID == id {
			delete(c.salience, s.Description)
			c.signals = append(c.signals[:i], c.signals[i+1:]...)
			return true
		}
	}
	return false
}

// ArchiveSignal moves a signal from the active ring to the bounded archive.
func (c *SessionContext) ArchiveSignal(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.signals {
		if s.ID == id {
			delete(c.salience, s.Description)
			c.signals = append(c.signals[:i], c.signals[i+1:]...)
			c.archived = append(c.archived, s)
			if len(c.archived) > maxArchivedSignals {
				c.archived = c.archived[len(c.archived)-maxArchivedSignals:]
			}
			return true
		}
	}
	return false
}

// RemoveAnchor drops an anchor by id.
func (c *SessionContext) RemoveAnchor(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, a := range c.anchors {
		if a.ID == id {
			c.anchors = append(c.anchors[:i], c.anchors[i+1:]...)
			return true
		}
	}
	return false
}

// SignalOutcome directs what MaintainSignals does with a signal after its
// maintenance callback runs.
type SignalOutcome int

const (
	SignalKeep SignalOutcome = iota
	SignalArchive
	SignalDrop
)

// MaintainSignals runs fn over every active signal under the context lock
// and applies the returned outcome in place. Signals attached to a context
// are shared between the discovery and retention paths; decaying them
// through here keeps both sides off each other's writes.
func (c *SessionContext) MaintainSignals(fn func(*Signal) SignalOutcome) (kept, archived, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusDissolved {
		return 0, 0, 0
	}

	remaining := c.signals[:0]
	for _, s := range c.signals {
		switch fn(s) {
		case SignalArchive:
			archived++
			delete(c.salience, s.Description)
			c.archived = append(c.archived, s)
			if len(c.archived) > maxArchivedSignals {
				c.archived = c.archived[len(c.archived)-maxArchivedSignals:]
			}
		case SignalDrop:
			dropped++
			delete(c.salience, s.Description)
		default:
			kept++
			remaining = append(remaining, s)
		}
	}
	c.signals = remaining
	return kept, archived, dropped
}

// MaintainAnchors runs fn over every anchor under the context lock; fn
// reports whether the anchor should be removed.
func (c *SessionContext) MaintainAnchors(fn func(*Anchor) (remove bool)) (kept, removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusDissolved {
		return 0, 0
	}

	remaining := c.anchors[:0]
	for _, a := range c.anchors {
		if fn(a) {
			removed++
			continue
		}
		kept++
		remaining = append(remaining, a)
	}
	c.anchors = remaining
	return kept, removed
}

// UpdateSignal runs fn on one signal under the context lock. Any in-place
// read or mutation of a signal attached to a context goes through here, so
// it cannot interleave with a maintenance pass.
func (c *SessionContext) UpdateSignal(s *Signal, fn func(*Signal)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(s)
}

// DominantAnchors returns the non-stale anchors with the highest effective
// weight, strongest first.
func (c *SessionContext) DominantAnchors(limit int) []*Anchor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	live := make([]*Anchor, 0, len(c.anchors))
	for _, a := range c.anchors {
		if !a.IsStale(now) {
			live = append(live, a)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].EffectiveWeight(now) > live[j].EffectiveWeight(now)
	})
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live
}

// SetMotion stores the latest motion vector.
func (c *SessionContext) SetMotion(v *MotionVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusDissolved {
		return
	}
	c.touch()
	c.motion = v
}

// Motion returns the latest motion vector, or nil before any tracking.
func (c *SessionContext) Motion() *MotionVector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.motion
}

// SalienceMap returns a copy of the description-to-salience map.
func (c *SessionContext) SalienceMap() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.salience))
	for k, v := range c.salience {
		out[k] = v
	}
	return out
}

// SetSalience records a salience score for a description.
func (c *SessionContext) SetSalience(description string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusDissolved {
		return
	}
	c.salience[description] = clamp01(score)
}

// touch advances the temporal window. Caller holds the lock.
func (c *SessionContext) touch() {
	c.windowEnd = time.Now()
	c.interactions++
}

// Window returns the temporal window covered by this context.
func (c *SessionContext) Window() (start, end time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.windowStart, c.windowEnd
}

// Interactions returns the number of recorded interactions.
func (c *SessionContext) Interactions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interactions
}

// UpdateStatus derives the lifecycle status from staleness, drift, and
// interaction count. It is a read-time projection: nothing but the status
// field changes, and dissolved is terminal.
func (c *SessionContext) UpdateStatus(now time.Time) SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusDissolved {
		return StatusDissolved
	}

	switch {
	case c.interactions < minInteractionsForActive:
		c.status = StatusInitializing
	case now.Sub(c.windowEnd) > staleAfter:
		c.status = StatusStale
	case c.motion != nil && (c.motion.Drift > 0.6 || c.motion.Drift < -0.6):
		c.status = StatusDrifting
	case c.motion != nil && c.motion.Momentum > 0.6:
		c.status = StatusStable
	default:
		c.status = StatusActive
	}
	return c.status
}

// Dissolve is terminal: it clears every owned collection and marks the
// context dissolved. It is irreversible.
func (c *SessionContext) Dissolve() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.anchors = nil
	c.signals = nil
	c.archived = nil
	c.motion = nil
	c.salience = make(map[string]float64)
	c.status = StatusDissolved
}

// ToDict is the serialization contract view.
func (c *SessionContext) ToDict() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	anchors := make([]map[string]interface{}, len(c.anchors))
	for i, a := range c.anchors {
		anchors[i] = a.ToDict()
	}
	signals := make([]map[string]interface{}, len(c.signals))
	for i, s := range c.signals {
		signals[i] = s.ToDict()
	}
	salience := make(map[string]interface{}, len(c.salience))
	for k, v := range c.salience {
		salience[k] = round3(v)
	}

	d := map[string]interface{}{
		"session_id":   c.id,
		"status":       string(c.status),
		"anchors":      anchors,
		"signals":      signals,
		"salience":     salience,
		"window_start": isoTime(c.windowStart),
		"window_end":   isoTime(c.windowEnd),
		"interactions": c.interactions,
	}
	if c.motion != nil {
		d["motion"] = c.motion.ToDict()
	}
	return d
}

// DiscoveryKeys implements Discoverable.
func (c *SessionContext) DiscoveryKeys() []string {
	return []string{"session_id", "status"}
}

// ContextFromDict rebuilds a session context from its dictionary view.
// Fields absent from the dict keep their constructed defaults; the latest
// motion vector is not part of the round-trip.
func ContextFromDict(d map[string]interface{}) *SessionContext {
	c := NewSessionContext(asString(d["session_id"]), 0, 0)

	if s := SessionStatus(asString(d["status"])); s != "" {
		c.status = s
	}
	if t := parseISOTime(asString(d["window_start"])); !t.IsZero() {
		c.windowStart = t
	}
	if t := parseISOTime(asString(d["window_end"])); !t.IsZero() {
		c.windowEnd = t
	}
	if n := int(asFloat(d["interactions"])); n > 0 {
		c.interactions = n
	}

	if raw, ok := d["anchors"].([]map[string]interface{}); ok {
		for _, ad := range raw {
			c.anchors = append(c.anchors, AnchorFromDict(ad))
		}
	}
	if raw, ok := d["signals"].([]map[string]interface{}); ok {
		for _, sd := range raw {
			c.signals = append(c.signals, SignalFromDict(sd))
		}
	}
	if raw, ok := d["salience"].(map[string]interface{}); ok {
		for k, v := range raw {
			c.salience[k] = asFloat(v)
		}
	}
	return c
}
