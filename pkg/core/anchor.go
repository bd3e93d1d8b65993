package core

import (
	"time"

	"github.com/google/uuid"
)

// anchorStaleness is how long an unreferenced anchor survives.
const anchorStaleness = 4 * time.Hour

// anchorWeightFloor is the effective weight below which an anchor is stale.
const anchorWeightFloor = 0.1

// Anchor is a stable reference point the session revolves around. Weight is
// clamped to [0, 1] on construction and after every mutation.
type Anchor struct {
	ID             string
	Type           AnchorType
	Value          string
	Weight         float64
	CreatedAt      time.Time
	LastReferenced time.Time
	ReferenceCount int
}

// NewAnchor is the factory for anchors.
func NewAnchor(typ AnchorType, value string, weight float64) *Anchor {
	if !typ.Valid() {
		typ = AnchorCustom
	}
	now := time.Now()
	a := &Anchor{
		ID:             uuid.NewString(),
		Type:           typ,
		Value:          value,
		Weight:         clamp01(weight),
		CreatedAt:      now,
		LastReferenced: now,
		ReferenceCount: 1,
	}
	return a
}

// Touch records a re-observation: the reference count goes up and the weight
// is boosted instead of creating a duplicate anchor.
func (a *Anchor) Touch(boost float64) {
	a.ReferenceCount++
	a.Weight = clamp01(a.Weight + boost)
	a.LastReferenced = time.Now()
}

// Decay reduces weight by the given factor.
func (a *Anchor) Decay(factor float64) {
	a.Weight = clamp01(a.Weight * (1 - clamp01(factor)))
}

// EffectiveWeight is weight after staleness decay at read time: 10% per hour
// of staleness, floored at 10% of the stored weight.
func (a *Anchor) EffectiveWeight(now time.Time) float64 {
	staleness := hoursBetween(a.LastReferenced, now)
	factor := 1 - 0.1*staleness
	if factor < 0.1 {
		factor = 0.1
	}
	return a.Weight * factor
}

// IsStale reports whether the anchor should be removed.
func (a *Anchor) IsStale(now time.Time) bool {
	if now.Sub(a.LastReferenced) > anchorStaleness {
		return true
	}
	return a.EffectiveWeight(now) < anchorWeightFloor
}

// ToDict is the serialization contract view.
func (a *Anchor) ToDict() map[string]interface{} {
	return map[string]interface{}{
		"id":              a.ID,
		"type":            string(a.Type),
		"value":           a.Value,
		"weight":          round3(a.Weight),
		"created_at":      isoTime(a.CreatedAt),
		"last_referenced": isoTime(a.LastReferenced),
		"reference_count": a.ReferenceCount,
	}
}

// DiscoveryKeys implements Discoverable.
func (a *Anchor) DiscoveryKeys() []string {
	return []string{"type", "value"}
}

// AnchorFromDict rebuilds an anchor from its serialized view.
func AnchorFromDict(d map[string]interface{}) *Anchor {
	typ, _ := ParseAnchorType(asString(d["type"]))
	a := NewAnchor(typ, asString(d["value"]), asFloat(d["weight"]))
	if id := asString(d["id"]); id != "" {
		a.ID = id
	}
	if n := int(asFloat(d["reference_count"])); n >= 1 {
		a.ReferenceCount = n
	}
	if t := parseISOTime(asString(d["created_at"])); !t.IsZero() {
		a.CreatedAt = t
	}
	if t := parseISOTime(asString(d["last_referenced"])); !t.IsZero() {
		a.LastReferenced = t
	}
	return a
}
