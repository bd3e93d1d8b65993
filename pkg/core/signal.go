package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/emergent/pkg/errors"
)

// maxContributingEvents bounds the per-signal evidence trail.
const maxContributingEvents = 100

// expiryStaleness is how long an unreinforced signal survives.
const expiryStaleness = 24 * time.Hour

// expirySalienceFloor is the effective salience below which a signal expires.
const expirySalienceFloor = 0.05

// defaultDecayRate applies when a caller does not supply one.
const defaultDecayRate = 0.05

// Signal is a discovered pattern with confidence and salience scoring.
// All bounded fields are clamped on construction and after every mutation;
// out-of-range inputs are silently clamped, never rejected.
type Signal struct {
	ID            string
	Type          SignalType
	Description   string
	Confidence    float64
	Salience      float64
	EvidenceCount int
	DecayRate     float64
	FirstSeen     time.Time
	LastSeen      time.Time
	Metadata      map[string]interface{}
	EventIDs      []string
}

// NewSignal is the factory for signals. Signals are never constructed
// directly, so clamping here covers every live instance.
func NewSignal(typ SignalType, description string, confidence, salience float64, metadata map[string]interface{}) *Signal {
	if !typ.Valid() {
		typ = SignalDeviation
	}
	now := time.Now()
	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s := &Signal{
		ID:            uuid.NewString(),
		Type:          typ,
		Description:   description,
		Confidence:    confidence,
		Salience:      salience,
		EvidenceCount: 1,
		DecayRate:     defaultDecayRate,
		FirstSeen:     now,
		LastSeen:      now,
		Metadata:      meta,
	}
	s.clamp()
	return s
}

func (s *Signal) clamp() {
	s.Confidence = clamp01(s.Confidence)
	s.Salience = clamp01(s.Salience)
	s.DecayRate = clamp01(s.DecayRate)
	if s.EvidenceCount < 1 {
		s.EvidenceCount = 1
	}
}

// Reinforce boosts salience (and confidence at half strength), counts the
// evidence, and refreshes the last-seen timestamp. The contributing event id
// is deduplicated and the trail is capped.
func (s *Signal) Reinforce(boost float64, eventID string) {
	s.Salience += boost
	s.Confidence += boost * 0.5
	s.EvidenceCount++
	s.LastSeen = time.Now()

	if eventID != "" {
		seen := false
		for _, id := range s.EventIDs {
			if id == eventID {
				seen = true
				break
			}
		}
		if !seen {
			s.EventIDs = append(s.EventIDs, eventID)
			if len(s.EventIDs) > maxContributingEvents {
				s.EventIDs = s.EventIDs[len(s.EventIDs)-maxContributingEvents:]
			}
		}
	}
	s.clamp()
}

// Decay reduces salience by the given factor. A zero factor is a no-op.
func (s *Signal) Decay(factor float64) {
	s.Salience *= 1 - clamp01(factor)
	s.clamp()
}

// DecayDefault decays by the signal's own decay rate.
func (s *Signal) DecayDefault() {
	s.Decay(s.DecayRate)
}

// EffectiveSalience is salience after staleness decay at read time.
func (s *Signal) EffectiveSalience(now time.Time) float64 {
	staleness := hoursBetween(s.LastSeen, now)
	factor := 1 - s.DecayRate*staleness
	if factor < 0 {
		factor = 0
	}
	return s.Salience * factor
}

// IsExpired reports whether the signal should be dropped: too stale, or
// effectively invisible.
func (s *Signal) IsExpired(now time.Time) bool {
	if now.Sub(s.LastSeen) > expiryStaleness {
		return true
	}
	return s.EffectiveSalience(now) < expirySalienceFloor
}

// Merge folds another signal of the same type into this one: confidence is
// a weighted average by evidence share, salience takes the max, metadata and
// event trails are unioned, and the seen window widens to cover both.
// Merging different types is a programmer error.
func (s *Signal) Merge(other *Signal) error {
	if other == nil {
		return errors.New(errors.InvalidInput, "cannot merge nil signal")
	}
	if other.Type != s.Type {
		return errors.WithFields(
			errors.New(errors.TypeMismatch, "cannot merge signals of different types"),
			errors.Fields{"type": string(s.Type), "other_type": string(other.Type)})
	}

	total := float64(s.EvidenceCount + other.EvidenceCount)
	s.Confidence = (s.Confidence*float64(s.EvidenceCount) + other.Confidence*float64(other.EvidenceCount)) / total
	if other.Salience > s.Salience {
		s.Salience = other.Salience
	}
	s.EvidenceCount += other.EvidenceCount

	for k, v := range other.Metadata {
		if _, exists := s.Metadata[k]; !exists {
			s.Metadata[k] = v
		}
	}
	for _, id := range other.EventIDs {
		seen := false
		for _, existing := range s.EventIDs {
			if existing == id {
				seen = true
				break
			}
		}
		if !seen {
			s.EventIDs = append(s.EventIDs, id)
		}
	}
	if len(s.EventIDs) > maxContributingEvents {
		s.EventIDs = s.EventIDs[len(s.EventIDs)-maxContributingEvents:]
	}

	if other.FirstSeen.Before(s.FirstSeen) {
		s.FirstSeen = other.FirstSeen
	}
	if other.LastSeen.After(s.LastSeen) {
		s.LastSeen = other.LastSeen
	}

	s.clamp()
	return nil
}

// MatchScore scores how well the signal matches a free-text query, scaled by
// effective salience. Scores are in [0, 1]; an empty query scores 0.
func (s *Signal) MatchScore(query string) float64 {
	folded := strings.TrimSpace(Fold(query))
	if folded == "" {
		return 0
	}

	desc := Fold(s.Description)
	score := 0.0

	if strings.Contains(desc, folded) {
		score += 0.5
	}

	queryWords := foldWords(query)
	if len(queryWords) > 0 {
		descWords := make(map[string]bool)
		for _, w := range foldWords(s.Description) {
			descWords[w] = true
		}
		matched := 0
		for _, w := range queryWords {
			if descWords[w] {
				matched++
			}
		}
		score += 0.3 * float64(matched) / float64(len(queryWords))
	}

	if strings.Contains(folded, string(s.Type)) {
		score += 0.2
	}

	for _, v := range s.Metadata {
		if strings.Contains(Fold(fmt.Sprintf("%v", v)), folded) {
			score += 0.1
			break
		}
	}

	return clamp01(score) * clamp01(s.EffectiveSalience(time.Now()))
}

// ToDict is the serialization contract view: ISO-8601 timestamps, lowercase
// enum strings, floats rounded to 3 decimals.
func (s *Signal) ToDict() map[string]interface{} {
	ids := make([]string, len(s.EventIDs))
	copy(ids, s.EventIDs)
	meta := make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return map[string]interface{}{
		"id":                     s.ID,
		"type":                   string(s.Type),
		"description":            s.Description,
		"confidence":             round3(s.Confidence),
		"salience":               round3(s.Salience),
		"evidence_count":         s.EvidenceCount,
		"decay_rate":             round3(s.DecayRate),
		"first_seen":             isoTime(s.FirstSeen),
		"last_seen":              isoTime(s.LastSeen),
		"metadata":               meta,
		"contributing_event_ids": ids,
	}
}

// DiscoveryKeys implements Discoverable.
func (s *Signal) DiscoveryKeys() []string {
	return []string{"type", "description"}
}

// SignalFromDict rebuilds a signal from its serialized view. Unknown or
// malformed fields fall back to neutral values.
func SignalFromDict(d map[string]interface{}) *Signal {
	typ, _ := ParseSignalType(asString(d["type"]))
	s := NewSignal(typ, asString(d["description"]), asFloat(d["confidence"]), asFloat(d["salience"]), asMap(d["metadata"]))
	if id := asString(d["id"]); id != "" {
		s.ID = id
	}
	if rate, ok := d["decay_rate"]; ok {
		s.DecayRate = clamp01(asFloat(rate))
	}
	if n := int(asFloat(d["evidence_count"])); n >= 1 {
		s.EvidenceCount = n
	}
	if t := parseISOTime(asString(d["first_seen"])); !t.IsZero() {
		s.FirstSeen = t
	}
	if t := parseISOTime(asString(d["last_seen"])); !t.IsZero() {
		s.LastSeen = t
	}
	if ids, ok := d["contributing_event_ids"].([]string); ok {
		s.EventIDs = append(s.EventIDs, ids...)
	}
	s.clamp()
	return s
}
