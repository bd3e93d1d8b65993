package core

import (
	"time"
)

// maxVectorHistory bounds the direction history carried on each snapshot.
const maxVectorHistory = 10

// MotionVector is an immutable snapshot of the session's cognitive
// trajectory. Trackers produce a new vector per event; vectors are never
// mutated in place.
type MotionVector struct {
	Direction  Direction
	Detail     string
	Magnitude  float64
	Momentum   float64
	Drift      float64 // [-1, 1]
	Confidence float64
	Timestamp  time.Time
	History    []Direction
}

// NewMotionVector constructs a clamped snapshot. History is copied and
// truncated to the most recent entries.
func NewMotionVector(direction Direction, detail string, magnitude, momentum, drift, confidence float64, ts time.Time, history []Direction) *MotionVector {
	if !direction.Valid() {
		direction = DirectionUnknown
	}
	h := history
	if len(h) > maxVectorHistory {
		h = h[len(h)-maxVectorHistory:]
	}
	hist := make([]Direction, len(h))
	copy(hist, h)
	return &MotionVector{
		Direction:  direction,
		Detail:     detail,
		Magnitude:  clamp01(magnitude),
		Momentum:   clamp01(momentum),
		Drift:      clampSigned(drift),
		Confidence: clamp01(confidence),
		Timestamp:  ts,
		History:    hist,
	}
}

// projectionNeeds maps a direction category to the resources a session
// heading that way is likely to need next.
var projectionNeeds = map[Direction][]string{
	DirectionExploration:   {"broader_context", "related_topics", "overview_material"},
	DirectionInvestigation: {"detailed_evidence", "source_records", "cross_references"},
	DirectionExecution:     {"task_parameters", "prior_results", "operational_state"},
	DirectionSynthesis:     {"accumulated_findings", "summary_context", "contrast_points"},
	DirectionReflection:    {"session_history", "earlier_decisions", "outcome_records"},
	DirectionTransition:    {"fresh_context", "topic_candidates", "handoff_state"},
}

// projectionFloor is the momentum-confidence product below which projections
// are not trustworthy.
const projectionFloor = 0.1

// Project returns heuristic need-descriptions for the next steps of the
// current trajectory, decaying momentum per step. When momentum or
// confidence is insufficient it returns the uncertainty marker instead.
func (v *MotionVector) Project(steps int) []string {
	if steps <= 0 {
		return nil
	}
	if v.Momentum*v.Confidence < projectionFloor {
		return []string{"projection_uncertain"}
	}
	needs, ok := projectionNeeds[v.Direction]
	if !ok {
		return []string{"projection_uncertain"}
	}

	out := make([]string, 0, steps)
	momentum := v.Momentum
	for i := 0; i < steps; i++ {
		if momentum*v.Confidence < projectionFloor {
			out = append(out, "projection_uncertain")
			break
		}
		out = append(out, needs[i%len(needs)])
		momentum *= 0.8
	}
	return out
}

// ToDict is the serialization contract view.
func (v *MotionVector) ToDict() map[string]interface{} {
	history := make([]string, len(v.History))
	for i, d := range v.History {
		history[i] = string(d)
	}
	return map[string]interface{}{
		"direction":  string(v.Direction),
		"detail":     v.Detail,
		"magnitude":  round3(v.Magnitude),
		"momentum":   round3(v.Momentum),
		"drift":      round3(v.Drift),
		"confidence": round3(v.Confidence),
		"timestamp":  isoTime(v.Timestamp),
		"history":    history,
	}
}
