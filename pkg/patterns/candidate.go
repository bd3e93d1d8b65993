package patterns

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftline/emergent/pkg/core"
)

// maxCandidateEvidence bounds the per-candidate evidence trail.
const maxCandidateEvidence = 20

// perOccurrenceCredit is the confidence credit each underlying occurrence
// contributes to the accumulator. Detector boosts stack on top per detection.
const perOccurrenceCredit = 0.5

// candidateStaleness is how long a weak candidate survives without evidence.
const candidateStaleness = 30 * time.Minute

// weakConfidence marks candidates eligible for staleness pruning.
const weakConfidence = 0.2

// evidenceEntry records one detection pass over the candidate's pattern.
type evidenceEntry struct {
	at    time.Time
	count int
}

// candidate is an in-progress pattern hypothesis. It lives in the engine's
// candidate table until it accumulates enough evidence to become a Signal,
// or goes stale and is dropped.
type candidate struct {
	id          string
	ctype       core.SignalType
	description string
	evidence    []evidenceEntry
	support     int
	firstSeen   time.Time
	lastSeen    time.Time
	accumulator float64
}

func newCandidate(ctype core.SignalType, description string, now time.Time) *candidate {
	return &candidate{
		id:          uuid.NewString(),
		ctype:       ctype,
		description: description,
		firstSeen:   now,
		lastSeen:    now,
	}
}

// update records a detection pass that found `count` underlying occurrences.
// New occurrences since the last pass earn the per-occurrence credit; the
// detector's boost is added once per detection.
func (c *candidate) update(count int, boost float64, now time.Time) {
	fresh := count - c.support
	if fresh > 0 {
		c.support = count
		c.accumulator += perOccurrenceCredit * float64(fresh)
	}
	c.accumulator += boost

	c.evidence = append(c.evidence, evidenceEntry{at: now, count: count})
	if len(c.evidence) > maxCandidateEvidence {
		c.evidence = c.evidence[len(c.evidence)-maxCandidateEvidence:]
	}
	c.lastSeen = now
}

// confidence applies the recency penalty: evidence fades by the minute and
// bottoms out at a half-point deduction after ten minutes.
func (c *candidate) confidence(now time.Time) float64 {
	if c.support == 0 {
		return 0
	}
	base := c.accumulator / float64(c.support)
	if base > 1 {
		base = 1
	}
	recency := now.Sub(c.lastSeen).Seconds() / 600
	if recency < 0 {
		recency = 0
	}
	if recency > 0.5 {
		recency = 0.5
	}
	conf := base - recency
	if conf < 0 {
		conf = 0
	}
	return conf
}

// stale reports whether the candidate should be pruned.
func (c *candidate) stale(now time.Time) bool {
	return now.Sub(c.lastSeen) > candidateStaleness && c.confidence(now) < weakConfidence
}
