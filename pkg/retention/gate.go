// Package retention decides which discovered signals survive the end of an
// observation window. A Gate scores each signal across several factors,
// applies user rules and the session's permeability policy, and produces one
// of four decisions: retain, archive, decay, or discard.
package retention

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/driftline/emergent/pkg/config"
	"github.com/driftline/emergent/pkg/core"
	"github.com/driftline/emergent/pkg/errors"
	"github.com/driftline/emergent/pkg/logging"
)

// Scoring factor weights. They sum to 1 so the combined score stays in [0, 1]
// before confidence scaling.
const (
	weightRawSalience   = 0.3
	weightRecency       = 0.2
	weightRelevance     = 0.25
	weightReinforcement = 0.15
	weightVelocity      = 0.1
)

// recencyHorizon is the staleness at which the recency factor reaches zero.
const recencyHorizon = 4 * time.Hour

// neutralFactor is used when a factor has no input to score against.
const neutralFactor = 0.5

// misalignedVelocity is the velocity factor for signals whose type does not
// fit the current trajectory direction.
const misalignedVelocity = 0.3

// EvalInput carries the optional scoring context for a gate evaluation.
// Missing inputs fall back to neutral factor values.
type EvalInput struct {
	// Keywords describing what the session currently cares about.
	Keywords []string

	// Motion is the session's latest trajectory snapshot, if any.
	Motion *core.MotionVector
}

// Gate evaluates signals against retention thresholds, user rules, and the
// session permeability policy. Safe for concurrent use.
type Gate struct {
	mu           sync.RWMutex
	cfg          config.GateConfig
	permeability core.Permeability
	rules        []Rule
	decisions    map[core.RetentionDecision]int
}

// NewGate builds a gate with the default rules and normal permeability.
func NewGate(cfg config.GateConfig) *Gate {
	return &Gate{
		cfg:          cfg,
		permeability: core.PermeabilityNormal,
		rules:        defaultRules(),
		decisions:    make(map[core.RetentionDecision]int),
	}
}

// SetPermeability switches the gate policy.
func (g *Gate) SetPermeability(p core.Permeability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Valid() {
		g.permeability = p
	}
}

// Permeability reports the current policy.
func (g *Gate) Permeability() core.Permeability {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.permeability
}

// AddRule registers a rule. Rules with the same name replace each other.
func (g *Gate) AddRule(r Rule) error {
	if r.Name == "" {
		return errors.New(errors.InvalidInput, "rule name is required")
	}
	if r.Predicate == nil {
		return errors.New(errors.InvalidInput, "rule predicate is required")
	}
	if !r.Decision.Valid() {
		return errors.New(errors.InvalidInput, fmt.Sprintf("invalid rule decision: %s", r.Decision))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeRuleLocked(r.Name)
	g.rules = append(g.rules, r)
	sort.SliceStable(g.rules, func(i, j int) bool {
		return g.rules[i].Priority > g.rules[j].Priority
	})
	return nil
}

// RemoveRule drops a rule by name. It reports whether a rule was removed.
func (g *Gate) RemoveRule(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeRuleLocked(name)
}

func (g *Gate) removeRuleLocked(name string) bool {
	for i, r := range g.rules {
		if r.Name == name {
			g.rules = append(g.rules[:i], g.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Rules returns the registered rule names in evaluation order.
func (g *Gate) Rules() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, len(g.rules))
	for i, r := range g.rules {
		names[i] = r.Name
	}
	return names
}

// Evaluate decides the fate of one signal. Permeability overrides come
// first, then user rules in priority order, then the threshold ladder over
// the composite salience score.
func (g *Gate) Evaluate(ctx context.Context, sig *core.Signal, now time.Time, in EvalInput) (core.RetentionDecision, error) {
	if err := errors.CheckContext(ctx, "evaluate"); err != nil {
		return core.DecisionDiscard, err
	}
	if sig == nil {
		return core.DecisionDiscard, errors.New(errors.InvalidInput, "cannot evaluate a nil signal")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	decision, matched := g.decideLocked(ctx, sig, now, in)
	g.decisions[decision]++
	if matched != "" {
		logging.GetLogger().Debug(ctx, "retention rule %q decided %s for signal %s", matched, decision, sig.ID)
	}
	return decision, nil
}

func (g *Gate) decideLocked(ctx context.Context, sig *core.Signal, now time.Time, in EvalInput) (core.RetentionDecision, string) {
	switch g.permeability {
	case core.PermeabilityClosed:
		return core.DecisionDiscard, ""
	case core.PermeabilityOpen:
		return core.DecisionRetain, ""
	}

	for _, r := range g.rules {
		matched, err := g.runPredicate(ctx, r, sig, now)
		if err != nil {
			continue
		}
		if matched {
			return r.Decision, r.Name
		}
	}

	mult := g.permeability.ThresholdMultiplier()
	retain := math.Min(1, g.cfg.RetainThreshold*mult)
	archive := math.Min(1, g.cfg.ArchiveThreshold*mult)
	floor := math.Min(1, g.cfg.MinimumSalience*mult)

	score := g.scoreLocked(sig, now, in)
	switch {
	case score >= retain:
		return core.DecisionRetain, ""
	case score >= archive:
		return core.DecisionArchive, ""
	case score >= floor:
		return core.DecisionDecay, ""
	default:
		return core.DecisionDiscard, ""
	}
}

// runPredicate isolates rule failures. A panicking or erroring predicate is
// logged and treated as a non-match.
func (g *Gate) runPredicate(ctx context.Context, r Rule, sig *core.Signal, now time.Time) (matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New(errors.RuleFailed, fmt.Sprintf("rule %q panicked: %v", r.Name, rec))
			logging.GetLogger().Warn(ctx, "retention rule %q panicked: %v", r.Name, rec)
		}
	}()
	matched, err = r.Predicate(sig, now)
	if err != nil {
		logging.GetLogger().Warn(ctx, "retention rule %q failed: %v", r.Name, err)
		return false, errors.Wrap(err, errors.RuleFailed, fmt.Sprintf("rule %q failed", r.Name))
	}
	return matched, nil
}

// ScoreSalience computes the composite retention score for a signal without
// recording a decision. The score combines raw salience, recency, keyword
// relevance, reinforcement depth, and trajectory alignment, then scales the
// result by the signal's confidence.
func (g *Gate) ScoreSalience(sig *core.Signal, now time.Time, in EvalInput) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scoreLocked(sig, now, in)
}

func (g *Gate) scoreLocked(sig *core.Signal, now time.Time, in EvalInput) float64 {
	recency := 1 - now.Sub(sig.LastSeen).Hours()/recencyHorizon.Hours()
	if recency < 0 {
		recency = 0
	} else if recency > 1 {
		recency = 1
	}

	relevance := neutralFactor
	if len(in.Keywords) > 0 {
		relevance = keywordOverlap(sig.Description, in.Keywords)
	}

	reinforcement := math.Min(1, math.Log1p(float64(sig.EvidenceCount))/3)

	velocity := neutralFactor
	if in.Motion != nil {
		if directionAffinity[sig.Type][in.Motion.Direction] {
			velocity = math.Min(1, 0.5+0.5*in.Motion.Momentum)
		} else {
			velocity = misalignedVelocity
		}
	}

	score := weightRawSalience*sig.Salience +
		weightRecency*recency +
		weightRelevance*relevance +
		weightReinforcement*reinforcement +
		weightVelocity*velocity
	score *= sig.Confidence
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// keywordOverlap is the Jaccard similarity between the folded words of a
// description and a keyword set.
func keywordOverlap(description string, keywords []string) float64 {
	words := make(map[string]bool)
	for _, w := range splitFoldedWords(description) {
		words[w] = true
	}
	kws := make(map[string]bool)
	for _, k := range keywords {
		for _, w := range splitFoldedWords(k) {
			kws[w] = true
		}
	}
	if len(words) == 0 || len(kws) == 0 {
		return 0
	}
	intersection := 0
	union := len(kws)
	for w := range words {
		if kws[w] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

func splitFoldedWords(s string) []string {
	return strings.FieldsFunc(core.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// DecayReport summarizes a maintenance pass over one session.
type DecayReport struct {
	Decayed        int
	Archived       int
	Dropped        int
	AnchorsDecayed int
	AnchorsRemoved int
}

// Merge accumulates another report into this one.
func (r *DecayReport) Merge(other DecayReport) {
	r.Decayed += other.Decayed
	r.Archived += other.Archived
	r.Dropped += other.Dropped
	r.AnchorsDecayed += other.AnchorsDecayed
	r.AnchorsRemoved += other.AnchorsRemoved
}

// ApplyDecay runs a maintenance pass over a session. Signal decay is the
// base rate amplified by age, staleness, and already-low salience. Expired
// signals are dropped, signals under the minimum salience are archived, and
// stale anchors are removed.
func (g *Gate) ApplyDecay(ctx context.Context, sc *core.SessionContext, now time.Time) (DecayReport, error) {
	var report DecayReport
	if err := errors.CheckContext(ctx, "apply decay"); err != nil {
		return report, err
	}
	if sc == nil {
		return report, errors.New(errors.InvalidInput, "cannot decay a nil session context")
	}

	g.mu.RLock()
	base := g.cfg.BaseDecayRate
	floor := g.cfg.MinimumSalience
	g.mu.RUnlock()

	report.Decayed, report.Archived, report.Dropped = sc.MaintainSignals(func(sig *core.Signal) core.SignalOutcome {
		factor := base * (1 + math.Min(0.5, now.Sub(sig.FirstSeen).Hours()/24))
		if now.Sub(sig.LastSeen) > time.Hour {
			factor *= 1.2
		}
		if sig.Salience < 0.3 {
			factor *= 1.3
		}
		sig.Decay(math.Min(1, factor))

		switch {
		case sig.IsExpired(now):
			return core.SignalDrop
		case sig.EffectiveSalience(now) < floor:
			return core.SignalArchive
		default:
			return core.SignalKeep
		}
	})

	report.AnchorsDecayed, report.AnchorsRemoved = sc.MaintainAnchors(func(a *core.Anchor) bool {
		a.Decay(base)
		return a.IsStale(now)
	})

	logging.GetLogger().Debug(ctx, "decay pass on session %s: %d decayed, %d archived, %d dropped",
		sc.ID(), report.Decayed, report.Archived, report.Dropped)
	return report, nil
}

// Stats returns a copy of the decision counters.
func (g *Gate) Stats() map[core.RetentionDecision]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[core.RetentionDecision]int, len(g.decisions))
	for k, v := range g.decisions {
		out[k] = v
	}
	return out
}
