package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/driftline/emergent/pkg/config"
	"github.com/driftline/emergent/pkg/core"
	"github.com/driftline/emergent/pkg/errors"
	"github.com/driftline/emergent/pkg/logging"
)

// Hook is an observation extension point. A failing hook is logged and
// skipped; it never aborts the observation pass.
type Hook func(ctx context.Context, event core.Event) error

// clusterWindow is the lookback for the cluster detector.
const clusterWindow = 5 * time.Minute

// clusterShare is the dominance share a single action must exceed.
const clusterShare = 0.3

// clusterMinCount is the minimum occurrences for a cluster candidate.
const clusterMinCount = 3

// featureKeys are the event keys that participate in co-occurrence counting.
var featureKeys = []string{"action", "type", "intent", "topic"}

type observation struct {
	event  core.Event
	action string
	at     time.Time
}

// pairKey is a symmetric co-occurrence table key; a is always <= b.
type pairKey struct {
	a, b string
}

func makePairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Engine discovers statistical patterns from raw observations: what
// co-occurs, what repeats, what clusters. Candidates accumulate evidence
// until they cross the promotion threshold and emit Signals.
//
// All state behind the engine's mutex is consistent with the exact arrival
// order of observations for the session; Observe holds the lock through
// detection, promotion, and maintenance.
type Engine struct {
	mu sync.Mutex

	cfg     config.EngineConfig
	session *core.SessionContext

	window     []observation
	cooccur    map[pairKey]float64
	sequence   []string
	candidates map[string]*candidate
	emitted    map[string]*core.Signal
	hooks      map[string]Hook

	observations int
	promoted     int
}

// New creates a pattern engine bound to one session context. A nil session
// is allowed; emitted signals then live only in the engine.
func New(cfg config.EngineConfig, session *core.SessionContext) *Engine {
	return &Engine{
		cfg:        cfg,
		session:    session,
		cooccur:    make(map[pairKey]float64),
		candidates: make(map[string]*candidate),
		emitted:    make(map[string]*core.Signal),
		hooks:      make(map[string]Hook),
	}
}

// RegisterHook installs a named observation hook.
func (e *Engine) RegisterHook(name string, h Hook) error {
	if h == nil {
		return errors.New(errors.InvalidInput, "hook cannot be nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[name] = h
	return nil
}

// UnregisterHook removes a named observation hook.
func (e *Engine) UnregisterHook(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.hooks, name)
}

// Observe is the single entry point for raw events. Malformed input is
// coerced, never rejected; the only error returned is context cancellation.
func (e *Engine) Observe(ctx context.Context, raw interface{}) error {
	if err := errors.CheckContext(ctx, "observe"); err != nil {
		return err
	}

	event := core.NormalizeEvent(raw)
	now := event.Timestamp()
	if now.IsZero() {
		now = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	obs := observation{event: event, action: event.Action(), at: now}
	e.window = append(e.window, obs)
	if len(e.window) > e.cfg.WindowCapacity {
		e.window = e.window[len(e.window)-e.cfg.WindowCapacity:]
	}

	e.updateCooccurrence(event)

	if obs.action != "" {
		e.sequence = append(e.sequence, obs.action)
		if len(e.sequence) > e.cfg.SequenceCapacity {
			e.sequence = e.sequence[len(e.sequence)-e.cfg.SequenceCapacity:]
		}
	}

	e.runHooks(ctx, event)

	e.observations++
	if e.observations%e.cfg.EvalInterval == 0 {
		e.detectCooccurrence(now)
		e.detectSequences(now)
		e.detectClusters(now)
		e.promote(ctx, now)
		e.maintain(ctx, now)
	}

	return nil
}

// withSignal runs fn on an emitted signal. Signals attached to a session are
// shared with the retention path, so access goes through the session lock;
// detached signals are engine-private.
func (e *Engine) withSignal(sig *core.Signal, fn func(*core.Signal)) {
	if e.session != nil {
		e.session.UpdateSignal(sig, fn)
		return
	}
	fn(sig)
}

// features extracts "key=value" feature strings from the event.
func features(event core.Event) []string {
	out := make([]string, 0, len(featureKeys))
	for _, key := range featureKeys {
		if v, ok := event[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, key+"="+s)
			}
		}
	}
	return out
}

func (e *Engine) updateCooccurrence(event core.Event) {
	feats := features(event)
	for i := 0; i < len(feats); i++ {
		for j := i + 1; j < len(feats); j++ {
			e.cooccur[makePairKey(feats[i], feats[j])]++
		}
	}
}

func (e *Engine) runHooks(ctx context.Context, event core.Event) {
	logger := logging.GetLogger()
	for name, hook := range e.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn(ctx, "observation hook %q panicked: %v", name, r)
				}
			}()
			if err := hook(ctx, event); err != nil {
				logger.Warn(ctx, "observation hook %q failed: %v", name, err)
			}
		}()
	}
}

// detectCooccurrence turns feature pairs with enough support into
// correlation candidates.
func (e *Engine) detectCooccurrence(now time.Time) {
	for pair, count := range e.cooccur {
		n := int(count)
		if n < e.cfg.MinSupport {
			continue
		}
		desc := fmt.Sprintf("%s co-occurs with %s", pair.a, pair.b)
		e.upsertCandidate(core.SignalCorrelation, desc, n, 0.1, now)
	}
}

// detectSequences finds repeated action runs of length 2 and 3 over the
// recent action history.
func (e *Engine) detectSequences(now time.Time) {
	for _, length := range []int{2, 3} {
		if len(e.sequence) < length {
			continue
		}
		counts := make(map[string]int)
		for i := 0; i+length <= len(e.sequence); i++ {
			counts[strings.Join(e.sequence[i:i+length], " -> ")]++
		}
		for run, n := range counts {
			if n < 2 {
				continue
			}
			desc := fmt.Sprintf("repeated sequence: %s", run)
			e.upsertCandidate(core.SignalSequence, desc, n, 0.15, now)
		}
	}
}

// detectClusters finds a single action dominating recent activity.
func (e *Engine) detectClusters(now time.Time) {
	cutoff := now.Add(-clusterWindow)
	counts := make(map[string]int)
	total := 0
	for _, obs := range e.window {
		if obs.at.Before(cutoff) || obs.action == "" {
			continue
		}
		counts[obs.action]++
		total++
	}
	if total == 0 {
		return
	}
	for action, n := range counts {
		share := float64(n) / float64(total)
		if share <= clusterShare || n < clusterMinCount {
			continue
		}
		desc := fmt.Sprintf("%s dominates recent activity", action)
		e.upsertCandidate(core.SignalCluster, desc, n, share, now)
	}
}

func (e *Engine) upsertCandidate(ctype core.SignalType, desc string, count int, boost float64, now time.Time) {
	key := string(ctype) + "|" + desc
	c, ok := e.candidates[key]
	if !ok {
		c = newCandidate(ctype, desc, now)
		e.candidates[key] = c
	}
	c.update(count, boost, now)
}

// promote emits a Signal for every candidate past the threshold and removes
// it from the candidate table.
func (e *Engine) promote(ctx context.Context, now time.Time) {
	logger := logging.GetLogger()
	for key, c := range e.candidates {
		conf := c.confidence(now)
		if conf < e.cfg.PromotionThreshold || c.support < e.cfg.MinSupport {
			continue
		}

		salience := conf + 0.1
		if salience > 0.9 {
			salience = 0.9
		}
		sig := core.NewSignal(c.ctype, c.description, conf, salience, map[string]interface{}{
			"candidate_id": c.id,
			"support":      c.support,
		})
		sig.EvidenceCount = c.support

		if existing, ok := e.emitted[key]; ok {
			var mergeErr error
			e.withSignal(existing, func(s *core.Signal) {
				mergeErr = s.Merge(sig)
			})
			if mergeErr != nil {
				logger.Warn(ctx, "merge of promoted signal failed: %v", mergeErr)
			}
		} else {
			e.emitted[key] = sig
			if e.session != nil {
				if err := e.session.AddSignal(sig); err != nil {
					logger.Warn(ctx, "could not attach promoted signal: %v", err)
				}
			}
		}

		delete(e.candidates, key)
		e.promoted++
		logger.Debug(ctx, "promoted %s candidate %q (confidence %.3f, support %d)",
			c.ctype, c.description, conf, c.support)
	}
}

// maintain prunes aged observations, decays emitted signals and
// co-occurrence counts, and drops stale weak candidates.
func (e *Engine) maintain(ctx context.Context, now time.Time) {
	if e.cfg.WindowMaxAge > 0 {
		cutoff := now.Add(-e.cfg.WindowMaxAge)
		kept := e.window[:0]
		for _, obs := range e.window {
			if !obs.at.Before(cutoff) {
				kept = append(kept, obs)
			}
		}
		e.window = kept
	}

	for key, sig := range e.emitted {
		expired := false
		e.withSignal(sig, func(s *core.Signal) {
			s.Decay(e.cfg.MaintenanceDecay)
			expired = s.IsExpired(now)
		})
		if expired {
			delete(e.emitted, key)
			if e.session != nil {
				e.session.RemoveSignal(sig.ID)
			}
		}
	}

	for key, c := range e.candidates {
		if c.stale(now) {
			delete(e.candidates, key)
		}
	}

	for pair, count := range e.cooccur {
		count *= 0.9
		if count < 1 {
			delete(e.cooccur, pair)
			continue
		}
		e.cooccur[pair] = count
	}
}

// QueryEmergent returns up to 10 emitted signals ranked by how well they
// match the query text. Unknown queries return an empty list, not an error.
func (e *Engine) QueryEmergent(text string) []*core.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	type scored struct {
		sig   *core.Signal
		score float64
	}
	matches := make([]scored, 0, len(e.emitted))
	for _, sig := range e.emitted {
		var score float64
		e.withSignal(sig, func(s *core.Signal) {
			score = s.MatchScore(text)
		})
		if score > 0 {
			matches = append(matches, scored{sig: sig, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > 10 {
		matches = matches[:10]
	}

	out := make([]*core.Signal, len(matches))
	for i, m := range matches {
		out[i] = m.sig
	}
	return out
}

// SalienceMap merges emitted-signal salience with near-threshold candidate
// confidence, keyed by truncated description, returning the top 20.
func (e *Engine) SalienceMap() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	scores := make(map[string]float64)
	for _, sig := range e.emitted {
		var eff float64
		e.withSignal(sig, func(s *core.Signal) {
			eff = s.EffectiveSalience(now)
		})
		scores[truncate(sig.Description, 60)] = eff
	}
	nearThreshold := e.cfg.PromotionThreshold * 0.7
	for _, c := range e.candidates {
		conf := c.confidence(now)
		if conf < nearThreshold {
			continue
		}
		key := truncate(c.description, 60)
		if existing, ok := scores[key]; !ok || conf*0.7 > existing {
			scores[key] = conf * 0.7
		}
	}

	if len(scores) <= 20 {
		return scores
	}

	type entry struct {
		key   string
		score float64
	}
	entries := make([]entry, 0, len(scores))
	for k, v := range scores {
		entries = append(entries, entry{key: k, score: v})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})
	top := make(map[string]float64, 20)
	for _, en := range entries[:20] {
		top[en.key] = en.score
	}
	return top
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Stats reports engine counters for observability.
type Stats struct {
	Observations int
	Window       int
	Candidates   int
	Emitted      int
	Promoted     int
}

// GetStats returns a snapshot of the engine's counters.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Observations: e.observations,
		Window:       len(e.window),
		Candidates:   len(e.candidates),
		Emitted:      len(e.emitted),
		Promoted:     e.promoted,
	}
}
