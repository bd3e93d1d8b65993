// Package sessions owns the per-session wiring: each session gets its own
// pattern engine, retention gate, motion tracker, and context, created
// lazily and never shared across sessions. The registry is the only
// cross-session structure in the module; hosts own a registry instance
// rather than a process-wide singleton.
package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/driftline/emergent/pkg/config"
	"github.com/driftline/emergent/pkg/core"
	"github.com/driftline/emergent/pkg/errors"
	"github.com/driftline/emergent/pkg/logging"
	"github.com/driftline/emergent/pkg/motion"
	"github.com/driftline/emergent/pkg/patterns"
	"github.com/driftline/emergent/pkg/retention"
)

// sweepConcurrency bounds the maintenance fan-out. Sessions share no state,
// so the sweep parallelizes freely up to this limit.
const sweepConcurrency = 8

// Session bundles everything that belongs to one session id.
type Session struct {
	ID      string
	Engine  *patterns.Engine
	Gate    *retention.Gate
	Tracker *motion.Tracker
	Context *core.SessionContext
}

// Observe feeds one raw event through both consumers: the pattern engine for
// discovery and the tracker for trajectory, storing the fresh motion vector
// on the session context.
func (s *Session) Observe(ctx context.Context, raw interface{}) error {
	if err := s.Engine.Observe(ctx, raw); err != nil {
		return err
	}
	vector, err := s.Tracker.Track(ctx, raw)
	if err != nil {
		return err
	}
	s.Context.SetMotion(vector)
	s.Context.UpdateStatus(vector.Timestamp)
	return nil
}

// Registry hands out per-session component sets. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	cfg      *config.Config
	sessions map[string]*Session
}

// NewRegistry builds a registry. A nil config falls back to the defaults.
func NewRegistry(cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session's component set, creating it on first use.
func (r *Registry) GetOrCreate(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New(errors.InvalidInput, "session id is required")
	}

	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s, nil
	}

	sc := core.NewSessionContext(sessionID, r.cfg.Context.MaxAnchors, r.cfg.Context.MaxSignals)
	s = &Session{
		ID:      sessionID,
		Engine:  patterns.New(r.cfg.Engine, sc),
		Gate:    retention.NewGate(r.cfg.Gate),
		Tracker: motion.NewTracker(r.cfg.Tracker),
		Context: sc,
	}
	r.sessions[sessionID] = s
	logging.GetLogger().Debug(logging.WithSession(context.Background(), sessionID),
		"created session components for %s", sessionID)
	return s, nil
}

// Get returns an existing session set or a typed not-found error.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.ResourceNotFound, fmt.Sprintf("unknown session: %s", sessionID))
	}
	return s, nil
}

// Dissolve tears a session down: the context is dissolved and the component
// set is removed. It reports whether the session existed.
func (r *Registry) Dissolve(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.Context.Dissolve()
	delete(r.sessions, sessionID)
	return true
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SweepAll runs each session's decay pass concurrently and aggregates the
// outcome counts. Per-session failures abort the sweep via the pool's error
// propagation.
func (r *Registry) SweepAll(ctx context.Context, now time.Time) (retention.DecayReport, error) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	var total retention.DecayReport

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(sweepConcurrency)
	for _, s := range snapshot {
		s := s
		p.Go(func(ctx context.Context) error {
			report, err := s.Gate.ApplyDecay(ctx, s.Context, now)
			if err != nil {
				return errors.Wrap(err, errors.Unknown, fmt.Sprintf("decay pass failed for session %s", s.ID))
			}
			mu.Lock()
			total.Merge(report)
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return total, err
	}
	return total, nil
}
