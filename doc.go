// Package emergent discovers patterns in session event streams so that
// context never has to start from nothing. It watches raw observations,
// promotes recurring structure into confidence-scored signals, decides what
// survives between windows, and tracks where the session is heading.
//
// The module is organized around four cooperating pieces, one set per
// session:
//
//   - Patterns: a sliding-window engine (pkg/patterns) that accumulates
//     co-occurrence, sequence, and cluster evidence and promotes candidates
//     into Signals once confidence and support cross thresholds.
//
//   - Retention: a gate (pkg/retention) that scores each signal across
//     salience, recency, relevance, reinforcement, and trajectory alignment,
//     then retains, archives, decays, or discards it. Permeability settings
//     and user rules override the scoring ladder.
//
//   - Motion: a tracker (pkg/motion) that derives direction, magnitude,
//     momentum, and drift from the same event stream, with a monotonic
//     internal clock that tolerates skewed or replayed timestamps.
//
//   - Core: the session-scoped data model (pkg/core): Signal, Anchor,
//     MotionVector, and the bounded SessionContext that owns them.
//
// pkg/sessions ties the pieces together: a Registry hands out lazily
// created per-session component sets and runs concurrent maintenance sweeps
// across them. All state is in-process and bounded; persistence and
// transport belong to the host application.
//
// Basic usage:
//
//	registry := sessions.NewRegistry(config.DefaultConfig())
//	s, err := registry.GetOrCreate("session-42")
//	if err != nil {
//		return err
//	}
//	if err := s.Observe(ctx, map[string]interface{}{
//		"action": "search",
//		"topic":  "auth",
//	}); err != nil {
//		return err
//	}
//	for _, sig := range s.Engine.QueryEmergent("auth") {
//		fmt.Println(sig.Description, sig.Confidence)
//	}
package emergent
