package core

import (
	"github.com/driftline/emergent/pkg/errors"
)

// SignalType categorizes a discovered pattern.
type SignalType string

const (
	SignalCorrelation SignalType = "correlation"
	SignalCluster     SignalType = "cluster"
	SignalSequence    SignalType = "sequence"
	SignalDeviation   SignalType = "deviation"
	SignalRecurrence  SignalType = "recurrence"
	SignalConvergence SignalType = "convergence"
	SignalTransition  SignalType = "transition"
	SignalSaturation  SignalType = "saturation"
)

// Valid reports whether the type is one of the closed set.
func (t SignalType) Valid() bool {
	switch t {
	case SignalCorrelation, SignalCluster, SignalSequence, SignalDeviation,
		SignalRecurrence, SignalConvergence, SignalTransition, SignalSaturation:
		return true
	}
	return false
}

// ParseSignalType converts a lowercase string into a SignalType.
func ParseSignalType(s string) (SignalType, error) {
	t := SignalType(s)
	if !t.Valid() {
		return "", errors.WithFields(
			errors.New(errors.InvalidInput, "unknown signal type"),
			errors.Fields{"type": s})
	}
	return t, nil
}

// AnchorType categorizes a stable reference point.
type AnchorType string

const (
	AnchorTopic    AnchorType = "topic"
	AnchorIntent   AnchorType = "intent"
	AnchorTask     AnchorType = "task"
	AnchorEntity   AnchorType = "entity"
	AnchorTemporal AnchorType = "temporal"
	AnchorCausal   AnchorType = "causal"
	AnchorCustom   AnchorType = "custom"
)

// Valid reports whether the type is one of the closed set.
func (t AnchorType) Valid() bool {
	switch t {
	case AnchorTopic, AnchorIntent, AnchorTask, AnchorEntity,
		AnchorTemporal, AnchorCausal, AnchorCustom:
		return true
	}
	return false
}

// ParseAnchorType converts a lowercase string into an AnchorType.
func ParseAnchorType(s string) (AnchorType, error) {
	t := AnchorType(s)
	if !t.Valid() {
		return "", errors.WithFields(
			errors.New(errors.InvalidInput, "unknown anchor type"),
			errors.Fields{"type": s})
	}
	return t, nil
}

// Direction categorizes a session's cognitive trajectory.
type Direction string

const (
	DirectionExploration   Direction = "exploration"
	DirectionInvestigation Direction = "investigation"
	DirectionExecution     Direction = "execution"
	DirectionSynthesis     Direction = "synthesis"
	DirectionReflection    Direction = "reflection"
	DirectionTransition    Direction = "transition"
	DirectionUnknown       Direction = "unknown"
)

// Valid reports whether the direction is one of the closed set.
func (d Direction) Valid() bool {
	switch d {
	case DirectionExploration, DirectionInvestigation, DirectionExecution,
		DirectionSynthesis, DirectionReflection, DirectionTransition, DirectionUnknown:
		return true
	}
	return false
}

// SessionStatus describes the lifecycle state of a session context.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusActive       SessionStatus = "active"
	StatusStable       SessionStatus = "stable"
	StatusDrifting     SessionStatus = "drifting"
	StatusStale        SessionStatus = "stale"
	StatusDissolved    SessionStatus = "dissolved"
)

// RetentionDecision is the outcome of evaluating a signal against the gate.
type RetentionDecision string

const (
	DecisionRetain  RetentionDecision = "retain"
	DecisionArchive RetentionDecision = "archive"
	DecisionDecay   RetentionDecision = "decay"
	DecisionDiscard RetentionDecision = "discard"
)

// Permeability is a gate-wide sensitivity setting that scales retention
// thresholds up or down.
type Permeability string

const (
	PermeabilityClosed     Permeability = "closed"
	PermeabilityRestricted Permeability = "restricted"
	PermeabilityNormal     Permeability = "normal"
	PermeabilityPermissive Permeability = "permissive"
	PermeabilityOpen       Permeability = "open"
)

// Valid reports whether the decision is one of the known outcomes.
func (d RetentionDecision) Valid() bool {
	switch d {
	case DecisionRetain, DecisionArchive, DecisionDecay, DecisionDiscard:
		return true
	}
	return false
}

// Valid reports whether the permeability is one of the known settings.
func (p Permeability) Valid() bool {
	switch p {
	case PermeabilityClosed, PermeabilityRestricted, PermeabilityNormal, PermeabilityPermissive, PermeabilityOpen:
		return true
	}
	return false
}

// ThresholdMultiplier returns the factor applied to retention thresholds.
// Closed and open bypass thresholds entirely, so they scale by 1.
func (p Permeability) ThresholdMultiplier() float64 {
	switch p {
	case PermeabilityRestricted:
		return 1.5
	case PermeabilityPermissive:
		return 0.7
	default:
		return 1.0
	}
}
