package retention

import (
	"time"

	"github.com/driftline/emergent/pkg/core"
)

// Rule is a user-registered retention rule. Rules are evaluated highest
// priority first and the first matching rule wins. A predicate that fails
// (error or panic) is skipped; it never aborts the evaluation pass.
type Rule struct {
	Name      string
	Priority  int
	Decision  core.RetentionDecision
	Predicate func(sig *core.Signal, now time.Time) (bool, error)
}

// defaultRules are the rules the gate ships with.
func defaultRules() []Rule {
	return []Rule{
		{
			Name:     "retain-high-confidence-deviations",
			Priority: 100,
			Decision: core.DecisionRetain,
			Predicate: func(sig *core.Signal, now time.Time) (bool, error) {
				return sig.Type == core.SignalDeviation && sig.Confidence > 0.7, nil
			},
		},
		{
			Name:     "retain-heavily-reinforced",
			Priority: 90,
			Decision: core.DecisionRetain,
			Predicate: func(sig *core.Signal, now time.Time) (bool, error) {
				return sig.EvidenceCount >= 5 && sig.Confidence > 0.5, nil
			},
		},
		{
			Name:     "discard-old-low-confidence",
			Priority: 80,
			Decision: core.DecisionDiscard,
			Predicate: func(sig *core.Signal, now time.Time) (bool, error) {
				return now.Sub(sig.FirstSeen) > 2*time.Hour && sig.Confidence < 0.3, nil
			},
		},
	}
}

// directionAffinity maps signal types to the trajectory directions they are
// most useful under. Alignment feeds the velocity factor of salience scoring.
var directionAffinity = map[core.SignalType]map[core.Direction]bool{
	core.SignalCorrelation: {core.DirectionInvestigation: true, core.DirectionSynthesis: true},
	core.SignalCluster:     {core.DirectionExecution: true, core.DirectionInvestigation: true},
	core.SignalSequence:    {core.DirectionExecution: true},
	core.SignalDeviation:   {core.DirectionInvestigation: true, core.DirectionReflection: true},
	core.SignalRecurrence:  {core.DirectionExecution: true, core.DirectionSynthesis: true},
	core.SignalConvergence: {core.DirectionSynthesis: true},
	core.SignalTransition:  {core.DirectionTransition: true, core.DirectionExploration: true},
	core.SignalSaturation:  {core.DirectionReflection: true, core.DirectionSynthesis: true},
}
