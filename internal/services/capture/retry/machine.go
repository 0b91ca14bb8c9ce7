// Package retry bounds the clarification loop for misunderstood captures
package retry

import (
	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/services/capture/domain"
)

// DefaultMaxRounds is how many follow-up rounds a capture gets before it is
// forced to unresolved
const DefaultMaxRounds = 2

// Machine applies the bounded-round transition rules
// State lives on the persisted Capture, never in process memory
type Machine struct {
	MaxRounds int
}

// New builds a machine; max <= 0 uses the default
func New(max int) Machine {
	if max <= 0 {
		max = DefaultMaxRounds
	}
	return Machine{MaxRounds: max}
}

// Accepts reports whether a follow-up may run against this capture
// Only misunderstood captures with rounds remaining are eligible
func (m Machine) Accepts(c *domain.Capture) error {
	if c == nil {
		return perr.NotFoundf("capture not found")
	}
	switch c.Status {
	case domain.StatusMisunderstood:
	case domain.StatusUnresolved:
		return perr.InvalidArgf("capture %s is unresolved and accepts no further follow-up", c.ID)
	default:
		return perr.InvalidArgf("capture %s has status %s, follow-up requires misunderstood", c.ID, c.Status)
	}
	if c.Round >= m.MaxRounds {
		return perr.InvalidArgf("capture %s has exhausted its %d follow-up rounds", c.ID, m.MaxRounds)
	}
	return nil
}

// NextRound returns the round number a new follow-up runs as
// The counter is monotonic; it is persisted before the pipeline is invoked
func (m Machine) NextRound(c *domain.Capture) int {
	return c.Round + 1
}

// Decision is the evaluated transition for one follow-up outcome
type Decision struct {
	Kind domain.OutcomeKind

	// Forced is true when a misunderstood outcome was overridden to
	// unresolved because the round cap was hit
	Forced bool
}

// Evaluate applies the transition rules for a follow-up that ran as round
func (m Machine) Evaluate(round int, kind domain.OutcomeKind) Decision {
	if kind == domain.OutcomeMisunderstood && round >= m.MaxRounds {
		return Decision{Kind: domain.OutcomeUnresolved, Forced: true}
	}
	return Decision{Kind: kind}
}
