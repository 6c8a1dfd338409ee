// Package lifecycle holds the pure card transition rules and the
// system-state aggregator. Functions take a card by value and return the
// transformed card; persistence is the engine's job.
package lifecycle

import (
	"fmt"
	"time"

	"loopline/internal/domain"
)

// InvalidTransitionError reports an event requested against a failing guard.
// The card is left unchanged; callers treat this as a programming-contract
// violation, not a user-facing runtime error.
type InvalidTransitionError struct {
	From  string
	Event string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s from state %s", e.Event, e.From)
}

// ExecutePlan carries the payload of an execute decision.
type ExecutePlan struct {
	StartAction     string
	StopRule        string
	DurationMinutes int
}

// BeginConfrontation enters the transient confronting state. The counter and
// timestamp effects are persisted by the engine even when the session is
// later cancelled; the confronting state itself never is.
func BeginConfrontation(c domain.Card, now time.Time) (domain.Card, error) {
	switch c.State {
	case domain.StateUncommitted, domain.StateShadowed:
	default:
		return c, InvalidTransitionError{From: c.State, Event: "beginConfrontation"}
	}
	ts := formatTime(now)
	c.State = domain.StateConfronting
	c.ConfrontedAt = &ts
	c.TotalConfrontations++
	return c, nil
}

// Cancel reverts a confronting card to the state it held before the
// confrontation began, reconstructed from its last decision context.
func Cancel(c domain.Card) (domain.Card, error) {
	if c.State != domain.StateConfronting {
		return c, InvalidTransitionError{From: c.State, Event: "cancelConfrontation"}
	}
	prior, err := PriorState(c)
	if err != nil {
		return c, err
	}
	c.State = prior
	return c, nil
}

// PriorState derives the persisted state a confronting card came from. A
// never-decided card came from uncommitted. A card last decided shadow, or
// decided execute and later aborted, came from shadowed. Any other decision
// context on a confronting card is a defect: discarded cards are terminal
// and a live execution cannot be confronted.
func PriorState(c domain.Card) (string, error) {
	if c.Decision == nil {
		return domain.StateUncommitted, nil
	}
	switch *c.Decision {
	case domain.DecisionShadow:
		return domain.StateShadowed, nil
	case domain.DecisionExecute:
		if c.ExecuteResult != nil && *c.ExecuteResult == domain.ResultAborted {
			return domain.StateShadowed, nil
		}
	}
	return "", fmt.Errorf("card %s: decision %q has no valid pre-confrontation state", c.ID, *c.Decision)
}

// Decide ends a confrontation. For execute decisions plan must be non-nil;
// its start action and stop rule are attached to the card and a positive
// duration overrides the card's execute duration.
func Decide(c domain.Card, decision string, plan *ExecutePlan, now time.Time) (domain.Card, error) {
	if c.State != domain.StateConfronting {
		return c, InvalidTransitionError{From: c.State, Event: "decide(" + decision + ")"}
	}
	ts := formatTime(monotonicAfter(c.DecidedAt, now))
	switch decision {
	case domain.DecisionExecute:
		if plan == nil {
			return c, fmt.Errorf("execute decision requires a plan")
		}
		c.State = domain.StateExecuted
		c.StartAction = plan.StartAction
		c.StopRule = plan.StopRule
		if plan.DurationMinutes > 0 {
			c.ExecuteDuration = plan.DurationMinutes
		}
	case domain.DecisionShadow:
		c.State = domain.StateShadowed
	case domain.DecisionDiscard:
		c.State = domain.StateDiscarded
	default:
		return c, fmt.Errorf("unknown decision %q", decision)
	}
	d := decision
	c.Decision = &d
	c.DecidedAt = &ts
	c.ExecuteResult = nil
	return c, nil
}

// StartTimer starts the execution window. The allowed-domain list is frozen
// from this point on; the engine enforces that by refusing further domain
// edits.
func StartTimer(c domain.Card, now time.Time) (domain.Card, error) {
	if c.State != domain.StateExecuted {
		return c, InvalidTransitionError{From: c.State, Event: "startTimer"}
	}
	if c.ExecuteStartedAt != nil {
		return c, InvalidTransitionError{From: c.State, Event: "startTimer: timer already started"}
	}
	ts := formatTime(now)
	c.ExecuteStartedAt = &ts
	return c, nil
}

// Stop closes the loop: the card is discarded whether or not the duration
// has elapsed. The start timestamp is cleared so no later state inherits it.
func Stop(c domain.Card) (domain.Card, error) {
	if c.State != domain.StateExecuted {
		return c, InvalidTransitionError{From: c.State, Event: "stop"}
	}
	res := domain.ResultStopped
	c.State = domain.StateDiscarded
	c.ExecuteResult = &res
	c.ExecuteStartedAt = nil
	return c, nil
}

// Abort bails out of an execution and parks the card in shadowed.
func Abort(c domain.Card) (domain.Card, error) {
	if c.State != domain.StateExecuted {
		return c, InvalidTransitionError{From: c.State, Event: "abort"}
	}
	res := domain.ResultAborted
	c.State = domain.StateShadowed
	c.ExecuteResult = &res
	c.ExecuteStartedAt = nil
	return c, nil
}

// Remaining reports milliseconds left in an execution window, never
// negative. Cards without a running timer have no remaining time.
func Remaining(c domain.Card, now time.Time) int64 {
	if c.State != domain.StateExecuted || c.ExecuteStartedAt == nil {
		return 0
	}
	started, err := ParseTime(*c.ExecuteStartedAt)
	if err != nil {
		return 0
	}
	total := int64(c.ExecuteDuration) * 60_000
	elapsed := now.Sub(started).Milliseconds()
	if elapsed >= total {
		return 0
	}
	return total - elapsed
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime reads a persisted RFC3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// monotonicAfter keeps decided_at non-decreasing across a card's lifetime
// even if the injected clock steps backwards.
func monotonicAfter(prev *string, now time.Time) time.Time {
	if prev == nil {
		return now
	}
	p, err := ParseTime(*prev)
	if err != nil {
		return now
	}
	if now.Before(p) {
		return p
	}
	return now
}
