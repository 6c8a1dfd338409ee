// Package session drives the three-phase confrontation wrapping one
// decision: Gate, Reality Check, Decision. A session lives entirely in
// memory; it holds the transient confronting card and is discarded once the
// decision is committed or the session is cancelled. Abandoning a session
// is equivalent to cancelling it: nothing about the transient phase is ever
// persisted.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"loopline/internal/domain"
	"loopline/internal/engine"
	"loopline/internal/lifecycle"
)

// RealityCheckDuration is the fixed display phase between the gate and the
// decision. It is a pacing control, not a wait on anything: it must elapse
// in full even when the content is trivial.
const RealityCheckDuration = 2500 * time.Millisecond

// Phases of a confrontation.
const (
	PhaseGate         = "gate"
	PhaseRealityCheck = "reality_check"
	PhaseDecision     = "decision"
	PhaseClosed       = "closed"
)

// ErrPhase reports an operation invoked outside its phase.
var ErrPhase = errors.New("operation not valid in this phase")

// Session wraps one beginConfrontation → decision cycle for a single card.
type Session struct {
	engine  *engine.Engine
	actorID string
	delay   time.Duration

	mu        sync.Mutex
	card      domain.Card // transient: state is confronting until closed
	phase     string
	gateAt    time.Time
	checkedAt time.Time
}

// Begin records the confrontation entry (counter, timestamp) and opens the
// gate. The card's confronting state exists only inside the returned
// session.
func Begin(ctx context.Context, e *engine.Engine, cardID, actorID string) (*Session, error) {
	card, err := e.RecordConfrontation(ctx, cardID, actorID)
	if err != nil {
		return nil, err
	}
	s := &Session{
		engine:  e,
		actorID: actorID,
		delay:   RealityCheckDuration,
		card:    card,
		phase:   PhaseGate,
	}
	s.gateAt = s.now()
	return s, nil
}

// Card returns the transient confronting card.
func (s *Session) Card() domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.card
}

// Phase returns the current phase.
func (s *Session) Phase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Proceed passes the gate and starts the reality check clock. No input is
// accepted until the check elapses.
func (s *Session) Proceed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseGate {
		return fmt.Errorf("proceed: %w (phase %s)", ErrPhase, s.phase)
	}
	s.phase = PhaseRealityCheck
	s.checkedAt = s.now()
	return nil
}

// Wait blocks until the reality check has elapsed in full, then advances to
// the decision phase. Cancelling the context abandons the wait (and the
// caller should cancel the session).
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseRealityCheck {
		s.mu.Unlock()
		return fmt.Errorf("wait: %w (phase %s)", ErrPhase, s.phase)
	}
	remaining := s.delay - s.now().Sub(s.checkedAt)
	s.mu.Unlock()

	if remaining > 0 {
		t := time.NewTimer(remaining)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRealityCheck {
		return fmt.Errorf("wait: %w (phase %s)", ErrPhase, s.phase)
	}
	s.phase = PhaseDecision
	return nil
}

// Ready reports whether the reality check has fully elapsed.
func (s *Session) Ready(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseDecision:
		return true
	case PhaseRealityCheck:
		return now.Sub(s.checkedAt) >= s.delay
	default:
		return false
	}
}

// Advance moves reality check to decision once Ready; used by surfaces that
// poll instead of blocking on Wait.
func (s *Session) Advance(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseDecision {
		return nil
	}
	if s.phase != PhaseRealityCheck {
		return fmt.Errorf("advance: %w (phase %s)", ErrPhase, s.phase)
	}
	if now.Sub(s.checkedAt) < s.delay {
		return fmt.Errorf("reality check still running")
	}
	s.phase = PhaseDecision
	return nil
}

// Decide ends the session with one of the three choices and commits the
// decided card. For execute, missing plan fields are resolved through the
// engine (AI collaborator, then configured fallbacks).
func (s *Session) Decide(ctx context.Context, decision, startAction, stopRule string, durationMinutes int) (domain.Card, error) {
	s.mu.Lock()
	if s.phase != PhaseDecision {
		s.mu.Unlock()
		return domain.Card{}, fmt.Errorf("decide: %w (phase %s)", ErrPhase, s.phase)
	}
	card := s.card
	s.mu.Unlock()

	var plan *lifecycle.ExecutePlan
	if decision == domain.DecisionExecute {
		p := s.engine.ResolvePlan(ctx, card, startAction, stopRule, durationMinutes)
		plan = &p
	}
	decided, err := lifecycle.Decide(card, decision, plan, s.now())
	if err != nil {
		return domain.Card{}, err
	}
	committed, err := s.engine.CommitDecision(ctx, decided, s.actorID)
	if err != nil {
		return domain.Card{}, err
	}
	s.mu.Lock()
	s.card = committed
	s.phase = PhaseClosed
	s.mu.Unlock()
	return committed, nil
}

// Cancel abandons the session from any open phase. The card reverts to the
// state it held before the confrontation; nothing further is persisted (the
// confrontation counter was already committed at Begin, deliberately).
func (s *Session) Cancel() (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return s.card, nil
	}
	reverted, err := lifecycle.Cancel(s.card)
	if err != nil {
		return domain.Card{}, err
	}
	s.card = reverted
	s.phase = PhaseClosed
	return reverted, nil
}

func (s *Session) now() time.Time {
	if s.engine != nil && s.engine.Now != nil {
		return s.engine.Now()
	}
	return time.Now()
}

// SetDelay overrides the reality check duration; tests only.
func (s *Session) SetDelay(d time.Duration) { s.delay = d }
