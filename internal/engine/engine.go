// Package engine is the single owner of the persisted card collection.
// Every mutation follows the same discipline: re-read the full collection,
// apply a pure lifecycle transformation, write the full collection back in
// one transaction, then notify subscribers with a fresh metrics snapshot.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"loopline/internal/config"
	"loopline/internal/domain"
	"loopline/internal/events"
	"loopline/internal/lifecycle"
	"loopline/internal/repo"
)

// Suggester supplies the execute-decision plan. Implementations must treat
// their own failure as non-fatal; the engine falls back to configured
// defaults on any error.
type Suggester interface {
	Suggest(ctx context.Context, card domain.Card) (lifecycle.ExecutePlan, error)
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *log.Logger
	Suggest Suggester

	// mu serializes mutations; subsMu guards only the subscriber list so
	// notify can run while a mutation still holds mu.
	mu     sync.Mutex
	subsMu sync.Mutex
	subs   []func(domain.SystemMetrics)
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Subscribe registers an observer invoked with a metrics snapshot after
// every committed mutation. Observers run on their own goroutine and can
// never block or roll back the mutation.
func (e *Engine) Subscribe(fn func(domain.SystemMetrics)) {
	e.subsMu.Lock()
	e.subs = append(e.subs, fn)
	e.subsMu.Unlock()
}

func (e *Engine) notify(cards []domain.Card) {
	m := lifecycle.Aggregate(cards)
	e.subsMu.Lock()
	subs := make([]func(domain.SystemMetrics), len(e.subs))
	copy(subs, e.subs)
	e.subsMu.Unlock()
	for _, fn := range subs {
		go fn(m)
	}
}

// loadOpen reads the collection, failing open on a corrupt blob: card loss
// is less harmful than a surface that refuses to start.
func (e *Engine) loadOpen(ctx context.Context) ([]domain.Card, error) {
	cards, err := e.Repo.LoadCards(ctx)
	if err != nil {
		var cse repo.CorruptStateError
		if errors.As(err, &cse) {
			e.logger().Printf("WARNING: %v; continuing with empty collection", err)
			return nil, nil
		}
		return nil, err
	}
	return cards, nil
}

type eventRec struct {
	Type    string
	CardID  string
	Payload events.EventPayload
}

// mutate runs one read-transform-write cycle. fn receives the freshly read
// collection and returns the replacement collection plus events to append
// in the same transaction.
func (e *Engine) mutate(ctx context.Context, actorID string, fn func(cards []domain.Card) ([]domain.Card, []eventRec, error)) ([]domain.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cards, err := e.loadOpen(ctx)
	if err != nil {
		return nil, err
	}
	next, recs, err := fn(cards)
	if err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveCards(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("save cards: %w", err)
	}
	for _, rec := range recs {
		if err := e.Events.Append(ctx, tx, rec.Type, rec.CardID, actorID, rec.Payload); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.notify(next)
	return next, nil
}

// CaptureOptions carries the opaque payload supplied by capture and AI
// collaborators.
type CaptureOptions struct {
	SourceType      string
	SourceContent   string
	PlatformName    string
	ExtractedTitle  string
	AITitle         string
	AISummary       string
	Category        string
	DurationMinutes int
	ActorID         string
}

// Capture creates a new uncommitted card at the head of the collection.
func (e *Engine) Capture(ctx context.Context, opts CaptureOptions) (domain.Card, error) {
	if opts.SourceContent == "" && opts.ExtractedTitle == "" {
		return domain.Card{}, errors.New("source content or title is required")
	}
	duration := opts.DurationMinutes
	if duration == 0 {
		duration = e.Config.Execute.DefaultDurationMinutes
	}
	if duration <= 0 || duration > config.MaxExecuteDurationMinutes {
		return domain.Card{}, fmt.Errorf("execute duration must be 1..%d minutes", config.MaxExecuteDurationMinutes)
	}
	card := domain.Card{
		ID:              uuid.NewString(),
		State:           domain.StateUncommitted,
		SourceType:      opts.SourceType,
		SourceContent:   opts.SourceContent,
		PlatformName:    opts.PlatformName,
		ExtractedTitle:  opts.ExtractedTitle,
		AITitle:         opts.AITitle,
		AISummary:       opts.AISummary,
		Category:        opts.Category,
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
		ExecuteDuration: duration,
	}
	_, err := e.mutate(ctx, opts.ActorID, func(cards []domain.Card) ([]domain.Card, []eventRec, error) {
		// newest first
		next := append([]domain.Card{card}, cards...)
		recs := []eventRec{{Type: events.TypeCardCaptured, CardID: card.ID, Payload: events.EventPayload{"source_type": card.SourceType}}}
		return next, recs, nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// List returns the collection, newest first.
func (e *Engine) List(ctx context.Context) ([]domain.Card, error) {
	return e.loadOpen(ctx)
}

// Get returns one card by id.
func (e *Engine) Get(ctx context.Context, id string) (domain.Card, error) {
	cards, err := e.loadOpen(ctx)
	if err != nil {
		return domain.Card{}, err
	}
	for _, c := range cards {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Card{}, repo.ErrNotFound
}

// Delete removes a card record entirely. This is not a state transition and
// is irreversible; it works from any state.
func (e *Engine) Delete(ctx context.Context, id, actorID string) error {
	_, err := e.mutate(ctx, actorID, func(cards []domain.Card) ([]domain.Card, []eventRec, error) {
		idx := indexOf(cards, id)
		if idx < 0 {
			return nil, nil, repo.ErrNotFound
		}
		next := append(cards[:idx:idx], cards[idx+1:]...)
		return next, []eventRec{{Type: events.TypeCardDeleted, CardID: id}}, nil
	})
	return err
}

// RecordConfrontation persists the side effects of entering confrontation
// (timestamp, counter) and hands back the transient confronting card for
// the session to hold. The confronting state itself is never written;
// SaveCards stores the card as its pre-confrontation state.
func (e *Engine) RecordConfrontation(ctx context.Context, id, actorID string) (domain.Card, error) {
	var confronting domain.Card
	_, err := e.mutate(ctx, actorID, func(cards []domain.Card) ([]domain.Card, []eventRec, error) {
		idx := indexOf(cards, id)
		if idx < 0 {
			return nil, nil, repo.ErrNotFound
		}
		c, err := lifecycle.BeginConfrontation(cards[idx], e.now())
		if err != nil {
			return nil, nil, err
		}
		confronting = c
		cards[idx] = c
		recs := []eventRec{{Type: events.TypeCardConfronted, CardID: id, Payload: events.EventPayload{"total": c.TotalConfrontations}}}
		return cards, recs, nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return confronting, nil
}

// CommitDecision writes a decided card back into the collection. The card
// must already have been transformed by lifecycle.Decide; the persisted
// collection is re-read first so a concurrent surface's writes are not
// clobbered beyond the one slot being decided.
func (e *Engine) CommitDecision(ctx context.Context, decided domain.Card, actorID string) (domain.Card, error) {
	switch decided.State {
	case domain.StateExecuted, domain.StateShadowed, domain.StateDiscarded:
	default:
		return domain.Card{}, fmt.Errorf("card %s is not decided (state %s)", decided.ID, decided.State)
	}
	_, err := e.mutate(ctx, actorID, func(cards []domain.Card) ([]domain.Card, []eventRec, error) {
		idx := indexOf(cards, decided.ID)
		if idx < 0 {
			return nil, nil, repo.ErrNotFound
		}
		cards[idx] = decided
		payload := events.EventPayload{}
		if decided.Decision != nil {
			payload["decision"] = *decided.Decision
		}
		return cards, []eventRec{{Type: events.TypeCardDecided, CardID: decided.ID, Payload: payload}}, nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return decided, nil
}

// ResolvePlan builds the execute plan for a card: explicit values win, then
// the AI collaborator, then configured fallbacks. A failed or missing AI
// call is never fatal.
func (e *Engine) ResolvePlan(ctx context.Context, card domain.Card, startAction, stopRule string, durationMinutes int) lifecycle.ExecutePlan {
	plan := lifecycle.ExecutePlan{
		StartAction:     startAction,
		StopRule:        stopRule,
		DurationMinutes: durationMinutes,
	}
	if (plan.StartAction == "" || plan.StopRule == "") && e.Suggest != nil {
		if s, err := e.Suggest.Suggest(ctx, card); err != nil {
			e.logger().Printf("WARNING: suggestion failed, using defaults: %v", err)
		} else {
			if plan.StartAction == "" {
				plan.StartAction = s.StartAction
			}
			if plan.StopRule == "" {
				plan.StopRule = s.StopRule
			}
			if plan.DurationMinutes == 0 {
				plan.DurationMinutes = s.DurationMinutes
			}
		}
	}
	if plan.StartAction == "" {
		plan.StartAction = e.Config.Execute.FallbackStartAction
	}
	if plan.StopRule == "" {
		plan.StopRule = e.Config.Execute.FallbackStopRule
	}
	if plan.DurationMinutes > config.MaxExecuteDurationMinutes {
		plan.DurationMinutes = config.MaxExecuteDurationMinutes
	}
	if plan.DurationMinutes < 0 {
		plan.DurationMinutes = 0
	}
	return plan
}

// StartTimer starts the execution window and freezes the allowed domains.
func (e *Engine) StartTimer(ctx context.Context, id, actorID string) (domain.Card, error) {
	return e.transition(ctx, id, actorID, events.TypeFocusStarted, func(c domain.Card) (domain.Card, error) {
		return lifecycle.StartTimer(c, e.now())
	})
}

// StopExecution closes the loop: the card is discarded.
func (e *Engine) StopExecution(ctx context.Context, id, actorID string) (domain.Card, error) {
	return e.transition(ctx, id, actorID, events.TypeFocusStopped, lifecycle.Stop)
}

// AbortExecution bails out: the card returns to shadowed with its timer
// cleared. Callers owning a monitor must stop it before calling this.
func (e *Engine) AbortExecution(ctx context.Context, id, actorID string) (domain.Card, error) {
	return e.transition(ctx, id, actorID, events.TypeFocusAborted, lifecycle.Abort)
}

func (e *Engine) transition(ctx context.Context, id, actorID, evtType string, apply func(domain.Card) (domain.Card, error)) (domain.Card, error) {
	var out domain.Card
	_, err := e.mutate(ctx, actorID, func(cards []domain.Card) ([]domain.Card, []eventRec, error) {
		idx := indexOf(cards, id)
		if idx < 0 {
			return nil, nil, repo.ErrNotFound
		}
		c, err := apply(cards[idx])
		if err != nil {
			return nil, nil, err
		}
		out = c
		cards[idx] = c
		return cards, []eventRec{{Type: evtType, CardID: id}}, nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return out, nil
}

// Metrics recomputes the system-state snapshot from the persisted set.
func (e *Engine) Metrics(ctx context.Context) (domain.SystemMetrics, error) {
	cards, err := e.loadOpen(ctx)
	if err != nil {
		return domain.SystemMetrics{}, err
	}
	return lifecycle.Aggregate(cards), nil
}

// RecordBreach appends an advisory breach event. The card blob is untouched:
// enforcement is observational only.
func (e *Engine) RecordBreach(ctx context.Context, id, offendingDomain, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	payload := events.EventPayload{"domain": offendingDomain}
	if err := e.Events.Append(ctx, tx, events.TypeFocusBreach, id, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func indexOf(cards []domain.Card, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}
