package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loopline/internal/domain"
	"loopline/internal/lifecycle"
)

// cardsKey is the single storage key holding the whole card collection.
// Cards are one blob, not rows: every mutation rewrites the full list.
const cardsKey = "cards"

// DefaultExecuteDuration backfills legacy records missing a duration.
const DefaultExecuteDuration = 10

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// CorruptStateError reports an unparsable persisted blob. Callers decide
// whether to fail open (treat the collection as empty) or refuse to proceed.
type CorruptStateError struct {
	Key string
	Err error
}

func (e CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state under key %q: %v", e.Key, e.Err)
}

func (e CorruptStateError) Unwrap() error { return e.Err }

// LoadCards reads the card collection, newest first. Loading applies the
// schema-upgrade policy: transient confronting states are normalized back to
// uncommitted (the interrupted interaction must restart) and defaults are
// backfilled for fields older records did not carry. Every optional field
// added later gets its default applied here, forever.
func (r Repo) LoadCards(ctx context.Context) ([]domain.Card, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM storage WHERE key=?`, cardsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cards []domain.Card
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		return nil, CorruptStateError{Key: cardsKey, Err: err}
	}
	for i := range cards {
		cards[i] = Normalize(cards[i])
	}
	return cards, nil
}

// SaveCards atomically replaces the collection blob. Confronting cards are
// never serialized; a card caught mid-session is written as the state it
// would revert to on cancel.
func (r Repo) SaveCards(ctx context.Context, tx *sql.Tx, cards []domain.Card) error {
	out := make([]domain.Card, len(cards))
	for i, c := range cards {
		out[i] = Normalize(c)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal cards: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err = exec(ctx, `INSERT INTO storage(key,value,updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		cardsKey, string(data), now)
	return err
}

// Normalize applies the load-time upgrade policy to one card.
func Normalize(c domain.Card) domain.Card {
	if c.State == domain.StateConfronting || c.State == "" {
		// One prior-state rule for the whole system: the same derivation a
		// session cancel uses. A decision context this rule cannot place
		// falls back to uncommitted, keeping load fail-open.
		prior, err := lifecycle.PriorState(c)
		if err != nil {
			prior = domain.StateUncommitted
		}
		c.State = prior
	}
	if c.ExecuteDuration <= 0 {
		c.ExecuteDuration = DefaultExecuteDuration
	}
	if c.TotalConfrontations < 0 {
		c.TotalConfrontations = 0
	}
	if c.State != domain.StateExecuted {
		// execute_started_at is only meaningful while executing; a stale
		// value inherited by any other state is scrubbed.
		c.ExecuteStartedAt = nil
	}
	return c
}
