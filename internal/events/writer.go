package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	TypeCardCaptured   = "card.captured"
	TypeCardConfronted = "card.confronted"
	TypeCardDecided    = "card.decided"
	TypeCardDeleted    = "card.deleted"
	TypeFocusStarted   = "focus.started"
	TypeFocusStopped   = "focus.stopped"
	TypeFocusAborted   = "focus.aborted"
	TypeFocusBreach    = "focus.breach"
	TypeFocusDomains   = "focus.domains"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside the caller's mutation transaction so the
// log never disagrees with the card blob.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, cardID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,card_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(cardID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
