package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"loopline/internal/domain"
)

// LatestEvents returns the newest events first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, cardID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, cardID)
}

// LatestEventsFrom pages backward through the log: a positive cursor
// restricts the result to events with ids strictly below it, so a page's
// last id is the cursor for the page after it. Filters apply on every page.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, cardID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cardID != "" {
		clauses = append(clauses, "card_id=?")
		args = append(args, cardID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,card_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var cardID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &cardID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if cardID.Valid {
			e.CardID = cardID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
