package server

import (
	"loopline/internal/domain"
	"loopline/internal/lifecycle"
	"loopline/internal/session"
	"time"
)

type CaptureRequest struct {
	SourceType      string `json:"source_type,omitempty" enum:"url,text,image"`
	SourceContent   string `json:"source_content"`
	PlatformName    string `json:"platform_name,omitempty"`
	ExtractedTitle  string `json:"extracted_title,omitempty"`
	Category        string `json:"category,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type CardResponse struct {
	ID                  string   `json:"id"`
	State               string   `json:"state"`
	SourceType          string   `json:"source_type,omitempty"`
	SourceContent       string   `json:"source_content,omitempty"`
	PlatformName        string   `json:"platform_name,omitempty"`
	ExtractedTitle      string   `json:"extracted_title,omitempty"`
	AITitle             string   `json:"ai_title,omitempty"`
	AISummary           string   `json:"ai_summary,omitempty"`
	Category            string   `json:"category,omitempty"`
	CreatedAt           string   `json:"created_at"`
	ConfrontedAt        *string  `json:"confronted_at,omitempty"`
	DecidedAt           *string  `json:"decided_at,omitempty"`
	Decision            *string  `json:"decision,omitempty"`
	TotalConfrontations int      `json:"total_confrontations"`
	StartAction         string   `json:"start_action,omitempty"`
	StopRule            string   `json:"stop_rule,omitempty"`
	ExecuteDuration     int      `json:"execute_duration"`
	ExecuteStartedAt    *string  `json:"execute_started_at,omitempty"`
	ExecuteResult       *string  `json:"execute_result,omitempty"`
	AllowedDomains      []string `json:"allowed_domains,omitempty"`
	RemainingMillis     *int64   `json:"remaining_ms,omitempty"`
}

func cardResponse(c domain.Card, now time.Time) CardResponse {
	resp := CardResponse{
		ID:                  c.ID,
		State:               c.State,
		SourceType:          c.SourceType,
		SourceContent:       c.SourceContent,
		PlatformName:        c.PlatformName,
		ExtractedTitle:      c.ExtractedTitle,
		AITitle:             c.AITitle,
		AISummary:           c.AISummary,
		Category:            c.Category,
		CreatedAt:           c.CreatedAt,
		ConfrontedAt:        c.ConfrontedAt,
		DecidedAt:           c.DecidedAt,
		Decision:            c.Decision,
		TotalConfrontations: c.TotalConfrontations,
		StartAction:         c.StartAction,
		StopRule:            c.StopRule,
		ExecuteDuration:     c.ExecuteDuration,
		ExecuteStartedAt:    c.ExecuteStartedAt,
		ExecuteResult:       c.ExecuteResult,
		AllowedDomains:      c.AllowedDomains,
	}
	if c.State == domain.StateExecuted && c.ExecuteStartedAt != nil {
		ms := lifecycle.Remaining(c, now)
		resp.RemainingMillis = &ms
	}
	return resp
}

func mapCards(cards []domain.Card, now time.Time) []CardResponse {
	out := make([]CardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardResponse(c, now))
	}
	return out
}

type MetricsResponse struct {
	State            string  `json:"state"`
	UncommittedCount int     `json:"uncommitted_count"`
	ShadowedCount    int     `json:"shadowed_count"`
	ExecutingCount   int     `json:"executing_count"`
	TotalCaptures    int     `json:"total_captures"`
	TotalOpenLoops   int     `json:"total_open_loops"`
	LastClosedAt     *string `json:"last_closed_at,omitempty"`
}

func metricsResponse(m domain.SystemMetrics) MetricsResponse {
	return MetricsResponse{
		State:            m.State,
		UncommittedCount: m.UncommittedCount,
		ShadowedCount:    m.ShadowedCount,
		ExecutingCount:   m.ExecutingCount,
		TotalCaptures:    m.TotalCaptures,
		TotalOpenLoops:   m.TotalOpenLoops,
		LastClosedAt:     m.LastClosedAt,
	}
}

type ConfrontationResponse struct {
	Phase string       `json:"phase" enum:"gate,reality_check,decision,closed"`
	Ready bool         `json:"ready"`
	Card  CardResponse `json:"card"`
}

func confrontationResponse(s *session.Session, now time.Time) ConfrontationResponse {
	return ConfrontationResponse{
		Phase: s.Phase(),
		Ready: s.Ready(now),
		Card:  cardResponse(s.Card(), now),
	}
}

type DecideRequest struct {
	Decision        string `json:"decision" enum:"execute,shadow,discard"`
	StartAction     string `json:"start_action,omitempty"`
	StopRule        string `json:"stop_rule,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type DomainRequest struct {
	Domain string `json:"domain"`
}

type EventResponse struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	CardID  string `json:"card_id,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
	Payload string `json:"payload,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:      evt.ID,
		TS:      evt.TS,
		Type:    evt.Type,
		CardID:  evt.CardID,
		ActorID: evt.ActorID,
		Payload: evt.Payload,
	}
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}
