package looplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Loopline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Card represents the API card model.
type Card struct {
	ID                  string   `json:"id"`
	State               string   `json:"state"`
	SourceType          string   `json:"source_type"`
	SourceContent       string   `json:"source_content"`
	ExtractedTitle      string   `json:"extracted_title"`
	Category            string   `json:"category"`
	CreatedAt           string   `json:"created_at"`
	Decision            *string  `json:"decision"`
	TotalConfrontations int      `json:"total_confrontations"`
	StartAction         string   `json:"start_action"`
	StopRule            string   `json:"stop_rule"`
	ExecuteDuration     int      `json:"execute_duration"`
	ExecuteStartedAt    *string  `json:"execute_started_at"`
	ExecuteResult       *string  `json:"execute_result"`
	AllowedDomains      []string `json:"allowed_domains"`
	RemainingMillis     *int64   `json:"remaining_ms"`
}

// Metrics represents the aggregated system state.
type Metrics struct {
	State            string  `json:"state"`
	UncommittedCount int     `json:"uncommitted_count"`
	ShadowedCount    int     `json:"shadowed_count"`
	ExecutingCount   int     `json:"executing_count"`
	TotalCaptures    int     `json:"total_captures"`
	TotalOpenLoops   int     `json:"total_open_loops"`
	LastClosedAt     *string `json:"last_closed_at"`
}

// Confrontation represents a live confrontation session.
type Confrontation struct {
	Phase string `json:"phase"`
	Ready bool   `json:"ready"`
	Card  Card   `json:"card"`
}

// Event represents a log entry.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	CardID  string `json:"card_id"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CaptureOptions carries optional capture metadata.
type CaptureOptions struct {
	SourceType      string `json:"source_type,omitempty"`
	SourceContent   string `json:"source_content"`
	PlatformName    string `json:"platform_name,omitempty"`
	ExtractedTitle  string `json:"extracted_title,omitempty"`
	Category        string `json:"category,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// Capture creates a new uncommitted card.
func (c *Client) Capture(ctx context.Context, opts CaptureOptions) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "v0/cards", opts, &resp)
	return resp, err
}

// Cards lists cards, newest first, optionally filtered by state.
func (c *Client) Cards(ctx context.Context, state string) ([]Card, error) {
	endpoint := "v0/cards"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp []Card
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Card fetches one card by id.
func (c *Client) Card(ctx context.Context, id string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodGet, "v0/cards/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// DeleteCard removes a card record entirely.
func (c *Client) DeleteCard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/cards/"+url.PathEscape(id), nil, nil)
}

// Status returns the system-state snapshot.
func (c *Client) Status(ctx context.Context) (Metrics, error) {
	var resp Metrics
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

// BeginConfrontation opens a confrontation session for a card.
func (c *Client) BeginConfrontation(ctx context.Context, cardID string) (Confrontation, error) {
	var resp Confrontation
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/confrontation", nil, &resp)
	return resp, err
}

// ProceedConfrontation passes the gate, starting the reality check.
func (c *Client) ProceedConfrontation(ctx context.Context, cardID string) (Confrontation, error) {
	var resp Confrontation
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/confrontation/proceed", nil, &resp)
	return resp, err
}

// Confrontation returns the current session state for a card.
func (c *Client) Confrontation(ctx context.Context, cardID string) (Confrontation, error) {
	var resp Confrontation
	err := c.do(ctx, http.MethodGet, "v0/cards/"+url.PathEscape(cardID)+"/confrontation", nil, &resp)
	return resp, err
}

// Decide ends the confrontation with execute, shadow, or discard.
func (c *Client) Decide(ctx context.Context, cardID, decision, startAction, stopRule string, durationMinutes int) (Card, error) {
	body := map[string]any{
		"decision": decision,
	}
	if startAction != "" {
		body["start_action"] = startAction
	}
	if stopRule != "" {
		body["stop_rule"] = stopRule
	}
	if durationMinutes > 0 {
		body["duration_minutes"] = durationMinutes
	}
	var resp Card
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/confrontation/decide", body, &resp)
	return resp, err
}

// CancelConfrontation abandons the session; the card reverts.
func (c *Client) CancelConfrontation(ctx context.Context, cardID string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodDelete, "v0/cards/"+url.PathEscape(cardID)+"/confrontation", nil, &resp)
	return resp, err
}

// StartFocus starts the execution timer.
func (c *Client) StartFocus(ctx context.Context, cardID string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/focus/start", nil, &resp)
	return resp, err
}

// StopFocus stops execution, discarding the card.
func (c *Client) StopFocus(ctx context.Context, cardID string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/focus/stop", nil, &resp)
	return resp, err
}

// AbortFocus aborts execution, returning the card to shadowed.
func (c *Client) AbortFocus(ctx context.Context, cardID string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/focus/abort", nil, &resp)
	return resp, err
}

// AddDomain whitelists a domain for a card's execution window.
func (c *Client) AddDomain(ctx context.Context, cardID, domain string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "v0/cards/"+url.PathEscape(cardID)+"/domains", map[string]any{"domain": domain}, &resp)
	return resp, err
}

// RemoveDomain drops a whitelisted domain.
func (c *Client) RemoveDomain(ctx context.Context, cardID, domain string) (Card, error) {
	var resp Card
	endpoint := fmt.Sprintf("v0/cards/%s/domains/%s", url.PathEscape(cardID), url.PathEscape(domain))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin mints a JWT from a server with dev auth enabled.
func (c *Client) DevLogin(ctx context.Context, actorID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", map[string]any{"actor_id": actorID}, &resp)
	return resp.Token, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
