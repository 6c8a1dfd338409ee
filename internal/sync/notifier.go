// Package sync pushes system-state snapshots to a remote endpoint after
// every committed mutation. Delivery is strictly best-effort: a failed
// delivery is logged and forgotten, and nothing the notifier does can block
// or roll back a mutation.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"loopline/internal/config"
	"loopline/internal/domain"
	"loopline/internal/engine"
)

const defaultTimeout = 5 * time.Second

// Notifier posts snapshots to one configured URL.
type Notifier struct {
	URL       string
	ProfileID string
	Client    *http.Client
	Logger    *log.Logger
	Now       func() time.Time
}

// Start wires a notifier into the engine's subscription feed. Returns nil
// when sync is disabled or misconfigured; engines run fine without one.
func Start(e *engine.Engine, cfg *config.Config) *Notifier {
	if cfg == nil || !cfg.Sync.Enabled || strings.TrimSpace(cfg.Sync.URL) == "" {
		return nil
	}
	n := &Notifier{
		URL:       cfg.Sync.URL,
		ProfileID: cfg.Profile.ID,
		Client:    &http.Client{Timeout: cfg.SyncTimeout()},
	}
	e.Subscribe(n.Push)
	return n
}

type snapshot struct {
	ProfileID      string `json:"profile_id"`
	SystemState    string `json:"system_state"`
	TotalCaptures  int    `json:"total_captures"`
	TotalOpenLoops int    `json:"open_loops"`
	ShadowedCount  int    `json:"shadowed_count"`
	TS             string `json:"ts"`
}

// Push delivers one snapshot, swallowing any failure.
func (n *Notifier) Push(m domain.SystemMetrics) {
	if err := n.deliver(context.Background(), m); err != nil {
		n.logger().Printf("sync: deliver to %s failed: %v", n.URL, err)
	}
}

func (n *Notifier) deliver(ctx context.Context, m domain.SystemMetrics) error {
	body := snapshot{
		ProfileID:      n.ProfileID,
		SystemState:    m.State,
		TotalCaptures:  m.TotalCaptures,
		TotalOpenLoops: m.TotalOpenLoops,
		ShadowedCount:  m.ShadowedCount,
		TS:             n.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Loopline-State", m.State)
	res, err := n.client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

func (n *Notifier) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (n *Notifier) logger() *log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.Default()
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
