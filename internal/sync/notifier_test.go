package sync

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loopline/internal/domain"
)

func TestPushDeliversSnapshot(t *testing.T) {
	got := make(chan snapshot, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var s snapshot
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- s
	}))
	defer srv.Close()

	n := &Notifier{
		URL:       srv.URL,
		ProfileID: "desk-1",
		Now:       func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	n.Push(domain.SystemMetrics{
		State:          domain.SystemTurbulent,
		TotalCaptures:  9,
		TotalOpenLoops: 5,
		ShadowedCount:  2,
	})
	select {
	case s := <-got:
		if s.ProfileID != "desk-1" || s.SystemState != domain.SystemTurbulent || s.TotalOpenLoops != 5 {
			t.Fatalf("snapshot wrong: %+v", s)
		}
		if s.TS != "2024-01-01T00:00:00Z" {
			t.Fatalf("ts = %q", s.TS)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
}

func TestPushSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &Notifier{URL: srv.URL, Logger: log.New(io.Discard, "", 0)}
	// must not panic or propagate anything
	n.Push(domain.SystemMetrics{State: domain.SystemStable})

	n = &Notifier{URL: "http://127.0.0.1:1", Logger: log.New(io.Discard, "", 0), Client: &http.Client{Timeout: 100 * time.Millisecond}}
	n.Push(domain.SystemMetrics{State: domain.SystemStable})
}
