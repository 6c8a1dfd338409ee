package focus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"loopline/internal/domain"
	"loopline/internal/focus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"YouTube.com", "youtube.com"},
		{"www.example.com", "example.com"},
		{"https://www.example.com/watch?v=1", "example.com"},
		{"example.com:8080", "example.com"},
		{"  news.ycombinator.com  ", "news.ycombinator.com"},
		{"localhost", "localhost"},
	}
	for _, tc := range cases {
		got, err := focus.NormalizeDomain(tc.in)
		if err != nil {
			t.Fatalf("NormalizeDomain(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"", "   ", "...", "ex ample.com", "ドメイン"} {
		if _, err := focus.NormalizeDomain(bad); err == nil {
			t.Fatalf("NormalizeDomain(%q): expected DomainParseError", bad)
		}
		var dpe focus.DomainParseError
		_, err := focus.NormalizeDomain(bad)
		if !errors.As(err, &dpe) {
			t.Fatalf("NormalizeDomain(%q): wrong error type %v", bad, err)
		}
	}
}

func TestCheckSubstringMatch(t *testing.T) {
	allowed := []string{"youtube.com"}
	if ok, _ := focus.Check(allowed, focus.Surface{Domain: "music.youtube.com"}); !ok {
		t.Fatal("music.youtube.com must be compliant against youtube.com")
	}
	if ok, _ := focus.Check(allowed, focus.Surface{Domain: "www.YouTube.com"}); !ok {
		t.Fatal("matching is case-insensitive with www. stripped")
	}
	if ok, off := focus.Check(allowed, focus.Surface{Domain: "example.com"}); ok || off != "example.com" {
		t.Fatalf("example.com must breach, got ok=%v offending=%q", ok, off)
	}
	// narrower entry matches broader active domain too
	if ok, _ := focus.Check([]string{"music.youtube.com"}, focus.Surface{Domain: "youtube.com"}); !ok {
		t.Fatal("substring match works in both directions")
	}
}

func TestCheckEdgeSurfaces(t *testing.T) {
	allowed := []string{"example.com"}
	if ok, _ := focus.Check(allowed, focus.Surface{Internal: true}); !ok {
		t.Fatal("internal surfaces are always compliant")
	}
	if ok, off := focus.Check(allowed, focus.Surface{}); ok || off != focus.SystemPageLabel {
		t.Fatalf("unresolvable surface must breach with sentinel, got ok=%v off=%q", ok, off)
	}
	if ok, _ := focus.Check(nil, focus.Surface{Domain: "anything.net"}); !ok {
		t.Fatal("empty whitelist means no restriction: never a breach")
	}
	if ok, _ := focus.Check(nil, focus.Surface{}); !ok {
		t.Fatal("empty whitelist is compliant even for system pages")
	}
}

type scriptedInspector struct {
	mu       sync.Mutex
	surfaces []focus.Surface
	idx      int
}

func (s *scriptedInspector) ActiveSurface(ctx context.Context) (focus.Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.surfaces) == 0 {
		return focus.Surface{}, nil
	}
	cur := s.surfaces[s.idx]
	if s.idx < len(s.surfaces)-1 {
		s.idx++
	}
	return cur, nil
}

func executingCard(duration int, allowed ...string) domain.Card {
	started := time.Now().UTC().Format(time.RFC3339)
	return domain.Card{
		ID:               "card-1",
		State:            domain.StateExecuted,
		ExecuteStartedAt: &started,
		ExecuteDuration:  duration,
		AllowedDomains:   allowed,
	}
}

func TestMonitorRequiresRunningWindow(t *testing.T) {
	c := executingCard(10)
	c.ExecuteStartedAt = nil
	if _, err := focus.NewMonitor(c, &scriptedInspector{}, focus.Options{}); err == nil {
		t.Fatal("monitor must refuse a card without a started timer")
	}
	c.State = domain.StateShadowed
	if _, err := focus.NewMonitor(c, &scriptedInspector{}, focus.Options{}); err == nil {
		t.Fatal("monitor must refuse a non-executed card")
	}
}

func TestMonitorBreachDebounce(t *testing.T) {
	insp := &scriptedInspector{surfaces: []focus.Surface{
		{Domain: "example.com"}, // breach
		{Domain: "example.com"}, // same offender, no re-notify
		{Domain: "docs.rs"},     // compliant, clears
		{Domain: "example.com"}, // sticky: still no second notification
		{Domain: "example.com"},
	}}
	var mu sync.Mutex
	var breaches []string
	clears := 0
	m, err := focus.NewMonitor(executingCard(10, "docs.rs"), insp, focus.Options{
		Tick: time.Hour, // countdown out of the way
		Poll: 5 * time.Millisecond,
		Hooks: focus.Hooks{
			OnBreach: func(d string) { mu.Lock(); breaches = append(breaches, d); mu.Unlock() },
			OnClear:  func() { mu.Lock(); clears++; mu.Unlock() },
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	time.Sleep(80 * time.Millisecond)
	m.Stop()
	mu.Lock()
	defer mu.Unlock()
	if len(breaches) != 1 || breaches[0] != "example.com" {
		t.Fatalf("breach notifications = %v, want exactly one for example.com", breaches)
	}
	if clears != 1 {
		t.Fatalf("clears = %d, want 1", clears)
	}
}

func TestMonitorEmptyWhitelistNeverBreaches(t *testing.T) {
	insp := &scriptedInspector{surfaces: []focus.Surface{
		{Domain: "example.com"},
		{}, // even a system page
	}}
	breached := make(chan string, 8)
	m, err := focus.NewMonitor(executingCard(10), insp, focus.Options{
		Tick:  time.Hour,
		Poll:  5 * time.Millisecond,
		Hooks: focus.Hooks{OnBreach: func(d string) { breached <- d }},
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Stop()
	select {
	case d := <-breached:
		t.Fatalf("unexpected breach %q with empty whitelist", d)
	default:
	}
}

func TestMonitorExpiryFiresOnceAndStopsPolling(t *testing.T) {
	started := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	card := domain.Card{
		ID:               "card-1",
		State:            domain.StateExecuted,
		ExecuteStartedAt: &started,
		ExecuteDuration:  1,
		AllowedDomains:   []string{"docs.rs"},
	}
	insp := &scriptedInspector{surfaces: []focus.Surface{{Domain: "example.com"}}}
	var mu sync.Mutex
	expired, breaches := 0, 0
	m, err := focus.NewMonitor(card, insp, focus.Options{
		Tick: 5 * time.Millisecond,
		Poll: 5 * time.Millisecond,
		Hooks: focus.Hooks{
			OnExpired: func() { mu.Lock(); expired++; mu.Unlock() },
			OnBreach:  func(string) { mu.Lock(); breaches++; mu.Unlock() },
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Remaining(time.Now()) != 0 {
		t.Fatal("window long past its deadline must report zero remaining")
	}
	m.Start()
	time.Sleep(60 * time.Millisecond)
	m.Stop()
	mu.Lock()
	defer mu.Unlock()
	if expired != 1 {
		t.Fatalf("expired notifications = %d, want exactly 1", expired)
	}
	if breaches != 0 {
		t.Fatalf("breaches after deadline = %d, want 0 (compliance only runs while time remains)", breaches)
	}
}

func TestMonitorStopIsSynchronous(t *testing.T) {
	insp := &scriptedInspector{surfaces: []focus.Surface{{Domain: "example.com"}}}
	fired := make(chan struct{}, 64)
	m, err := focus.NewMonitor(executingCard(10, "docs.rs"), insp, focus.Options{
		Tick:  time.Millisecond,
		Poll:  time.Millisecond,
		Hooks: focus.Hooks{OnTick: func(time.Duration) { fired <- struct{}{} }},
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	<-fired
	m.Stop()
	// no hook may fire after Stop returns
	drained := len(fired)
	time.Sleep(20 * time.Millisecond)
	if len(fired) != drained {
		t.Fatal("hooks fired after Stop returned")
	}
}
