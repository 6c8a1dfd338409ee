package focus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loopline/internal/domain"
	"loopline/internal/lifecycle"
)

// Inspector reports the surface currently in front of the user. The monitor
// polls it; it never pushes.
type Inspector interface {
	ActiveSurface(ctx context.Context) (Surface, error)
}

// Hooks receive monitor observations. Nil hooks are skipped. All hooks are
// invoked from the monitor's own goroutine.
type Hooks struct {
	OnTick    func(remaining time.Duration)
	OnExpired func()
	OnBreach  func(offending string)
	OnClear   func()
}

const (
	DefaultTick = time.Second
	DefaultPoll = time.Second
)

// Monitor supervises one execution window. It is attached only while the
// card is executed with a started timer, and it is advisory: reaching zero
// never transitions the card, and a breach only surfaces a report.
type Monitor struct {
	CardID string

	startedAt time.Time
	duration  time.Duration
	allowed   []string

	inspector Inspector
	tick      time.Duration
	poll      time.Duration
	now       func() time.Time
	hooks     Hooks

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	current string          // offending domain of the active breach, if any
	seen    map[string]bool // offending domains already reported
	expired bool
}

// Options tune a monitor; zero values fall back to defaults.
type Options struct {
	Tick  time.Duration
	Poll  time.Duration
	Now   func() time.Time
	Hooks Hooks
}

// NewMonitor builds a monitor for an executing card. The allowed-domain
// list is copied: it is frozen for the life of the window.
func NewMonitor(card domain.Card, inspector Inspector, opts Options) (*Monitor, error) {
	if card.State != domain.StateExecuted || card.ExecuteStartedAt == nil {
		return nil, fmt.Errorf("card %s has no running execution window", card.ID)
	}
	started, err := lifecycle.ParseTime(*card.ExecuteStartedAt)
	if err != nil {
		return nil, fmt.Errorf("card %s: bad execute_started_at: %w", card.ID, err)
	}
	m := &Monitor{
		CardID:    card.ID,
		startedAt: started,
		duration:  time.Duration(card.ExecuteDuration) * time.Minute,
		allowed:   append([]string(nil), card.AllowedDomains...),
		inspector: inspector,
		tick:      opts.Tick,
		poll:      opts.Poll,
		now:       opts.Now,
		hooks:     opts.Hooks,
		done:      make(chan struct{}),
		seen:      make(map[string]bool),
	}
	if m.tick <= 0 {
		m.tick = DefaultTick
	}
	if m.poll <= 0 {
		m.poll = DefaultPoll
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Remaining reports the time left in the window, never negative.
func (m *Monitor) Remaining(now time.Time) time.Duration {
	left := m.duration - now.Sub(m.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Start launches the countdown and compliance loops.
func (m *Monitor) Start() {
	go m.run()
}

// Stop halts both loops and waits until they are fully drained, so no stale
// poll can fire a breach after the caller transitions the card.
func (m *Monitor) Stop() {
	m.stopOnce.Do(m.cancel)
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)
	tick := time.NewTicker(m.tick)
	defer tick.Stop()
	poll := time.NewTicker(m.poll)
	defer poll.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-tick.C:
			m.countdown()
		case <-poll.C:
			m.checkSurface()
		}
	}
}

func (m *Monitor) countdown() {
	left := m.Remaining(m.now())
	if m.hooks.OnTick != nil {
		m.hooks.OnTick(left)
	}
	if left > 0 {
		return
	}
	m.mu.Lock()
	first := !m.expired
	m.expired = true
	m.mu.Unlock()
	if first && m.hooks.OnExpired != nil {
		m.hooks.OnExpired()
	}
}

func (m *Monitor) checkSurface() {
	// compliance matters only while time remains
	if m.Remaining(m.now()) <= 0 {
		return
	}
	surface, err := m.inspector.ActiveSurface(m.ctx)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		// an unreadable surface is treated like a system page
		surface = Surface{}
	}
	ok, offending := Check(m.allowed, surface)
	if ok {
		m.clearBreach()
		return
	}
	m.reportBreach(offending)
}

func (m *Monitor) clearBreach() {
	m.mu.Lock()
	had := m.current != ""
	m.current = ""
	m.mu.Unlock()
	if had && m.hooks.OnClear != nil {
		m.hooks.OnClear()
	}
}

// reportBreach is sticky per offending domain: bouncing back into a domain
// that already triggered a report stays silent instead of storming.
func (m *Monitor) reportBreach(offending string) {
	m.mu.Lock()
	m.current = offending
	notify := !m.seen[offending]
	m.seen[offending] = true
	m.mu.Unlock()
	if notify && m.hooks.OnBreach != nil {
		m.hooks.OnBreach(offending)
	}
}

// Breached reports whether the monitor currently considers the surface
// non-compliant, and against which domain.
func (m *Monitor) Breached() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != "", m.current
}
