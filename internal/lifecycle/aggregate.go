package lifecycle

import "loopline/internal/domain"

// shadowPressureLimit is the shadowed-card count above which the system is
// reported as deferred regardless of the raw open-loop count.
const shadowPressureLimit = 3

// Aggregate projects a card collection onto a SystemMetrics snapshot. The
// state label is evaluated in strict priority order: an active execution
// always wins, silent shadow accumulation is flagged next, and only then do
// raw open-loop counts apply.
func Aggregate(cards []domain.Card) domain.SystemMetrics {
	m := domain.SystemMetrics{TotalCaptures: len(cards)}
	executing := false
	var lastClosed string
	for _, c := range cards {
		switch c.State {
		case domain.StateUncommitted, domain.StateConfronting:
			// A mid-session confronting card is still an uncommitted loop
			// as far as pressure is concerned.
			m.UncommittedCount++
		case domain.StateShadowed:
			m.ShadowedCount++
		case domain.StateExecuted:
			m.ExecutingCount++
			if c.ExecuteStartedAt != nil {
				executing = true
			}
		case domain.StateDiscarded:
			if c.DecidedAt != nil && *c.DecidedAt > lastClosed {
				lastClosed = *c.DecidedAt
			}
		}
	}
	m.TotalOpenLoops = m.UncommittedCount + m.ShadowedCount + m.ExecutingCount
	if lastClosed != "" {
		m.LastClosedAt = &lastClosed
	}

	switch {
	case executing:
		m.State = domain.SystemFocused
	case m.ShadowedCount > shadowPressureLimit:
		m.State = domain.SystemDeferred
	case m.TotalOpenLoops == 0:
		m.State = domain.SystemVoid
	case m.TotalOpenLoops <= 3:
		m.State = domain.SystemStable
	case m.TotalOpenLoops <= 7:
		m.State = domain.SystemTurbulent
	default:
		m.State = domain.SystemCritical
	}
	return m
}
