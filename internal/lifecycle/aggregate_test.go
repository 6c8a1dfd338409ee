package lifecycle_test

import (
	"fmt"
	"testing"

	"loopline/internal/domain"
	"loopline/internal/lifecycle"
)

func cardsIn(state string, n int) []domain.Card {
	var cards []domain.Card
	for i := 0; i < n; i++ {
		cards = append(cards, domain.Card{ID: fmt.Sprintf("%s-%d", state, i), State: state})
	}
	return cards
}

func TestAggregateActiveExecutionWins(t *testing.T) {
	started := t0.Format("2006-01-02T15:04:05Z07:00")
	cards := append(cardsIn(domain.StateUncommitted, 10), domain.Card{
		ID:               "exec",
		State:            domain.StateExecuted,
		ExecuteStartedAt: &started,
	})
	m := lifecycle.Aggregate(cards)
	if m.State != domain.SystemFocused {
		t.Fatalf("state = %s, want focused regardless of other counts", m.State)
	}
	if m.ExecutingCount != 1 || m.TotalOpenLoops != 11 {
		t.Fatalf("counts wrong: %+v", m)
	}
}

func TestAggregateExecutedWithoutTimerIsNotFocused(t *testing.T) {
	m := lifecycle.Aggregate(cardsIn(domain.StateExecuted, 1))
	if m.State == domain.SystemFocused {
		t.Fatal("executed card without started timer must not yield focused")
	}
	if m.State != domain.SystemStable {
		t.Fatalf("state = %s, want stable", m.State)
	}
}

func TestAggregateShadowAccumulationBeatsRawCount(t *testing.T) {
	m := lifecycle.Aggregate(cardsIn(domain.StateShadowed, 4))
	if m.State != domain.SystemDeferred {
		t.Fatalf("four shadowed cards: state = %s, want deferred", m.State)
	}
	m = lifecycle.Aggregate(cardsIn(domain.StateShadowed, 3))
	if m.State != domain.SystemStable {
		t.Fatalf("three shadowed cards: state = %s, want stable", m.State)
	}
}

func TestAggregateOpenLoopBuckets(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{0, domain.SystemVoid},
		{1, domain.SystemStable},
		{3, domain.SystemStable},
		{4, domain.SystemTurbulent},
		{7, domain.SystemTurbulent},
		{8, domain.SystemCritical},
	}
	for _, tc := range cases {
		m := lifecycle.Aggregate(cardsIn(domain.StateUncommitted, tc.n))
		if m.State != tc.want {
			t.Fatalf("%d open loops: state = %s, want %s", tc.n, m.State, tc.want)
		}
	}
}

func TestAggregateDiscardedCardsAreClosed(t *testing.T) {
	early := "2024-01-01T00:00:00Z"
	late := "2024-01-02T00:00:00Z"
	dec := domain.DecisionDiscard
	cards := []domain.Card{
		{ID: "a", State: domain.StateDiscarded, Decision: &dec, DecidedAt: &early},
		{ID: "b", State: domain.StateDiscarded, Decision: &dec, DecidedAt: &late},
	}
	m := lifecycle.Aggregate(cards)
	if m.State != domain.SystemVoid {
		t.Fatalf("state = %s, want void (discarded cards are not open loops)", m.State)
	}
	if m.TotalCaptures != 2 || m.TotalOpenLoops != 0 {
		t.Fatalf("counts wrong: %+v", m)
	}
	if m.LastClosedAt == nil || *m.LastClosedAt != late {
		t.Fatalf("last_closed_at = %v, want %s", m.LastClosedAt, late)
	}
}
