package engine

import (
	"context"
	"fmt"

	"loopline/internal/domain"
	"loopline/internal/events"
	"loopline/internal/focus"
	"loopline/internal/repo"
)

// AddAllowedDomain appends a normalized domain to an executed card's
// whitelist. The list is only mutable during focus setup: once the timer
// starts it is frozen.
func (e *Engine) AddAllowedDomain(ctx context.Context, id, raw, actorID string) (domain.Card, error) {
	normalized, err := focus.NormalizeDomain(raw)
	if err != nil {
		return domain.Card{}, err
	}
	return e.editDomains(ctx, id, actorID, func(c domain.Card) (domain.Card, error) {
		for _, d := range c.AllowedDomains {
			if d == normalized {
				return c, nil // ordered set: silently keep the first entry
			}
		}
		c.AllowedDomains = append(c.AllowedDomains, normalized)
		return c, nil
	})
}

// RemoveAllowedDomain drops a domain from the whitelist.
func (e *Engine) RemoveAllowedDomain(ctx context.Context, id, raw, actorID string) (domain.Card, error) {
	normalized, err := focus.NormalizeDomain(raw)
	if err != nil {
		return domain.Card{}, err
	}
	return e.editDomains(ctx, id, actorID, func(c domain.Card) (domain.Card, error) {
		out := c.AllowedDomains[:0:0]
		for _, d := range c.AllowedDomains {
			if d != normalized {
				out = append(out, d)
			}
		}
		c.AllowedDomains = out
		return c, nil
	})
}

func (e *Engine) editDomains(ctx context.Context, id, actorID string, edit func(domain.Card) (domain.Card, error)) (domain.Card, error) {
	var out domain.Card
	_, err := e.mutate(ctx, actorID, func(cards []domain.Card) ([]domain.Card, []eventRec, error) {
		idx := indexOf(cards, id)
		if idx < 0 {
			return nil, nil, repo.ErrNotFound
		}
		c := cards[idx]
		if c.State != domain.StateExecuted {
			return nil, nil, fmt.Errorf("card %s: allowed domains can only be edited while preparing an execution", c.ID)
		}
		if c.ExecuteStartedAt != nil {
			return nil, nil, fmt.Errorf("card %s: allowed domains are frozen once the timer starts", c.ID)
		}
		next, err := edit(c)
		if err != nil {
			return nil, nil, err
		}
		out = next
		if sameDomains(c.AllowedDomains, next.AllowedDomains) {
			// no-op edit: nothing worth an audit entry
			return cards, nil, nil
		}
		cards[idx] = next
		return cards, []eventRec{{Type: events.TypeFocusDomains, CardID: id, Payload: events.EventPayload{"allowed_domains": next.AllowedDomains}}}, nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return out, nil
}

func sameDomains(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
