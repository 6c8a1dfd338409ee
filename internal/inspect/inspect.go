// Package inspect answers one question for the focus monitor: what surface
// is the user looking at right now. The browser inspector attaches to a
// running Chrome over the DevTools protocol; the static inspector returns a
// fixed answer and exists for surfaces (and tests) with no browser at hand.
package inspect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"

	"loopline/internal/config"
	"loopline/internal/focus"
)

// FromConfig builds the configured inspector.
func FromConfig(cfg *config.Config) focus.Inspector {
	if cfg.Inspector.Mode == "browser" {
		return NewBrowser(cfg.Inspector.ControlURL)
	}
	return Static{Domain: cfg.Inspector.StaticDomain}
}

// Static always reports the same surface. An empty domain reads as the
// tool's own surface: static mode observes nothing, so it polices nothing.
type Static struct {
	Domain string
}

func (s Static) ActiveSurface(ctx context.Context) (focus.Surface, error) {
	if s.Domain == "" {
		return focus.Surface{Internal: true}, nil
	}
	d, err := focus.NormalizeDomain(s.Domain)
	if err != nil {
		return focus.Surface{}, err
	}
	return focus.Surface{Domain: d}, nil
}

// Browser inspects the active tab of a running Chrome instance through the
// DevTools websocket. The connection is established lazily on first use and
// kept for the inspector's lifetime.
type Browser struct {
	ControlURL string

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowser(controlURL string) *Browser {
	return &Browser{ControlURL: controlURL}
}

func (b *Browser) connect(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	if b.ControlURL == "" {
		return nil, fmt.Errorf("inspector: no devtools control url configured")
	}
	browser := rod.New().ControlURL(b.ControlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("inspector: connect to chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// Close drops the devtools connection. Safe to call when never connected.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

// ActiveSurface picks the visible tab and reduces its URL to a bare domain.
// Chrome-internal pages (new tab, settings, devtools) count as the system
// page rather than a browsable domain.
func (b *Browser) ActiveSurface(ctx context.Context) (focus.Surface, error) {
	browser, err := b.connect(ctx)
	if err != nil {
		return focus.Surface{}, err
	}
	pages, err := browser.Pages()
	if err != nil {
		return focus.Surface{}, fmt.Errorf("inspector: list pages: %w", err)
	}
	if len(pages) == 0 {
		return focus.Surface{}, nil
	}
	page := pages.First()
	for _, p := range pages {
		res, err := p.Context(ctx).Eval(`() => document.visibilityState`)
		if err != nil {
			continue
		}
		if res.Value.Str() == "visible" {
			page = p
			break
		}
	}
	info, err := page.Info()
	if err != nil {
		return focus.Surface{}, fmt.Errorf("inspector: page info: %w", err)
	}
	return SurfaceFromURL(info.URL)
}

// SurfaceFromURL maps a raw tab URL to a surface. Only the tool's own
// extension pages are internal (always compliant); any other URL with no
// resolvable domain — chrome:// and friends, file://, about:blank,
// unparseable input — reads as a domain-less system page, which the
// compliance check conservatively treats as a breach.
func SurfaceFromURL(raw string) (focus.Surface, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return focus.Surface{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return focus.Surface{}, nil
	}
	if u.Scheme == "chrome-extension" {
		return focus.Surface{Internal: true}, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return focus.Surface{}, nil
	}
	host := u.Hostname()
	if host == "" {
		return focus.Surface{}, nil
	}
	d, err := focus.NormalizeDomain(host)
	if err != nil {
		return focus.Surface{}, nil
	}
	return focus.Surface{Domain: d}, nil
}
