package inspect

import (
	"context"
	"testing"

	"loopline/internal/focus"
)

func TestSurfaceFromURL(t *testing.T) {
	cases := []struct {
		raw      string
		domain   string
		internal bool
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube.com", false},
		{"http://docs.rs:8080/serde", "docs.rs", false},
		{"chrome-extension://abcdef/popup.html", "", true},
		{"chrome://newtab/", "", false},
		{"chrome://settings", "", false},
		{"devtools://devtools/bundled/inspector.html", "", false},
		{"about:blank", "", false},
		{"file:///home/u/notes.html", "", false},
		{"", "", false},
		{"view-source:https://example.com", "", false},
	}
	for _, tc := range cases {
		s, err := SurfaceFromURL(tc.raw)
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if s.Domain != tc.domain || s.Internal != tc.internal {
			t.Errorf("%q => %+v, want domain=%q internal=%v", tc.raw, s, tc.domain, tc.internal)
		}
	}
}

// A whitelisted window must flag system pages as breaches: parking on
// chrome://settings or a local file while domains are restricted is off
// the path, labeled with the sentinel.
func TestSystemPagesBreachAgainstWhitelist(t *testing.T) {
	allowed := []string{"youtube.com"}
	for _, raw := range []string{"chrome://settings", "file:///tmp/x.html", "devtools://devtools/x"} {
		s, err := SurfaceFromURL(raw)
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		ok, offending := focus.Check(allowed, s)
		if ok || offending != focus.SystemPageLabel {
			t.Errorf("%q => compliant=%v offending=%q, want breach %q", raw, ok, offending, focus.SystemPageLabel)
		}
	}
	// the extension's own pages stay compliant
	s, err := SurfaceFromURL("chrome-extension://abcdef/popup.html")
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := focus.Check(allowed, s); !ok {
		t.Fatal("extension surface must always be compliant")
	}
	// with no whitelist there is nothing to breach
	s, _ = SurfaceFromURL("chrome://settings")
	if ok, _ := focus.Check(nil, s); !ok {
		t.Fatal("empty whitelist must never breach")
	}
}

func TestStaticInspector(t *testing.T) {
	ctx := context.Background()
	s, err := Static{}.ActiveSurface(ctx)
	if err != nil || !s.Internal {
		t.Fatalf("empty static must read as the tool's own surface: %v %+v", err, s)
	}
	s, err = Static{Domain: "https://News.ycombinator.com/item"}.ActiveSurface(ctx)
	if err != nil || s.Domain != "news.ycombinator.com" || s.Internal {
		t.Fatalf("static surface wrong: %v %+v", err, s)
	}
	if _, err := (Static{Domain: "not a domain"}).ActiveSurface(ctx); err == nil {
		t.Fatal("invalid static domain must error")
	}
}
