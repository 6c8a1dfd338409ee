package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Execute.DefaultDurationMinutes != 10 {
		t.Fatalf("default duration = %d", cfg.Execute.DefaultDurationMinutes)
	}
	if cfg.TickInterval() != time.Second || cfg.PollInterval() != time.Second {
		t.Fatalf("default intervals wrong: %v %v", cfg.TickInterval(), cfg.PollInterval())
	}
	if cfg.Inspector.Mode != "static" {
		t.Fatalf("default inspector mode = %q", cfg.Inspector.Mode)
	}
}

func TestFromYAMLMergesOverDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("profile:\n  id: desk-1\nexecute:\n  default_duration_minutes: 5\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Profile.ID != "desk-1" || cfg.Execute.DefaultDurationMinutes != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Execute.FallbackStartAction == "" {
		t.Fatal("unset fields must keep their defaults")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"zero duration", "execute:\n  default_duration_minutes: 0\n", "must be positive"},
		{"duration over cap", "execute:\n  default_duration_minutes: 16\n", "must be <="},
		{"sync without url", "sync:\n  enabled: true\n", "sync.url"},
		{"bad inspector mode", "inspector:\n  mode: telepathy\n", "inspector.mode"},
		{"zero tick", "focus:\n  tick_ms: 0\n", "intervals"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file must yield defaults: %v", err)
	}
	if cfg.Execute.DefaultDurationMinutes != 10 {
		t.Fatalf("not defaults: %+v", cfg)
	}
	if err := os.WriteFile(filepath.Join(dir, "loopline.yml"), []byte("profile:\n  id: desk-2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg.Profile.ID != "desk-2" {
		t.Fatalf("load: %v %+v", err, cfg)
	}
}

func TestGeneratedTemplateRoundTrips(t *testing.T) {
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated template must parse and validate: %v", err)
	}
}
