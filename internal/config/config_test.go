package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

func TestLoadMissingFileYieldsZeroDefaults(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d != (Defaults{}) {
		t.Fatalf("expected zero Defaults, got %+v", d)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
every = "30s"
for = "8h"
capture_stride = 4
min_free_bytes = 1073741824
analyze = true
model = "gpt-4o-mini"
prompt = "describe"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Every != 30*time.Second || d.For != 8*time.Hour || d.CaptureStride != 4 {
		t.Fatalf("got %+v", d)
	}
	if d.Model != "gpt-4o-mini" || !d.Analyze {
		t.Fatalf("got %+v", d)
	}
}

func TestApplyToOnlyFillsUnsetFields(t *testing.T) {
	d := Defaults{Every: time.Minute, CaptureStride: 9, Model: "file-model"}
	cfg := session.Config{Every: 5 * time.Second, Model: "flag-model"}

	d.ApplyTo(&cfg)

	if cfg.Every != 5*time.Second {
		t.Fatalf("expected flag-set Every to survive, got %v", cfg.Every)
	}
	if cfg.CaptureStride != 9 {
		t.Fatalf("expected file default to fill unset CaptureStride, got %d", cfg.CaptureStride)
	}
	if cfg.Model != "flag-model" {
		t.Fatalf("expected flag-set Model to survive, got %q", cfg.Model)
	}
}
