// Package config loads the optional config.toml session-defaults file
// (spec.md §6 ADD) and merges it beneath CLI-flag-supplied values: a flag
// holding a non-zero value always wins, matching the same
// file-is-a-default / flag-is-an-override shape as privacy.toml versus its
// live reload in internal/privacy.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// fileShape mirrors config.toml's on-disk keys.
//
//	every = "30s"
//	for = "8h"
//	capture_stride = 1
//	min_free_bytes = 1073741824
//	max_session_bytes = 10737418240
//	analyze = true
//	model = "gpt-4o-mini"
//	prompt = "Describe the visible application and task."
type fileShape struct {
	Every           string `toml:"every"`
	For             string `toml:"for"`
	CaptureStride   uint32 `toml:"capture_stride"`
	MinFreeBytes    uint64 `toml:"min_free_bytes"`
	MaxSessionBytes uint64 `toml:"max_session_bytes"`
	Analyze         bool   `toml:"analyze"`
	Model           string `toml:"model"`
	Prompt          string `toml:"prompt"`
}

// Defaults is the parsed, typed form of config.toml. A zero-value Defaults
// (every field empty/zero) means no file was present.
type Defaults struct {
	Every           time.Duration
	For             time.Duration
	CaptureStride   uint32
	MinFreeBytes    uint64
	MaxSessionBytes uint64
	Analyze         bool
	Model           string
	Prompt          string
}

// Load reads config.toml at path. A missing file is not an error — it
// yields a zero Defaults, since config.toml is entirely optional and CLI
// flags alone are a complete configuration.
func Load(path string) (Defaults, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Defaults{}, nil
	}

	var shape fileShape
	if _, err := toml.DecodeFile(path, &shape); err != nil {
		return Defaults{}, fmt.Errorf("config: failed to parse %q: %w", path, err)
	}

	d := Defaults{
		CaptureStride:   shape.CaptureStride,
		MinFreeBytes:    shape.MinFreeBytes,
		MaxSessionBytes: shape.MaxSessionBytes,
		Analyze:         shape.Analyze,
		Model:           shape.Model,
		Prompt:          shape.Prompt,
	}
	if shape.Every != "" {
		every, err := time.ParseDuration(shape.Every)
		if err != nil {
			return Defaults{}, fmt.Errorf("config: invalid every %q: %w", shape.Every, err)
		}
		d.Every = every
	}
	if shape.For != "" {
		forDuration, err := time.ParseDuration(shape.For)
		if err != nil {
			return Defaults{}, fmt.Errorf("config: invalid for %q: %w", shape.For, err)
		}
		d.For = forDuration
	}
	return d, nil
}

// ApplyTo overlays d onto cfg wherever cfg still holds its CLI zero value,
// i.e. flags win whenever they hold a non-zero value.
func (d Defaults) ApplyTo(cfg *session.Config) {
	if cfg.Every == 0 {
		cfg.Every = d.Every
	}
	if cfg.For == 0 {
		cfg.For = d.For
	}
	if cfg.CaptureStride == 0 {
		cfg.CaptureStride = d.CaptureStride
	}
	if cfg.MinFreeBytes == 0 {
		cfg.MinFreeBytes = d.MinFreeBytes
	}
	if cfg.MaxSessionBytes == nil && d.MaxSessionBytes != 0 {
		cfg.MaxSessionBytes = &d.MaxSessionBytes
	}
	// A bool flag can't distinguish "explicitly set to false" from "left at
	// its zero value", so a false Analyze is always replaced by this file's
	// value: analyze = true here overrides even an explicit --analyze=false.
	if !cfg.Analyze {
		cfg.Analyze = d.Analyze
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.Prompt == "" {
		cfg.Prompt = d.Prompt
	}
}
