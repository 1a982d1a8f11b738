// Package privacy implements the pre-capture privacy gate: loading
// privacy.toml, evaluating the current foreground app / browser-private
// state against it, and hot-reloading the policy on command or file change.
//
// The rule-table shape (deny lists plus override lists) is a narrowed
// adaptation of other_examples' zamorofthat-elida/internal/policy/policy.go
// rule engine, cut down to exactly the deny_apps / deny_browser_private /
// allow_overrides model spec.md specifies — this package intentionally does
// not grow zamorofthat-elida's broader metric/content-match rule types,
// which are out of scope here.
package privacy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// fileShape mirrors privacy.toml's on-disk keys (spec.md §6.2):
//
//	[deny]
//	apps = ["com.apple.Terminal"]
//	browser_private_windows = true
//
//	[allow]
//	overrides = ["com.google.Chrome"]
type fileShape struct {
	Deny struct {
		Apps                   []string `toml:"apps"`
		BrowserPrivateWindows  bool     `toml:"browser_private_windows"`
	} `toml:"deny"`
	Allow struct {
		Overrides []string `toml:"overrides"`
	} `toml:"allow"`
}

// Load parses privacy.toml at path into a session.Privacy value. A missing
// file is not an error — it yields an empty (allow-everything) policy,
// since a policy file is optional per spec.md.
func Load(path string) (*session.Privacy, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &session.Privacy{
			DenyApps:       map[string]struct{}{},
			AllowOverrides: map[string]struct{}{},
		}, nil
	}

	var shape fileShape
	if _, err := toml.DecodeFile(path, &shape); err != nil {
		return nil, fmt.Errorf("privacy: failed to parse %q: %w", path, err)
	}

	p := &session.Privacy{
		DenyApps:                 make(map[string]struct{}, len(shape.Deny.Apps)),
		DenyBrowserPrivateWindow: shape.Deny.BrowserPrivateWindows,
		AllowOverrides:           make(map[string]struct{}, len(shape.Allow.Overrides)),
	}
	for _, app := range shape.Deny.Apps {
		p.DenyApps[strings.ToLower(app)] = struct{}{}
	}
	for _, o := range shape.Allow.Overrides {
		p.AllowOverrides[strings.ToLower(o)] = struct{}{}
	}
	return p, nil
}
