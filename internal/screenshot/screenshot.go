// Package screenshot defines the ScreenshotProvider contract consumed by
// the capture engine, plus two implementations: a deterministic mock for
// use_mock sessions and a real desktop-capture provider.
//
// The hard-timeout-via-context-plus-result-channel shape mirrors the
// teacher's capture.go, which bounds navigation and the total capture the
// same way rather than relying on a library-level timeout.
package screenshot

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// HardTimeout is the watchdog bound on a single capture call, per spec.md
// §4.6.
const HardTimeout = 10 * time.Second

// Kind distinguishes a hung capture (watchdog fired) from any other
// failure reported by the provider.
type Kind string

const (
	KindHung   Kind = "hung"
	KindFailed Kind = "failed"
)

// Error is returned by Provider.Capture on failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("screenshot: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("screenshot: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider produces a screenshot PNG at targetPath.
type Provider interface {
	Capture(ctx context.Context, targetPath string) (session.Artifact, error)
}

// WithWatchdog wraps provider so that any call exceeding HardTimeout
// returns a KindHung error, regardless of whether the underlying
// implementation itself honours context cancellation. The in-flight
// capture is allowed to run to completion in its own goroutine; its result
// is simply discarded once the watchdog fires, matching spec.md §5's
// "in-flight work is allowed to complete ... result is discarded" rule for
// analyzer/screenshot calls after Stop.
func WithWatchdog(provider Provider) Provider {
	return &watchdogProvider{inner: provider}
}

type watchdogProvider struct {
	inner Provider
}

type captureResult struct {
	artifact session.Artifact
	err      error
}

func (w *watchdogProvider) Capture(ctx context.Context, targetPath string) (session.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	resultCh := make(chan captureResult, 1)
	go func() {
		artifact, err := w.inner.Capture(ctx, targetPath)
		resultCh <- captureResult{artifact: artifact, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.artifact, r.err
	case <-ctx.Done():
		return session.Artifact{}, &Error{Kind: KindHung, Err: ctx.Err()}
	}
}
