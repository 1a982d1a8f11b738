// Package watchdog polls system/permission state and funnels edge-triggered
// pause/resume signals toward the capture engine. Polling itself is a
// small cooperative goroutine per watch, grounded on the poll-loop shape
// in dagu-org/dagu's catchup_manager.go: a ticker, a select on ctx.Done,
// and a dedup check against the last observed value.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// PollInterval is how often each watch re-checks its probe, per spec.md
// §4.7.
const PollInterval = 2 * time.Second

// Signal reports an edge-triggered change in a pause reason's active
// state: true means the reason now holds (the engine should Add it),
// false means it no longer holds (the engine should Clear it).
type Signal struct {
	Reason session.PauseReason
	Active bool
}

// Watch polls a single boolean condition and emits a Signal on out
// whenever the observed value differs from the last one signalled. The
// reason starts out inactive, so an initial observation of false emits
// nothing. A nil poll result (unavailable)
// is logged once per transition into unavailability and otherwise
// produces no Signal at all, per the WatchdogUnavailable error kind.
type Watch struct {
	reason   session.PauseReason
	interval time.Duration
	poll     func(ctx context.Context) *bool
	out      chan<- Signal
	log      *slog.Logger
}

func newWatch(reason session.PauseReason, interval time.Duration, poll func(ctx context.Context) *bool, out chan<- Signal, log *slog.Logger) *Watch {
	if log == nil {
		log = slog.Default()
	}
	return &Watch{reason: reason, interval: interval, poll: poll, out: out, log: log}
}

// Run blocks polling until ctx is cancelled.
func (w *Watch) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last *bool
	held := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := w.poll(ctx)
			if cur == nil {
				if last != nil {
					w.log.Warn("watchdog: probe became unavailable", "reason", w.reason)
				}
				last = nil
				continue
			}
			last = cur
			if *cur == held {
				continue
			}
			held = *cur
			select {
			case w.out <- Signal{Reason: w.reason, Active: *cur}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// NewPermissionWatch polls probe for screen-recording entitlement loss.
// Active=true means the entitlement is currently absent (paused).
func NewPermissionWatch(probe PermissionProbe, out chan<- Signal, log *slog.Logger) *Watch {
	return newWatch(session.ReasonPermissionRevoked, PollInterval, func(ctx context.Context) *bool {
		switch probe.ScreenRecording(ctx) {
		case PermissionGranted:
			v := false
			return &v
		case PermissionDenied:
			v := true
			return &v
		default:
			return nil
		}
	}, out, log)
}

// NewDisplaySleepWatch polls probe for display sleep.
func NewDisplaySleepWatch(probe ActivityProbe, out chan<- Signal, log *slog.Logger) *Watch {
	return newWatch(session.ReasonDisplayAsleep, PollInterval, func(ctx context.Context) *bool {
		return probe.DisplayAsleep(ctx)
	}, out, log)
}

// NewScreenLockWatch polls probe for session lock.
func NewScreenLockWatch(probe ActivityProbe, out chan<- Signal, log *slog.Logger) *Watch {
	return newWatch(session.ReasonScreenLocked, PollInterval, func(ctx context.Context) *bool {
		return probe.ScreenLocked(ctx)
	}, out, log)
}
