// Package engine implements the capture engine: the central state machine
// that ties the scheduler, privacy gate, disk guard, screenshot provider,
// analyzer, and context log together behind a single task. It is the
// generalisation of the teacher's internal/operation.Store (one row,
// read/write from many callers, copy-out-on-read) from a per-job external
// store down to a single in-process session owned by one goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/analyzer"
	"github.com/kestrelsoft/screenmemory/internal/contextlog"
	"github.com/kestrelsoft/screenmemory/internal/diskguard"
	"github.com/kestrelsoft/screenmemory/internal/eventbus"
	"github.com/kestrelsoft/screenmemory/internal/privacy"
	"github.com/kestrelsoft/screenmemory/internal/scheduler"
	"github.com/kestrelsoft/screenmemory/internal/screenshot"
	"github.com/kestrelsoft/screenmemory/internal/session"
	"github.com/kestrelsoft/screenmemory/internal/watchdog"
)

// estimatedCaptureBytes is the disk guard's pre-capture size estimate. A
// real PNG's size varies with display content; this is a deliberately
// conservative guess so the guard reclaims ahead of a capture rather than
// after, trading a little over-eagerness for never writing into a wall.
const estimatedCaptureBytes = 2 << 20 // 2 MiB

// Deps bundles the collaborators an Engine is built from. Screenshots and
// Analyzer are small capability contracts (spec.md §6.1), and Gate wraps a
// privacy.Detector, so tests can supply fakes for those without touching OS
// state; the remaining fields are concrete types.
type Deps struct {
	Bus         *eventbus.Bus
	Gate        *privacy.Gate
	Disk        *diskguard.Guard
	Screenshots screenshot.Provider
	Analyzer    analyzer.Analyzer
	ContextLog  *contextlog.Log
	Reloader    *privacy.Reloader // optional; nil disables file-triggered reload
	Log         *slog.Logger
}

// Engine is the single owner of session state. Everything else —
// watchdogs, the status server, the CLI — communicates with it only
// through its command methods (Pause, Resume, Stop, ReloadPrivacyPolicy),
// Signals() and Snapshot(), never by touching a shared flag.
type Engine struct {
	cfg   session.Config
	store *session.Store
	sched *scheduler.Scheduler

	bus         *eventbus.Bus
	gate        *privacy.Gate
	disk        *diskguard.Guard
	screenshots screenshot.Provider
	analyzer    analyzer.Analyzer
	ctxlog      *contextlog.Log
	reloader    *privacy.Reloader
	log         *slog.Logger

	commands chan command
	signals  chan watchdog.Signal

	tickIndex uint64
}

// New constructs an Engine for cfg, starting its scheduler at start.
func New(cfg session.Config, start time.Time, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	sched, err := scheduler.New(start, cfg.Every, cfg.For)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		cfg:         cfg,
		store:       session.NewStore(),
		sched:       sched,
		bus:         deps.Bus,
		gate:        deps.Gate,
		disk:        deps.Disk,
		screenshots: deps.Screenshots,
		analyzer:    deps.Analyzer,
		ctxlog:      deps.ContextLog,
		reloader:    deps.Reloader,
		log:         log,
		commands:    make(chan command, 4),
		signals:     make(chan watchdog.Signal, 16),
	}, nil
}

// Snapshot returns the current state/reasons/counters, safe to call from
// any goroutine while Run is executing.
func (e *Engine) Snapshot() session.Snapshot {
	return e.store.Snapshot()
}

// Signals returns the channel watchdogs deliver edge-triggered pause/resume
// signals on.
func (e *Engine) Signals() chan<- watchdog.Signal {
	return e.signals
}

// Pause issues a user-initiated pause. Idempotent: pausing an already
// user-paused session is a no-op.
func (e *Engine) Pause() { e.commands <- command{kind: cmdPause} }

// Resume clears the user pause reason.
func (e *Engine) Resume() { e.commands <- command{kind: cmdResume} }

// Stop requests a graceful session stop at the next opportunity.
func (e *Engine) Stop() { e.commands <- command{kind: cmdStop} }

// ReloadPrivacyPolicy re-reads privacy.toml immediately, independent of any
// filesystem-triggered reload.
func (e *Engine) ReloadPrivacyPolicy() { e.commands <- command{kind: cmdReloadPrivacy} }

// Result is the outcome of a completed Run call.
type Result struct {
	State         session.State
	Counters      session.Counters
	StoppedByUser bool
	LastError     session.ErrorKind
}

// Run drives the session to completion: it fires on every scheduler tick,
// applies commands and watchdog signals as they arrive, and returns once
// the session reaches a terminal state (deadline exhausted, Stop, or ctx
// cancellation). It does not return an error — terminal failure is
// represented in the returned Result, per the engine never crashing on a
// single bad tick (spec.md §4.8's failure-semantics table).
func (e *Engine) Run(ctx context.Context) Result {
	e.store.SetState(session.Running)
	e.emit(session.EventSessionStarted, nil)

	stoppedByUser := false

runloop:
	for {
		fireAt, ok := e.sched.NextTick()
		if !ok {
			break runloop
		}
		wait := time.Until(fireAt)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			break runloop
		case cmd := <-e.commands:
			timer.Stop()
			if e.applyCommand(cmd) {
				stoppedByUser = true
				break runloop
			}
		case sig := <-e.signals:
			timer.Stop()
			e.applySignal(sig)
		case policy := <-e.reloaderUpdates():
			timer.Stop()
			e.cfg.Privacy = policy
		case fireTime := <-timer.C:
			e.tick(fireTime)
			e.sched.Advance()
		}
	}

	finalState := session.Done
	stopReason := "deadline_reached"
	if stoppedByUser {
		stopReason = "user_stop"
	} else if ctx.Err() != nil {
		stopReason = "context_cancelled"
	}
	e.store.SetState(finalState)
	e.emit(session.EventSessionStopped, session.SessionStoppedData{Reason: stopReason})

	counters := e.store.Counters()
	e.emit(session.EventSessionEnded, session.SessionEndedData{Counters: counters, State: finalState})

	return Result{State: finalState, Counters: counters, StoppedByUser: stoppedByUser}
}

// reloaderUpdates returns the reloader's update channel, or nil when no
// Reloader was configured — a nil channel case in a select simply never
// fires, so the run loop works identically with or without one.
func (e *Engine) reloaderUpdates() <-chan *session.Privacy {
	if e.reloader == nil {
		return nil
	}
	return e.reloader.Updates()
}

func (e *Engine) emit(kind session.EventKind, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(session.Event{Kind: kind, At: time.Now().UTC(), Data: data})
}

func (e *Engine) nextCapturePath(now time.Time, idx uint64) string {
	ts := now.UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s-%s-%d.png", e.cfg.FilenamePrefix, ts, idx)
	return filepath.Join(e.cfg.OutputDir, name)
}

// errScreenshotKind maps a screenshot.Error's Kind to the matching
// session.ErrorKind for event payloads.
func errScreenshotKind(err error) session.ErrorKind {
	var sErr *screenshot.Error
	if errors.As(err, &sErr) && sErr.Kind == screenshot.KindHung {
		return session.ErrScreenshotHung
	}
	return session.ErrScreenshotFailed
}
