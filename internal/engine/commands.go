package engine

import (
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
	"github.com/kestrelsoft/screenmemory/internal/watchdog"
)

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
	cmdReloadPrivacy
)

type command struct {
	kind commandKind
}

// applyCommand applies a shell-issued command and reports whether the
// engine should stop its run loop.
func (e *Engine) applyCommand(cmd command) (stop bool) {
	switch cmd.kind {
	case cmdPause:
		e.addReason(session.ReasonUser)
	case cmdResume:
		e.clearReason(session.ReasonUser)
	case cmdReloadPrivacy:
		e.reloadPrivacy()
	case cmdStop:
		return true
	}
	return false
}

func (e *Engine) reloadPrivacy() {
	if e.reloader == nil {
		return
	}
	policy, err := e.reloader.Reload()
	if err != nil {
		e.log.Warn("engine: failed to reload privacy policy", "error", err)
		return
	}
	e.cfg.Privacy = policy
}

// applySignal applies a watchdog's edge-triggered observation: Active means
// the reason now holds, !Active means it has cleared.
func (e *Engine) applySignal(sig watchdog.Signal) {
	if sig.Active {
		e.addReason(sig.Reason)
	} else {
		e.clearReason(sig.Reason)
	}
}

// addReason records reason as held. Per spec.md §4.8, Add always emits its
// pause event for a reason newly entering the set — even if the session is
// already paused by a different, overlapping reason — but only transitions
// the session's State to Paused if it was the first reason (the set was
// empty beforehand). Adding a reason already present is a no-op: this is
// the per-reason idempotence invariant 6 of spec.md relies on.
func (e *Engine) addReason(reason session.PauseReason) {
	wasEmptyBefore := e.store.ReasonsEmpty()
	added := e.store.AddReason(reason)
	if !added {
		return
	}
	if wasEmptyBefore {
		e.store.SetState(session.Paused)
	}
	if reason == session.ReasonUser {
		e.emit(session.EventUserPaused, nil)
	} else {
		e.emit(session.EventAutoPaused, session.AutoPausedData{Reason: reason})
	}
}

// clearReason records reason as no longer held. Unlike addReason, the
// resume event is gated strictly on the set becoming fully empty — clearing
// one of several overlapping reasons is silent until the last one clears,
// which is also the only point at which the scheduler is realigned to
// avoid a burst of catch-up ticks.
func (e *Engine) clearReason(reason session.PauseReason) {
	if !e.store.HasReason(reason) {
		return
	}
	nowEmpty := e.store.ClearReason(reason)
	if !nowEmpty {
		return
	}
	e.store.SetState(session.Running)
	e.sched.Align(time.Now())
	if reason == session.ReasonUser {
		e.emit(session.EventUserResumed, nil)
	} else {
		e.emit(session.EventAutoResumed, session.AutoResumedData{Reason: reason})
	}
}
