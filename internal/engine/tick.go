package engine

import (
	"context"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/analyzer"
	"github.com/kestrelsoft/screenmemory/internal/session"
)

// tick implements the 8-step algorithm of spec.md §4.8. It never returns
// an error: every failure source is counted and the session continues,
// per the failure-semantics table.
func (e *Engine) tick(now time.Time) {
	e.tickIndex++
	idx := e.tickIndex
	e.emit(session.EventTick, session.TickData{Index: idx})

	// Step 2: a non-empty pause-reason set suppresses all work for this
	// tick, but the index still advances so a resumed session resumes
	// counting from where it left off rather than replaying skipped ticks.
	if !e.store.ReasonsEmpty() {
		return
	}

	// Step 3: capture_stride thins ticks down to a coarser capture cadence
	// with no event at all for the ticks in between.
	if idx%uint64(e.cfg.CaptureStride) != 0 {
		return
	}

	// Step 4: privacy gate.
	decision := e.gate.Evaluate(context.Background(), e.cfg.Privacy)
	if !decision.Allowed {
		if err := e.ctxlog.AppendSkipped(idx, now, decision.RuleLabel); err != nil {
			e.store.IncrFailures()
			e.log.Warn("engine: failed to append skipped entry", "error", err)
			return
		}
		e.store.IncrSkipped()
		e.emit(session.EventCaptureSkipped, session.CaptureSkippedData{RuleLabel: decision.RuleLabel})
		return
	}

	// Step 5: disk guard, which may reclaim space before answering.
	verdict, err := e.disk.CheckBeforeCapture(estimatedCaptureBytes, e.store.Counters().BytesWritten)
	if err != nil {
		e.store.IncrFailures()
		e.log.Warn("engine: disk guard check errored", "error", err)
		e.emit(session.EventCaptureFailed, session.CaptureFailedData{Kind: session.ErrDiskBelowMin})
		return
	}
	if verdict.Reclaimed != nil {
		e.store.AddReclaimedFiles(verdict.Reclaimed.Files)
		e.emit(session.EventReclaimed, session.ReclaimedData{
			Files:          verdict.Reclaimed.Files,
			FreedBytes:     verdict.Reclaimed.FreedBytes,
			RemainingBytes: verdict.Reclaimed.RemainingBytes,
		})
	}
	if !verdict.OK {
		e.store.IncrFailures()
		e.emit(session.EventCaptureFailed, session.CaptureFailedData{Kind: verdict.ErrorKind})
		return
	}

	// Step 6: the screenshot itself, watchdog-bounded by the provider.
	path := e.nextCapturePath(now, idx)
	artifact, err := e.screenshots.Capture(context.Background(), path)
	if err != nil {
		e.store.IncrFailures()
		e.emit(session.EventCaptureFailed, session.CaptureFailedData{Kind: errScreenshotKind(err)})
		return
	}
	artifact.CaptureIndex = idx

	// Step 7: analysis never fails the tick — a failure becomes a fallback
	// summary, which is still appended.
	result := e.analyzer.Analyze(context.Background(), artifact.Path, e.cfg.Model, e.cfg.Prompt)
	if result.Fallback {
		e.emit(session.EventAnalysisFallback, session.AnalysisFallbackData{Reason: result.Reason})
	} else {
		e.store.IncrAnalyzed()
		e.emit(session.EventAnalysisSucceeded, session.AnalysisSucceededData{Summary: result.Summary})
	}

	summary := result.Summary
	if result.Fallback && summary == "" {
		summary = analyzer.NewLocal().Analyze(context.Background(), artifact.Path, "", "").Summary
	}

	if err := e.ctxlog.AppendCapture(idx, now, artifact.Path, summary); err != nil {
		e.store.IncrFailures()
		e.log.Warn("engine: failed to append capture entry", "error", err)
		return
	}

	e.store.IncrCaptures()
	// Step 8.
	e.store.AddBytesWritten(artifact.Bytes)
	e.emit(session.EventCaptureSucceeded, session.CaptureSucceededData{Artifact: artifact})
}
