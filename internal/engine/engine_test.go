package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/analyzer"
	"github.com/kestrelsoft/screenmemory/internal/contextlog"
	"github.com/kestrelsoft/screenmemory/internal/diskguard"
	"github.com/kestrelsoft/screenmemory/internal/eventbus"
	"github.com/kestrelsoft/screenmemory/internal/privacy"
	"github.com/kestrelsoft/screenmemory/internal/screenshot"
	"github.com/kestrelsoft/screenmemory/internal/session"
	"github.com/kestrelsoft/screenmemory/internal/watchdog"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

// collectEvents drains bus into a slice for the lifetime of the returned
// stop function's call.
func collectEvents(bus *eventbus.Bus) (events *[]session.Event, stop func()) {
	ch, unsubscribe := bus.Subscribe()
	var got []session.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			got = append(got, evt)
		}
	}()
	return &got, func() {
		unsubscribe()
		<-done
	}
}

func newTestEngine(t *testing.T, cfg session.Config, gate *privacy.Gate, an analyzer.Analyzer) (*Engine, *eventbus.Bus) {
	t.Helper()
	dir := t.TempDir()
	cfg.OutputDir = filepath.Join(dir, "captures")
	cfg.ContextPath = filepath.Join(dir, "context.md")
	if cfg.FilenamePrefix == "" {
		cfg.FilenamePrefix = "smem"
	}
	if cfg.CaptureStride == 0 {
		cfg.CaptureStride = 1
	}

	disk := diskguard.New(cfg.OutputDir, cfg.MinFreeBytes, cfg.MaxSessionBytes, discardLog())
	if err := disk.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	ctxlog, err := contextlog.Open(cfg.ContextPath)
	if err != nil {
		t.Fatalf("contextlog.Open: %v", err)
	}
	t.Cleanup(func() { ctxlog.Close() })

	if gate == nil {
		gate = privacy.NewGate(allowAllDetector{})
	}
	if an == nil {
		an = analyzer.NewMock()
	}

	bus := eventbus.New()
	t.Cleanup(bus.Close)

	e, err := New(cfg, time.Now(), Deps{
		Bus:         bus,
		Gate:        gate,
		Disk:        disk,
		Screenshots: screenshot.NewMock(),
		Analyzer:    an,
		ContextLog:  ctxlog,
		Log:         discardLog(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, bus
}

type allowAllDetector struct{}

func (allowAllDetector) Probe(ctx context.Context) (privacy.Probe, error) {
	return privacy.Probe{ForegroundID: "com.example.nothing"}, nil
}

type fixedIDDetector struct{ id string }

func (f fixedIDDetector) Probe(ctx context.Context) (privacy.Probe, error) {
	return privacy.Probe{ForegroundID: f.id}, nil
}

type malformedAnalyzer struct{}

func (malformedAnalyzer) Analyze(ctx context.Context, path, model, prompt string) session.AnalysisResult {
	return session.AnalysisResult{Fallback: true, Reason: "malformed_payload"}
}

func countKind(events []session.Event, kind session.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// S1: mock schedule produces at least 2 capture entries.
func TestS1MockScheduleProducesCaptures(t *testing.T) {
	cfg := session.Config{Every: 50 * time.Millisecond, For: 250 * time.Millisecond, Analyze: false}
	e, bus := newTestEngine(t, cfg, nil, analyzer.NewLocal())

	got, stop := collectEvents(bus)
	result := e.Run(context.Background())
	stop()

	if result.Counters.Captures < 2 {
		t.Fatalf("expected >= 2 captures, got %d", result.Counters.Captures)
	}
	if countKind(*got, session.EventCaptureSucceeded) < 2 {
		t.Fatalf("expected >= 2 CaptureSucceeded events, got %d", countKind(*got, session.EventCaptureSucceeded))
	}

	entries, err := contextlog.Parse(e.cfg.ContextPath)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected >= 2 parsed entries, got %d", len(entries))
	}
}

// S2: privacy deny produces a Skipped entry and no PNG.
func TestS2PrivacyDenyProducesSkipped(t *testing.T) {
	gate := privacy.NewGate(fixedIDDetector{id: "com.apple.Terminal"})
	cfg := session.Config{
		Every: 30 * time.Millisecond,
		For:   100 * time.Millisecond,
		Privacy: &session.Privacy{
			DenyApps: map[string]struct{}{"com.apple.terminal": {}},
		},
	}
	e, bus := newTestEngine(t, cfg, gate, nil)

	got, stop := collectEvents(bus)
	result := e.Run(context.Background())
	stop()

	if result.Counters.Skipped == 0 {
		t.Fatal("expected at least one skipped tick")
	}
	if result.Counters.Captures != 0 {
		t.Fatalf("expected zero captures, got %d", result.Counters.Captures)
	}
	if countKind(*got, session.EventCaptureSkipped) == 0 {
		t.Fatal("expected at least one CaptureSkipped event")
	}

	matches, _ := filepath.Glob(filepath.Join(e.cfg.OutputDir, "*.png"))
	if len(matches) != 0 {
		t.Fatalf("expected no PNGs written, found %v", matches)
	}
}

// S3: an unreachable free-space floor fails every attempted tick but the
// session still runs to its deadline.
func TestS3DiskBelowMinFailsEveryTick(t *testing.T) {
	cfg := session.Config{
		Every:        30 * time.Millisecond,
		For:          100 * time.Millisecond,
		MinFreeBytes: 1 << 62,
	}
	e, bus := newTestEngine(t, cfg, nil, nil)

	got, stop := collectEvents(bus)
	result := e.Run(context.Background())
	stop()

	if result.Counters.Failures == 0 {
		t.Fatal("expected at least one failure")
	}
	if result.Counters.Failures != result.Counters.Attempted() {
		t.Fatalf("failures=%d attempted=%d, want equal", result.Counters.Failures, result.Counters.Attempted())
	}
	if result.State != session.Done {
		t.Fatalf("expected session to reach Done despite failures, got %s", result.State)
	}
	if countKind(*got, session.EventCaptureFailed) == 0 {
		t.Fatal("expected at least one CaptureFailed event")
	}
}

// S4: stacked auto-pause reasons must not emit a spurious intermediate
// resume when one of two overlapping reasons clears.
func TestS4StackedAutoPauseReasons(t *testing.T) {
	cfg := session.Config{Every: 20 * time.Millisecond, For: 2 * time.Second}
	e, bus := newTestEngine(t, cfg, nil, nil)

	got, stop := collectEvents(bus)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan Result, 1)
	go func() { runDone <- e.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	e.Signals() <- watchdog.Signal{Reason: session.ReasonScreenLocked, Active: true}
	time.Sleep(5 * time.Millisecond)
	e.Signals() <- watchdog.Signal{Reason: session.ReasonPermissionRevoked, Active: true}
	time.Sleep(5 * time.Millisecond)
	e.Signals() <- watchdog.Signal{Reason: session.ReasonScreenLocked, Active: false}
	time.Sleep(5 * time.Millisecond)
	e.Signals() <- watchdog.Signal{Reason: session.ReasonPermissionRevoked, Active: false}

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-runDone
	stop()

	if n := countKind(*got, session.EventAutoPaused); n != 2 {
		t.Fatalf("expected exactly 2 AutoPaused events, got %d: %+v", n, *got)
	}
	if n := countKind(*got, session.EventAutoResumed); n != 1 {
		t.Fatalf("expected exactly 1 AutoResumed event, got %d: %+v", n, *got)
	}

	var lastPausedIdx, resumedIdx = -1, -1
	for i, evt := range *got {
		if evt.Kind == session.EventAutoPaused {
			lastPausedIdx = i
		}
		if evt.Kind == session.EventAutoResumed {
			resumedIdx = i
		}
	}
	if resumedIdx < lastPausedIdx {
		t.Fatalf("AutoResumed must come after both AutoPaused events")
	}
	data, ok := (*got)[resumedIdx].Data.(session.AutoResumedData)
	if !ok || data.Reason != session.ReasonPermissionRevoked {
		t.Fatalf("expected the single AutoResumed to name PermissionRevoked, got %+v", (*got)[resumedIdx].Data)
	}
}

// S6: a malformed analyzer payload still yields an appended capture entry
// with the fallback summary.
func TestS6AnalyzerMalformedFallsBackButStillAppends(t *testing.T) {
	cfg := session.Config{Every: 30 * time.Millisecond, For: 80 * time.Millisecond}
	e, bus := newTestEngine(t, cfg, nil, malformedAnalyzer{})

	got, stop := collectEvents(bus)
	result := e.Run(context.Background())
	stop()

	if countKind(*got, session.EventAnalysisFallback) == 0 {
		t.Fatal("expected at least one AnalysisFallback event")
	}
	if result.Counters.Captures == 0 {
		t.Fatal("expected capture entries to still be appended on analyzer fallback")
	}

	entries, err := contextlog.Parse(e.cfg.ContextPath)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	found := false
	for _, entry := range entries {
		if !entry.IsSkipped() && entry.Summary != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one capture entry with a fallback summary")
	}
}

func TestPauseIdempotence(t *testing.T) {
	cfg := session.Config{Every: 20 * time.Millisecond, For: time.Second}
	e, bus := newTestEngine(t, cfg, nil, nil)

	got, stop := collectEvents(bus)
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan Result, 1)
	go func() { runDone <- e.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	e.Pause()
	e.Pause()
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-runDone
	stop()

	if n := countKind(*got, session.EventUserPaused); n != 1 {
		t.Fatalf("expected exactly one UserPaused from two Pause calls, got %d", n)
	}
}
