package session

import "time"

// EventKind discriminates Event.Data's dynamic type for callers that want a
// cheap switch before type-asserting the payload.
type EventKind string

const (
	EventSessionStarted   EventKind = "session_started"
	EventTick             EventKind = "tick"
	EventCaptureSucceeded EventKind = "capture_succeeded"
	EventCaptureSkipped   EventKind = "capture_skipped"
	EventCaptureFailed    EventKind = "capture_failed"
	EventAnalysisSucceeded EventKind = "analysis_succeeded"
	EventAnalysisFallback EventKind = "analysis_fallback"
	EventAutoPaused       EventKind = "auto_paused"
	EventAutoResumed      EventKind = "auto_resumed"
	EventUserPaused       EventKind = "user_paused"
	EventUserResumed      EventKind = "user_resumed"
	EventReclaimed        EventKind = "reclaimed"
	EventSessionStopped   EventKind = "session_stopped"
	EventSessionEnded     EventKind = "session_ended"
)

// Event is the envelope emitted onto the EventBus. At is always the wall
// clock time the engine task produced the event, used only for shell
// display — it has no bearing on ContextEntry timestamps.
type Event struct {
	Kind EventKind
	At   time.Time
	Data any
}

type TickData struct{ Index uint64 }

type CaptureSucceededData struct{ Artifact Artifact }

type CaptureSkippedData struct{ RuleLabel string }

type CaptureFailedData struct{ Kind ErrorKind }

type AnalysisSucceededData struct{ Summary string }

type AnalysisFallbackData struct{ Reason string }

type AutoPausedData struct{ Reason PauseReason }

type AutoResumedData struct{ Reason PauseReason }

type ReclaimedData struct {
	Files          uint64
	FreedBytes     uint64
	RemainingBytes uint64
}

type SessionStoppedData struct{ Reason string }

type SessionEndedData struct {
	Counters Counters
	State    State
}
