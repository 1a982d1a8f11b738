package watchdog

import "context"

// PermissionState is the tri-state result of a screen-recording
// entitlement check, per spec.md §6.1.
type PermissionState int

const (
	PermissionGranted PermissionState = iota
	PermissionDenied
	PermissionUnknown
)

// PermissionProbe reports whether the process currently holds
// screen-recording entitlement. A concrete implementation is an external,
// OS-specific collaborator; this repo ships only StubPermissionProbe.
type PermissionProbe interface {
	ScreenRecording(ctx context.Context) PermissionState
}

// ActivityProbe reports system activity state. A nil return means the
// probe cannot currently answer (§6.1's Option<bool> with no value),
// which by the WatchdogUnavailable rule means the corresponding pause
// reason is simply never raised.
type ActivityProbe interface {
	ScreenLocked(ctx context.Context) *bool
	DisplayAsleep(ctx context.Context) *bool
}

// StubPermissionProbe always reports PermissionUnknown, matching the
// posture of the OS screenshot call: concrete OS polling is external to
// this repo.
type StubPermissionProbe struct{}

func (StubPermissionProbe) ScreenRecording(ctx context.Context) PermissionState {
	return PermissionUnknown
}

// StubActivityProbe always reports unavailable.
type StubActivityProbe struct{}

func (StubActivityProbe) ScreenLocked(ctx context.Context) *bool  { return nil }
func (StubActivityProbe) DisplayAsleep(ctx context.Context) *bool { return nil }
