package privacy

import (
	"context"
	"strings"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// detectorBudget bounds a single probe call per spec.md §4.3: a detector
// that doesn't answer within this window is treated as unavailable and the
// gate fails closed.
const detectorBudget = 300 * time.Millisecond

// Probe is the result of a single foreground-app / private-window check.
// BrowserPrivate is nil when the foreground app is not a browser the
// detector can introspect (Chromium-family only, per spec.md).
type Probe struct {
	ForegroundID   string
	BrowserPrivate *bool
}

// Detector reports the current foreground application and, best-effort,
// whether it is a Chromium-family browser with a private window focused.
// Implementations are an external collaborator (spec.md §6.1); this package
// only consumes the interface — concrete OS introspection lives outside
// this repo's scope, same posture as the OS screenshot call.
type Detector interface {
	Probe(ctx context.Context) (Probe, error)
}

// Decision is the gate's verdict for one tick.
type Decision struct {
	Allowed   bool
	RuleLabel string
}

// allowDecision is the shared "nothing to deny" result.
var allowDecision = Decision{Allowed: true}

// Gate evaluates a Policy against one Detector probe per tick — spec.md
// §4.3 requires a single detector call to satisfy both the deny_apps check
// and the browser-private-window check.
type Gate struct {
	detector Detector
}

// NewGate constructs a Gate around detector.
func NewGate(detector Detector) *Gate {
	return &Gate{detector: detector}
}

// Evaluate runs the gate for one tick against policy, which may be nil (no
// policy configured — always allow, skipping the detector call entirely
// since there is nothing to deny).
func (g *Gate) Evaluate(ctx context.Context, policy *session.Privacy) Decision {
	if policy == nil {
		return allowDecision
	}

	probeCtx, cancel := context.WithTimeout(ctx, detectorBudget)
	defer cancel()

	type result struct {
		probe Probe
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		probe, err := g.detector.Probe(probeCtx)
		resultCh <- result{probe: probe, err: err}
	}()

	var probe Probe
	select {
	case r := <-resultCh:
		if r.err != nil {
			return Decision{Allowed: false, RuleLabel: "privacy:detector_unavailable"}
		}
		probe = r.probe
	case <-probeCtx.Done():
		// Fail-closed: a detector that doesn't answer within budget denies
		// the capture rather than risking an unvetted screenshot.
		return Decision{Allowed: false, RuleLabel: "privacy:detector_unavailable"}
	}

	id := strings.ToLower(probe.ForegroundID)
	if _, denied := policy.DenyApps[id]; denied {
		// allow_overrides supersede category denials but never an explicit
		// deny_apps match.
		return Decision{Allowed: false, RuleLabel: "privacy:deny_app"}
	}

	if policy.DenyBrowserPrivateWindow && probe.BrowserPrivate != nil && *probe.BrowserPrivate {
		if _, overridden := policy.AllowOverrides[id]; overridden {
			return allowDecision
		}
		return Decision{Allowed: false, RuleLabel: "privacy:private_window"}
	}

	return allowDecision
}
