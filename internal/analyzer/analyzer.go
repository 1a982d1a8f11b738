// Package analyzer summarizes a capture image, with bounded retry and a
// fallback path that never returns an error: the engine always gets a
// usable AnalysisResult.
package analyzer

import (
	"context"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// Deadline is the total time budget for one analyze call, per spec.md §4.5.
const Deadline = 30 * time.Second

// Analyzer summarizes the image at path. It never returns an error: a
// failure is represented as a Fallback AnalysisResult.
type Analyzer interface {
	Analyze(ctx context.Context, path, model, prompt string) session.AnalysisResult
}

// errorClass distinguishes retryable failures from the ones that should
// surface immediately as a fallback, per spec.md §7.
type errorClass int

const (
	classTransient errorClass = iota
	classNonRetryable
	classMalformed
	classTimeout
)

type classifiedError struct {
	class errorClass
	label string
}

func (e *classifiedError) Error() string { return e.label }
