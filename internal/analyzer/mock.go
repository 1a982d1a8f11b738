package analyzer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// MockAnalyzer returns a deterministic, non-fallback summary so tests can
// assert on an AnalysisSucceeded path without a real model call.
type MockAnalyzer struct{}

// NewMock constructs a MockAnalyzer.
func NewMock() *MockAnalyzer { return &MockAnalyzer{} }

func (MockAnalyzer) Analyze(ctx context.Context, path, model, prompt string) session.AnalysisResult {
	return session.AnalysisResult{
		Summary: fmt.Sprintf("mock summary of %s", filepath.Base(path)),
	}
}
