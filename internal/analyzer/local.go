package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// LocalAnalyzer never calls out to a remote service. It is used when
// analyze=false or no API key is configured, per spec.md §4.5. The engine
// also uses its metadata summary as the fallback summary whenever another
// analyzer falls back without one (as HTTPAnalyzer does on failure).
type LocalAnalyzer struct{}

// NewLocal constructs a LocalAnalyzer.
func NewLocal() *LocalAnalyzer { return &LocalAnalyzer{} }

func (LocalAnalyzer) Analyze(ctx context.Context, path, model, prompt string) session.AnalysisResult {
	return session.AnalysisResult{
		Summary:  localSummary(path),
		Fallback: true,
		Reason:   "analyzer_disabled",
	}
}

func localSummary(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Sprintf("image=%s size=unknown captured=unknown", filepath.Base(path))
	}
	return fmt.Sprintf("image=%s size=%d captured=%s",
		filepath.Base(path), info.Size(), info.ModTime().UTC().Format(time.RFC3339))
}
