// Package contextlog implements the append-only memory log written by the
// capture engine: one Markdown entry per captured or privacy-skipped tick,
// flushed and fsynced before the write is considered durable.
//
// File-handling discipline (create parent dirs, explicit os.Create, wrapped
// errors) follows the teacher's internal/storage/disk.go; the difference is
// that this is an append-only log handle held open for the session's
// lifetime rather than one file per upload.
package contextlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Log is an append-only writer for context.md. It owns one *os.File handle
// for the lifetime of the session.
type Log struct {
	f *os.File
}

// Open creates (or appends to) the log file at path, creating parent
// directories as needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("contextlog: failed to create directory for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("contextlog: failed to open %q: %w", path, err)
	}
	return &Log{f: f}, nil
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	return l.f.Close()
}

// flattenSummary replaces newlines with spaces and trims the result,
// guaranteeing Testable Property 3 (single-line summary).
func flattenSummary(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// AppendCapture writes a capture entry and fsyncs before returning. index is
// the tick index, at must be UTC, path is the image file path (already
// written to disk — invariant 3 of spec.md requires the caller to ensure
// this), and summary is flattened and trimmed before being written.
func (l *Log) AppendCapture(index uint64, at time.Time, path, summary string) error {
	entry := fmt.Sprintf(
		"## Capture %d at %s\n- Image: %s\n- Summary: %s\n\n",
		index, at.UTC().Format(time.RFC3339), path, flattenSummary(summary),
	)
	return l.write(entry)
}

// AppendSkipped writes a skipped entry for a tick the privacy gate denied.
// ruleLabel must be a stable token (e.g. "privacy:deny_app") — never a
// window title, URL, or foreground app name.
func (l *Log) AppendSkipped(index uint64, at time.Time, ruleLabel string) error {
	entry := fmt.Sprintf(
		"## Capture %d at %s\n- Skipped: %s\n\n",
		index, at.UTC().Format(time.RFC3339), ruleLabel,
	)
	return l.write(entry)
}

func (l *Log) write(entry string) error {
	if _, err := l.f.WriteString(entry); err != nil {
		return fmt.Errorf("contextlog: write failed: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("contextlog: fsync failed: %w", err)
	}
	return nil
}
