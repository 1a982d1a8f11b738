// Package diskguard implements the pre-capture disk-safety check: free-space
// headroom with oldest-first reclaim, and the per-session storage cap.
//
// File enumeration/deletion is adapted directly from the teacher's
// internal/storage/disk.go (create-parent-dirs, explicit os errors wrapped
// with context) — generalised from "write one uploaded object" to "list and
// prune a directory of capture files by age".
package diskguard

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// Guard enforces free-space headroom and the session storage cap ahead of
// every capture.
type Guard struct {
	capturesDir     string
	minFreeBytes    uint64
	maxSessionBytes *uint64
	log             *slog.Logger

	// freeBytes queries available space under capturesDir's filesystem. It
	// is platform-specific (see statfs_*.go) and overridable in tests.
	freeBytes func(path string) (uint64, error)
}

// New constructs a Guard rooted at capturesDir (spec.md's output_dir).
func New(capturesDir string, minFreeBytes uint64, maxSessionBytes *uint64, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		capturesDir:     capturesDir,
		minFreeBytes:    minFreeBytes,
		maxSessionBytes: maxSessionBytes,
		log:             log,
		freeBytes:       statfsFree,
	}
}

// EnsureDir creates capturesDir (and its parents) best-effort, matching
// spec.md §4.4's "created best-effort" wording.
func (g *Guard) EnsureDir() error {
	if err := os.MkdirAll(g.capturesDir, 0o755); err != nil {
		return fmt.Errorf("diskguard: failed to create %q: %w", g.capturesDir, err)
	}
	return nil
}

// Reclaimed describes a reclaim pass that actually deleted files. A nil
// *Reclaimed from CheckBeforeCapture means no reclaim was necessary.
type Reclaimed struct {
	Files          uint64
	FreedBytes     uint64
	RemainingBytes uint64
}

// Verdict is the outcome of CheckBeforeCapture.
type Verdict struct {
	OK        bool
	ErrorKind session.ErrorKind
	Reclaimed *Reclaimed
}

// CheckBeforeCapture enforces both the free-space floor (reclaiming oldest
// captures first if needed) and the session storage cap. expectedSize is the
// engine's estimate of the next capture's size; bytesWritten is the running
// session total.
func (g *Guard) CheckBeforeCapture(expectedSize, bytesWritten uint64) (Verdict, error) {
	if g.maxSessionBytes != nil && bytesWritten+expectedSize > *g.maxSessionBytes {
		// The cap is user-chosen; spec.md §4.4 explicitly excludes reclaim
		// for this case.
		return Verdict{OK: false, ErrorKind: session.ErrSessionCapExceeded}, nil
	}

	queryDir := g.capturesDir
	if _, err := os.Stat(queryDir); os.IsNotExist(err) {
		// Until the first capture creates it, measure the parent's filesystem.
		queryDir = filepath.Dir(queryDir)
	}

	free, err := g.freeBytes(queryDir)
	if err != nil {
		return Verdict{}, fmt.Errorf("diskguard: failed to query free space under %q: %w", queryDir, err)
	}

	if free >= g.minFreeBytes {
		return Verdict{OK: true}, nil
	}

	reclaimed, freedBytes, err := g.reclaimOldest(g.minFreeBytes - free)
	if err != nil {
		return Verdict{}, fmt.Errorf("diskguard: reclaim failed: %w", err)
	}

	free, err = g.freeBytes(queryDir)
	if err != nil {
		return Verdict{}, fmt.Errorf("diskguard: failed to re-query free space under %q: %w", queryDir, err)
	}

	var r *Reclaimed
	if reclaimed > 0 {
		r = &Reclaimed{Files: reclaimed, FreedBytes: freedBytes, RemainingBytes: free}
		g.log.Info("diskguard: reclaimed capture files",
			"files", reclaimed,
			"freed", humanizeBytes(freedBytes),
			"remaining", humanizeBytes(free),
		)
	}

	if free < g.minFreeBytes {
		return Verdict{OK: false, ErrorKind: session.ErrDiskBelowMin, Reclaimed: r}, nil
	}
	return Verdict{OK: true, Reclaimed: r}, nil
}

// reclaimOldest deletes capture files oldest-first until at least needBytes
// have been freed or there are no more files to delete. It returns the
// count and total bytes freed; CheckBeforeCapture logs them with
// humanized byte counts (e.g. files=4 freed="128 MB").
func (g *Guard) reclaimOldest(needBytes uint64) (files uint64, freedBytes uint64, err error) {
	entries, err := os.ReadDir(g.capturesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to list %q: %w", g.capturesDir, err)
	}

	type fileInfo struct {
		path  string
		mtime time.Time
		size  uint64
	}
	var infos []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{
			path:  filepath.Join(g.capturesDir, e.Name()),
			mtime: fi.ModTime(),
			size:  uint64(fi.Size()),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mtime.Before(infos[j].mtime) })

	var freed uint64
	for _, fi := range infos {
		if freed >= needBytes {
			break
		}
		if err := os.Remove(fi.path); err != nil {
			continue
		}
		freed += fi.size
		files++
	}
	return files, freed, nil
}

// humanizeBytes formats n for log lines, e.g. "128 MB".
func humanizeBytes(n uint64) string {
	return humanize.Bytes(n)
}
