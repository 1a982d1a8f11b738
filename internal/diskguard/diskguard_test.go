package diskguard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

func writeCaptureFile(t *testing.T, dir, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	return path
}

func TestCheckBeforeCaptureOKWhenAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	g := New(dir, 100, nil, nil)
	g.freeBytes = func(string) (uint64, error) { return 1000, nil }

	v, err := g.CheckBeforeCapture(10, 0)
	if err != nil {
		t.Fatalf("CheckBeforeCapture: %v", err)
	}
	if !v.OK || v.Reclaimed != nil {
		t.Fatalf("got %+v", v)
	}
}

func TestCheckBeforeCaptureReclaimsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeCaptureFile(t, dir, "a.png", 1000, base)
	writeCaptureFile(t, dir, "b.png", 500, base.Add(time.Minute))
	writeCaptureFile(t, dir, "c.png", 500, base.Add(2*time.Minute))

	g := New(dir, 1000, nil, nil)
	calls := 0
	g.freeBytes = func(string) (uint64, error) {
		calls++
		if calls == 1 {
			return 100, nil // below threshold, triggers reclaim
		}
		return 1100, nil // after deleting "a.png" (1000 bytes), above threshold
	}

	v, err := g.CheckBeforeCapture(10, 0)
	if err != nil {
		t.Fatalf("CheckBeforeCapture: %v", err)
	}
	if !v.OK {
		t.Fatalf("expected OK after reclaim, got %+v", v)
	}
	if v.Reclaimed == nil || v.Reclaimed.Files != 1 {
		t.Fatalf("expected exactly one file reclaimed, got %+v", v.Reclaimed)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.png")); !os.IsNotExist(err) {
		t.Fatal("expected oldest file a.png to be deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "b.png")); err != nil {
		t.Fatal("expected newer file b.png to survive")
	}
}

func TestCheckBeforeCaptureFailsWhenReclaimInsufficient(t *testing.T) {
	dir := t.TempDir()
	g := New(dir, 1<<62, nil, nil)
	g.freeBytes = func(string) (uint64, error) { return 10, nil }

	v, err := g.CheckBeforeCapture(10, 0)
	if err != nil {
		t.Fatalf("CheckBeforeCapture: %v", err)
	}
	if v.OK || v.ErrorKind != session.ErrDiskBelowMin {
		t.Fatalf("got %+v", v)
	}
}

func TestSessionCapExceededSkipsReclaimEntirely(t *testing.T) {
	dir := t.TempDir()
	capBytes := uint64(100)
	g := New(dir, 0, &capBytes, nil)
	calledFreeBytes := false
	g.freeBytes = func(string) (uint64, error) {
		calledFreeBytes = true
		return 1 << 40, nil
	}

	v, err := g.CheckBeforeCapture(50, 60)
	if err != nil {
		t.Fatalf("CheckBeforeCapture: %v", err)
	}
	if v.OK || v.ErrorKind != session.ErrSessionCapExceeded {
		t.Fatalf("got %+v", v)
	}
	if calledFreeBytes {
		t.Fatal("expected no reclaim attempt for a session-cap failure")
	}
}
