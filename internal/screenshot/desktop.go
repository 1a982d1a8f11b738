package screenshot

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	vscreenshot "github.com/vova616/screenshot"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// DesktopProvider captures the screen using github.com/vova616/screenshot,
// the cross-platform, cgo-free capture library the example pack surfaces
// via soockee-pixel-bot-go's CaptureScreen call. It is the default,
// non-mock ScreenshotProvider.
type DesktopProvider struct{}

// NewDesktop constructs a DesktopProvider.
func NewDesktop() *DesktopProvider {
	return &DesktopProvider{}
}

func (d *DesktopProvider) Capture(ctx context.Context, targetPath string) (session.Artifact, error) {
	img, err := vscreenshot.CaptureScreen()
	if err != nil {
		return session.Artifact{}, &Error{Kind: KindFailed, Err: fmt.Errorf("capture screen: %w", err)}
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return session.Artifact{}, &Error{Kind: KindFailed, Err: fmt.Errorf("mkdir: %w", err)}
	}
	f, err := os.Create(targetPath)
	if err != nil {
		return session.Artifact{}, &Error{Kind: KindFailed, Err: fmt.Errorf("create: %w", err)}
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return session.Artifact{}, &Error{Kind: KindFailed, Err: fmt.Errorf("encode: %w", err)}
	}

	info, err := f.Stat()
	if err != nil {
		return session.Artifact{}, &Error{Kind: KindFailed, Err: fmt.Errorf("stat: %w", err)}
	}

	return session.Artifact{
		Path:       targetPath,
		Bytes:      uint64(info.Size()),
		CapturedAt: time.Now().UTC(),
	}, nil
}
