package screenshot

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// MockProvider writes a small, deterministic PNG for host-independent,
// CI-friendly smoke runs (spec.md's use_mock=true). The pixel colour is
// derived from a hash of the target path (which carries the capture index)
// purely so successive mock captures are byte-distinguishable, which is
// convenient when eyeballing test fixtures.
type MockProvider struct{}

// NewMock constructs a MockProvider.
func NewMock() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Capture(ctx context.Context, targetPath string) (session.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return session.Artifact{}, &Error{Kind: KindFailed, Err: err}
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	h := fnv.New32a()
	h.Write([]byte(targetPath))
	shade := uint8(h.Sum32())
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
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
