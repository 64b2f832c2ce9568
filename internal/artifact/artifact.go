// Package artifact turns a site-import folder into the single archive that
// is transferred to the instance.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Packager produces a transferable archive from a source path.
type Packager interface {
	Package(ctx context.Context, src string) (*Bundle, error)
}

// Bundle is a packaged archive ready for upload.
type Bundle struct {
	Path       string // local archive file
	Name       string // file name the archive is uploaded under
	ScratchDir string // directory to remove after upload; empty if none was created

	cleanupOnce sync.Once
	cleanupErr  error
}

// newBundle derives the remote name from the archive path so the uploaded
// file always carries the packaged file's name.
func newBundle(path, scratchDir string) *Bundle {
	return &Bundle{
		Path:       path,
		Name:       filepath.Base(path),
		ScratchDir: scratchDir,
	}
}

// Cleanup removes the scratch directory. Safe to call more than once and on
// bundles that own no scratch directory.
func (b *Bundle) Cleanup() error {
	if b == nil {
		return nil
	}
	b.cleanupOnce.Do(func() {
		if b.ScratchDir == "" {
			return
		}
		if err := os.RemoveAll(b.ScratchDir); err != nil {
			b.cleanupErr = fmt.Errorf("failed to remove scratch dir: %w", err)
		}
	})
	return b.cleanupErr
}

// Prebuilt uploads an existing archive as-is. No scratch directory is created.
type Prebuilt struct{}

// Package checks that src is a regular file and wraps it in a Bundle.
func (Prebuilt) Package(ctx context.Context, src string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", abs)
	}
	return newBundle(abs, ""), nil
}
