package artifact

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
)

// Zipper packages a directory as <name>.zip whose entries sit under a single
// top-level <name>/ folder, the layout site import expects.
type Zipper struct {
	// TempDir is the parent of the scratch directory. Empty uses os.TempDir.
	TempDir string
}

// Package zips src into a fresh scratch directory. On failure the partial
// scratch directory is removed before returning.
func (z Zipper) Package(ctx context.Context, src string) (*Bundle, error) {
	srcDir, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", srcDir)
	}

	name := filepath.Base(srcDir)
	scratch, err := os.MkdirTemp(z.TempDir, "impex-"+name+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	destPath := filepath.Join(scratch, name+".zip")
	if err := writeZip(ctx, destPath, srcDir, name); err != nil {
		os.RemoveAll(scratch)
		return nil, err
	}

	slog.Debug("Packaged folder", "src", srcDir, "archive", destPath)
	return newBundle(destPath, scratch), nil
}

func writeZip(ctx context.Context, destPath, srcDir, root string) (err error) {
	outFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close archive file: %w", cerr)
		}
	}()

	zw := zip.NewWriter(outFile)
	if err := zipDir(ctx, zw, srcDir, root); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func zipDir(ctx context.Context, zw *zip.Writer, srcDir, root string) error {
	return filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		entryName := path.Join(root, filepath.ToSlash(relPath))

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("failed to create zip header: %w", err)
		}

		if info.IsDir() {
			header.Name = entryName + "/"
			_, err := zw.CreateHeader(header)
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header.Name = entryName
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to write zip header: %w", err)
		}

		file, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		if _, err := io.Copy(w, file); err != nil {
			return fmt.Errorf("failed to write file to zip: %w", err)
		}
		return nil
	})
}
