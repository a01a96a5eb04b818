// Package unzip provides the `unzip` step, which extracts a zip archive into
// a directory and optionally removes the archive afterwards.
package unzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// ErrUnsafeArchivePath is returned when an archive entry would be written
// outside the destination directory.
var ErrUnsafeArchivePath = errors.New("archive entry escapes destination")

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of an unzip step.
type Input struct {
	Archive       string `hcl:"archive"`
	Dest          string `hcl:"dest"`
	RemoveArchive bool   `hcl:"remove_archive,optional"`
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("unzip", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, _ *registry.Deps, input any) (cty.Value, error) {
			return OnRunUnzip(ctx, input.(*Input))
		},
	})
}

// OnRunUnzip is the handler for the unzip step.
func OnRunUnzip(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("archive", input.Archive, "dest", input.Dest)

	files, size, err := Extract(ctx, input.Archive, input.Dest)
	if err != nil {
		return cty.NilVal, err
	}
	logger.Info("Archive extracted.", "files", files, "size", humanize.Bytes(uint64(size)))

	if input.RemoveArchive {
		if err := os.Remove(input.Archive); err != nil {
			return cty.NilVal, fmt.Errorf("failed to remove archive %s: %w", input.Archive, err)
		}
		logger.Debug("Archive removed.")
	}

	return cty.ObjectVal(map[string]cty.Value{
		"dest":  cty.StringVal(input.Dest),
		"files": cty.NumberIntVal(int64(files)),
		"bytes": cty.NumberIntVal(size),
	}), nil
}

// Extract unpacks every regular file and directory of archive under dest.
// Symlinks are skipped. It returns the number of files written and their
// total size.
func Extract(ctx context.Context, archive, dest string) (int, int64, error) {
	logger := ctxlog.FromContext(ctx)

	rc, err := zip.OpenReader(archive)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer rc.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve %s: %w", dest, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	var files int
	var size int64
	for _, f := range rc.File {
		if err := ctx.Err(); err != nil {
			return files, size, err
		}

		target, err := safeJoin(root, f.Name)
		if err != nil {
			return files, size, err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, size, fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		case mode&os.ModeSymlink != 0:
			logger.Warn("Skipping symlink in archive.", "entry", f.Name)
			continue
		}

		n, err := writeEntry(f, target)
		if err != nil {
			return files, size, err
		}
		files++
		size += n
	}
	return files, size, nil
}

func writeEntry(f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	src, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer src.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return n, nil
}

// safeJoin joins name under root and rejects results outside root.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}
	return target, nil
}
