// Package filesystem provides the local filesystem steps of a fetch plan:
// ensure_dir, merge_dir and remove.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// EnsureDirInput defines the arguments of an ensure_dir step.
type EnsureDirInput struct {
	Path string `hcl:"path"`
}

// MergeDirInput defines the arguments of a merge_dir step.
type MergeDirInput struct {
	From         string `hcl:"from"`
	Into         string `hcl:"into"`
	RemoveSource *bool  `hcl:"remove_source,optional"`
}

// RemoveInput defines the arguments of a remove step.
type RemoveInput struct {
	Path string `hcl:"path"`
}

// Register registers the handlers with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("ensure_dir", &registry.RegisteredRunner{
		NewInput: func() any { return new(EnsureDirInput) },
		Fn: func(ctx context.Context, _ *registry.Deps, input any) (cty.Value, error) {
			return OnRunEnsureDir(ctx, input.(*EnsureDirInput))
		},
	})
	r.RegisterRunner("merge_dir", &registry.RegisteredRunner{
		NewInput: func() any { return new(MergeDirInput) },
		Fn: func(ctx context.Context, _ *registry.Deps, input any) (cty.Value, error) {
			return OnRunMergeDir(ctx, input.(*MergeDirInput))
		},
	})
	r.RegisterRunner("remove", &registry.RegisteredRunner{
		NewInput: func() any { return new(RemoveInput) },
		Fn: func(ctx context.Context, _ *registry.Deps, input any) (cty.Value, error) {
			return OnRunRemove(ctx, input.(*RemoveInput))
		},
	})
}

// OnRunEnsureDir creates the directory and its parents.
func OnRunEnsureDir(ctx context.Context, input *EnsureDirInput) (cty.Value, error) {
	if input.Path == "" {
		return cty.NilVal, errors.New("path must not be empty")
	}
	if err := os.MkdirAll(input.Path, 0o755); err != nil {
		return cty.NilVal, fmt.Errorf("failed to create %s: %w", input.Path, err)
	}
	ctxlog.FromContext(ctx).Debug("Directory ready.", "path", input.Path)
	return cty.ObjectVal(map[string]cty.Value{
		"path": cty.StringVal(input.Path),
	}), nil
}

// OnRunMergeDir moves every file under From to the same relative path under
// Into, replacing existing files. The emptied source tree is removed unless
// remove_source is false. A missing source directory moves nothing.
func OnRunMergeDir(ctx context.Context, input *MergeDirInput) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("from", input.From, "into", input.Into)

	moved, err := MergeDir(ctx, input.From, input.Into)
	if err != nil {
		return cty.NilVal, err
	}
	logger.Info("Directories merged.", "moved", moved)

	if input.RemoveSource == nil || *input.RemoveSource {
		if err := os.RemoveAll(input.From); err != nil {
			return cty.NilVal, fmt.Errorf("failed to remove %s: %w", input.From, err)
		}
	}

	return cty.ObjectVal(map[string]cty.Value{
		"into":  cty.StringVal(input.Into),
		"moved": cty.NumberIntVal(int64(moved)),
	}), nil
}

// MergeDir moves the files of from into into and returns how many moved.
func MergeDir(ctx context.Context, from, into string) (int, error) {
	if _, err := os.Stat(from); errors.Is(err, fs.ErrNotExist) {
		ctxlog.FromContext(ctx).Warn("Source directory does not exist, nothing to merge.", "from", from)
		return 0, nil
	}
	if err := os.MkdirAll(into, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", into, err)
	}

	moved := 0
	err := filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(into, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.Rename(path, target); err != nil {
			return err
		}
		moved++
		return nil
	})
	if err != nil {
		return moved, fmt.Errorf("failed to merge %s into %s: %w", from, into, err)
	}
	return moved, nil
}

// OnRunRemove deletes the path and anything below it.
func OnRunRemove(ctx context.Context, input *RemoveInput) (cty.Value, error) {
	if input.Path == "" {
		return cty.NilVal, errors.New("path must not be empty")
	}
	if err := os.RemoveAll(input.Path); err != nil {
		return cty.NilVal, fmt.Errorf("failed to remove %s: %w", input.Path, err)
	}
	ctxlog.FromContext(ctx).Debug("Path removed.", "path", input.Path)
	return cty.ObjectVal(map[string]cty.Value{
		"path": cty.StringVal(input.Path),
	}), nil
}
