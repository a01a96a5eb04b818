package print

import (
	"context"
	"fmt"

	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print step.
type Input struct {
	Message string `hcl:"message"`
}

// OnRunPrint writes the message to the injected stdout, or logs it when
// none was provided.
func OnRunPrint(ctx context.Context, deps *registry.Deps, input *Input) (cty.Value, error) {
	ctxlog.FromContext(ctx).Debug("Printing message.")

	if deps != nil && deps.Stdout != nil {
		if _, err := fmt.Fprintln(deps.Stdout, input.Message); err != nil {
			return cty.NilVal, fmt.Errorf("failed to write message: %w", err)
		}
	} else {
		ctxlog.FromContext(ctx).Info(input.Message)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"message": cty.StringVal(input.Message),
	}), nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("print", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, deps *registry.Deps, input any) (cty.Value, error) {
			return OnRunPrint(ctx, deps, input.(*Input))
		},
	})
}
