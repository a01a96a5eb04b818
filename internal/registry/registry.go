package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/vk/vgprep/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Module is the interface that all step modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Deps are the shared resources injected into every step handler.
type Deps struct {
	Client *http.Client
	// Stdout receives user-facing output of steps such as print.
	Stdout io.Writer
}

// RunnerFunc executes one step. Input is the value returned by NewInput,
// decoded from the step's `arguments` block.
type RunnerFunc func(ctx context.Context, deps *Deps, input any) (cty.Value, error)

// RegisteredRunner holds the Go implementation of a plan action.
type RegisteredRunner struct {
	// NewInput returns a pointer to an hcl-tagged struct.
	NewInput func() any
	Fn       RunnerFunc
}

// Registry holds all the registered handlers for a single application instance.
type Registry struct {
	HandlerRegistry map[string]*RegisteredRunner
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		HandlerRegistry: make(map[string]*RegisteredRunner),
	}
}

// RegisterRunner adds a handler for the given action. Registering the same
// action twice is a programmer error and panics.
func (r *Registry) RegisterRunner(action string, runner *RegisteredRunner) {
	if _, exists := r.HandlerRegistry[action]; exists {
		panic(fmt.Sprintf("registry: action %q registered twice", action))
	}
	r.HandlerRegistry[action] = runner
}

// Runner returns the handler registered for the action.
func (r *Registry) Runner(action string) (*RegisteredRunner, bool) {
	runner, ok := r.HandlerRegistry[action]
	return runner, ok
}

// Actions returns the sorted list of registered actions.
func (r *Registry) Actions() []string {
	actions := make([]string, 0, len(r.HandlerRegistry))
	for action := range r.HandlerRegistry {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// ValidatePlan checks that every step of the model refers to a registered action.
func (r *Registry) ValidatePlan(model *config.Model) error {
	var errs []string
	for _, step := range model.Steps {
		if _, ok := r.HandlerRegistry[step.Action]; !ok {
			errs = append(errs, fmt.Sprintf("%s: unknown action %q", step.ID(), step.Action))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("plan validation failed (registered actions: %s):\n  - %s",
			strings.Join(r.Actions(), ", "), strings.Join(errs, "\n  - "))
	}
	return nil
}
