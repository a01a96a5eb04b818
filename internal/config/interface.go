package config

import "context"

// Loader is the interface for a format-specific plan loader.
type Loader interface {
	// Load reads the plan at the given paths and translates it into the
	// format-agnostic model. An empty path list selects the built-in plan.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
