// Package download provides the `download` step: an HTTP GET of a single
// artifact into a file, with retries, optional SHA-256 verification and an
// atomic rename so a partial transfer never looks like a finished one.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const (
	defaultRetries = 3
	defaultBackoff = time.Second
	defaultTimeout = time.Hour
	maxBackoff     = 30 * time.Second
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a download step.
type Input struct {
	URL     string `hcl:"url"`
	Dest    string `hcl:"dest"`
	SHA256  string `hcl:"sha256,optional"`
	Retries *int   `hcl:"retries,optional"`
	Backoff string `hcl:"backoff,optional"`
	Timeout string `hcl:"timeout,optional"`
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("download", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, deps *registry.Deps, input any) (cty.Value, error) {
			return OnRunDownload(ctx, deps, input.(*Input))
		},
	})
}

// OnRunDownload is the handler for the download step.
func OnRunDownload(ctx context.Context, deps *registry.Deps, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("url", input.URL, "dest", input.Dest)

	if deps == nil || deps.Client == nil {
		return cty.NilVal, fmt.Errorf("http client dependency was not injected")
	}
	if input.URL == "" {
		return cty.NilVal, fmt.Errorf("url must not be empty")
	}

	retries := defaultRetries
	if input.Retries != nil {
		retries = *input.Retries
	}
	base, err := parseDuration(input.Backoff, defaultBackoff)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid backoff: %w", err)
	}
	timeout, err := parseDuration(input.Timeout, defaultTimeout)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid timeout: %w", err)
	}

	f := &fetcher{client: deps.Client, logger: logger}
	var res *result
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r, err := f.fetch(attemptCtx, input.URL, input.Dest, input.SHA256)
		switch {
		case err == nil:
			res = r
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case !retryable(err):
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Download attempt failed, retrying.", "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, newBackOff(ctx, base, retries), notify); err != nil {
		return cty.NilVal, fmt.Errorf("download %s: %w", input.URL, err)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"path":   cty.StringVal(input.Dest),
		"url":    cty.StringVal(input.URL),
		"bytes":  cty.NumberIntVal(res.bytes),
		"sha256": cty.StringVal(res.sha256),
	}), nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// newBackOff doubles the wait after every failed attempt, starting at base
// and capped at maxBackoff, and gives up after retries retries or when ctx
// is done.
func newBackOff(ctx context.Context, base time.Duration, retries int) backoff.BackOff {
	if retries < 0 {
		retries = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
