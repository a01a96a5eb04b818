package dag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/vgprep/internal/config"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/ledger"
	"github.com/vk/vgprep/internal/notify"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// runStep evaluates and executes a single step, returning the state the
// node finished in.
func (e *Executor) runStep(ctx context.Context, node *Node) (State, error) {
	logger := ctxlog.FromContext(ctx)
	step := node.Step

	outputs := make(config.Outputs)
	upstreamRan := false
	for _, dep := range node.Deps {
		if dep.executed {
			upstreamRan = true
		}
		if dep.State().finished() && dep.Output != cty.NilVal {
			outputs.Set(dep.Step.Action, dep.Step.Name, dep.Output)
		}
	}
	evalCtx := e.model.EvalContext(outputs)

	enabled, err := evalEnabled(step.Enabled, evalCtx)
	if err != nil {
		return Failed, fmt.Errorf("%s: %w", node.ID, err)
	}
	if !enabled {
		logger.Info("Step disabled, not running.")
		e.notify(ctx, notify.StepDisabled, node, nil)
		return Disabled, nil
	}

	runner, ok := e.registry.Runner(step.Action)
	if !ok {
		return Failed, fmt.Errorf("%s: unknown action %q", node.ID, step.Action)
	}
	input := runner.NewInput()
	if diags := gohcl.DecodeBody(step.Arguments, evalCtx, input); diags.HasErrors() {
		return Failed, fmt.Errorf("%s: invalid arguments: %w", node.ID, diags)
	}

	fingerprint, err := fingerprintOf(step, input)
	if err != nil {
		return Failed, fmt.Errorf("%s: %w", node.ID, err)
	}
	creates, err := evalCreates(step.Creates, evalCtx)
	if err != nil {
		return Failed, fmt.Errorf("%s: %w", node.ID, err)
	}

	if !e.opts.Force && !upstreamRan {
		out, hit, err := e.lookupLedger(ctx, node.ID, fingerprint, creates)
		if err != nil {
			return Failed, fmt.Errorf("%s: %w", node.ID, err)
		}
		if hit {
			logger.Info("Step is up to date, skipping.", "step", node.ID)
			node.Output = out
			e.notify(ctx, notify.StepCached, node, nil)
			return Cached, nil
		}
	}

	logger.Info("Running step.", "step", node.ID)
	e.notify(ctx, notify.StepStarted, node, nil)
	started := time.Now()

	out, err := runner.Fn(ctx, e.opts.Deps, input)
	if err != nil {
		return Failed, fmt.Errorf("%s: %w", node.ID, err)
	}
	if out == cty.NilVal || out.IsNull() {
		out = cty.EmptyObjectVal
	}
	node.Output = out
	node.executed = true

	entry := &ledger.Entry{
		StepID:      node.ID,
		Fingerprint: fingerprint,
		RunID:       e.opts.RunID,
		CompletedAt: time.Now().UTC(),
	}
	if err := entry.SetOutput(out); err != nil {
		return Failed, fmt.Errorf("%s: %w", node.ID, err)
	}
	if err := e.opts.Ledger.Put(ctx, entry); err != nil {
		return Failed, fmt.Errorf("%s: record ledger entry: %w", node.ID, err)
	}

	e.notify(ctx, notify.StepFinished, node, map[string]any{
		"duration": time.Since(started).String(),
	})
	logger.Info("Step finished.", "step", node.ID, "duration", time.Since(started).Round(time.Millisecond))
	return Done, nil
}

// lookupLedger reports whether a previous run of the step can be reused.
func (e *Executor) lookupLedger(ctx context.Context, stepID, fingerprint string, creates []string) (cty.Value, bool, error) {
	logger := ctxlog.FromContext(ctx)

	entry, err := e.opts.Ledger.Get(ctx, stepID)
	if errors.Is(err, ledger.ErrNotFound) {
		return cty.NilVal, false, nil
	}
	if err != nil {
		return cty.NilVal, false, fmt.Errorf("read ledger: %w", err)
	}
	if entry.Fingerprint != fingerprint {
		logger.Debug("Ledger fingerprint changed, step will run again.")
		return cty.NilVal, false, e.forget(ctx, stepID)
	}
	for _, path := range creates {
		if _, err := os.Stat(path); err != nil {
			logger.Info("Artifact from a previous run is missing, step will run again.", "path", path)
			return cty.NilVal, false, e.forget(ctx, stepID)
		}
	}
	out, err := entry.OutputValue()
	if err != nil {
		return cty.NilVal, false, err
	}
	return out, true, nil
}

// forget drops a stale entry so an interrupted re-run is not mistaken for
// a completed one.
func (e *Executor) forget(ctx context.Context, stepID string) error {
	if err := e.opts.Ledger.Delete(ctx, stepID); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("drop stale ledger entry: %w", err)
	}
	return nil
}

func (e *Executor) notify(ctx context.Context, event string, node *Node, extra map[string]any) {
	payload := map[string]any{
		"run_id": e.opts.RunID,
		"step":   node.ID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	e.opts.Notifier.Notify(ctx, event, payload)
}

// fingerprintOf hashes the action, name and decoded arguments of a step.
func fingerprintOf(step *config.Step, input any) (string, error) {
	args, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("fingerprint arguments: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", step.Action, step.Name)
	h.Write(args)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func evalEnabled(expr hcl.Expression, evalCtx *hcl.EvalContext) (bool, error) {
	if expr == nil {
		return true, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, fmt.Errorf("invalid 'enabled': %w", diags)
	}
	if val.IsNull() {
		return true, nil
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("invalid 'enabled': %w", err)
	}
	if !val.IsKnown() {
		return false, fmt.Errorf("invalid 'enabled': value is not known")
	}
	return val.True(), nil
}

func evalCreates(expr hcl.Expression, evalCtx *hcl.EvalContext) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid 'creates': %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if val.Type() == cty.String {
		return []string{val.AsString()}, nil
	}
	list, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("invalid 'creates': must be a string or a list of strings: %w", err)
	}
	var paths []string
	for it := list.ElementIterator(); it.Next(); {
		_, v := it.Element()
		paths = append(paths, v.AsString())
	}
	return paths, nil
}
