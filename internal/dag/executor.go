package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vk/vgprep/internal/config"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/ledger"
	"github.com/vk/vgprep/internal/notify"
	"github.com/vk/vgprep/internal/registry"
)

// Options configures an Executor.
type Options struct {
	Workers  int
	RunID    string
	Ledger   ledger.Store
	Notifier notify.Notifier
	Deps     *registry.Deps
	// Force ignores the ledger and runs every enabled step.
	Force bool
}

// Executor runs a Graph on a bounded worker pool.
type Executor struct {
	Graph    *Graph
	model    *config.Model
	registry *registry.Registry
	opts     Options
	wg       sync.WaitGroup
}

// NewExecutor creates an executor for the graph built from model.
func NewExecutor(graph *Graph, model *config.Model, reg *registry.Registry, opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewMemStore()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Deps == nil {
		opts.Deps = &registry.Deps{}
	}
	return &Executor{Graph: graph, model: model, registry: reg, opts: opts}
}

// Run executes the entire graph concurrently and returns an error if any node fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	readyChan := make(chan *Node, len(e.Graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.opts.Notifier.Notify(ctx, notify.RunStarted, map[string]any{
		"run_id": e.opts.RunID,
		"steps":  len(e.Graph.Nodes),
	})

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, id := range sortedKeys(e.Graph.Nodes) {
		node := e.Graph.Nodes[id]
		if node.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", node.ID)
			readyChan <- node
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(e.Graph.Nodes))

	logger.Debug("Starting worker pool.", "workers", e.opts.Workers)
	for i := 0; i < e.opts.Workers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	counts := make(map[string]int)
	var failedNodes []string
	var rootCauseError error
	for _, id := range sortedKeys(e.Graph.Nodes) {
		node := e.Graph.Nodes[id]
		counts[node.State().String()]++
		if node.State() != Failed {
			continue
		}
		logger.Error("Node failed execution.", "nodeID", node.ID, "error", node.Error)
		// A cancelled node is a symptom, not a cause.
		if node.Error != nil && !errors.Is(node.Error, context.Canceled) {
			failedNodes = append(failedNodes, node.ID)
			if rootCauseError == nil {
				rootCauseError = node.Error
			}
		}
	}

	e.opts.Notifier.Notify(ctx, notify.RunFinished, map[string]any{
		"run_id":   e.opts.RunID,
		"states":   counts,
		"duration": time.Since(started).String(),
		"success":  rootCauseError == nil && ctx.Err() == nil,
	})
	logger.Info("All steps completed.", "states", counts, "duration", time.Since(started).Round(time.Millisecond))

	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution interrupted: %w", err)
	}
	return nil
}

// skipDependents recursively marks all downstream nodes as skipped and decrements the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, node *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range sortedKeys(node.Dependents) {
		dependent := node.Dependents[id]
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent step due to upstream failure.", "nodeID", dependent.ID, "dependency", node.ID)
			dependent.setState(Skipped)
			dependent.Error = fmt.Errorf("skipped due to upstream failure of '%s'", node.ID)
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", ctxlog.WorkerKey, workerID)

	for node := range readyChan {
		stepCtx, workerLogger := ctxlog.ForStep(ctx, workerID, node.ID)

		if ctx.Err() != nil {
			node.skipOnce.Do(func() {
				workerLogger.Warn("Context canceled, skipping step.")
				node.setState(Failed)
				node.Error = ctx.Err()
				e.wg.Done()
			})
			e.skipDependents(ctx, node)
			continue
		}

		workerLogger.Debug("Worker picked up step for execution.")
		node.setState(Running)
		state, err := e.runStep(stepCtx, node)
		if err != nil {
			workerLogger.Error("Step execution failed.", "error", err)
			node.setState(Failed)
			node.Error = err
			e.opts.Notifier.Notify(ctx, notify.StepFailed, map[string]any{
				"run_id": e.opts.RunID,
				"step":   node.ID,
				"error":  err.Error(),
			})
			cancel()
			e.skipDependents(ctx, node)
			e.wg.Done()
			continue
		}

		node.setState(state)
		workerLogger.Debug("Step execution succeeded.", "state", state.String())

		for _, id := range sortedKeys(node.Dependents) {
			dependent := node.Dependents[id]
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent step.", "dependentID", dependent.ID)
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", ctxlog.WorkerKey, workerID)
}
