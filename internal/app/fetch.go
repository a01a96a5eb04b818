package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vk/vgprep/internal/config"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/dag"
	"github.com/vk/vgprep/internal/hcl"
	"github.com/vk/vgprep/internal/ledger"
	"github.com/vk/vgprep/internal/notify"
	"github.com/vk/vgprep/internal/registry"
	"github.com/vk/vgprep/modules/http_client"
	"github.com/zclconf/go-cty/cty"
)

// dataDirVar is the plan variable fed from --data-dir.
const dataDirVar = "data_dir"

// LedgerDir returns the directory holding the persistent ledger of a
// dataset directory.
func LedgerDir(dataDir string) string {
	return filepath.Join(dataDir, ".vgprep", "ledger")
}

// runFetch loads the plan and executes it as a DAG.
func (a *App) runFetch(ctx context.Context) error {
	cfg := a.config.Fetch
	runID := uuid.NewString()
	ctx, logger := ctxlog.ForRun(ctx, runID)

	model, err := a.loadPlan(ctx)
	if err != nil {
		return err
	}
	if err := a.registry.ValidatePlan(model); err != nil {
		return err
	}

	graph, err := dag.Build(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.graph.Store(graph)
	logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	if a.config.HealthcheckPort > 0 {
		if _, err := a.startHealthcheckServer(a.config.HealthcheckPort); err != nil {
			return err
		}
		defer a.closeHealthcheckServer()
	}

	stagingDir := dataDir(model, cfg)
	store, err := a.openLedger(ctx, cfg.Ledger, stagingDir)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, err := a.openNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer notifier.Close()

	client, err := http_client.Create(ctx, &http_client.Input{})
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}
	defer http_client.Destroy(client)

	if len(graph.Nodes) == 0 {
		logger.Warn("No steps found in plan, execution not required.")
		return nil
	}

	logger.Info("Starting fetch.", "steps", len(graph.Nodes), "workers", cfg.Workers, "data_dir", stagingDir)
	started := time.Now()
	exec := dag.NewExecutor(graph, model, a.registry, dag.Options{
		Workers:  cfg.Workers,
		RunID:    runID,
		Ledger:   store,
		Notifier: notifier,
		Deps:     &registry.Deps{Client: client, Stdout: a.outW},
		Force:    cfg.Force,
	})
	if err := exec.Run(ctx); err != nil {
		return err
	}
	logger.Info("Fetch finished.", "duration", time.Since(started).Round(time.Millisecond))
	return nil
}

// loadPlan reads the plan and points its data_dir variable at --data-dir,
// unless --var data_dir was given explicitly.
func (a *App) loadPlan(ctx context.Context) (*config.Model, error) {
	cfg := a.config.Fetch
	model, err := hcl.NewLoader(cfg.Vars).Load(ctx, cfg.PlanPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if v, ok := model.Variables[dataDirVar]; ok {
		if _, explicit := cfg.Vars[dataDirVar]; !explicit {
			v.Default = cty.StringVal(cfg.DataDir)
		}
	}
	return model, nil
}

func dataDir(model *config.Model, cfg FetchConfig) string {
	if v, ok := model.Variables[dataDirVar]; ok && v.Default.Type() == cty.String {
		return v.Default.AsString()
	}
	return cfg.DataDir
}

func (a *App) openLedger(ctx context.Context, kind, stagingDir string) (ledger.Store, error) {
	if kind == LedgerMemory {
		a.logger.Debug("Using in-memory ledger, completed steps are not remembered.")
		return ledger.NewMemStore(), nil
	}
	dir := LedgerDir(stagingDir)
	store, err := ledger.NewBadgerStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %s: %w", dir, err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to read ledger at %s: %w", dir, err)
	}
	a.logger.Debug("Ledger opened.", "path", dir, "completed_steps", len(entries))
	return store, nil
}

func (a *App) openNotifier(ctx context.Context, cfg FetchConfig) (notify.Notifier, error) {
	if cfg.NotifyURL == "" {
		return notify.Nop{}, nil
	}
	n, err := notify.DialSocketIO(ctx, notify.SocketIOOptions{URL: cfg.NotifyURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to notify server: %w", err)
	}
	return n, nil
}
