package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/vgprep/internal/dag"
	"github.com/vk/vgprep/internal/hcl"
	"github.com/vk/vgprep/internal/registry"
	"github.com/vk/vgprep/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

const localPlan = `
variable "data_dir" {
  default = "unused"
}

variable "greeting" {
  default = "hello"
}

step "ensure_dir" "root" {
  arguments {
    path = var.data_dir
  }
}

step "print" "done" {
  arguments {
    message = "${var.greeting} from ${step.ensure_dir.root.output.path}"
  }
}
`

func fetchApp(t *testing.T, fc FetchConfig) (*App, *testutil.SafeBuffer) {
	t.Helper()
	cfg, err := NewConfig(Config{Command: CommandFetch, Fetch: fc})
	require.NoError(t, err)
	a, out, _ := SetupAppTest(t, cfg)
	return a, out
}

func TestFetch_LocalPlan(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"plan/main.hcl": localPlan})
	dataDir := filepath.Join(root, "data")

	a, out := fetchApp(t, FetchConfig{
		PlanPaths: []string{filepath.Join(root, "plan")},
		DataDir:   dataDir,
		Vars:      map[string]string{"greeting": "hi"},
	})

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.DirExists(t, dataDir)
	assert.Equal(t, "hi from "+dataDir+"\n", out.String())
	assert.DirExists(t, LedgerDir(dataDir), "badger ledger lives inside the data directory")
}

func TestFetch_ExplicitDataDirVarWins(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"main.hcl": localPlan})
	explicit := filepath.Join(root, "explicit")

	a, out := fetchApp(t, FetchConfig{
		PlanPaths: []string{filepath.Join(root, "main.hcl")},
		DataDir:   filepath.Join(root, "flag"),
		Vars:      map[string]string{"data_dir": explicit},
		Ledger:    LedgerMemory,
	})

	require.NoError(t, a.Run(context.Background()))
	assert.DirExists(t, explicit)
	assert.NoDirExists(t, filepath.Join(root, "flag"))
	assert.Contains(t, out.String(), explicit)
}

func TestFetch_UnknownAction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"main.hcl": `
step "teleport" "images" {
  arguments {}
}
`})
	a, _ := fetchApp(t, FetchConfig{PlanPaths: []string{filepath.Join(root, "main.hcl")}, Ledger: LedgerMemory})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step.teleport.images: unknown action "teleport"`)
	assert.Contains(t, err.Error(), "download")
}

func TestFetch_CustomModuleInjectsDeps(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"main.hcl": `
step "inspect" "client" {
  arguments {}
}
`})
	type inspectInput struct{}
	var sawClient, sawStdout bool
	inspect := &testutil.SimpleModule{
		RunnerName: "inspect",
		Runner: &registry.RegisteredRunner{
			NewInput: func() any { return new(inspectInput) },
			Fn: func(ctx context.Context, deps *registry.Deps, input any) (cty.Value, error) {
				sawClient = deps.Client != nil
				sawStdout = deps.Stdout != nil
				return cty.EmptyObjectVal, nil
			},
		},
	}
	cfg, err := NewConfig(Config{Command: CommandFetch, Fetch: FetchConfig{
		PlanPaths: []string{filepath.Join(root, "main.hcl")},
		Ledger:    LedgerMemory,
	}})
	require.NoError(t, err)
	a, _, _ := SetupAppTest(t, cfg, inspect)

	// --- Act ---
	err = a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, sawClient, "shared http client is injected")
	assert.True(t, sawStdout, "command output writer is injected")
	assert.Equal(t, []string{"inspect"}, a.Registry().Actions(), "explicit modules replace the core set")
}

func TestFetch_DefaultPlanValidates(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{Command: CommandFetch})
	require.NoError(t, err)
	a, _, _ := SetupAppTest(t, cfg)

	model, err := a.loadPlan(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Registry().ValidatePlan(model))
	assert.Equal(t, DefaultDataDir, model.Variables["data_dir"].Default.AsString())
}

func TestHealthcheckServer(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{Command: CommandFetch})
	require.NoError(t, err)
	a, _, _ := SetupAppTest(t, cfg)

	model, err := hcl.NewLoader(nil).Load(context.Background())
	require.NoError(t, err)
	graph, err := dag.Build(context.Background(), model)
	require.NoError(t, err)
	a.graph.Store(graph)

	addr, err := a.startHealthcheckServer(0)
	require.NoError(t, err)
	defer a.closeHealthcheckServer()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	resp, err = http.Get("http://127.0.0.1:" + port + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status struct {
		Steps map[string]string `json:"steps"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "pending", status.Steps["step.download.images"])
	assert.Len(t, status.Steps, len(graph.Nodes))
}
