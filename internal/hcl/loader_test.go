package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultPlan(t *testing.T) {
	model, err := NewLoader(nil).Load(context.Background())
	require.NoError(t, err)

	assert.Len(t, model.Steps, 17)
	require.Contains(t, model.Variables, "data_dir")
	assert.Equal(t, cty.StringVal("data/VisualGenome"), model.Variables["data_dir"].Default)
	assert.Equal(t, cty.StringVal(""), model.Variables["splits_url"].Default)

	ids := make(map[string]bool)
	for _, s := range model.Steps {
		ids[s.ID()] = true
	}
	for _, id := range []string{
		"step.ensure_dir.root",
		"step.download.relationships",
		"step.unzip.images2",
		"step.merge_dir.images",
		"step.print.summary",
	} {
		assert.True(t, ids[id], "missing %s", id)
	}
}

func TestLoad_Overrides(t *testing.T) {
	model, err := NewLoader(map[string]string{
		"data_dir":   "/srv/vg",
		"splits_url": "http://example.com/splits.zip",
	}).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/srv/vg", model.Variables["data_dir"].Default.AsString())
	assert.Equal(t, "http://example.com/splits.zip", model.Variables["splits_url"].Default.AsString())
}

func TestLoad_UndeclaredOverride(t *testing.T) {
	_, err := NewLoader(map[string]string{"nope": "x"}).Load(context.Background())
	assert.ErrorContains(t, err, `cannot set undeclared variable "nope"`)
}

func TestLoad_File(t *testing.T) {
	path := writePlan(t, `
variable "dir" {
  default = "out"
}

step "ensure_dir" "root" {
  arguments {
    path = var.dir
  }
}

step "print" "done" {
  arguments {
    message = "ready in ${step.ensure_dir.root.output.path}"
  }
  depends_on = ["ensure_dir.root"]
  enabled    = true
  creates    = ["a", "b"]
}
`)

	model, err := NewLoader(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, model.Steps, 2)

	done := model.Steps[1]
	assert.Equal(t, "step.print.done", done.ID())
	assert.Equal(t, []string{"ensure_dir.root"}, done.DependsOn)
	require.Contains(t, done.Attributes, "message")
	assert.NotNil(t, done.Enabled)
	assert.NotNil(t, done.Creates)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		plan    string
		wantErr string
	}{
		{
			name: "duplicate step",
			plan: `
step "print" "a" {
  arguments { message = "1" }
}
step "print" "a" {
  arguments { message = "2" }
}
`,
			wantErr: `duplicate step definition "step.print.a"`,
		},
		{
			name: "variable without default",
			plan: `
variable "token" {}
`,
			wantErr: `variable "token" has no default and was not set`,
		},
		{
			name:    "syntax error",
			plan:    `step "print" {`,
			wantErr: "failed to parse HCL file",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader(nil).Load(context.Background(), writePlan(t, tc.plan))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "error accessing path")
}

func TestLoad_DirectoryWithoutPlans(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "no .hcl files found")
}
