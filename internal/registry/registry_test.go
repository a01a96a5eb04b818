package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/vgprep/internal/config"
	"github.com/zclconf/go-cty/cty"
)

type noopModule struct{ action string }

func (m *noopModule) Register(r *Registry) {
	r.RegisterRunner(m.action, &RegisteredRunner{
		NewInput: func() any { return new(struct{}) },
		Fn: func(context.Context, *Deps, any) (cty.Value, error) {
			return cty.EmptyObjectVal, nil
		},
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	(&noopModule{action: "b"}).Register(r)
	(&noopModule{action: "a"}).Register(r)

	_, ok := r.Runner("a")
	assert.True(t, ok)
	_, ok = r.Runner("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, r.Actions())
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := New()
	(&noopModule{action: "a"}).Register(r)
	assert.Panics(t, func() { (&noopModule{action: "a"}).Register(r) })
}

func TestRegistry_ValidatePlan(t *testing.T) {
	r := New()
	(&noopModule{action: "download"}).Register(r)

	t.Run("known actions pass", func(t *testing.T) {
		model := &config.Model{Steps: []*config.Step{{Action: "download", Name: "x"}}}
		require.NoError(t, r.ValidatePlan(model))
	})

	t.Run("unknown action is reported", func(t *testing.T) {
		model := &config.Model{Steps: []*config.Step{
			{Action: "download", Name: "x"},
			{Action: "untar", Name: "y"},
		}}
		err := r.ValidatePlan(model)
		require.Error(t, err)
		assert.ErrorContains(t, err, `step.untar.y: unknown action "untar"`)
		assert.ErrorContains(t, err, "registered actions: download")
	})
}
