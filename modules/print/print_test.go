package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/vgprep/internal/registry"
)

func TestOnRunPrint(t *testing.T) {
	var out bytes.Buffer

	val, err := OnRunPrint(context.Background(), &registry.Deps{Stdout: &out}, &Input{Message: "VisualGenome staged"})
	require.NoError(t, err)
	assert.Equal(t, "VisualGenome staged\n", out.String())
	assert.Equal(t, "VisualGenome staged", val.GetAttr("message").AsString())
}

func TestOnRunPrint_WithoutStdout(t *testing.T) {
	_, err := OnRunPrint(context.Background(), &registry.Deps{}, &Input{Message: "hello"})
	require.NoError(t, err)
}
