package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_FiltersByStep(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()

	r.Notify(ctx, RunStarted, map[string]any{"run_id": "x"})
	r.Notify(ctx, StepStarted, map[string]any{"step": "step.download.a"})
	r.Notify(ctx, StepStarted, map[string]any{"step": "step.download.b"})
	r.Notify(ctx, StepFinished, map[string]any{"step": "step.download.a"})

	assert.Equal(t, []string{StepStarted, StepFinished}, r.Names("step.download.a"))
	assert.Len(t, r.Names(""), 4)
}

func TestNop_IsSilent(t *testing.T) {
	var n Notifier = Nop{}
	n.Notify(context.Background(), RunStarted, nil)
	assert.NoError(t, n.Close())
}
