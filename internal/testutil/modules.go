package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/vgprep/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// SimpleModule registers a single runner under RunnerName.
type SimpleModule struct {
	RunnerName string
	Runner     *registry.RegisteredRunner
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.RunnerName != "" && m.Runner != nil {
		r.RegisterRunner(m.RunnerName, m.Runner)
	}
}

// ExecutionRecord holds the start and end times of one step execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// RecordInput is the argument schema of the "record" action.
type RecordInput struct {
	ID    string `hcl:"id"`
	Value string `hcl:"value,optional"`
	Fail  bool   `hcl:"fail,optional"`
	Sleep string `hcl:"sleep,optional"`
}

// ErrRecordedFailure is returned by a "record" step with fail = true.
var ErrRecordedFailure = errors.New("step failed on request")

// RecorderModule registers the "record" action, which remembers every call
// and returns {id, value} as its output.
type RecorderModule struct {
	mu    sync.Mutex
	order []string
	times map[string]*ExecutionRecord
	calls map[string]int
}

// NewRecorderModule creates an empty recorder.
func NewRecorderModule() *RecorderModule {
	return &RecorderModule{
		times: make(map[string]*ExecutionRecord),
		calls: make(map[string]int),
	}
}

// Register implements the registry.Module interface.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.RegisterRunner("record", &registry.RegisteredRunner{
		NewInput: func() any { return new(RecordInput) },
		Fn: func(ctx context.Context, _ *registry.Deps, raw any) (cty.Value, error) {
			input := raw.(*RecordInput)
			start := time.Now()
			if input.Sleep != "" {
				d, err := time.ParseDuration(input.Sleep)
				if err != nil {
					return cty.NilVal, err
				}
				select {
				case <-ctx.Done():
					return cty.NilVal, ctx.Err()
				case <-time.After(d):
				}
			}

			m.mu.Lock()
			m.order = append(m.order, input.ID)
			m.calls[input.ID]++
			m.times[input.ID] = &ExecutionRecord{Start: start, End: time.Now()}
			m.mu.Unlock()

			if input.Fail {
				return cty.NilVal, ErrRecordedFailure
			}
			return cty.ObjectVal(map[string]cty.Value{
				"id":    cty.StringVal(input.ID),
				"value": cty.StringVal(input.Value),
			}), nil
		},
	})
}

// Order returns the ids in the order their steps completed.
func (m *RecorderModule) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Calls returns how many times the step with the given id ran.
func (m *RecorderModule) Calls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

// Times returns the execution record of the given id, or nil.
func (m *RecorderModule) Times(id string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.times[id]
}
