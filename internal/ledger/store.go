package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/zclconf/go-cty/cty"
)

// ErrNotFound is returned when no entry exists for a step.
var ErrNotFound = errors.New("ledger entry not found")

// Store persists completed step entries.
type Store interface {
	Get(ctx context.Context, stepID string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, stepID string) error
	List(ctx context.Context) ([]*Entry, error)
	Close() error
}

// Entry is the record of one completed step.
type Entry struct {
	StepID      string    `json:"step_id"`
	Fingerprint string    `json:"fingerprint"`
	RunID       string    `json:"run_id"`
	OutputType  []byte    `json:"output_type,omitempty"`
	Output      []byte    `json:"output,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// SetOutput stores a cty value on the entry.
func (e *Entry) SetOutput(val cty.Value) error {
	if val == cty.NilVal || val.IsNull() {
		e.OutputType, e.Output = nil, nil
		return nil
	}
	ty, err := ctyjson.MarshalType(val.Type())
	if err != nil {
		return fmt.Errorf("encode output type: %w", err)
	}
	out, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	e.OutputType, e.Output = ty, out
	return nil
}

// OutputValue decodes the stored cty value. Entries without output yield an
// empty object.
func (e *Entry) OutputValue() (cty.Value, error) {
	if len(e.OutputType) == 0 {
		return cty.EmptyObjectVal, nil
	}
	ty, err := ctyjson.UnmarshalType(e.OutputType)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode output type: %w", err)
	}
	val, err := ctyjson.Unmarshal(e.Output, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode output: %w", err)
	}
	return val, nil
}
