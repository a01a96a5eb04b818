package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Outputs holds completed step outputs keyed by action, then step name.
type Outputs map[string]map[string]cty.Value

// Set records the output of a step.
func (o Outputs) Set(action, name string, output cty.Value) {
	if _, ok := o[action]; !ok {
		o[action] = make(map[string]cty.Value)
	}
	o[action][name] = cty.ObjectVal(map[string]cty.Value{"output": output})
}

// VariableValues returns the `var` object exposed to plan expressions.
func (m *Model) VariableValues() cty.Value {
	vals := make(map[string]cty.Value, len(m.Variables))
	for name, v := range m.Variables {
		vals[name] = v.Default
	}
	return cty.ObjectVal(vals)
}

// EvalContext builds the evaluation context for a step. Only the outputs
// passed in are visible under `step`.
func (m *Model) EvalContext(outputs Outputs) *hcl.EvalContext {
	steps := make(map[string]cty.Value, len(outputs))
	for action, byName := range outputs {
		steps[action] = cty.ObjectVal(byName)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var":  m.VariableValues(),
			"step": cty.ObjectVal(steps),
		},
		Functions: functions,
	}
}

var functions = map[string]function.Function{
	"format": stdlib.FormatFunc,
	"join":   stdlib.JoinFunc,
	"lower":  stdlib.LowerFunc,
	"upper":  stdlib.UpperFunc,
}
