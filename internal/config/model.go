package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified representation of a fetch plan: its declared
// variables and the steps that stage the dataset.
type Model struct {
	Variables map[string]*Variable
	Steps     []*Step
}

// NewModel returns an empty, ready to populate Model.
func NewModel() *Model {
	return &Model{Variables: make(map[string]*Variable)}
}

// Variable is a plan input that steps read through `var.<name>`.
type Variable struct {
	Name        string
	Description string
	Default     cty.Value
}

// Step is one action in the plan, e.g. `step "download" "images" {...}`.
type Step struct {
	Action string
	Name   string

	// Arguments is the raw `arguments` block, decoded by the step's handler
	// once all of its dependencies are done.
	Arguments hcl.Body
	// Attributes are the expressions of Arguments, used for linking
	// implicit dependencies.
	Attributes map[string]hcl.Expression

	DependsOn []string
	// Enabled evaluates to a bool. A nil expression means enabled.
	Enabled hcl.Expression
	// Creates evaluates to a path or list of paths that must exist for a
	// previously completed step to be considered up to date.
	Creates hcl.Expression
}

// ID returns the stable identifier of a step, e.g. "step.download.images".
func (s *Step) ID() string {
	return fmt.Sprintf("step.%s.%s", s.Action, s.Name)
}

// StepID normalizes a reference such as "download.images" or
// "step.download.images" into a step identifier.
func StepID(ref string) string {
	if strings.HasPrefix(ref, "step.") {
		return ref
	}
	return "step." + ref
}

// Expressions returns every expression of the step that may reference
// other steps.
func (s *Step) Expressions() []hcl.Expression {
	exprs := make([]hcl.Expression, 0, len(s.Attributes)+2)
	for _, expr := range s.Attributes {
		exprs = append(exprs, expr)
	}
	if s.Enabled != nil {
		exprs = append(exprs, s.Enabled)
	}
	if s.Creates != nil {
		exprs = append(exprs, s.Creates)
	}
	return exprs
}
