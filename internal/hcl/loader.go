package hcl

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/vgprep/internal/config"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// DefaultPlan is the built-in plan that stages the VisualGenome dataset.
//
//go:embed plans/visualgenome.hcl
var DefaultPlan []byte

// DefaultPlanName is the file name reported in diagnostics for DefaultPlan.
const DefaultPlanName = "visualgenome.hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	overrides map[string]string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL plan loader. Overrides replace the defaults
// of declared variables; overriding an undeclared variable is an error.
func NewLoader(overrides map[string]string) *Loader {
	return &Loader{overrides: overrides}
}

// Load parses every .hcl file under the given paths and merges them into a
// single model. Without paths the built-in plan is used.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	parser := hclparse.NewParser()
	var files []*hcl.File

	if len(paths) == 0 {
		logger.Debug("No plan paths given, using the built-in plan.")
		f, diags := parser.ParseHCL(DefaultPlan, DefaultPlanName)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse built-in plan: %w", diags)
		}
		files = append(files, f)
	} else {
		hclFiles, err := l.findAllHCLFiles(paths)
		if err != nil {
			return nil, err
		}
		if len(hclFiles) == 0 {
			return nil, fmt.Errorf("no .hcl files found in %v", paths)
		}
		logger.Debug("Discovered HCL files.", "count", len(hclFiles))
		for _, path := range hclFiles {
			f, diags := parser.ParseHCLFile(path)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
			}
			files = append(files, f)
		}
	}

	model := config.NewModel()
	seen := make(map[string]struct{})
	for _, f := range files {
		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode plan: %w", diags)
		}

		for _, v := range root.Variables {
			def, err := translateVariable(v)
			if err != nil {
				return nil, err
			}
			model.Variables[def.Name] = def
		}
		for _, s := range root.Steps {
			step := translateStep(s)
			if _, dup := seen[step.ID()]; dup {
				return nil, fmt.Errorf("duplicate step definition %q", step.ID())
			}
			seen[step.ID()] = struct{}{}
			model.Steps = append(model.Steps, step)
		}
	}

	if err := l.applyOverrides(model); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "variables", len(model.Variables), "steps", len(model.Steps))
	return model, nil
}

func (l *Loader) applyOverrides(model *config.Model) error {
	names := make([]string, 0, len(l.overrides))
	for name := range l.overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := model.Variables[name]
		if !ok {
			return fmt.Errorf("cannot set undeclared variable %q", name)
		}
		v.Default = cty.StringVal(l.overrides[name])
	}
	for name, v := range model.Variables {
		if v.Default.IsNull() {
			return fmt.Errorf("variable %q has no default and was not set", name)
		}
	}
	return nil
}

func translateVariable(v *variableBlock) (*config.Variable, error) {
	def := &config.Variable{
		Name:        v.Name,
		Description: v.Description,
		Default:     cty.NullVal(cty.DynamicPseudoType),
	}
	if v.Default != nil {
		val, diags := v.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value for variable %q: %w", v.Name, diags)
		}
		def.Default = val
	}
	return def, nil
}

func translateStep(s *stepBlock) *config.Step {
	body := hcl.EmptyBody()
	if s.Arguments != nil && s.Arguments.Body != nil {
		body = s.Arguments.Body
	}
	return &config.Step{
		Action:     s.Action,
		Name:       s.Name,
		Arguments:  body,
		Attributes: extractBodyAttributes(body),
		DependsOn:  s.DependsOn,
		Enabled:    s.Enabled,
		Creates:    s.Creates,
	}
}

// extractBodyAttributes converts a block body into a map of expressions.
func extractBodyAttributes(body hcl.Body) map[string]hcl.Expression {
	attrs, _ := body.JustAttributes()
	if attrs == nil {
		return nil
	}
	exprMap := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		exprMap[name] = attr.Expr
	}
	return exprMap
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				if _, wasSeen := seen[p]; !wasSeen {
					allFiles = append(allFiles, p)
					seen[p] = struct{}{}
				}
			}
		} else if filepath.Ext(path) == ".hcl" {
			if _, wasSeen := seen[path]; !wasSeen {
				allFiles = append(allFiles, path)
				seen[path] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
