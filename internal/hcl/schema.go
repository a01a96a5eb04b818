package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode all top-level blocks of a plan file.
type fileRoot struct {
	Variables []*variableBlock `hcl:"variable,block"`
	Steps     []*stepBlock     `hcl:"step,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type variableBlock struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

type stepBlock struct {
	Action    string          `hcl:"action,label"`
	Name      string          `hcl:"name,label"`
	Arguments *argumentsBlock `hcl:"arguments,block"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Enabled   hcl.Expression  `hcl:"enabled,optional"`
	Creates   hcl.Expression  `hcl:"creates,optional"`
}

type argumentsBlock struct {
	Body hcl.Body `hcl:",remain"`
}
