// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It parses plan files (or the built-in VisualGenome plan),
// resolves variable overrides and translates every block into the
// format-agnostic config.Model.
package hcl
