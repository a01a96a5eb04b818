// Package config defines the format-agnostic model of a fetch plan, along
// with the Loader interface used to produce it from files on disk.
//
// The `config.Model` is the single source of truth for the `dag` package.
// The HCL implementation of the Loader lives in the `hcl` package.
package config
