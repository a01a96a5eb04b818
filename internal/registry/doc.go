// Package registry provides the central "glue" for the step module system.
//
// The Registry maps the action names used in plans (e.g. "download") to the
// compiled Go handlers that implement them. Before a plan runs, the registry
// checks that every step in it names a registered action, so a typo in a
// plan fails at startup instead of halfway through a multi-gigabyte fetch.
package registry
