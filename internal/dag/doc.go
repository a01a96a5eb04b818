// Package dag is the execution layer of vgprep. It takes a config.Model,
// builds a directed acyclic graph of plan steps (explicit `depends_on` links
// plus implicit links from `step.<action>.<name>` references), and runs the
// steps on a bounded worker pool according to their dependencies.
//
// A failing step cancels the run; every transitive dependent is skipped.
// Steps recorded in the ledger with an unchanged fingerprint are not run
// again unless one of their dependencies ran in this session.
package dag
