package dag

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/vgprep/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// State is the execution state of a node.
type State int32

const (
	Pending State = iota
	Running
	Done
	Cached
	Disabled
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cached:
		return "cached"
	case Disabled:
		return "disabled"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// finished reports whether dependents may run after a node in this state.
func (s State) finished() bool {
	return s == Done || s == Cached || s == Disabled
}

// Node is a single plan step in the graph.
type Node struct {
	ID         string
	Step       *config.Step
	Deps       map[string]*Node
	Dependents map[string]*Node

	depCount atomic.Int32
	state    atomic.Int32
	skipOnce sync.Once

	// Written by the worker that owns the node, read by dependents after
	// they have been unlocked.
	Error    error
	Output   cty.Value
	executed bool
}

// State returns the current execution state.
func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) setState(s State) {
	n.state.Store(int32(s))
}

// Graph holds every node of a plan, keyed by step ID.
type Graph struct {
	Nodes map[string]*Node
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode adds a node for the step. If a node with the same ID already
// exists, an error is returned.
func (g *Graph) AddNode(step *config.Step) (*Node, error) {
	id := step.ID()
	if _, ok := g.Nodes[id]; ok {
		return nil, fmt.Errorf("duplicate node: %s", id)
	}
	n := &Node{
		ID:         id,
		Step:       step,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
	g.Nodes[id] = n
	return n, nil
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	fromNode, ok := g.Nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.Nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.Deps[fromID] = fromNode
	fromNode.Dependents[toID] = toNode
	return nil
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, naming a node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	// permanent: fully visited and not part of a cycle.
	// temporary: on the current recursion stack.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving node '%s'", n.ID)
		}

		temporary[n.ID] = true
		for _, id := range sortedKeys(n.Dependents) {
			if err := visit(n.Dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, id := range sortedKeys(g.Nodes) {
		if err := visit(g.Nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current state of every node.
func (g *Graph) Snapshot() map[string]string {
	out := make(map[string]string, len(g.Nodes))
	for id, n := range g.Nodes {
		out[id] = n.State().String()
	}
	return out
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
