package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/vgprep/internal/config"
	"github.com/vk/vgprep/internal/ctxlog"
)

// Build constructs a complete, validated dependency graph from a plan model.
func Build(ctx context.Context, model *config.Model) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := New()

	// First pass: create all nodes.
	for _, step := range model.Steps {
		if _, err := graph.AddNode(step); err != nil {
			return nil, err
		}
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link dependencies.
	for _, id := range sortedKeys(graph.Nodes) {
		node := graph.Nodes[id]
		if err := linkExplicitDeps(ctx, graph, node); err != nil {
			return nil, err
		}
		for _, expr := range node.Step.Expressions() {
			if err := linkImplicitDeps(ctx, graph, node, expr); err != nil {
				return nil, err
			}
		}
	}
	logger.Debug("Build: Node linking complete.")

	if err := graph.DetectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}

	for _, node := range graph.Nodes {
		node.depCount.Store(int32(len(node.Deps)))
	}
	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

// linkExplicitDeps resolves dependencies from a `depends_on` list.
func linkExplicitDeps(ctx context.Context, graph *Graph, node *Node) error {
	logger := ctxlog.FromContext(ctx)
	for _, ref := range node.Step.DependsOn {
		depID := config.StepID(ref)
		if _, ok := graph.Nodes[depID]; !ok {
			return fmt.Errorf("node '%s' depends on non-existent step '%s'", node.ID, ref)
		}
		if _, exists := node.Deps[depID]; exists {
			continue
		}
		logger.Debug("Linking explicit dependency.", "from", node.ID, "to", depID)
		if err := graph.AddEdge(depID, node.ID); err != nil {
			return err
		}
	}
	return nil
}

// linkImplicitDeps links every `step.<action>.<name>` traversal found in expr.
func linkImplicitDeps(ctx context.Context, graph *Graph, node *Node, expr hcl.Expression) error {
	logger := ctxlog.FromContext(ctx)
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "step" || len(traversal) < 3 {
			continue
		}
		actionAttr, actionOk := traversal[1].(hcl.TraverseAttr)
		nameAttr, nameOk := traversal[2].(hcl.TraverseAttr)
		if !actionOk || !nameOk {
			continue
		}
		depID := fmt.Sprintf("step.%s.%s", actionAttr.Name, nameAttr.Name)
		if _, ok := graph.Nodes[depID]; !ok {
			rng := traversal.SourceRange()
			return fmt.Errorf("%s: node '%s' references non-existent step '%s'", rng.String(), node.ID, depID)
		}
		if _, exists := node.Deps[depID]; exists {
			continue
		}
		logger.Debug("Linking implicit dependency.", "from", node.ID, "to", depID)
		if err := graph.AddEdge(depID, node.ID); err != nil {
			return err
		}
	}
	return nil
}
