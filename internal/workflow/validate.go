package workflow

import (
	"errors"
	"fmt"

	"helpdesk-service/internal/models"
)

var (
	ErrNoStartNode      = errors.New("workflow must have exactly one start node")
	ErrNoEndNode        = errors.New("workflow must have at least one end node")
	ErrDanglingEndpoint = errors.New("connection references a nonexistent node")
	ErrIsolatedNode     = errors.New("workflow contains an unreachable node")
	ErrEmptyWorkflow    = errors.New("workflow has no nodes")
	ErrAmbiguousPath    = errors.New("non-condition node has multiple outgoing connections")
)

// ValidateWorkflowStructure checks a graph before any side effects occur:
// exactly one start node, at least one end node, no dangling connection
// endpoints, and every non-start node reachable from start.
func ValidateWorkflowStructure(graph *models.WorkflowGraph) error {
	if graph == nil || len(graph.Nodes) == 0 {
		return ErrEmptyWorkflow
	}

	nodes := make(map[string]models.WorkflowNode, len(graph.Nodes))
	startCount := 0
	endCount := 0
	for _, node := range graph.Nodes {
		if _, dup := nodes[node.ID]; dup {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}
		nodes[node.ID] = node
		switch node.Type {
		case models.NodeTypeStart:
			startCount++
		case models.NodeTypeEnd:
			endCount++
		}
	}

	if startCount != 1 {
		return fmt.Errorf("%w (found %d)", ErrNoStartNode, startCount)
	}
	if endCount == 0 {
		return ErrNoEndNode
	}

	adjacency := make(map[string][]string)
	for _, conn := range graph.Connections {
		if _, ok := nodes[conn.From]; !ok {
			return fmt.Errorf("%w: from %q", ErrDanglingEndpoint, conn.From)
		}
		if _, ok := nodes[conn.To]; !ok {
			return fmt.Errorf("%w: to %q", ErrDanglingEndpoint, conn.To)
		}
		adjacency[conn.From] = append(adjacency[conn.From], conn.To)
	}

	// Only condition nodes may fan out; everything else follows a single
	// outgoing connection, so a second one would be silently ignored.
	for from, targets := range adjacency {
		if len(targets) > 1 && nodes[from].Type != models.NodeTypeCondition {
			return fmt.Errorf("%w: %q", ErrAmbiguousPath, from)
		}
	}

	// Condition branches are declared in node data, not the connection list
	for _, node := range graph.Nodes {
		if node.Type != models.NodeTypeCondition {
			continue
		}
		for _, key := range []string{"true_path", "false_path"} {
			target, ok := node.Data[key].(string)
			if !ok || target == "" {
				return fmt.Errorf("condition node %q missing %s", node.ID, key)
			}
			if _, exists := nodes[target]; !exists {
				return fmt.Errorf("%w: condition %s %q", ErrDanglingEndpoint, key, target)
			}
			adjacency[node.ID] = append(adjacency[node.ID], target)
		}
	}

	// Reachability from the start node
	var startID string
	for _, node := range graph.Nodes {
		if node.Type == models.NodeTypeStart {
			startID = node.ID
		}
	}
	reached := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range nodes {
		if !reached[id] {
			return fmt.Errorf("%w: %q", ErrIsolatedNode, id)
		}
	}

	return nil
}
