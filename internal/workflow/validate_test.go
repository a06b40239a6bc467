package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"helpdesk-service/internal/models"
)

func linearGraph() *models.WorkflowGraph {
	return &models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "act", Type: models.NodeTypeAction, Data: models.JSON{"action": "update_ticket"}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []models.WorkflowConnection{
			{From: "start", To: "act"},
			{From: "act", To: "end"},
		},
	}
}

func TestValidate_AcceptsLinearGraph(t *testing.T) {
	assert.NoError(t, ValidateWorkflowStructure(linearGraph()))
}

func TestValidate_RejectsEmptyGraph(t *testing.T) {
	assert.ErrorIs(t, ValidateWorkflowStructure(nil), ErrEmptyWorkflow)
	assert.ErrorIs(t, ValidateWorkflowStructure(&models.WorkflowGraph{}), ErrEmptyWorkflow)
}

func TestValidate_RejectsMissingStart(t *testing.T) {
	graph := linearGraph()
	graph.Nodes = graph.Nodes[1:]
	graph.Connections = graph.Connections[1:]
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrNoStartNode)
}

func TestValidate_RejectsMultipleStarts(t *testing.T) {
	graph := linearGraph()
	graph.Nodes = append(graph.Nodes, models.WorkflowNode{ID: "start2", Type: models.NodeTypeStart})
	graph.Connections = append(graph.Connections, models.WorkflowConnection{From: "start2", To: "act"})
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrNoStartNode)
}

func TestValidate_RejectsMissingEnd(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "act", Type: models.NodeTypeAction},
		},
		Connections: []models.WorkflowConnection{{From: "start", To: "act"}},
	}
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrNoEndNode)
}

func TestValidate_RejectsDuplicateNodeIDs(t *testing.T) {
	graph := linearGraph()
	graph.Nodes = append(graph.Nodes, models.WorkflowNode{ID: "act", Type: models.NodeTypeAction})
	err := ValidateWorkflowStructure(graph)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestValidate_RejectsDanglingConnection(t *testing.T) {
	graph := linearGraph()
	graph.Connections = append(graph.Connections, models.WorkflowConnection{From: "act", To: "ghost"})
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrDanglingEndpoint)
}

func TestValidate_RejectsMultipleSuccessorsOnActionNode(t *testing.T) {
	graph := linearGraph()
	graph.Nodes = append(graph.Nodes, models.WorkflowNode{ID: "end2", Type: models.NodeTypeEnd})
	graph.Connections = append(graph.Connections, models.WorkflowConnection{From: "act", To: "end2"})
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrAmbiguousPath)
}

func TestValidate_RejectsUnreachableNode(t *testing.T) {
	graph := linearGraph()
	graph.Nodes = append(graph.Nodes, models.WorkflowNode{ID: "orphan", Type: models.NodeTypeAction})
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrIsolatedNode)
}

func TestValidate_ConditionRequiresBranchTargets(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "check", Type: models.NodeTypeCondition, Data: models.JSON{
				"field": "status", "operator": "=", "value": "OPEN",
				"true_path": "end",
			}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []models.WorkflowConnection{{From: "start", To: "check"}},
	}
	err := ValidateWorkflowStructure(graph)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "false_path")
}

func TestValidate_ConditionBranchMustExist(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "check", Type: models.NodeTypeCondition, Data: models.JSON{
				"field": "status", "operator": "=", "value": "OPEN",
				"true_path": "ghost", "false_path": "end",
			}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []models.WorkflowConnection{{From: "start", To: "check"}},
	}
	assert.ErrorIs(t, ValidateWorkflowStructure(graph), ErrDanglingEndpoint)
}

func TestValidate_ConditionBranchesCountAsEdges(t *testing.T) {
	// "end" is only reachable through the condition's branch targets,
	// never through the connection list.
	graph := &models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "check", Type: models.NodeTypeCondition, Data: models.JSON{
				"field": "status", "operator": "=", "value": "OPEN",
				"true_path": "end", "false_path": "end",
			}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []models.WorkflowConnection{{From: "start", To: "check"}},
	}
	assert.NoError(t, ValidateWorkflowStructure(graph))
}

func TestValidate_AcceptsCycles(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "retry", Type: models.NodeTypeCondition, Data: models.JSON{
				"field": "status", "operator": "=", "value": "OPEN",
				"true_path": "retry", "false_path": "end",
			}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []models.WorkflowConnection{{From: "start", To: "retry"}},
	}
	assert.NoError(t, ValidateWorkflowStructure(graph))
}
