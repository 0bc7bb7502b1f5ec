package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/graph"
)

func TestValidate(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		assert.NoError(t, graph.Validate(loadGraph(t, pizzaFlow)))
	})

	t.Run("empty graph", func(t *testing.T) {
		assert.Error(t, graph.Validate(domain.Graph{}))
	})

	t.Run("broken edge and unreachable node", func(t *testing.T) {
		g := domain.Graph{
			Nodes: []domain.Node{
				{ID: "1", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "hi"}},
				{ID: "island", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "alone"}},
			},
			Edges: []domain.Edge{{ID: "e1", Source: "1", Target: "ghost"}},
		}
		err := graph.Validate(g)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown target "ghost"`)
		assert.Contains(t, err.Error(), `node "island" is unreachable`)
	})

	t.Run("branch option without node", func(t *testing.T) {
		g := domain.Graph{Nodes: []domain.Node{
			{ID: "1", Type: domain.NodeTypeBranch, Data: domain.BranchData{Options: []string{"A"}}},
		}}
		err := graph.Validate(g)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `option "A" has no branchOption node`)
	})

	t.Run("unknown node type", func(t *testing.T) {
		n, err := domain.NewNode("1", "carousel", map[string]any{"items": 3})
		require.NoError(t, err)
		err = graph.Validate(domain.Graph{Nodes: []domain.Node{n}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown type "carousel"`)
	})
}

func TestReachable_FollowsBranchOptions(t *testing.T) {
	idx := graph.Build(loadGraph(t, pizzaFlow))
	visited := graph.Reachable(idx, "1")
	for _, id := range []string{"1", "2", "opt-small", "2-opt-1", "3", "4", "5"} {
		assert.True(t, visited[id], id)
	}
}
