package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Index provides O(1) node lookup over a graph.
type Index struct {
	nodes map[string]domain.Node
	order []string
	edges []domain.Edge
}

// Build indexes the nodes of a graph. When ids repeat, the last declaration wins.
func Build(g domain.Graph) *Index {
	idx := &Index{
		nodes: make(map[string]domain.Node, len(g.Nodes)),
		order: make([]string, 0, len(g.Nodes)),
		edges: g.Edges,
	}
	for _, n := range g.Nodes {
		if _, seen := idx.nodes[n.ID]; !seen {
			idx.order = append(idx.order, n.ID)
		}
		idx.nodes[n.ID] = n
	}
	return idx
}

// Get returns the node with the given id.
func (idx *Index) Get(id string) (domain.Node, bool) {
	n, ok := idx.nodes[id]
	return n, ok
}

// Len returns the number of distinct nodes.
func (idx *Index) Len() int {
	return len(idx.order)
}

// Nodes returns the indexed nodes in declaration order.
func (idx *Index) Nodes() []domain.Node {
	out := make([]domain.Node, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.nodes[id])
	}
	return out
}

// Edges returns the edges of the indexed graph.
func (idx *Index) Edges() []domain.Edge {
	return idx.edges
}

// Outgoing returns the edges leaving nodeID, in declaration order.
func Outgoing(edges []domain.Edge, nodeID string) []domain.Edge {
	var outs []domain.Edge
	for _, e := range edges {
		if e.Source == nodeID {
			outs = append(outs, e)
		}
	}
	return outs
}

// ResolveEdge picks the outgoing edge of nodeID labeled with handle (case-insensitive).
// If none matches and nodeID has exactly one outgoing edge without a handle,
// that edge is the default.
func ResolveEdge(edges []domain.Edge, nodeID, handle string) (domain.Edge, bool) {
	outs := Outgoing(edges, nodeID)
	for _, e := range outs {
		if e.SourceHandle != "" && strings.EqualFold(e.SourceHandle, handle) {
			return e, true
		}
	}
	if len(outs) == 1 && outs[0].SourceHandle == "" {
		return outs[0], true
	}
	return domain.Edge{}, false
}

// FindStartNode returns the node with id "1" if present, else the first declared node.
func FindStartNode(g domain.Graph) (domain.Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == domain.StartNodeID {
			return n, true
		}
	}
	if len(g.Nodes) > 0 {
		return g.Nodes[0], true
	}
	return domain.Node{}, false
}

// FindBranchOption resolves a user selection on a branch node to the id of the
// branchOption node it designates. The selector is either an index into the
// branch options or an option label.
func FindBranchOption(idx *Index, branch domain.Node, selector any) (string, bool) {
	var options []string
	if data, ok := branch.Data.(domain.BranchData); ok {
		options = data.Options
	}

	if i, ok := selectorIndex(selector); ok && i >= 0 && i < len(options) {
		if id, found := idx.findOptionByLabel(options[i]); found {
			return id, true
		}
		guessed := domain.BranchOptionID(branch.ID, i)
		if _, found := idx.Get(guessed); found {
			return guessed, true
		}
		return "", false
	}

	return idx.findOptionByLabel(selectorLabel(selector))
}

func (idx *Index) findOptionByLabel(label string) (string, bool) {
	for _, id := range idx.order {
		n := idx.nodes[id]
		if data, ok := n.Data.(domain.BranchOptionData); ok && data.Label == label {
			return n.ID, true
		}
	}
	return "", false
}

// selectorIndex interprets a selector as an option index.
func selectorIndex(selector any) (int, bool) {
	switch v := selector.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func selectorLabel(selector any) string {
	switch v := selector.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
