package dsl

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// NodeBuilder provides a fluent API for wiring a node.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	options []domain.Node
	builder *Builder
}

// Go adds an unconditional edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.edge("", target)
}

// Yes routes an affirmative confirmation answer.
func (n *NodeBuilder) Yes(target string) *NodeBuilder {
	n.expect(domain.NodeTypeConfirmation, "Yes")
	return n.edge(domain.HandleYes, target)
}

// No routes a negative confirmation answer.
func (n *NodeBuilder) No(target string) *NodeBuilder {
	n.expect(domain.NodeTypeConfirmation, "No")
	return n.edge(domain.HandleNo, target)
}

// OnSuccess routes a code node that ran without error.
func (n *NodeBuilder) OnSuccess(target string) *NodeBuilder {
	n.expect(domain.NodeTypeCode, "OnSuccess")
	return n.edge(domain.HandleSuccess, target)
}

// Error routes a code node whose script failed.
func (n *NodeBuilder) Error(target string) *NodeBuilder {
	n.expect(domain.NodeTypeCode, "Error")
	return n.edge(domain.HandleError, target)
}

// Timeout sets the script budget of a code node in milliseconds.
func (n *NodeBuilder) Timeout(ms int) *NodeBuilder {
	if data, ok := n.node.Data.(domain.CodeData); ok {
		data.Timeout = ms
		n.node.Data = data
		return n
	}
	n.expect(domain.NodeTypeCode, "Timeout")
	return n
}

// Option appends a branch option whose selection continues at target.
// An empty target leaves the option as a dead end.
func (n *NodeBuilder) Option(label, target string) *NodeBuilder {
	data, ok := n.node.Data.(domain.BranchData)
	if !ok {
		n.expect(domain.NodeTypeBranch, "Option")
		return n
	}
	optID := domain.BranchOptionID(n.node.ID, len(data.Options))
	data.Options = append(data.Options, label)
	n.node.Data = data

	n.options = append(n.options, domain.Node{
		ID:   optID,
		Type: domain.NodeTypeBranchOption,
		Data: domain.BranchOptionData{Label: label},
	})
	if target != "" {
		n.edges = append(n.edges, domain.Edge{Source: optID, Target: target})
	}
	return n
}

// Terminal drops every outgoing edge of the node.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.edges = nil
	return n
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}

func (n *NodeBuilder) edge(handle, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{
		Source:       n.node.ID,
		Target:       target,
		SourceHandle: handle,
	})
	return n
}

func (n *NodeBuilder) expect(kind domain.NodeType, method string) {
	if n.node.Kind() != kind {
		n.builder.errs = append(n.builder.errs,
			fmt.Errorf("node %q: %s only applies to %s nodes", n.node.ID, method, kind))
	}
}
