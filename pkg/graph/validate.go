package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Validate checks a graph for broken edges, unreachable nodes and branch
// options that cannot be resolved. A graph may dead-end on purpose, so missing
// outgoing edges are not reported.
func Validate(g domain.Graph) error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	idx := Build(g)

	var problems []string
	if idx.Len() != len(g.Nodes) {
		problems = append(problems, fmt.Sprintf("%d duplicate node ids", len(g.Nodes)-idx.Len()))
	}

	for _, e := range g.Edges {
		if _, ok := idx.Get(e.Source); !ok {
			problems = append(problems, fmt.Sprintf("edge %q: unknown source %q", e.ID, e.Source))
		}
		if _, ok := idx.Get(e.Target); !ok {
			problems = append(problems, fmt.Sprintf("edge %q: unknown target %q", e.ID, e.Target))
		}
	}

	for _, n := range idx.Nodes() {
		switch data := n.Data.(type) {
		case domain.QuestionData:
			if data.Variable == "" {
				problems = append(problems, fmt.Sprintf("question %q has no variable", n.ID))
			}
		case domain.BranchData:
			for i := range data.Options {
				if _, ok := FindBranchOption(idx, n, i); !ok {
					problems = append(problems, fmt.Sprintf("branch %q: option %q has no branchOption node", n.ID, data.Options[i]))
				}
			}
		case domain.UnknownData:
			problems = append(problems, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}
	}

	start, _ := FindStartNode(g)
	visited := Reachable(idx, start.ID)
	for _, n := range idx.Nodes() {
		if !visited[n.ID] && n.Type != domain.NodeTypeBranchOption {
			problems = append(problems, fmt.Sprintf("node %q is unreachable from %q", n.ID, start.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}

// Reachable walks edges breadth-first from startID. Branch nodes reach their
// options through label resolution, not edges.
func Reachable(idx *Index, startID string) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{startID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		n, ok := idx.Get(id)
		if !ok {
			continue
		}
		visited[id] = true

		for _, e := range Outgoing(idx.Edges(), id) {
			if !visited[e.Target] {
				queue = append(queue, e.Target)
			}
		}
		if data, ok := n.Data.(domain.BranchData); ok {
			for i := range data.Options {
				if optID, found := FindBranchOption(idx, n, i); found && !visited[optID] {
					queue = append(queue, optID)
				}
			}
		}
	}
	return visited
}
