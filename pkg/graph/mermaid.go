package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Overlay contains session state to highlight on the rendered graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromHistory collects the nodes a session has visited, in order.
func OverlayFromHistory(history []domain.HistoryEntry, current string) *Overlay {
	o := &Overlay{CurrentNode: current}
	for _, h := range history {
		if h.NodeID != "" && !h.FromUser {
			o.VisitedNodes = append(o.VisitedNodes, h.NodeID)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of the graph.
// Shapes follow the node kind:
//   - start: ((circle))
//   - code: [[subroutine]]
//   - question/confirmation: [/parallelogram/]
//   - branch: {rhombus}
//   - default: [rectangle]
//
// Branch nodes get dotted arrows to the options they resolve to.
func GenerateMermaid(g domain.Graph, overlay *Overlay) string {
	idx := Build(g)
	start, _ := FindStartNode(g)

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range idx.Nodes() {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case node.ID == start.ID:
			opener, closer = "((", "))"
		case node.Type == domain.NodeTypeCode:
			opener, closer = "[[", "]]"
		case node.Type == domain.NodeTypeQuestion || node.Type == domain.NodeTypeConfirmation:
			opener, closer = "[/", "/]"
		case node.Type == domain.NodeTypeBranch:
			opener, closer = "{", "}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, mermaidLabel(node), closer)

		if data, ok := node.Data.(domain.BranchData); ok {
			for i, opt := range data.Options {
				if target, found := FindBranchOption(idx, node, i); found {
					fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", safeID, escapeLabel(opt), sanitizeMermaidID(target))
				}
			}
		}
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if e.SourceHandle != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(e.SourceHandle))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			if _, ok := idx.Get(id); !ok {
				continue
			}
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func mermaidLabel(n domain.Node) string {
	switch data := n.Data.(type) {
	case domain.BranchOptionData:
		return escapeLabel(data.Label)
	case domain.QuestionData:
		if data.Variable != "" {
			return escapeLabel(fmt.Sprintf("%s: %s → %s", n.ID, n.Type, data.Variable))
		}
	}
	return escapeLabel(fmt.Sprintf("%s: %s", n.ID, n.Type))
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

// sanitizeMermaidID prefixes ids so numeric ids stay valid Mermaid identifiers.
func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return "n_" + r.Replace(id)
}
