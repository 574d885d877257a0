package graph

import (
	"fmt"
	"strings"
)

// Overlay contains turn data to visualize on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// Mermaid produces a Mermaid flowchart of the graph.
// Shapes: entry ((Circle)), terminal [[Subroutine]], others [Rectangle].
// Guarded edges are labelled with the guard name.
func Mermaid(g *Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes() {
		safeID := sanitizeMermaidID(string(node.ID))

		opener, closer := "[", "]"
		switch {
		case node.ID == g.Entry():
			opener, closer = "((", "))"
		case node.Terminal:
			opener, closer = "[[", "]]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, node.ID, closer))

		for _, e := range g.Edges(node.ID) {
			safeTo := sanitizeMermaidID(string(e.To))
			arrow := "-->"
			if e.Guard != nil {
				arrow = fmt.Sprintf("-- \"%s\" -->", strings.ReplaceAll(e.Guard.Name, "\"", "'"))
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
