package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/process"
)

// Overlay contains the run data to visualize on the graph.
type Overlay struct {
	// Visited lists process names that ran, usually a Result's Path.
	Visited []string
	// Current is the process that produced the final memory.
	Current string
}

// LastRun rebuilds the overlay of the latest run of mind from a committed
// memory, following the newest decision entry. It returns nil when memory
// holds no decision made by mind.
func LastRun(mind process.Process, memory domain.WorkingMemory) *Overlay {
	b, ok := mind.(*process.Branching)
	if !ok {
		return nil
	}
	entry, ok := memory.Find(func(e domain.MemoryEntry) bool {
		_, has := e.Meta(cognitive.MetaDecision)
		return has
	})
	if !ok {
		return nil
	}
	label, _ := entry.Meta(cognitive.MetaDecision)
	child := b.Branches[fmt.Sprint(label)]
	if child == nil {
		return nil
	}
	return &Overlay{Visited: []string{b.Name()}, Current: child.Name()}
}

// GenerateMermaid produces a Mermaid flowchart of a mental process.
// It applies semantic styling:
// - Entry process: ((Circle))
// - Pre-steps: [/Parallelogram/]
// - Decision: {Rhombus}
// - Other processes: [Rectangle]
// Branching processes nested as branches are expanded in place.
func GenerateMermaid(p process.Process, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	if p != nil {
		seen := make(map[string]bool)
		writeProcess(&sb, p, true, seen)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the styled nodes readable on light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		styled := make(map[string]bool)
		for _, name := range overlay.Visited {
			id := sanitizeMermaidID(name)
			if id == "" || styled[id] || name == overlay.Current {
				continue
			}
			styled[id] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", id)
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func writeProcess(sb *strings.Builder, p process.Process, entry bool, seen map[string]bool) {
	id := sanitizeMermaidID(p.Name())
	if seen[id] {
		return
	}
	seen[id] = true

	opener, closer := "[", "]"
	if entry {
		opener, closer = "((", "))"
	}
	fmt.Fprintf(sb, "    %s%s\"%s\"%s\n", id, opener, escape(p.Name()), closer)

	b, ok := p.(*process.Branching)
	if !ok {
		return
	}

	prev := id
	for i := range b.PreSteps {
		stageID := fmt.Sprintf("%s_pre_%d", id, i+1)
		fmt.Fprintf(sb, "    %s[/\"pre-step %d\"/]\n", stageID, i+1)
		fmt.Fprintf(sb, "    %s --> %s\n", prev, stageID)
		prev = stageID
	}

	decisionID := id + "_decision"
	fmt.Fprintf(sb, "    %s{\"%s\"}\n", decisionID, escape(b.Decision.Description))
	fmt.Fprintf(sb, "    %s --> %s\n", prev, decisionID)

	labels := b.Decision.Choices
	if len(labels) == 0 {
		for label := range b.Branches {
			labels = append(labels, label)
		}
		sort.Strings(labels)
	}
	for _, label := range labels {
		child := b.Branches[label]
		if child == nil {
			continue
		}
		fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", decisionID, escape(label), sanitizeMermaidID(child.Name()))
	}
	for _, label := range labels {
		if child := b.Branches[label]; child != nil {
			writeProcess(sb, child, false, seen)
		}
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
