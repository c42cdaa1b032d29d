package orchestrator

import (
	"fmt"
	"strings"
)

// DOT renders the chain as a Graphviz digraph. Edges point from a dependency to
// the step that needs it, which is also the provisioning direction.
func (c *Chain) DOT(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", name)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")
	for _, s := range c.steps {
		fmt.Fprintf(&b, "  %q [label=%q];\n", s.Name, s.Name+"\n"+s.Kind.String())
	}
	for _, s := range c.steps {
		for _, dep := range s.DependsOn {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, s.Name)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid renders the chain as a Mermaid flowchart.
func (c *Chain) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for _, s := range c.steps {
		fmt.Fprintf(&b, "  %s[\"%s (%s)\"]\n", mermaidID(s.Name), s.Name, s.Kind)
	}
	for _, s := range c.steps {
		for _, dep := range s.DependsOn {
			fmt.Fprintf(&b, "  %s --> %s\n", mermaidID(dep), mermaidID(s.Name))
		}
	}
	return b.String()
}

// PlanEntry is one line of a provisioning plan.
type PlanEntry struct {
	Position  int      `json:"position"`
	Step      string   `json:"step"`
	Kind      Kind     `json:"kind"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Plan describes the order a chain would be provisioned and torn down in,
// without calling any capability.
type Plan struct {
	Provision []PlanEntry `json:"provision"`
	Teardown  []string    `json:"teardown"`
}

// Plan returns the provisioning and teardown order of the chain.
func (c *Chain) Plan() Plan {
	var p Plan
	for i, s := range c.ForwardOrder() {
		p.Provision = append(p.Provision, PlanEntry{
			Position:  i + 1,
			Step:      s.Name,
			Kind:      s.Kind,
			DependsOn: s.DependsOn,
		})
	}
	for _, s := range c.ReverseOrder() {
		p.Teardown = append(p.Teardown, s.Name)
	}
	return p
}

func mermaidID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
