package catalog

import (
	"fmt"
	"strings"
)

// Mermaid renders a variant's sections as a Mermaid graph TD diagram. Each
// dependency becomes an arrow from the prerequisite to the dependent section.
// Prerequisites outside the variant are drawn with a dotted arrow, since the
// scheduler ignores them.
func (c *Catalog) Mermaid(variant string) (string, error) {
	ids, err := c.DefaultSections(variant)
	if err != nil {
		return "", err
	}
	in := make(map[int]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	// Sections pulled in only as outside prerequisites go in their own block.
	var outside []int
	seen := make(map[int]bool)
	for _, id := range ids {
		s := c.byID[id]
		fmt.Fprintf(&sb, "  S%d[\"%d. %s\"]\n", s.ID, s.ID, mermaidLabel(s.Title))
		for _, dep := range s.Dependencies {
			if !in[dep] && !seen[dep] {
				seen[dep] = true
				outside = append(outside, dep)
			}
		}
	}
	if len(outside) > 0 {
		sb.WriteString("  subgraph excluded[\"not in " + mermaidLabel(variant) + "\"]\n")
		for _, id := range outside {
			s := c.byID[id]
			fmt.Fprintf(&sb, "    S%d[\"%d. %s\"]\n", s.ID, s.ID, mermaidLabel(s.Title))
		}
		sb.WriteString("  end\n")
	}

	for _, id := range ids {
		for _, dep := range c.byID[id].Dependencies {
			arrow := "-->"
			if !in[dep] {
				arrow = "-.->"
			}
			fmt.Fprintf(&sb, "  S%d %s S%d\n", dep, arrow, id)
		}
	}
	return sb.String(), nil
}

// mermaidLabel keeps a title from closing the quoted node label.
func mermaidLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
