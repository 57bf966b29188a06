// Package catalog holds the static table of report sections: their stable
// ids, titles, dependency edges, and the named variants that select a default
// subset of sections.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SectionDefinition describes one independently generated part of a report.
type SectionDefinition struct {
	ID           int    `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Title        string `yaml:"title" json:"title"`
	Dependencies []int  `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// Variant names a default section set for one flavor of the document.
type Variant struct {
	Name     string `yaml:"name" json:"name"`
	Title    string `yaml:"title" json:"title"`
	Sections []int  `yaml:"sections,omitempty" json:"sections,omitempty"` // empty means every section
}

// Catalog is an immutable, validated set of section definitions.
type Catalog struct {
	sections []SectionDefinition
	byID     map[int]SectionDefinition
	variants map[string]Variant
}

// file is the on-disk YAML layout read by Load.
type file struct {
	Sections []SectionDefinition `yaml:"sections"`
	Variants []Variant           `yaml:"variants"`
}

// New validates the definitions and builds a Catalog. Sections are kept in
// ascending id order.
func New(sections []SectionDefinition, variants []Variant) (*Catalog, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("catalog: no sections defined")
	}
	c := &Catalog{
		byID:     make(map[int]SectionDefinition, len(sections)),
		variants: make(map[string]Variant, len(variants)),
	}
	names := make(map[string]bool, len(sections))
	for _, s := range sections {
		if s.ID <= 0 {
			return nil, fmt.Errorf("catalog: section %q has non-positive id %d", s.Name, s.ID)
		}
		if s.Name == "" {
			return nil, fmt.Errorf("catalog: section %d has no name", s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate section id %d", s.ID)
		}
		if names[s.Name] {
			return nil, fmt.Errorf("catalog: duplicate section name %q", s.Name)
		}
		names[s.Name] = true
		s.Dependencies = append([]int(nil), s.Dependencies...)
		c.byID[s.ID] = s
		c.sections = append(c.sections, s)
	}
	for _, s := range c.sections {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return nil, fmt.Errorf("catalog: section %d depends on itself", s.ID)
			}
			if _, ok := c.byID[dep]; !ok {
				return nil, fmt.Errorf("catalog: section %d depends on unknown section %d", s.ID, dep)
			}
		}
	}
	sort.Slice(c.sections, func(i, j int) bool { return c.sections[i].ID < c.sections[j].ID })

	for _, v := range variants {
		if v.Name == "" {
			return nil, fmt.Errorf("catalog: variant with empty name")
		}
		if _, dup := c.variants[v.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate variant %q", v.Name)
		}
		for _, id := range v.Sections {
			if _, ok := c.byID[id]; !ok {
				return nil, fmt.Errorf("catalog: variant %q references unknown section %d", v.Name, id)
			}
		}
		v.Sections = append([]int(nil), v.Sections...)
		c.variants[v.Name] = v
	}
	if len(c.variants) == 0 {
		return nil, fmt.Errorf("catalog: no variants defined")
	}
	return c, nil
}

// Load reads a YAML catalog file. An empty path returns the built-in
// Default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(f.Sections, f.Variants)
}

// Sections returns every definition in ascending id order.
func (c *Catalog) Sections() []SectionDefinition {
	out := make([]SectionDefinition, len(c.sections))
	copy(out, c.sections)
	return out
}

// Section looks up a definition by id.
func (c *Catalog) Section(id int) (SectionDefinition, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Variant looks up a variant by name.
func (c *Catalog) Variant(name string) (Variant, bool) {
	v, ok := c.variants[name]
	return v, ok
}

// Variants returns the variant names in sorted order.
func (c *Catalog) Variants() []string {
	names := make([]string, 0, len(c.variants))
	for name := range c.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultSections returns the section ids a variant generates when the caller
// does not pick an explicit subset.
func (c *Catalog) DefaultSections(variant string) ([]int, error) {
	v, ok := c.variants[variant]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown variant %q", variant)
	}
	if len(v.Sections) == 0 {
		ids := make([]int, len(c.sections))
		for i, s := range c.sections {
			ids[i] = s.ID
		}
		return ids, nil
	}
	ids := append([]int(nil), v.Sections...)
	sort.Ints(ids)
	return ids, nil
}

// Unknown returns the ids in the list that the catalog does not define.
func (c *Catalog) Unknown(ids []int) []int {
	var missing []int
	for _, id := range ids {
		if _, ok := c.byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
