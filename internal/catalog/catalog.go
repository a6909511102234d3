// Package catalog maps organisms to the gene-set libraries queried for them.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"enrich/internal/domain"
	apperrors "enrich/internal/errors"
)

// DefaultOrganism is the catalog entry used for organisms without their own entry.
const DefaultOrganism = "default"

// Libraries holds the two library groups of one organism.
type Libraries struct {
	GO       []string `yaml:"go"`
	Pathways []string `yaml:"pathways"`
}

func (l Libraries) empty() bool { return len(l.GO) == 0 && len(l.Pathways) == 0 }

// Categories returns one category per library, ontology categories first.
// Category keys are unique: a library whose short name is already taken keeps
// its full identifier instead, so KEGG_2019_Human and KEGG_2021_Human become
// KEGG and KEGG_2021_Human.
func (l Libraries) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(l.GO)+len(l.Pathways))
	seen := make(map[string]bool, cap(out))
	add := func(group domain.CategoryGroup, lib string) {
		c := CategoryFor(group, lib)
		if seen[uniqueKey(c)] {
			c.Name = strings.TrimPrefix(lib, "GO_")
			base := c.Name
			for n := 2; seen[uniqueKey(c)]; n++ {
				c.Name = fmt.Sprintf("%s_%d", base, n)
			}
		}
		seen[uniqueKey(c)] = true
		out = append(out, c)
	}
	for _, lib := range l.GO {
		add(domain.GroupGO, lib)
	}
	for _, lib := range l.Pathways {
		add(domain.GroupPathways, lib)
	}
	return out
}

// uniqueKey mirrors how categories are named in artifact keys and summary
// columns, where ontology categories carry a go_ prefix.
func uniqueKey(c domain.Category) string {
	if c.Group == domain.GroupGO {
		return "go_" + c.Key()
	}
	return c.Key()
}

// Catalog is read-only after construction.
type Catalog struct {
	entries map[string]Libraries
}

// Builtin returns the catalog shipped with the tool.
func Builtin() *Catalog {
	return New(map[string]Libraries{
		"human": {
			GO:       []string{"GO_Biological_Process_2021", "GO_Molecular_Function_2021", "GO_Cellular_Component_2021"},
			Pathways: []string{"WikiPathways_2019_Human", "KEGG_2021_Human"},
		},
		"zebrafish": {
			GO:       []string{"GO_Biological_Process_2018", "GO_Molecular_Function_2018", "GO_Cellular_Component_2018"},
			Pathways: []string{"WikiPathways_2018", "KEGG_2019"},
		},
		DefaultOrganism: {
			GO:       []string{"GO_Biological_Process_2018", "GO_Molecular_Function_2018", "GO_Cellular_Component_2018"},
			Pathways: []string{"WikiPathways_2018", "KEGG_2019"},
		},
	})
}

// New builds a catalog from explicit entries. Organism keys are case-insensitive.
func New(entries map[string]Libraries) *Catalog {
	c := &Catalog{entries: make(map[string]Libraries, len(entries))}
	for k, v := range entries {
		c.entries[strings.ToLower(strings.TrimSpace(k))] = copyLibraries(v)
	}
	return c
}

// With returns a new catalog where the given entries replace existing ones.
func (c *Catalog) With(overrides map[string]Libraries) *Catalog {
	merged := make(map[string]Libraries, len(c.entries)+len(overrides))
	for k, v := range c.entries {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return New(merged)
}

// Organisms lists the organisms with explicit entries, sorted.
func (c *Catalog) Organisms() []string {
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the libraries for organism, falling back to the default entry.
// It fails only when neither exists or the resolved entry has no libraries.
func (c *Catalog) Resolve(organism string) (Libraries, error) {
	key := strings.ToLower(strings.TrimSpace(organism))
	if libs, ok := c.entries[key]; ok && !libs.empty() {
		return copyLibraries(libs), nil
	}
	if libs, ok := c.entries[DefaultOrganism]; ok && !libs.empty() {
		return copyLibraries(libs), nil
	}
	return Libraries{}, apperrors.CatalogNotFound(organism)
}

// CategoryFor derives the category names from a library identifier.
// GO_Molecular_Function_2021 becomes Molecular_Function; pathway libraries are
// named after their first token, so KEGG_2021_Human becomes KEGG.
func CategoryFor(group domain.CategoryGroup, library string) domain.Category {
	name := library
	switch group {
	case domain.GroupGO:
		name = strings.TrimPrefix(name, "GO_")
		if i := strings.LastIndex(name, "_"); i > 0 && isDigits(name[i+1:]) {
			name = name[:i]
		}
	default:
		if i := strings.Index(name, "_"); i > 0 {
			name = name[:i]
		}
	}
	return domain.Category{Group: group, Library: library, Name: name}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func copyLibraries(l Libraries) Libraries {
	return Libraries{
		GO:       append([]string(nil), l.GO...),
		Pathways: append([]string(nil), l.Pathways...),
	}
}
