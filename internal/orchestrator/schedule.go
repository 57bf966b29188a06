package orchestrator

import (
	"sort"

	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/logger"
)

// Schedule orders the requested section ids so that every section follows
// its in-scope dependencies. Each pass appends, in ascending id order, every
// remaining section whose in-scope dependencies were placed by earlier
// passes. Dependencies outside the requested set are ignored.
//
// A pass that places nothing means the remaining sections form a cycle; the
// lowest remaining id is then placed anyway and a warning is logged, so the
// result always contains every requested id exactly once.
func Schedule(requested []int, cat *catalog.Catalog, log *logger.Logger) []int {
	remaining := uniqueSorted(requested)
	inScope := make(map[int]bool, len(remaining))
	for _, id := range remaining {
		inScope[id] = true
	}

	placed := make(map[int]bool, len(remaining))
	order := make([]int, 0, len(remaining))

	for len(remaining) > 0 {
		var ready, blocked []int
		for _, id := range remaining {
			if dependenciesPlaced(cat, id, inScope, placed) {
				ready = append(ready, id)
			} else {
				blocked = append(blocked, id)
			}
		}

		if len(ready) == 0 {
			logger.OrNop(log).Warn("dependency cycle among sections; forcing lowest id",
				"forced", blocked[0], "blocked", blocked)
			ready, blocked = blocked[:1], blocked[1:]
		}

		for _, id := range ready {
			placed[id] = true
			order = append(order, id)
		}
		remaining = blocked
	}
	return order
}

func dependenciesPlaced(cat *catalog.Catalog, id int, inScope, placed map[int]bool) bool {
	def, ok := cat.Section(id)
	if !ok {
		return true
	}
	for _, dep := range def.Dependencies {
		if inScope[dep] && !placed[dep] {
			return false
		}
	}
	return true
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
