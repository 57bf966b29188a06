package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/logger"
)

func TestSchedule_DefaultCatalog(t *testing.T) {
	cat := catalog.Default()

	tests := []struct {
		name      string
		requested []int
		want      []int
	}{
		{"full", []int{1, 2, 3, 4, 5, 6, 7}, []int{1, 2, 3, 4, 5, 6, 7}},
		{"full reversed with duplicates", []int{7, 6, 5, 5, 4, 3, 2, 1, 1}, []int{1, 2, 3, 4, 5, 6, 7}},
		{"brief", []int{1, 2, 3, 7}, []int{1, 2, 3, 7}},
		{"out of scope dependencies ignored", []int{7, 5}, []int{5, 7}},
		{"independent", []int{4, 2}, []int{2, 4}},
		{"empty", nil, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Schedule(tt.requested, cat, nil))
		})
	}
}

// Every subset of the default catalog: no section precedes an in-scope
// dependency and every id appears exactly once.
func TestSchedule_NeverPlacesSectionBeforeDependency(t *testing.T) {
	cat := catalog.Default()
	all := []int{1, 2, 3, 4, 5, 6, 7}

	for mask := 1; mask < 1<<len(all); mask++ {
		var subset []int
		for i, id := range all {
			if mask&(1<<i) != 0 {
				subset = append(subset, id)
			}
		}

		order := Schedule(subset, cat, nil)
		require.ElementsMatch(t, subset, order, "subset %v", subset)

		pos := make(map[int]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for _, id := range order {
			def, _ := cat.Section(id)
			for _, dep := range def.Dependencies {
				if depPos, inScope := pos[dep]; inScope {
					assert.Less(t, depPos, pos[id], "subset %v: %d placed before its dependency %d", subset, id, dep)
				}
			}
		}
	}
}

func TestSchedule_BreaksCycleDeterministically(t *testing.T) {
	cat, err := catalog.New([]catalog.SectionDefinition{
		{ID: 1, Name: "a", Dependencies: []int{2}},
		{ID: 2, Name: "b", Dependencies: []int{1}},
		{ID: 3, Name: "c", Dependencies: []int{1}},
	}, []catalog.Variant{{Name: "v"}})
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	order := Schedule([]int{3, 2, 1}, cat, log)
	assert.Equal(t, []int{1, 2, 3}, order)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Contains(t, entry.Message, "cycle")
	assert.EqualValues(t, 1, entry.ContextMap()["forced"])

	// Same input, same answer.
	assert.Equal(t, order, Schedule([]int{1, 2, 3}, cat, nil))
}
