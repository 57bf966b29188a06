package catalog

// Section ids of the built-in catalog.
const (
	SectionProfileOverview  = 1
	SectionStrengths        = 2
	SectionGrowthAreas      = 3
	SectionWorkStyle        = 4
	SectionCareerPaths      = 5
	SectionActionPlan       = 6
	SectionExecutiveSummary = 7
)

// Variant names of the built-in catalog.
const (
	VariantFull  = "full"
	VariantBrief = "brief"
)

var defaultSections = []SectionDefinition{
	{ID: SectionProfileOverview, Name: "profile-overview", Title: "Profile Overview"},
	{ID: SectionStrengths, Name: "strengths", Title: "Core Strengths", Dependencies: []int{SectionProfileOverview}},
	{ID: SectionGrowthAreas, Name: "growth-areas", Title: "Growth Areas", Dependencies: []int{SectionProfileOverview}},
	{ID: SectionWorkStyle, Name: "work-style", Title: "Work Style", Dependencies: []int{SectionProfileOverview}},
	{ID: SectionCareerPaths, Name: "career-paths", Title: "Career Paths", Dependencies: []int{SectionStrengths, SectionWorkStyle}},
	{ID: SectionActionPlan, Name: "action-plan", Title: "Action Plan", Dependencies: []int{SectionGrowthAreas, SectionCareerPaths}},
	{
		ID:           SectionExecutiveSummary,
		Name:         "executive-summary",
		Title:        "Executive Summary",
		Dependencies: []int{SectionStrengths, SectionGrowthAreas, SectionCareerPaths, SectionActionPlan},
	},
}

var defaultVariants = []Variant{
	{Name: VariantFull, Title: "Full Report"},
	{Name: VariantBrief, Title: "Brief Report", Sections: []int{
		SectionProfileOverview, SectionStrengths, SectionGrowthAreas, SectionExecutiveSummary,
	}},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultSections, defaultVariants)
	if err != nil {
		panic("catalog: invalid built-in catalog: " + err.Error())
	}
	return c
}
