package mcptools

// --- MCP Tool Input/Output Types ---
// The MCP Go SDK derives each tool's JSON schema from these structs. Outputs
// use plain strings for ids and timestamps so the derived schemas match the
// encoded values.

// InitiateGenerationInput is the input for the initiate_generation tool.
type InitiateGenerationInput struct {
	SubjectID  string `json:"subjectId" jsonschema:"the subject whose report is generated"`
	Variant    string `json:"variant" jsonschema:"report variant, e.g. full or brief"`
	Regenerate bool   `json:"regenerate,omitempty" jsonschema:"discard an existing completed job and start over"`
	Sections   []int  `json:"sections,omitempty" jsonschema:"section ids to generate (default: the variant's sections)"`
}

// InitiateGenerationOutput is the result of the initiate_generation tool.
type InitiateGenerationOutput struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Sections []int  `json:"sections"`
	Order    []int  `json:"order"`
}

// JobRef names a job by subject and variant.
type JobRef struct {
	SubjectID string `json:"subjectId" jsonschema:"the subject of the report"`
	Variant   string `json:"variant" jsonschema:"report variant"`
}

// GetProgressOutput is the result of the get_progress tool.
type GetProgressOutput struct {
	JobID       string           `json:"jobId"`
	JobStatus   string           `json:"jobStatus"`
	Status      string           `json:"status"`
	Running     bool             `json:"running"`
	Total       int              `json:"total"`
	Completed   int              `json:"completed"`
	Failed      int              `json:"failed"`
	Percentage  int              `json:"percentage"`
	Order       []int            `json:"order,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
	AssembledAt string           `json:"assembledAt,omitempty"`
	Sections    []SectionSummary `json:"sections"`
}

// SectionSummary is one section in GetProgressOutput.
type SectionSummary struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
	Attempts    int    `json:"attempts"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// RegenerateSectionInput is the input for the regenerate_section tool.
type RegenerateSectionInput struct {
	SubjectID string `json:"subjectId" jsonschema:"the subject of the report"`
	Variant   string `json:"variant" jsonschema:"report variant"`
	SectionID int    `json:"sectionId" jsonschema:"id of the section to regenerate"`
}

// RegenerateSectionOutput is the result of the regenerate_section tool.
type RegenerateSectionOutput struct {
	SectionID int    `json:"sectionId"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Attempts  int    `json:"attempts"`
	JobStatus string `json:"jobStatus"`
}

// GetDocumentInput is the input for the get_document tool.
type GetDocumentInput struct {
	SubjectID string `json:"subjectId" jsonschema:"the subject of the report"`
	Variant   string `json:"variant" jsonschema:"report variant"`
	Format    string `json:"format,omitempty" jsonschema:"structured (default), plain or markdown"`
}

// GetDocumentOutput is the result of the get_document tool.
type GetDocumentOutput struct {
	Title    string `json:"title"`
	Format   string `json:"format"`
	Sections int    `json:"sections"`
	Content  string `json:"content"`
}

// SweepStalledInput is the input for the sweep_stalled tool.
type SweepStalledInput struct{}

// SweepStalledOutput is the result of the sweep_stalled tool.
type SweepStalledOutput struct {
	Count    int               `json:"count"`
	Sections []StalledSummary  `json:"sections"`
	Jobs     map[string]string `json:"jobs,omitempty"`
}

// StalledSummary is one reaped section.
type StalledSummary struct {
	JobID       string `json:"jobId"`
	SubjectID   string `json:"subjectId"`
	Variant     string `json:"variant"`
	SectionID   int    `json:"sectionId"`
	LastUpdated string `json:"lastUpdated"`
}
