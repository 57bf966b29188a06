package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/reportgen/internal/document"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
)

// Reports is the part of the job controller the tools call.
type Reports interface {
	Initiate(ctx context.Context, req orchestrator.InitiateRequest) (*orchestrator.InitiateResult, error)
	GetProgress(ctx context.Context, subjectID, variant string) (*orchestrator.Progress, error)
	RegenerateSection(ctx context.Context, subjectID, variant string, sectionID int) (*orchestrator.SectionResult, error)
	GetDocument(ctx context.Context, subjectID, variant string) (*document.Document, error)
}

// Sweeper runs one stalled-section pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*orchestrator.SweepResult, error)
}

// Compile-time checks.
var (
	_ Reports = (*orchestrator.Controller)(nil)
	_ Sweeper = (*orchestrator.Reaper)(nil)
)

// ReportService handles MCP tool calls by delegating to the controller and
// the reaper.
type ReportService struct {
	reports Reports
	sweeper Sweeper
}

// NewReportService creates a ReportService. sweeper may be nil, in which case
// sweep_stalled reports an error.
func NewReportService(reports Reports, sweeper Sweeper) *ReportService {
	return &ReportService{reports: reports, sweeper: sweeper}
}

// toolError prefixes err with its API code so MCP clients can branch on it.
func toolError(err error) error {
	return fmt.Errorf("%s: %w", orchestrator.ErrorCode(err), err)
}

// InitiateGeneration starts a background job and returns immediately.
func (s *ReportService) InitiateGeneration(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input InitiateGenerationInput,
) (*mcp.CallToolResult, InitiateGenerationOutput, error) {
	res, err := s.reports.Initiate(ctx, orchestrator.InitiateRequest{
		SubjectID:  input.SubjectID,
		Variant:    input.Variant,
		Regenerate: input.Regenerate,
		Sections:   input.Sections,
	})
	if err != nil {
		return nil, InitiateGenerationOutput{}, toolError(err)
	}
	return nil, InitiateGenerationOutput{
		JobID:    res.JobID.String(),
		Status:   res.Status,
		Sections: res.Sections,
		Order:    res.Order,
	}, nil
}

// GetProgress reports per-section status and the aggregate percentage.
func (s *ReportService) GetProgress(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobRef,
) (*mcp.CallToolResult, GetProgressOutput, error) {
	p, err := s.reports.GetProgress(ctx, input.SubjectID, input.Variant)
	if err != nil {
		return nil, GetProgressOutput{}, toolError(err)
	}

	out := GetProgressOutput{
		JobID:       p.JobID.String(),
		JobStatus:   string(p.JobStatus),
		Status:      string(p.Summary.Status),
		Running:     p.Running,
		Total:       p.Summary.Total,
		Completed:   p.Summary.Completed,
		Failed:      p.Summary.Failed,
		Percentage:  p.Summary.Percentage,
		Order:       p.Order,
		LastError:   p.LastError,
		AssembledAt: formatTime(p.AssembledAt),
		Sections:    make([]SectionSummary, 0, len(p.Sections)),
	}
	for _, sec := range p.Sections {
		out.Sections = append(out.Sections, SectionSummary{
			ID:          sec.ID,
			Name:        sec.Name,
			Title:       sec.Title,
			Status:      string(sec.Status),
			Error:       sec.Error,
			ErrorKind:   sec.ErrorKind,
			Attempts:    sec.Attempts,
			CompletedAt: formatTime(sec.CompletedAt),
		})
	}
	return nil, out, nil
}

// RegenerateSection regenerates one section synchronously.
func (s *ReportService) RegenerateSection(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RegenerateSectionInput,
) (*mcp.CallToolResult, RegenerateSectionOutput, error) {
	res, err := s.reports.RegenerateSection(ctx, input.SubjectID, input.Variant, input.SectionID)
	if err != nil {
		return nil, RegenerateSectionOutput{}, toolError(err)
	}
	return nil, RegenerateSectionOutput{
		SectionID: res.SectionID,
		Name:      res.Name,
		Status:    string(res.Status),
		Error:     res.Error,
		ErrorKind: res.ErrorKind,
		Attempts:  res.Attempts,
		JobStatus: string(res.JobStatus),
	}, nil
}

// GetDocument renders a fully completed report.
func (s *ReportService) GetDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	format, err := document.ParseFormat(input.Format)
	if err != nil {
		return nil, GetDocumentOutput{}, toolError(fmt.Errorf("%w: %v", orchestrator.ErrInvalidRequest, err))
	}
	doc, err := s.reports.GetDocument(ctx, input.SubjectID, input.Variant)
	if err != nil {
		return nil, GetDocumentOutput{}, toolError(err)
	}
	data, err := document.Render(doc, format)
	if err != nil {
		return nil, GetDocumentOutput{}, toolError(err)
	}
	return nil, GetDocumentOutput{
		Title:    doc.Title,
		Format:   string(format),
		Sections: len(doc.Sections),
		Content:  string(data),
	}, nil
}

// SweepStalled fails sections stuck in generating and reconciles their jobs.
func (s *ReportService) SweepStalled(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ SweepStalledInput,
) (*mcp.CallToolResult, SweepStalledOutput, error) {
	if s.sweeper == nil {
		return nil, SweepStalledOutput{}, fmt.Errorf("sweep is not available on this server")
	}
	res, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return nil, SweepStalledOutput{}, toolError(err)
	}

	out := SweepStalledOutput{Count: res.Count, Sections: make([]StalledSummary, 0, len(res.Sections))}
	for _, st := range res.Sections {
		out.Sections = append(out.Sections, StalledSummary{
			JobID:       st.JobID.String(),
			SubjectID:   st.SubjectID,
			Variant:     st.Variant,
			SectionID:   st.SectionID,
			LastUpdated: st.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	if len(res.Jobs) > 0 {
		out.Jobs = make(map[string]string, len(res.Jobs))
		for id, status := range res.Jobs {
			out.Jobs[id] = string(status)
		}
	}
	return nil, out, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
