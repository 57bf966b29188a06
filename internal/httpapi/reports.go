// Package httpapi exposes the report controller over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dusk-indust/reportgen/internal/document"
	"github.com/dusk-indust/reportgen/internal/logger"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
)

// Reports is the part of the job controller the handlers call.
type Reports interface {
	Initiate(ctx context.Context, req orchestrator.InitiateRequest) (*orchestrator.InitiateResult, error)
	GetProgress(ctx context.Context, subjectID, variant string) (*orchestrator.Progress, error)
	RegenerateSection(ctx context.Context, subjectID, variant string, sectionID int) (*orchestrator.SectionResult, error)
	GetDocument(ctx context.Context, subjectID, variant string) (*document.Document, error)
	ListJobs(ctx context.Context) ([]orchestrator.JobListing, error)
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

// InitiateBody is the optional body of an initiate request.
type InitiateBody struct {
	Regenerate bool  `json:"regenerate"`
	Sections   []int `json:"sections"`
}

// ReportsHandler serves the /v1/reports and /v1/admin routes.
type ReportsHandler struct {
	reports Reports
	sweeper Sweeper
	log     *logger.Logger
}

// NewReportsHandler creates a handler. sweeper may be nil, in which case the
// sweep route answers 503.
func NewReportsHandler(reports Reports, sweeper Sweeper, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{
		reports: reports,
		sweeper: sweeper,
		log:     logger.OrNop(log).With("component", "httpapi"),
	}
}

// List handles GET /v1/reports.
func (h *ReportsHandler) List(c *gin.Context) {
	jobs, err := h.reports.ListJobs(c.Request.Context())
	if err != nil {
		h.logFailure(c, err)
		respondControllerError(c, err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

// Initiate handles POST /v1/reports/:subject/:variant.
func (h *ReportsHandler) Initiate(c *gin.Context) {
	var body InitiateBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		RespondError(c, http.StatusBadRequest, orchestrator.CodeInvalidRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	res, err := h.reports.Initiate(c.Request.Context(), orchestrator.InitiateRequest{
		SubjectID:  c.Param("subject"),
		Variant:    c.Param("variant"),
		Regenerate: body.Regenerate,
		Sections:   body.Sections,
	})
	if err != nil {
		h.logFailure(c, err)
		respondControllerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// Progress handles GET /v1/reports/:subject/:variant/progress.
func (h *ReportsHandler) Progress(c *gin.Context) {
	p, err := h.reports.GetProgress(c.Request.Context(), c.Param("subject"), c.Param("variant"))
	if err != nil {
		h.logFailure(c, err)
		respondControllerError(c, err)
		return
	}
	RespondOK(c, p)
}

// Regenerate handles POST /v1/reports/:subject/:variant/sections/:section/regenerate.
func (h *ReportsHandler) Regenerate(c *gin.Context) {
	sectionID, err := strconv.Atoi(c.Param("section"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, orchestrator.CodeInvalidRequest,
			fmt.Errorf("section id %q is not a number", c.Param("section")))
		return
	}
	res, err := h.reports.RegenerateSection(c.Request.Context(), c.Param("subject"), c.Param("variant"), sectionID)
	if err != nil {
		h.logFailure(c, err)
		respondControllerError(c, err)
		return
	}
	RespondOK(c, res)
}

// Document handles GET /v1/reports/:subject/:variant/document.
func (h *ReportsHandler) Document(c *gin.Context) {
	format, err := document.ParseFormat(c.Query("format"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, orchestrator.CodeInvalidRequest, err)
		return
	}
	doc, err := h.reports.GetDocument(c.Request.Context(), c.Param("subject"), c.Param("variant"))
	if err != nil {
		h.logFailure(c, err)
		respondControllerError(c, err)
		return
	}
	data, err := document.Render(doc, format)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, orchestrator.CodeInternal, err)
		return
	}
	c.Data(http.StatusOK, document.ContentType(format), data)
}

// Sweep handles POST /v1/admin/sweep.
func (h *ReportsHandler) Sweep(c *gin.Context) {
	if h.sweeper == nil {
		RespondError(c, http.StatusServiceUnavailable, orchestrator.CodeInternal, errors.New("sweep is not available on this server"))
		return
	}
	res, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.logFailure(c, err)
		respondControllerError(c, err)
		return
	}
	RespondOK(c, res)
}

// logFailure logs unexpected errors. Client errors are left to the request log.
func (h *ReportsHandler) logFailure(c *gin.Context, err error) {
	if orchestrator.ErrorCode(err) != orchestrator.CodeInternal {
		return
	}
	h.log.Error("request failed", "path", c.FullPath(), "subject", c.Param("subject"),
		"variant", c.Param("variant"), "error", err)
}
