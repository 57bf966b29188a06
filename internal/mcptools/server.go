package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewReportMCPServer creates an MCP server with the five report tools
// registered.
func NewReportMCPServer(svc *ReportService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "reportgen",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "initiate_generation",
		Description: "Start generating a report for a subject and variant. Returns at once with the job id and the section execution order; sections are generated in the background.",
	}, svc.InitiateGeneration)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_progress",
		Description: "Get the status of every section of a report job, the completion percentage and the overall status.",
	}, svc.GetProgress)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "regenerate_section",
		Description: "Regenerate one section of an existing report with current subject data. Other sections, including dependents, are left unchanged.",
	}, svc.RegenerateSection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Return a fully generated report as structured JSON, plain text or markdown. Fails with the completion percentage while sections are missing.",
	}, svc.GetDocument)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sweep_stalled",
		Description: "Fail sections that have been generating for longer than the stall threshold and settle the affected jobs.",
	}, svc.SweepStalled)

	return server
}

// Handler returns a streamable HTTP handler serving server.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}

// RunMCPServer serves the report tools over streamable HTTP until ctx is
// canceled.
func RunMCPServer(ctx context.Context, svc *ReportService, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           Handler(NewReportMCPServer(svc)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunMCPServerStdio runs the MCP server on stdio, blocking until stdin is
// closed or ctx is canceled.
func RunMCPServerStdio(ctx context.Context, svc *ReportService) error {
	return NewReportMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
