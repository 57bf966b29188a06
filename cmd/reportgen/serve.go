package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/reportgen/internal/agent"
	"github.com/dusk-indust/reportgen/internal/generator"
	"github.com/dusk-indust/reportgen/internal/httpapi"
	"github.com/dusk-indust/reportgen/internal/logger"
	"github.com/dusk-indust/reportgen/internal/mcptools"
	"github.com/dusk-indust/reportgen/internal/telemetry"
)

// runServe runs the HTTP API, the MCP server and the reaper until ctx ends.
func (c *cli) runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(c.out)
	httpAddr := fs.String("http", "", "HTTP listen address (overrides http.addr)")
	mcpAddr := fs.String("mcp", "", "MCP streamable HTTP address (overrides mcp.addr)")
	mcpStdio := fs.Bool("mcp-stdio", false, "serve MCP on stdin/stdout instead of HTTP")
	if _, err := parseArgs(fs, args, 0, "no arguments"); err != nil {
		return err
	}

	a, closeApp, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()
	cfg := a.cfg
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *mcpAddr != "" {
		cfg.MCP.Addr = *mcpAddr
	}

	if strings.EqualFold(cfg.Log.Mode, "prod") || strings.EqualFold(cfg.Log.Mode, "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	serviceName := ""
	if exp := strings.ToLower(cfg.Tracing.Exporter); exp != "" && exp != telemetry.ExporterNone {
		serviceName = "reportgen"
	}
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Reports:     httpapi.NewReportsHandler(a.ctrl, a.reaper, a.log),
		Events:      httpapi.NewEventsHandler(a.ctrl.Events(), cfg.HTTP.Heartbeat.Std(), a.log),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		ServiceName: serviceName,
		Logger:      a.log,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams never end on their own.
	srv.RegisterOnShutdown(a.ctrl.Events().Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	svc := mcptools.NewReportService(a.ctrl, a.reaper)
	switch {
	case *mcpStdio:
		g.Go(func() error { return mcptools.RunMCPServerStdio(gctx, svc) })
	case cfg.MCP.Addr != "":
		g.Go(func() error {
			a.log.Info("mcp listening", "addr", cfg.MCP.Addr)
			return mcptools.RunMCPServer(gctx, svc, cfg.MCP.Addr)
		})
	}

	g.Go(func() error { return a.reaper.Run(gctx) })

	return g.Wait()
}

// runAgent serves the template generator as an A2A agent.
func (c *cli) runAgent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(c.out)
	addr := fs.String("addr", "", "listen address (overrides agent.addr)")
	url := fs.String("url", "", "URL advertised in the agent card (overrides agent.url)")
	if _, err := parseArgs(fs, args, 0, "no arguments"); err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Agent.Addr = *addr
	}
	if *url != "" {
		cfg.Agent.URL = *url
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	card := agent.SectionCard(version, agentURL(cfg.Agent.Addr, cfg.Agent.URL))
	return agent.NewSectionAgent(card, generator.TemplateGenerator{}, log).Serve(ctx, cfg.Agent.Addr)
}

// agentURL derives the advertised URL from a listen address.
func agentURL(addr, url string) string {
	if url != "" {
		return url
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
