package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/reportgen/internal/config"
	"github.com/dusk-indust/reportgen/internal/logger"
)

// version is set at build time.
var version = "dev"

const usage = `usage: reportgen [-config-dir dir] <command> [flags] [args]

commands:
  serve                              run the HTTP API, MCP server and reaper
  generate [-follow] [-regenerate] [-sections 1,2] <subject> <variant>
  status [-json] [<subject> <variant>] one job, or every job
  regenerate <subject> <variant> <section-id>
  document [-format f] [-o file] <subject> <variant>
  sweep                              fail stalled sections once
  agent [-addr :9100] [-url u]       run the local template generation agent
  catalog [-variant v] [-mermaid]    print sections, variants and order
  version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the global flags into the subcommands.
type cli struct {
	out       io.Writer
	configDir string
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reportgen", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }
	configDir := fs.String("config-dir", ".", "directory holding reportgen.yml")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(out, version)
		return nil
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	c := &cli{out: out, configDir: *configDir}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		return c.runServe(ctx, rest)
	case "generate":
		return c.runGenerate(ctx, rest)
	case "status":
		return c.runStatus(ctx, rest)
	case "regenerate":
		return c.runRegenerate(ctx, rest)
	case "document":
		return c.runDocument(ctx, rest)
	case "sweep":
		return c.runSweep(ctx, rest)
	case "agent":
		return c.runAgent(ctx, rest)
	case "catalog":
		return c.runCatalog(rest)
	case "version":
		fmt.Fprintln(out, version)
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig reads and validates the configuration.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads config and wires every component. The returned func closes
// the app and flushes the logger.
func (c *cli) openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.OrchestratorConfig().SettleTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			log.Warn("shutdown", "error", err)
		}
		log.Sync()
	}, nil
}

// parseArgs parses flags and checks the positional argument count.
func parseArgs(fs *flag.FlagSet, args []string, want int, names string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != want {
		return nil, fmt.Errorf("%s: expected %s", fs.Name(), names)
	}
	return fs.Args(), nil
}
