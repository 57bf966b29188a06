package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dusk-indust/reportgen/internal/a2a"
	"github.com/dusk-indust/reportgen/internal/agent"
	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/config"
	"github.com/dusk-indust/reportgen/internal/document"
	"github.com/dusk-indust/reportgen/internal/generator"
	"github.com/dusk-indust/reportgen/internal/joblock"
	"github.com/dusk-indust/reportgen/internal/logger"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
	"github.com/dusk-indust/reportgen/internal/store"
	"github.com/dusk-indust/reportgen/internal/telemetry"
	"github.com/dusk-indust/reportgen/internal/upstream"
)

// app holds the wired components shared by the job subcommands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	catalog *catalog.Catalog
	store   *store.GormStore
	ctrl    *orchestrator.Controller
	reaper  *orchestrator.Reaper

	closers []func(context.Context) error
}

// newApp opens the store, builds the generator and lock, and wires the
// controller and reaper. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	shutdown, err := telemetry.Setup(ctx, log, cfg.Tracing, version)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	a.catalog, err = catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	a.store, err = store.Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })
	if err := a.store.Migrate(ctx); err != nil {
		return nil, err
	}

	locker, err := a.newLocker(ctx)
	if err != nil {
		return nil, err
	}

	var assembler document.Assembler = document.NopAssembler{}
	if cfg.OutputDir != "" {
		assembler = document.NewFileAssembler(cfg.OutputDir)
	}

	a.ctrl, err = orchestrator.NewController(cfg.OrchestratorConfig(), orchestrator.Deps{
		Catalog:   a.catalog,
		Store:     a.store,
		Generator: newGenerator(ctx, cfg, log),
		Source:    upstream.NewDirSource(cfg.DataDir),
		Assembler: assembler,
		Locker:    locker,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	// Runs settle before the store closes.
	a.closers = append(a.closers, a.ctrl.Close)

	a.reaper = orchestrator.NewReaper(cfg.OrchestratorConfig(), a.store, a.ctrl, log)
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (joblock.Locker, error) {
	if a.cfg.Redis.Addr == "" {
		return joblock.NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.log.Info("using redis job lock", "addr", a.cfg.Redis.Addr)
	return joblock.NewRedis(client, a.cfg.Redis.Prefix), nil
}

func newGenerator(ctx context.Context, cfg *config.Config, log *logger.Logger) generator.Generator {
	if cfg.Generator.Mode != config.GeneratorA2A {
		return generator.TemplateGenerator{}
	}
	opts := []a2a.ClientOption{a2a.WithTimeout(cfg.Generator.RPCTimeout.Std())}
	if cfg.Generator.Token != "" {
		opts = append(opts, a2a.WithBearerToken(cfg.Generator.Token))
	}
	client := a2a.NewHTTPClient(opts...)
	checkAgent(ctx, client, cfg.Generator.Endpoint, log)
	return generator.NewA2AGenerator(client, cfg.A2AConfig(), log)
}

// checkAgent reads the agent card at startup. Failures are logged only; the
// agent may come up after us and sections retry on their own.
func checkAgent(ctx context.Context, client a2a.Client, endpoint string, log *logger.Logger) *a2a.AgentCard {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	card, err := client.DiscoverAgent(ctx, endpoint)
	if err != nil {
		log.Warn("agent card unavailable", "endpoint", endpoint, "error", err)
		return nil
	}
	if !slices.ContainsFunc(card.Skills, func(s a2a.AgentSkill) bool { return s.ID == agent.SkillGenerateSection }) {
		log.Warn("agent does not advertise section generation", "endpoint", endpoint, "agent", card.Name)
		return card
	}
	log.Info("using generation agent", "endpoint", endpoint, "agent", card.Name, "version", card.Version)
	return card
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
