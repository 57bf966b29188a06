// Package config loads reportgen settings from reportgen.yml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/reportgen/internal/generator"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
	"github.com/dusk-indust/reportgen/internal/store"
	"github.com/dusk-indust/reportgen/internal/telemetry"
)

// FileNames are tried in order by Load.
var FileNames = []string{"reportgen.yml", "reportgen.yaml"}

// Generator modes.
const (
	GeneratorTemplate = "template"
	GeneratorA2A      = "a2a"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses "15m", "90s" and the like.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("config: line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every reportgen setting.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	HTTP         HTTPConfig         `yaml:"http"`
	MCP          MCPConfig          `yaml:"mcp"`
	Agent        AgentConfig        `yaml:"agent"`
	Tracing      telemetry.Config   `yaml:"tracing"`

	// CatalogPath points at a YAML section catalog. Empty uses the built-in one.
	CatalogPath string `yaml:"catalog"`

	// DataDir holds one <subject>.json or <subject>.yaml per subject.
	DataDir string `yaml:"dataDir"`

	// OutputDir receives assembled documents. Empty disables file output.
	OutputDir string `yaml:"outputDir"`
}

type LogConfig struct {
	// Mode is dev or prod.
	Mode string `yaml:"mode"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the distributed job lock when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type GeneratorConfig struct {
	Mode          string   `yaml:"mode"`
	Endpoint      string   `yaml:"endpoint"`
	Token         string   `yaml:"token"`
	PollInterval  Duration `yaml:"pollInterval"`
	MaxWait       Duration `yaml:"maxWait"`
	CancelTimeout Duration `yaml:"cancelTimeout"`
	RPCTimeout    Duration `yaml:"rpcTimeout"`
}

type OrchestratorConfig struct {
	SectionDelay   Duration `yaml:"sectionDelay"`
	StallThreshold Duration `yaml:"stallThreshold"`
	SweepInterval  Duration `yaml:"sweepInterval"`
	LockTTL        Duration `yaml:"lockTTL"`
	SettleTimeout  Duration `yaml:"settleTimeout"`
	SectionTimeout Duration `yaml:"sectionTimeout,omitempty"` // zero means stallThreshold
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"corsOrigins"`
	Heartbeat   Duration `yaml:"heartbeat"`
}

// MCPConfig serves MCP over streamable HTTP when Addr is set.
type MCPConfig struct {
	Addr string `yaml:"addr"`
}

// AgentConfig is used by the agent subcommand.
type AgentConfig struct {
	Addr string `yaml:"addr"`

	// URL is advertised in the agent card. Empty derives it from Addr.
	URL string `yaml:"url"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Config {
	orch := orchestrator.DefaultConfig()
	a2a := generator.DefaultA2AConfig("")
	return &Config{
		Log:      LogConfig{Mode: "dev"},
		Database: DatabaseConfig{Driver: store.DriverSQLite, DSN: "reportgen.db"},
		Redis:    RedisConfig{Prefix: "reportgen:lock:"},
		Generator: GeneratorConfig{
			Mode:          GeneratorTemplate,
			PollInterval:  Duration(a2a.PollInterval),
			MaxWait:       Duration(a2a.MaxWait),
			CancelTimeout: Duration(a2a.CancelTimeout),
			RPCTimeout:    Duration(30 * time.Second),
		},
		Orchestrator: OrchestratorConfig{
			SectionDelay:   Duration(orch.SectionDelay),
			StallThreshold: Duration(orch.StallThreshold),
			SweepInterval:  Duration(orch.SweepInterval),
			LockTTL:        Duration(orch.LockTTL),
			SettleTimeout:  Duration(orch.SettleTimeout),
		},
		HTTP:    HTTPConfig{Addr: ":8080", Heartbeat: Duration(25 * time.Second)},
		Agent:   AgentConfig{Addr: ":9100"},
		Tracing: telemetry.Config{Exporter: telemetry.ExporterNone, SampleRatio: 1},
		DataDir: "data",
	}
}

// Load reads reportgen.yml or reportgen.yaml from dir over Defaults and then
// applies REPORTGEN_* environment overrides. A missing file is not an error.
// Relative paths are resolved against dir.
func Load(dir string) (*Config, error) {
	return load(dir, os.LookupEnv)
}

func load(dir string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)
	return cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.CatalogPath = abs(c.CatalogPath)
	c.DataDir = abs(c.DataDir)
	c.OutputDir = abs(c.OutputDir)
	if c.Database.Driver == store.DriverSQLite && c.Database.DSN != ":memory:" &&
		!strings.HasPrefix(c.Database.DSN, "file:") {
		c.Database.DSN = abs(c.Database.DSN)
	}
}

// applyEnv overrides fields from REPORTGEN_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = Duration(d)
		return nil
	}

	str("REPORTGEN_LOG_MODE", &cfg.Log.Mode)
	str("REPORTGEN_DB_DRIVER", &cfg.Database.Driver)
	str("REPORTGEN_DB_DSN", &cfg.Database.DSN)
	str("REPORTGEN_REDIS_ADDR", &cfg.Redis.Addr)
	str("REPORTGEN_REDIS_PASSWORD", &cfg.Redis.Password)
	if v, ok := lookup("REPORTGEN_REDIS_DB"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: REPORTGEN_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	str("REPORTGEN_GENERATOR_MODE", &cfg.Generator.Mode)
	str("REPORTGEN_GENERATOR_ENDPOINT", &cfg.Generator.Endpoint)
	str("REPORTGEN_GENERATOR_TOKEN", &cfg.Generator.Token)
	str("REPORTGEN_HTTP_ADDR", &cfg.HTTP.Addr)
	str("REPORTGEN_MCP_ADDR", &cfg.MCP.Addr)
	str("REPORTGEN_AGENT_ADDR", &cfg.Agent.Addr)
	str("REPORTGEN_CATALOG", &cfg.CatalogPath)
	str("REPORTGEN_DATA_DIR", &cfg.DataDir)
	str("REPORTGEN_OUTPUT_DIR", &cfg.OutputDir)
	str("REPORTGEN_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	str("REPORTGEN_TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	if v, ok := lookup("REPORTGEN_CORS_ORIGINS"); ok {
		cfg.HTTP.CORSOrigins = splitList(v)
	}

	for key, dst := range map[string]*Duration{
		"REPORTGEN_GENERATOR_MAX_WAIT": &cfg.Generator.MaxWait,
		"REPORTGEN_SECTION_DELAY":      &cfg.Orchestrator.SectionDelay,
		"REPORTGEN_STALL_THRESHOLD":    &cfg.Orchestrator.StallThreshold,
		"REPORTGEN_SWEEP_INTERVAL":     &cfg.Orchestrator.SweepInterval,
		"REPORTGEN_LOCK_TTL":           &cfg.Orchestrator.LockTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database dsn is required")
	}

	switch c.Generator.Mode {
	case GeneratorTemplate:
	case GeneratorA2A:
		if c.Generator.Endpoint == "" {
			return errors.New("config: generator endpoint is required in a2a mode")
		}
	default:
		return fmt.Errorf("config: unknown generator mode %q", c.Generator.Mode)
	}

	maxWait := c.Generator.MaxWait.Std()
	if c.Orchestrator.StallThreshold.Std() <= maxWait {
		return fmt.Errorf("config: stallThreshold (%s) must exceed generator maxWait (%s)",
			c.Orchestrator.StallThreshold.Std(), maxWait)
	}
	if c.Orchestrator.LockTTL.Std() <= maxWait {
		return fmt.Errorf("config: lockTTL (%s) must exceed generator maxWait (%s)",
			c.Orchestrator.LockTTL.Std(), maxWait)
	}

	for _, origin := range c.HTTP.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("config: cors origin %q must start with http:// or https://", origin)
		}
	}

	if !telemetry.ValidExporter(c.Tracing.Exporter) {
		return fmt.Errorf("config: unknown tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// OrchestratorConfig converts the timing settings for the controller and reaper.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		SectionDelay:   c.Orchestrator.SectionDelay.Std(),
		StallThreshold: c.Orchestrator.StallThreshold.Std(),
		SweepInterval:  c.Orchestrator.SweepInterval.Std(),
		LockTTL:        c.Orchestrator.LockTTL.Std(),
		SettleTimeout:  c.Orchestrator.SettleTimeout.Std(),
		SectionTimeout: c.Orchestrator.SectionTimeout.Std(),
	}
}

// A2AConfig converts the generator settings for an A2AGenerator.
func (c *Config) A2AConfig() generator.A2AConfig {
	return generator.A2AConfig{
		Endpoint:      c.Generator.Endpoint,
		PollInterval:  c.Generator.PollInterval.Std(),
		MaxWait:       c.Generator.MaxWait.Std(),
		CancelTimeout: c.Generator.CancelTimeout.Std(),
	}
}
