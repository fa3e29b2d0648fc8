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

	"github.com/eduardojeem/repairboard/internal/board"
	"github.com/eduardojeem/repairboard/internal/feed"
	"github.com/eduardojeem/repairboard/internal/priority"
)

// FileName is the config file inside the home directory.
const FileName = "config.yaml"

// Default listen addresses and client URL.
const (
	DefaultAddr      = "127.0.0.1:8765"
	DefaultClientURL = "http://127.0.0.1:8765"
)

// Config is the contents of home/config.yaml. Zero sections take their defaults.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Client   ClientConfig   `yaml:"client"`
	Priority PriorityConfig `yaml:"priority"`
	Board    BoardConfig    `yaml:"board"`
	Feed     FeedConfig     `yaml:"feed"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	GRPCAddr string `yaml:"grpc_addr"` // empty disables the gRPC change feed
	APIKey   string `yaml:"api_key"`
	Dev      bool   `yaml:"dev"`
	Seed     bool   `yaml:"seed"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "postgres"
	DSN    string `yaml:"dsn"`
}

// ClientConfig is used by CLI commands that talk to a running server.
type ClientConfig struct {
	URL      string `yaml:"url"`
	GRPCAddr string `yaml:"grpc_addr"`
}

type PriorityConfig struct {
	Weights *priority.Weights     `yaml:"weights"`
	Rules   []priority.RuleConfig `yaml:"rules"`
	Levels  *priority.Levels      `yaml:"levels"`
}

type BoardConfig struct {
	OverdueAfter               *Duration `yaml:"overdue_after"`
	UrgentMinUrgency           *int      `yaml:"urgent_min_urgency"`
	DefaultTechnicalComplexity int       `yaml:"default_technical_complexity"`
}

type FeedConfig struct {
	Backoff *feed.Backoff `yaml:"backoff"`
}

// Duration is a time.Duration written as "36h" or "7d" in YAML.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	s := strings.TrimSpace(n.Value)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		v, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = Duration(time.Duration(v * float64(24*time.Hour)))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: DefaultAddr},
		Database: DatabaseConfig{Driver: "sqlite"},
		Client:   ClientConfig{URL: DefaultClientURL},
	}
}

// Path returns home/config.yaml.
func Path(home string) string { return filepath.Join(home, FileName) }

// Load reads home/config.yaml, applies defaults and environment overrides, and validates.
// A missing file is not an error.
func Load(home string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(Path(home))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", Path(home), err)
		}
	}
	cfg.applyDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Client.URL == "" {
		c.Client.URL = DefaultClientURL
	}
}

// ApplyEnv overrides file values with REPAIRBOARD_API_KEY, DATABASE_URL and REPAIRBOARD_URL.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("REPAIRBOARD_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
		if c.Database.Driver == "sqlite" {
			c.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("REPAIRBOARD_URL"); v != "" {
		c.Client.URL = v
	}
}

// Validate checks that the driver is known, priority settings compile and board thresholds are in range.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if _, err := c.Scorer(); err != nil {
		return err
	}
	if d := c.Board.OverdueAfter; d != nil && *d < 0 {
		return fmt.Errorf("board.overdue_after: %s must not be negative", d.Duration())
	}
	if n := c.Board.UrgentMinUrgency; n != nil && (*n < 0 || *n > 5) {
		return fmt.Errorf("board.urgent_min_urgency: %d out of range 0..5", *n)
	}
	if n := c.Board.DefaultTechnicalComplexity; n < 0 || n > 5 {
		return fmt.Errorf("board.default_technical_complexity: %d out of range 1..5", n)
	}
	return nil
}

// Scorer builds the priority scorer from the priority section.
func (c Config) Scorer() (priority.Scorer, error) {
	s := priority.Scorer{Weights: priority.DefaultWeights(), Levels: priority.DefaultLevels()}
	if c.Priority.Weights != nil {
		if err := c.Priority.Weights.Validate(); err != nil {
			return priority.Scorer{}, fmt.Errorf("priority.weights: %w", err)
		}
		s.Weights = *c.Priority.Weights
	}
	if c.Priority.Levels != nil {
		if err := c.Priority.Levels.Validate(); err != nil {
			return priority.Scorer{}, fmt.Errorf("priority.levels: %w", err)
		}
		s.Levels = *c.Priority.Levels
	}
	rules, err := priority.Compile(c.Priority.Rules)
	if err != nil {
		return priority.Scorer{}, fmt.Errorf("priority.rules: %w", err)
	}
	s.Rules = rules
	return s, nil
}

// Definitions returns the overdue/urgent definitions from the board section.
func (c Config) Definitions() board.Definitions {
	d := board.DefaultDefinitions()
	if c.Board.OverdueAfter != nil {
		d.OverdueAfter = c.Board.OverdueAfter.Duration()
	}
	if c.Board.UrgentMinUrgency != nil {
		d.UrgentMinUrgency = *c.Board.UrgentMinUrgency
	}
	return d
}

// Backoff returns the realtime resubscribe policy.
func (c Config) Backoff() feed.Backoff {
	if c.Feed.Backoff == nil {
		return feed.DefaultBackoff()
	}
	return *c.Feed.Backoff
}

// Save writes cfg to home/config.yaml.
func Save(home string, cfg Config) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := Path(home) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, Path(home))
}
