// Package config provides Viper-based configuration loading for duelsim.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

// PolicyLua selects a Lua-scripted attack policy.
const PolicyLua = "lua"

// Report store kinds.
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// SimulationConfig holds the Monte Carlo batch settings.
type SimulationConfig struct {
	// Runs is the number of independent fights per batch.
	Runs int `mapstructure:"runs"`
	// Seed fixes the random stream; 0 picks a fresh seed per batch.
	Seed int64 `mapstructure:"seed"`
	// RoundCap ends a fight as a draw after this many rounds.
	RoundCap int `mapstructure:"round_cap"`
	// Workers bounds the number of fights resolved concurrently.
	Workers int `mapstructure:"workers"`
	// InitiativeTie is "pc", "monster", or "modifier".
	InitiativeTie       string `mapstructure:"initiative_tie"`
	PCPolicy            string `mapstructure:"pc_policy"`
	MonsterPolicy       string `mapstructure:"monster_policy"`
	PCPolicyScript      string `mapstructure:"pc_policy_script"`
	MonsterPolicyScript string `mapstructure:"monster_policy_script"`
	// InstructionLimit caps Lua opcodes per policy call; 0 uses the
	// scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
	// DivergenceWarnRate is the fraction of capped fights above which the
	// CLI warns that the cap is distorting results.
	DivergenceWarnRate float64 `mapstructure:"divergence_warn_rate"`
}

// ContentConfig locates combatant templates.
type ContentConfig struct {
	Dir string `mapstructure:"dir"`
}

// ReportConfig controls where finished batches go.
type ReportConfig struct {
	// Store is "none", "postgres", or "sqlite".
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// Replays is the number of fights narrated round by round after the
	// summary.
	Replays int `mapstructure:"replays"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Output is "stderr", "stdout", or a file path.
	Output string `mapstructure:"output"`
}

// Config is the top-level application configuration.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Content    ContentConfig    `mapstructure:"content"`
	Report     ReportConfig     `mapstructure:"report"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants. Database settings are only
// checked when the report store is postgres.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Content.Dir == "" {
		errs = append(errs, "content.dir must not be empty")
	}
	if err := validateReport(c.Report); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Report.Store == StorePostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.Runs < 1 {
		errs = append(errs, fmt.Sprintf("simulation.runs must be >= 1, got %d", s.Runs))
	}
	if s.RoundCap < 1 {
		errs = append(errs, fmt.Sprintf("simulation.round_cap must be >= 1, got %d", s.RoundCap))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Sprintf("simulation.workers must be >= 1, got %d", s.Workers))
	}
	if _, err := combat.ParseTiePolicy(s.InitiativeTie); err != nil {
		errs = append(errs, "simulation.initiative_tie: "+err.Error())
	}
	if err := validatePolicy("simulation.pc_policy", s.PCPolicy, s.PCPolicyScript); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePolicy("simulation.monster_policy", s.MonsterPolicy, s.MonsterPolicyScript); err != nil {
		errs = append(errs, err.Error())
	}
	if s.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("simulation.instruction_limit must be >= 0, got %d", s.InstructionLimit))
	}
	if s.DivergenceWarnRate < 0 || s.DivergenceWarnRate > 1 {
		errs = append(errs, fmt.Sprintf("simulation.divergence_warn_rate must be in [0, 1], got %v", s.DivergenceWarnRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePolicy(key, policy, script string) error {
	if policy == PolicyLua {
		if script == "" {
			return fmt.Errorf("%s_script is required when %s is %q", key, key, PolicyLua)
		}
		return nil
	}
	valid := append(combat.PolicyNames(), PolicyLua)
	if !slices.Contains(valid, policy) {
		return fmt.Errorf("%s must be one of %v, got %q", key, valid, policy)
	}
	return nil
}

func validateReport(r ReportConfig) error {
	var errs []string
	switch r.Store {
	case StoreNone, StorePostgres:
	case StoreSQLite:
		if r.SQLitePath == "" {
			errs = append(errs, "report.sqlite_path must not be empty when report.store is sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("report.store must be one of [none, postgres, sqlite], got %q", r.Store))
	}
	if r.Replays < 0 {
		errs = append(errs, fmt.Sprintf("report.replays must be >= 0, got %d", r.Replays))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.Output == "" {
		return errors.New("logging.output must not be empty")
	}
	return nil
}

// New returns a Viper instance with defaults and DUELSIM_ environment
// overrides applied. When path is non-empty the file is read as well.
//
// Postcondition: Returns a configured Viper or an error reading path.
func New(path string) (*viper.Viper, error) {
	v := viper.New()

	// Environment variable overrides with DUELSIM_ prefix
	v.SetEnvPrefix("DUELSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, err
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.runs", 1000)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.round_cap", 100)
	v.SetDefault("simulation.workers", 1)
	v.SetDefault("simulation.initiative_tie", "pc")
	v.SetDefault("simulation.pc_policy", "prefer_recharge")
	v.SetDefault("simulation.monster_policy", "prefer_recharge")
	v.SetDefault("simulation.pc_policy_script", "")
	v.SetDefault("simulation.monster_policy_script", "")
	v.SetDefault("simulation.instruction_limit", 0)
	v.SetDefault("simulation.divergence_warn_rate", 0.01)

	v.SetDefault("content.dir", "content/combatants")

	v.SetDefault("report.store", StoreNone)
	v.SetDefault("report.sqlite_path", "duelsim.db")
	v.SetDefault("report.replays", 0)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "duelsim")
	v.SetDefault("database.password", "duelsim")
	v.SetDefault("database.name", "duelsim")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
}
