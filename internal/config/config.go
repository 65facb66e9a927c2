// Package config loads the clan bank configuration from a YAML file,
// CLANBANK_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/policy"
)

// EnvPrefix prefixes every environment override, e.g. CLANBANK_DATABASE_PATH.
const EnvPrefix = "CLANBANK"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the typed application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Policy   policy.Config  `mapstructure:"-"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	// Members maps user IDs to display names for reports.
	Members map[string]string `mapstructure:"members"`
}

// DatabaseConfig selects the ledger store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path   string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

// CatalogConfig points at the item catalog file.
type CatalogConfig struct {
	Path      string   `mapstructure:"path"`
	Blocklist []string `mapstructure:"blocklist"`
}

// LedgerConfig tunes the ledger engine.
type LedgerConfig struct {
	StoreTimeout    time.Duration `mapstructure:"store_timeout" validate:"gte=0"`
	SelectionTTL    time.Duration `mapstructure:"selection_ttl" validate:"gte=0"`
	RetryAttempts   int           `mapstructure:"retry_attempts" validate:"gte=0"`
	SearchLimit     int           `mapstructure:"search_limit" validate:"gte=0,lte=100"`
	LeaderboardSize int           `mapstructure:"leaderboard_size" validate:"gte=0"`
}

// APIConfig configures the HTTP server started by `serve`.
type APIConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	JWTIssuer       string        `mapstructure:"jwt_issuer"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	TLS             APITLSConfig  `mapstructure:"tls"`
}

// APITLSConfig serves the API over HTTPS with a self-signed certificate.
type APITLSConfig struct {
	Dir     string   `mapstructure:"dir" validate:"required_if=Enabled true"`
	Hosts   []string `mapstructure:"hosts"`
	Enabled bool     `mapstructure:"enabled"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// BackupConfig controls automatic SQLite snapshots.
type BackupConfig struct {
	OnStartup bool `mapstructure:"on_startup"`
}

// SetDefaults registers every default on v. Registering keys also lets
// AutomaticEnv find them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "$HOME/.local/share/clanbank/clanbank.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("catalog.path", "items_catalog.json")
	v.SetDefault("catalog.blocklist", []string{})

	v.SetDefault("ledger.store_timeout", 5*time.Second)
	v.SetDefault("ledger.selection_ttl", 10*time.Minute)
	v.SetDefault("ledger.retry_attempts", 3)
	v.SetDefault("ledger.search_limit", 25)
	v.SetDefault("ledger.leaderboard_size", 10)

	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.jwt_issuer", "clanbank")
	v.SetDefault("api.request_timeout", 30*time.Second)
	v.SetDefault("api.shutdown_timeout", 10*time.Second)
	v.SetDefault("api.tls.enabled", false)
	v.SetDefault("api.tls.dir", "$HOME/.local/share/clanbank/certs")
	v.SetDefault("api.tls.hosts", []string{"localhost"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("backup.on_startup", true)
}

// MemberName returns the configured display name for userID, or "".
func (c *Config) MemberName(userID string) string {
	return c.Members[userID]
}

// New returns a viper instance wired for CLANBANK_* environment overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(ExpandPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ReadFile reads the config file at path, or searches the standard
// locations when path is empty. A missing file in the standard locations is
// not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.AddConfigPath(ExpandPath("$HOME/.config/clanbank"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load builds and validates a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	pol, err := loadPolicy(v)
	if err != nil {
		return nil, err
	}
	cfg.Policy = pol

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Catalog.Path = ExpandPath(cfg.Catalog.Path)
	cfg.API.TLS.Dir = ExpandPath(cfg.API.TLS.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadPolicy starts from the built-in tables and replaces each one the
// config file sets.
func loadPolicy(v *viper.Viper) (policy.Config, error) {
	pol := policy.DefaultConfig()

	if v.IsSet("policy.default_limit") {
		pol.DefaultLimit = v.GetInt("policy.default_limit")
	}
	if v.IsSet("policy.fallback_rate") {
		pol.FallbackRate = v.GetFloat64("policy.fallback_rate")
	}

	// Tables replace rather than merge so a file can drop a default entry.
	tables := []struct {
		dest  any
		reset func()
		key   string
	}{
		{key: "policy.limits", dest: &pol.Limits, reset: func() { pol.Limits = nil }},
		{key: "policy.rewards", dest: &pol.Rewards, reset: func() { pol.Rewards = nil }},
		{key: "policy.category_mapping", dest: &pol.CategoryMapping, reset: func() { pol.CategoryMapping = nil }},
		{key: "policy.static_categories", dest: &pol.StaticCategories, reset: func() { pol.StaticCategories = nil }},
	}
	for _, table := range tables {
		if !v.IsSet(table.key) {
			continue
		}
		table.reset()
		if err := v.UnmarshalKey(table.key, table.dest); err != nil {
			return policy.Config{}, fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, table.key, err)
		}
	}

	return pol, nil
}

var validate = validator.New()

// Validate checks field constraints and that the policy tables are usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	if _, err := policy.New(c.Policy, nil); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	return nil
}
