// Package config loads and validates rescue-radar configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/rescue-radar/internal/dedup"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/ingest"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/rescue-radar/internal/provider/petfinder"
	"github.com/JakeFAU/rescue-radar/internal/provider/rescuegroups"
	"github.com/JakeFAU/rescue-radar/internal/resolver"
	"github.com/JakeFAU/rescue-radar/internal/scoring"
)

// EnvPrefix prefixes every environment override, e.g. RADAR_SERVER_PORT.
const EnvPrefix = "RADAR"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Resolver  resolver.Config `mapstructure:"resolver"`
	Ingest    ingest.Config   `mapstructure:"ingest"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scoring   scoring.Weights `mapstructure:"scoring"`
	Dedup     dedup.Config    `mapstructure:"dedup"`
	// SourcePriorities overrides the dedup precedence per source kind; lower wins.
	SourcePriorities map[string]int `mapstructure:"source_priorities"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects the persisted animal store.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Badger   BadgerConfig   `mapstructure:"badger"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// Migrate applies the schema at startup.
	Migrate bool `mapstructure:"migrate"`
}

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// Archive backends.
const (
	ArchiveGCS   = "gcs"
	ArchiveLocal = "local"
)

// ArchiveConfig sets where raw provider pages are archived during syncs.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for sync-completed notifications. The topic
// name lives in ingest.topic.
type PubSubConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProjectID   string `mapstructure:"project_id"`
	CreateTopic bool   `mapstructure:"create_topic"`
}

// ProvidersConfig configures the external listing providers.
type ProvidersConfig struct {
	HTTPTimeout  time.Duration      `mapstructure:"http_timeout"`
	Petfinder    PetfinderConfig    `mapstructure:"petfinder"`
	RescueGroups RescueGroupsConfig `mapstructure:"rescuegroups"`
}

// PetfinderConfig holds Petfinder credentials and limits.
type PetfinderConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	BaseURL       string           `mapstructure:"base_url"`
	ClientID      string           `mapstructure:"client_id"`
	ClientSecret  string           `mapstructure:"client_secret"`
	PageSize      int              `mapstructure:"page_size"`
	RefreshMargin time.Duration    `mapstructure:"refresh_margin"`
	RateLimit     ratelimit.Config `mapstructure:"rate_limit"`
}

// Client converts the section to the client config.
func (c PetfinderConfig) Client() petfinder.Config {
	return petfinder.Config{
		BaseURL:       c.BaseURL,
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		PageSize:      c.PageSize,
		RefreshMargin: c.RefreshMargin,
	}
}

// RescueGroupsConfig holds RescueGroups credentials and limits.
type RescueGroupsConfig struct {
	Enabled     bool             `mapstructure:"enabled"`
	BaseURL     string           `mapstructure:"base_url"`
	APIKey      string           `mapstructure:"api_key"`
	PageSize    int              `mapstructure:"page_size"`
	RadiusMiles int              `mapstructure:"radius_miles"`
	RateLimit   ratelimit.Config `mapstructure:"rate_limit"`
}

// Client converts the section to the client config.
func (c RescueGroupsConfig) Client() rescuegroups.Config {
	return rescuegroups.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		PageSize:    c.PageSize,
		RadiusMiles: c.RadiusMiles,
	}
}

// SyncConfig schedules background syncs.
type SyncConfig struct {
	// Interval between scheduled syncs. Zero disables the schedule.
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) error {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 0)
	v.SetDefault("store.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("store.postgres.migrate", true)
	v.SetDefault("store.badger.path", "data/badger")
	v.SetDefault("store.badger.in_memory", false)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", ArchiveGCS)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.dir", "data/archive")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.create_topic", false)

	v.SetDefault("providers.http_timeout", 15*time.Second)
	v.SetDefault("providers.petfinder.enabled", false)
	v.SetDefault("providers.petfinder.base_url", petfinder.DefaultBaseURL)
	v.SetDefault("providers.petfinder.client_id", "")
	v.SetDefault("providers.petfinder.client_secret", "")
	v.SetDefault("providers.petfinder.page_size", petfinder.MaxPageSize)
	v.SetDefault("providers.petfinder.refresh_margin", time.Minute)
	v.SetDefault("providers.petfinder.rate_limit.max_requests", 1000)
	v.SetDefault("providers.petfinder.rate_limit.window", 24*time.Hour)
	v.SetDefault("providers.petfinder.rate_limit.min_spacing", time.Second)
	v.SetDefault("providers.petfinder.rate_limit.max_wait", 0)
	v.SetDefault("providers.rescuegroups.enabled", false)
	v.SetDefault("providers.rescuegroups.base_url", rescuegroups.DefaultBaseURL)
	v.SetDefault("providers.rescuegroups.api_key", "")
	v.SetDefault("providers.rescuegroups.page_size", 100)
	v.SetDefault("providers.rescuegroups.radius_miles", rescuegroups.DefaultRadiusMiles)
	v.SetDefault("providers.rescuegroups.rate_limit.max_requests", 0)
	v.SetDefault("providers.rescuegroups.rate_limit.window", time.Duration(0))
	v.SetDefault("providers.rescuegroups.rate_limit.min_spacing", 500*time.Millisecond)
	v.SetDefault("providers.rescuegroups.rate_limit.max_wait", 0)

	v.SetDefault("sync.interval", 24*time.Hour)
	v.SetDefault("sync.run_on_start", false)
	for key, prio := range formatter.DefaultPriorities() {
		v.SetDefault("source_priorities."+string(key), prio)
	}

	sections := map[string]any{
		"resolver": resolver.DefaultConfig(),
		"ingest":   ingest.DefaultConfig(),
		"scoring":  scoring.DefaultWeights(),
		"dedup":    dedup.DefaultConfig(),
	}
	for prefix, section := range sections {
		if err := setSectionDefaults(v, prefix, section); err != nil {
			return err
		}
	}
	return nil
}

// setSectionDefaults registers every field of a flat section struct so the
// environment can override it.
func setSectionDefaults(v *viper.Viper, prefix string, section any) error {
	values := map[string]any{}
	if err := mapstructure.Decode(section, &values); err != nil {
		return fmt.Errorf("default %s config: %w", prefix, err)
	}
	for key, value := range values {
		v.SetDefault(prefix+"."+key, value)
	}
	return nil
}

// Validate enforces required values and reasonable limits.
//
//nolint:gocyclo // flat list of independent checks
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must be >= 0")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); c.Logging.Level != "" && err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when store.backend is postgres")
		}
	case BackendBadger:
		if !c.Store.Badger.InMemory && c.Store.Badger.Path == "" {
			return fmt.Errorf("store.badger.path must be set unless store.badger.in_memory is true")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, postgres, badger; got %q", c.Store.Backend)
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case ArchiveGCS:
			if c.Archive.Bucket == "" {
				return fmt.Errorf("archive.bucket must be set for the gcs archive")
			}
		case ArchiveLocal:
			if c.Archive.Dir == "" {
				return fmt.Errorf("archive.dir must be set for the local archive")
			}
		default:
			return fmt.Errorf("archive.backend must be gcs or local; got %q", c.Archive.Backend)
		}
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
		}
		if c.Ingest.Topic == "" {
			return fmt.Errorf("ingest.topic must be set when pubsub is enabled")
		}
	}
	if c.Providers.Petfinder.Enabled && (c.Providers.Petfinder.ClientID == "" || c.Providers.Petfinder.ClientSecret == "") {
		return fmt.Errorf("providers.petfinder.client_id and client_secret must be set when petfinder is enabled")
	}
	if c.Providers.RescueGroups.Enabled && c.Providers.RescueGroups.APIKey == "" {
		return fmt.Errorf("providers.rescuegroups.api_key must be set when rescuegroups is enabled")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must be >= 0")
	}
	if c.Resolver.MinStoreResults < 0 {
		return fmt.Errorf("resolver.min_store_results must be >= 0")
	}
	if c.Ingest.StaleAfter < 0 {
		return fmt.Errorf("ingest.stale_after must be >= 0")
	}
	for kind := range c.SourcePriorities {
		switch formatter.SourceKind(kind) {
		case formatter.SourceStore, formatter.SourcePetfinder, formatter.SourceRescueGroups:
		default:
			return fmt.Errorf("source_priorities: unknown source %q", kind)
		}
	}
	return nil
}

// Priorities returns the formatter precedence table with overrides applied.
func (c Config) Priorities() map[formatter.SourceKind]int {
	out := formatter.DefaultPriorities()
	for kind, prio := range c.SourcePriorities {
		out[formatter.SourceKind(kind)] = prio
	}
	return out
}
