// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Snapshot, Redis, Postgres, Kafka, Search, Filters, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest source kinds understood by SnapshotConfig.ManifestSource.
const (
	ManifestStatic   = "static"
	ManifestHTTP     = "http"
	ManifestRedis    = "redis"
	ManifestPostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Search   SearchConfig   `yaml:"search"`
	Filters  FiltersConfig  `yaml:"filters"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SnapshotConfig controls where the snapshot manifest is read from, how the
// snapshot file is downloaded and where the local cache lives.
type SnapshotConfig struct {
	DataDir         string        `yaml:"dataDir"`
	ManifestSource  string        `yaml:"manifestSource"`
	StaticURL       string        `yaml:"staticUrl"`
	StaticVersion   string        `yaml:"staticVersion"`
	ManifestURL     string        `yaml:"manifestUrl"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	MaxSnapshotSize int64         `yaml:"maxSnapshotSize"`
}

// RedisConfig holds Redis connection parameters and the keys holding the
// remotely configured snapshot URL and version.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"poolSize"`
	URLKey     string `yaml:"urlKey"`
	VersionKey string `yaml:"versionKey"`
}

// PostgresConfig holds PostgreSQL connection parameters for the remote_config
// manifest source.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	URLKey          string        `yaml:"urlKey"`
	VersionKey      string        `yaml:"versionKey"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables both the event producer and the config-change consumer.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SnapshotPublished string `yaml:"snapshotPublished"`
	ConfigChanged     string `yaml:"configChanged"`
	SearchEvents      string `yaml:"searchEvents"`
}

// SearchConfig bounds token fan-out and result sizes.
type SearchConfig struct {
	TokensPerEntry int `yaml:"tokensPerEntry"`
	TokensPerQuery int `yaml:"tokensPerQuery"`
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxResults     int `yaml:"maxResults"`
}

// FiltersConfig extends the built-in category and campus tables.
type FiltersConfig struct {
	CategoryGroups map[string][]string `yaml:"categoryGroups"`
	CampusAliases  map[string][]string `yaml:"campusAliases"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Snapshot.DataDir == "" {
		return fmt.Errorf("snapshot.dataDir must be set")
	}
	switch c.Snapshot.ManifestSource {
	case ManifestStatic, ManifestRedis, ManifestPostgres:
	case ManifestHTTP:
		if c.Snapshot.ManifestURL == "" {
			return fmt.Errorf("snapshot.manifestUrl is required for the http manifest source")
		}
	default:
		return fmt.Errorf("unknown snapshot.manifestSource %q", c.Snapshot.ManifestSource)
	}
	if c.Search.TokensPerEntry <= 0 || c.Search.TokensPerQuery <= 0 {
		return fmt.Errorf("search token limits must be positive")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Snapshot: SnapshotConfig{
			DataDir:         "data",
			ManifestSource:  ManifestStatic,
			FetchTimeout:    30 * time.Second,
			MaxAttempts:     3,
			RetryDelay:      500 * time.Millisecond,
			RefreshInterval: 6 * time.Hour,
			MaxSnapshotSize: 64 << 20,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   4,
			URLKey:     "syllabus:snapshot:url",
			VersionKey: "syllabus:snapshot:version",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "remoteconfig",
			User:            "remoteconfig",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
			URLKey:          "syllabus_snapshot_url",
			VersionKey:      "syllabus_snapshot_version",
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "syllabus-index",
			Topics: KafkaTopics{
				SnapshotPublished: "syllabus.snapshot-published",
				ConfigChanged:     "remote-config.changed",
				SearchEvents:      "syllabus.search-events",
			},
		},
		Search: SearchConfig{
			TokensPerEntry: 50,
			TokensPerQuery: 10,
			DefaultLimit:   20,
			MaxResults:     200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SI_SNAPSHOT_DATA_DIR"); v != "" {
		cfg.Snapshot.DataDir = v
	}
	if v := os.Getenv("SI_SNAPSHOT_MANIFEST_SOURCE"); v != "" {
		cfg.Snapshot.ManifestSource = v
	}
	if v := os.Getenv("SI_SNAPSHOT_URL"); v != "" {
		cfg.Snapshot.StaticURL = v
	}
	if v := os.Getenv("SI_SNAPSHOT_VERSION"); v != "" {
		cfg.Snapshot.StaticVersion = v
	}
	if v := os.Getenv("SI_SNAPSHOT_MANIFEST_URL"); v != "" {
		cfg.Snapshot.ManifestURL = v
	}
	if v := os.Getenv("SI_SNAPSHOT_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.RefreshInterval = d
		}
	}
	if v := os.Getenv("SI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
