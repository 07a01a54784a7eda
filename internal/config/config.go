// Package config loads icad settings from a file, the environment and
// command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/icad/internal/archive"
	"github.com/fentz26/icad/internal/connectors/mes"
	"github.com/fentz26/icad/internal/eventbus"
	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/ledger"
	"github.com/fentz26/icad/internal/observability"
	"github.com/fentz26/icad/internal/scheduler"
	"github.com/fentz26/icad/internal/store"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ICAD_DATABASE_DSN.
const EnvPrefix = "ICAD"

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LedgerConfig configures the tid ledger. An empty Path keeps it in memory.
type LedgerConfig struct {
	Path string        `yaml:"path" mapstructure:"path"`
	TTL  time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Config is the full daemon configuration.
type Config struct {
	Database   DatabaseConfig       `yaml:"database" mapstructure:"database"`
	HTTP       HTTPConfig           `yaml:"http" mapstructure:"http"`
	Kafka      eventbus.Config      `yaml:"kafka" mapstructure:"kafka"`
	MES        mes.Config           `yaml:"mes" mapstructure:"mes"`
	Inspection inspection.Config    `yaml:"inspection" mapstructure:"inspection"`
	Routes     map[string]string    `yaml:"routes" mapstructure:"routes"`
	Ledger     LedgerConfig         `yaml:"ledger" mapstructure:"ledger"`
	Scheduler  scheduler.Config     `yaml:"scheduler" mapstructure:"scheduler"`
	OTel       observability.Config `yaml:"otel" mapstructure:"otel"`
	Archive    archive.Config       `yaml:"archive" mapstructure:"archive"`
}

// DefaultDBPath returns ~/.icad/icad.db.
func DefaultDBPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".icad", "icad.db")
}

// Default returns the built-in configuration.
func Default() *Config {
	routes := map[string]string{
		"ICA-01": "STK-01",
		"ICA-02": "STK-01",
	}
	return &Config{
		Database:   DatabaseConfig{Driver: store.DriverSQLite, DSN: DefaultDBPath()},
		HTTP:       HTTPConfig{Listen: "127.0.0.1:7466"},
		Kafka:      eventbus.DefaultConfig(),
		MES:        mes.Config{Timeout: 10 * time.Second},
		Inspection: inspection.DefaultConfig(),
		Routes:     routes,
		Ledger:     LedgerConfig{TTL: ledger.DefaultTTL},
		Scheduler:  *scheduler.DefaultConfig(),
		OTel:       observability.DefaultConfig(),
		Archive:    archive.DefaultConfig(),
	}
}

// New returns a viper instance with defaults and environment overrides
// registered. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("http.listen", d.HTTP.Listen)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.event_topic", d.Kafka.EventTopic)
	v.SetDefault("kafka.reply_topic", d.Kafka.ReplyTopic)
	v.SetDefault("kafka.move_topic", d.Kafka.MoveTopic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	v.SetDefault("kafka.batch_timeout", d.Kafka.BatchTimeout)

	v.SetDefault("mes.base_url", d.MES.BaseURL)
	v.SetDefault("mes.timeout", d.MES.Timeout)

	v.SetDefault("inspection.port_name", d.Inspection.PortName)
	v.SetDefault("inspection.mode_domain", d.Inspection.ModeDomain)
	v.SetDefault("inspection.quarantine_dest", d.Inspection.QuarantineDest)
	v.SetDefault("inspection.system_user", d.Inspection.SystemUser)
	v.SetDefault("inspection.default_user", d.Inspection.DefaultUser)

	v.SetDefault("routes", d.Routes)

	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("ledger.ttl", d.Ledger.TTL)

	v.SetDefault("scheduler.workers", d.Scheduler.Workers)
	v.SetDefault("scheduler.queue_size", d.Scheduler.QueueSize)

	v.SetDefault("otel.endpoint", d.OTel.Endpoint)
	v.SetDefault("otel.insecure", d.OTel.Insecure)
	v.SetDefault("otel.traces_path", d.OTel.TracesPath)
	v.SetDefault("otel.logs_path", d.OTel.LogsPath)
	v.SetDefault("otel.service_version", d.OTel.ServiceVersion)
	v.SetDefault("otel.log_level", d.OTel.LogLevel)

	v.SetDefault("archive.endpoint", d.Archive.Endpoint)
	v.SetDefault("archive.access_key", d.Archive.AccessKey)
	v.SetDefault("archive.secret_key", d.Archive.SecretKey)
	v.SetDefault("archive.bucket", d.Archive.Bucket)
	v.SetDefault("archive.region", d.Archive.Region)
	v.SetDefault("archive.use_ssl", d.Archive.UseSSL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if not empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("database.driver %q: want %s or %s", c.Database.Driver, store.DriverSQLite, store.DriverPostgres)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive, got %d", c.Scheduler.Workers)
	}
	if c.Kafka.Enabled() && c.Kafka.EventTopic == "" {
		return fmt.Errorf("kafka.event_topic is required when brokers are set")
	}
	return nil
}
