// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Driver names accepted by the storage, archive, and publisher sections.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
	DriverGCS      = "gcs"
	DriverPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Pull      PullConfig      `mapstructure:"pull"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// HTTPConfig controls the HTTP server.
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	APIKey            string        `mapstructure:"api_key"`
}

// ChatConfig points the client at the remote chat platform.
type ChatConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PullConfig bounds submitted pull jobs and paces their retries.
type PullConfig struct {
	DefaultBatchSize  int           `mapstructure:"default_batch_size"`
	MaxBatchSize      int           `mapstructure:"max_batch_size"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	DefaultDelay      time.Duration `mapstructure:"default_delay"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	EstimatedMessages int           `mapstructure:"estimated_messages"`
	PerMessageCost    time.Duration `mapstructure:"per_message_cost"`
}

// RegistryConfig bounds the in-process job index and its sweep.
type RegistryConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Retention     time.Duration `mapstructure:"retention"`
	MaxActive     int           `mapstructure:"max_active"`
}

// StorageConfig selects the durable store backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ArchiveConfig selects where completed pull transcripts are written.
type ArchiveConfig struct {
	Driver   string `mapstructure:"driver"`
	Bucket   string `mapstructure:"bucket"`
	LocalDir string `mapstructure:"local_dir"`
}

// PublisherConfig selects the completion event destination.
type PublisherConfig struct {
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig tunes the telemetry hub's buffering.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHANNELPULL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	// Every key needs a default: AutomaticEnv only resolves keys Viper
	// already knows about, so an unregistered secret would ignore its
	// CHANNELPULL_ override.
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.request_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.api_key", "")
	v.SetDefault("chat.base_url", "https://platform.example.com/api")
	v.SetDefault("chat.token", "")
	v.SetDefault("chat.timeout", 30*time.Second)
	v.SetDefault("pull.default_batch_size", 100)
	v.SetDefault("pull.max_batch_size", 200)
	v.SetDefault("pull.min_delay", 500*time.Millisecond)
	v.SetDefault("pull.default_delay", time.Second)
	v.SetDefault("pull.max_attempts", 5)
	v.SetDefault("pull.backoff_base", 2*time.Second)
	v.SetDefault("pull.backoff_max", 60*time.Second)
	v.SetDefault("pull.estimated_messages", 1000)
	v.SetDefault("pull.per_message_cost", 50*time.Millisecond)
	v.SetDefault("registry.sweep_interval", 5*time.Minute)
	v.SetDefault("registry.retention", time.Hour)
	v.SetDefault("registry.max_active", 64)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("archive.driver", DriverNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("publisher.driver", DriverNone)
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "")
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 2*time.Second)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be > 0")
	}
	if c.Chat.BaseURL == "" {
		return fmt.Errorf("chat.base_url must not be empty")
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("chat.timeout must be > 0")
	}
	if c.Pull.DefaultBatchSize <= 0 {
		return fmt.Errorf("pull.default_batch_size must be > 0")
	}
	if c.Pull.MaxBatchSize < c.Pull.DefaultBatchSize {
		return fmt.Errorf("pull.max_batch_size must be >= pull.default_batch_size")
	}
	if c.Pull.MinDelay < 0 {
		return fmt.Errorf("pull.min_delay must be >= 0")
	}
	if c.Pull.DefaultDelay < c.Pull.MinDelay {
		return fmt.Errorf("pull.default_delay must be >= pull.min_delay")
	}
	if c.Pull.MaxAttempts <= 0 {
		return fmt.Errorf("pull.max_attempts must be > 0")
	}
	if c.Pull.BackoffBase <= 0 || c.Pull.BackoffMax < c.Pull.BackoffBase {
		return fmt.Errorf("pull.backoff_max must be >= pull.backoff_base > 0")
	}
	if c.Registry.SweepInterval <= 0 {
		return fmt.Errorf("registry.sweep_interval must be > 0")
	}
	if c.Registry.MaxActive <= 0 {
		return fmt.Errorf("registry.max_active must be > 0")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must be set when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, postgres")
	}
	switch c.Archive.Driver {
	case DriverNone, DriverMemory:
	case DriverLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.driver is local")
		}
	case DriverGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.driver is gcs")
		}
	default:
		return fmt.Errorf("archive.driver must be one of none, memory, local, gcs")
	}
	switch c.Publisher.Driver {
	case DriverNone, DriverMemory:
	case DriverPubSub:
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic must be set when publisher.driver is pubsub")
		}
	default:
		return fmt.Errorf("publisher.driver must be one of none, memory, pubsub")
	}
	return nil
}
