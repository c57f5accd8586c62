package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type ServerConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	AutoMigrate bool          `koanf:"auto_migrate" mapstructure:"auto_migrate"`
	CacheTTL    time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type WebhookConfig struct {
	Secret        string `koanf:"secret" mapstructure:"secret"`
	AllowUnsigned bool   `koanf:"allow_unsigned" mapstructure:"allow_unsigned"`
}

type PubSubConfig struct {
	ProjectID       string        `koanf:"project_id" mapstructure:"project_id"`
	TopicID         string        `koanf:"topic_id" mapstructure:"topic_id"`
	SubscriptionID  string        `koanf:"subscription_id" mapstructure:"subscription_id"`
	EmulatorHost    string        `koanf:"emulator_host" mapstructure:"emulator_host"`
	CredentialsFile string        `koanf:"credentials_file" mapstructure:"credentials_file"`
	PublishTimeout  time.Duration `koanf:"publish_timeout" mapstructure:"publish_timeout"`
	AckDeadline     time.Duration `koanf:"ack_deadline" mapstructure:"ack_deadline"`
	CreateIfMissing bool          `koanf:"create_if_missing" mapstructure:"create_if_missing"`
}

type EgressConfig struct {
	URL           string        `koanf:"url" mapstructure:"url"`
	Timeout       time.Duration `koanf:"timeout" mapstructure:"timeout"`
	SigningSecret string        `koanf:"signing_secret" mapstructure:"signing_secret"`
}

type RelayConfig struct {
	MaxMessages int `koanf:"max_messages" mapstructure:"max_messages"`
}

type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled" mapstructure:"enabled"`
	Endpoint    string  `koanf:"endpoint" mapstructure:"endpoint"`
	SampleRatio float64 `koanf:"sample_ratio" mapstructure:"sample_ratio"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Environment string          `koanf:"environment" mapstructure:"environment"`
	LogLevel    string          `koanf:"log_level" mapstructure:"log_level"`
	Server      ServerConfig    `koanf:"server" mapstructure:"server"`
	Database    DatabaseConfig  `koanf:"database" mapstructure:"database"`
	Webhook     WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	PubSub      PubSubConfig    `koanf:"pubsub" mapstructure:"pubsub"`
	Egress      EgressConfig    `koanf:"egress" mapstructure:"egress"`
	Relay       RelayConfig     `koanf:"relay" mapstructure:"relay"`
	Telemetry   TelemetryConfig `koanf:"telemetry" mapstructure:"telemetry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "orderbus",
		Environment: EnvironmentDevelopment,
		LogLevel:    "info",
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			DSN:         "file:orderbus.db?_foreign_keys=on",
			PingTimeout: 5 * time.Second,
			AutoMigrate: true,
			CacheTTL:    time.Minute,
		},
		PubSub: PubSubConfig{
			TopicID:         "order-created",
			SubscriptionID:  "order-created-sub",
			PublishTimeout:  5 * time.Second,
			AckDeadline:     30 * time.Second,
			CreateIfMissing: true,
		},
		Egress: EgressConfig{
			Timeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			SampleRatio: 1,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("core: unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("core: database.dsn is required")
	}
	if c.IsProduction() && strings.TrimSpace(c.Webhook.Secret) == "" && !c.Webhook.AllowUnsigned {
		return fmt.Errorf("core: webhook.secret is required in production unless webhook.allow_unsigned is set")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("core: server.max_body_bytes must be >= 0")
	}
	if c.PubSub.PublishTimeout < 0 || c.Egress.Timeout < 0 || c.Database.CacheTTL < 0 {
		return fmt.Errorf("core: timeouts must be >= 0")
	}
	if c.Relay.MaxMessages < 0 {
		return fmt.Errorf("core: relay.max_messages must be >= 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("core: telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// ValidatePublisher checks the settings required to publish or subscribe.
func (c PubSubConfig) ValidatePublisher() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("core: pubsub.project_id is required")
	}
	if strings.TrimSpace(c.TopicID) == "" {
		return fmt.Errorf("core: pubsub.topic_id is required")
	}
	return nil
}

func (c PubSubConfig) ValidateSubscriber() error {
	if err := c.ValidatePublisher(); err != nil {
		return err
	}
	if strings.TrimSpace(c.SubscriptionID) == "" {
		return fmt.Errorf("core: pubsub.subscription_id is required")
	}
	return nil
}
