// Package config provides configuration management for the Botcrew orchestrator.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the orchestrator.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. The orchestrator opens two
// connections: a shared publisher and a dedicated subscriber owned by the
// pub/sub listener.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DockerConfig holds worker-runtime (Docker) configuration.
type DockerConfig struct {
	// Host overrides the Docker endpoint. Empty means ambient discovery:
	// DOCKER_HOST env first, local socket otherwise.
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
	// ConfigFile points at a JSON file with {"host": "..."} used when
	// ambient discovery fails.
	ConfigFile string `mapstructure:"configFile"`
	// Network is the Docker network worker containers are attached to.
	Network string `mapstructure:"network"`
	// Image is the worker container image.
	Image string `mapstructure:"image"`
	// Scope labels every worker container so list operations only see
	// containers belonging to this orchestrator.
	Scope string `mapstructure:"scope"`
}

// AgentConfig holds agent defaults and worker addressing.
type AgentConfig struct {
	// WorkerDomain is the DNS suffix for worker containers. Empty means
	// container-name resolution on the Docker network.
	WorkerDomain string `mapstructure:"workerDomain"`
	// WorkerPort is the HTTP port worker containers listen on.
	WorkerPort int `mapstructure:"workerPort"`
	// DefaultHeartbeatSeconds is the heartbeat period for new agents.
	DefaultHeartbeatSeconds int `mapstructure:"defaultHeartbeatSeconds"`
	// DefaultHeartbeatPrompt overrides the built-in heartbeat prompt.
	DefaultHeartbeatPrompt string `mapstructure:"defaultHeartbeatPrompt"`
	// ReconcileIntervalSeconds is the reconciler tick period.
	ReconcileIntervalSeconds int `mapstructure:"reconcileIntervalSeconds"`
}

// DeliveryConfig holds delivery-queue (JetStream) configuration.
type DeliveryConfig struct {
	Stream   string `mapstructure:"stream"`
	Subject  string `mapstructure:"subject"`
	Consumer string `mapstructure:"consumer"`
	// Workers is the number of concurrent consumers in the delivery worker
	// process.
	Workers int `mapstructure:"workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ReconcileInterval returns the reconciler tick period as a time.Duration.
func (a *AgentConfig) ReconcileInterval() time.Duration {
	return time.Duration(a.ReconcileIntervalSeconds) * time.Second
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// detectDefaultLogFormat returns "json" for production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("BOTCREW_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "botcrew")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "botcrew")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 30)
	v.SetDefault("database.minConns", 10)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.clientId", "botcrew-orchestrator")
	v.SetDefault("nats.maxReconnects", 10)

	// Docker defaults
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.apiVersion", "")
	v.SetDefault("docker.configFile", "")
	v.SetDefault("docker.network", "botcrew-agents")
	v.SetDefault("docker.image", "botcrew/agent:latest")
	v.SetDefault("docker.scope", "botcrew")

	// Agent defaults
	v.SetDefault("agent.workerDomain", "")
	v.SetDefault("agent.workerPort", 8080)
	v.SetDefault("agent.defaultHeartbeatSeconds", 900)
	v.SetDefault("agent.defaultHeartbeatPrompt", "")
	v.SetDefault("agent.reconcileIntervalSeconds", 60)

	// Delivery queue defaults
	v.SetDefault("delivery.stream", "DELIVERY")
	v.SetDefault("delivery.subject", "delivery.jobs")
	v.SetDefault("delivery.consumer", "delivery-workers")
	v.SetDefault("delivery.workers", 4)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix BOTCREW_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/botcrew/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BOTCREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase config keys to SNAKE_CASE env
	// vars, so the multi-word keys are bound explicitly.
	_ = v.BindEnv("database.dbName", "BOTCREW_DATABASE_DB_NAME")
	_ = v.BindEnv("database.sslMode", "BOTCREW_DATABASE_SSL_MODE")
	_ = v.BindEnv("agent.workerDomain", "BOTCREW_WORKER_DOMAIN", "BOTCREW_AGENT_WORKER_DOMAIN")
	_ = v.BindEnv("agent.workerPort", "BOTCREW_AGENT_WORKER_PORT")
	_ = v.BindEnv("agent.defaultHeartbeatSeconds", "BOTCREW_AGENT_DEFAULT_HEARTBEAT_SECONDS")
	_ = v.BindEnv("agent.defaultHeartbeatPrompt", "BOTCREW_AGENT_DEFAULT_HEARTBEAT_PROMPT")
	_ = v.BindEnv("agent.reconcileIntervalSeconds", "BOTCREW_AGENT_RECONCILE_INTERVAL_SECONDS")
	_ = v.BindEnv("docker.configFile", "BOTCREW_DOCKER_CONFIG_FILE")
	_ = v.BindEnv("delivery.workers", "BOTCREW_DELIVERY_WORKERS")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/botcrew/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Host != "" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required when database.host is set")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required when database.host is set")
		}
	}

	if cfg.Agent.WorkerPort <= 0 || cfg.Agent.WorkerPort > 65535 {
		errs = append(errs, "agent.workerPort must be between 1 and 65535")
	}
	if cfg.Agent.ReconcileIntervalSeconds <= 0 {
		errs = append(errs, "agent.reconcileIntervalSeconds must be positive")
	}
	if cfg.Delivery.Workers <= 0 {
		errs = append(errs, "delivery.workers must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
