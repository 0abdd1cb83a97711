// Package config holds the file-based service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Config is the main configuration for the venueflow service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Nats     NatsConfig     `yaml:"nats"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Planner  PlannerConfig  `yaml:"planner"`
	Otel     OtelConfig     `yaml:"otel"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig configures conversation persistence.
type DatabaseConfig struct {
	Type string `yaml:"type"` // "memory", "file", "sqlite", "postgres"
	Path string `yaml:"path"` // For sqlite and file backends
	DSN  string `yaml:"dsn"`  // For postgres
}

// NatsConfig configures the message bus. An empty URL disables the bus.
type NatsConfig struct {
	URL        string `yaml:"url"`
	StreamName string `yaml:"stream_name"`
}

// DispatchConfig controls dispatch loop guardrails.
type DispatchConfig struct {
	MaxIterations int  `yaml:"max_iterations"`
	Diagnostics   bool `yaml:"diagnostics"`
}

// PlannerConfig controls clarifying-question surfacing.
type PlannerConfig struct {
	// QuestionPriority orders queued question topics; the first match is the
	// one question surfaced per turn.
	QuestionPriority []string `yaml:"question_priority"`
}

// OtelConfig configures trace export. An empty endpoint disables telemetry.
type OtelConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// LoadConfigFromFile loads configuration from a YAML file. Environment
// variables in the file (e.g. ${DATABASE_DSN}) are expanded before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./venueflow.db",
		},
		Nats: NatsConfig{
			StreamName: "VENUEFLOW",
		},
		Dispatch: DispatchConfig{
			MaxIterations: 6,
		},
		Otel: OtelConfig{
			ServiceName: "venueflow",
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "memory", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}
	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("postgres database requires a dsn")
	}
	if c.Dispatch.MaxIterations <= 0 {
		return fmt.Errorf("dispatch.max_iterations must be positive")
	}
	for _, topic := range c.Planner.QuestionPriority {
		switch models.QuestionTopic(topic) {
		case models.TopicTime, models.TopicAvailability, models.TopicSiteVisit,
			models.TopicOfferHIL, models.TopicBudget, models.TopicBilling:
		default:
			return fmt.Errorf("unknown question topic %q", topic)
		}
	}
	return nil
}

// QuestionPriority converts the configured topic names, falling back to nil
// (the planner default) when unset.
func (c *Config) QuestionPriority() []models.QuestionTopic {
	if len(c.Planner.QuestionPriority) == 0 {
		return nil
	}
	out := make([]models.QuestionTopic, len(c.Planner.QuestionPriority))
	for i, t := range c.Planner.QuestionPriority {
		out[i] = models.QuestionTopic(t)
	}
	return out
}
