// Package config loads the service configuration from a YAML file and the
// environment.
//
// Loading happens in three layers, later ones winning:
//
//  1. Default()
//  2. the YAML file, after ${VAR} references were expanded
//  3. environment variables prefixed with ROSSUM_AGENT_, e.g.
//     ROSSUM_AGENT_MODEL_API_KEY or ROSSUM_AGENT_SERVER_ADDR
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/memory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROSSUM_AGENT_"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Model     ModelConfig    `yaml:"model" envPrefix:"MODEL_"`
	Agent     AgentConfig    `yaml:"agent" envPrefix:"AGENT_"`
	SubAgent  SubAgentConfig `yaml:"subagent" envPrefix:"SUBAGENT_"`
	Storage   StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Artifacts ArtifactConfig `yaml:"artifacts" envPrefix:"ARTIFACTS_"`
	Logging   LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Platform  PlatformConfig `yaml:"platform" envPrefix:"API_"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	KeepaliveInterval time.Duration `yaml:"keepalive-interval" env:"KEEPALIVE_INTERVAL"`
	WatchInterval     time.Duration `yaml:"watch-interval" env:"WATCH_INTERVAL"`
	ShutdownTimeout   time.Duration `yaml:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ModelConfig selects and configures the model endpoint.
type ModelConfig struct {
	Provider       string  `yaml:"provider" env:"PROVIDER"`
	Name           string  `yaml:"name" env:"NAME"`
	APIKey         string  `yaml:"api-key" env:"API_KEY"`
	BaseURL        string  `yaml:"base-url" env:"BASE_URL"`
	MaxTokens      int     `yaml:"max-tokens" env:"MAX_TOKENS"`
	ThinkingBudget int     `yaml:"thinking-budget" env:"THINKING_BUDGET"`
	Temperature    float64 `yaml:"temperature" env:"TEMPERATURE"`
}

// AgentConfig configures the main tool loop.
type AgentConfig struct {
	Instruction      string        `yaml:"instruction" env:"INSTRUCTION"`
	MaxSteps         int           `yaml:"max-steps" env:"MAX_STEPS"`
	MaxParallelTools int           `yaml:"max-parallel-tools" env:"MAX_PARALLEL_TOOLS"`
	Streaming        bool          `yaml:"streaming" env:"STREAMING"`
	CollapsibleTools []string      `yaml:"collapsible-tools" env:"COLLAPSIBLE_TOOLS"`
	CatalogTTL       time.Duration `yaml:"catalog-ttl" env:"CATALOG_TTL"`
}

// SubAgentConfig bounds sub-agent runs.
type SubAgentConfig struct {
	MaxIterations  int `yaml:"max-iterations" env:"MAX_ITERATIONS"`
	MaxTokens      int `yaml:"max-tokens" env:"MAX_TOKENS"`
	ThinkingBudget int `yaml:"thinking-budget" env:"THINKING_BUDGET"`
}

// StorageConfig selects the chat store.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

// ArtifactConfig selects where run output files are written.
type ArtifactConfig struct {
	Driver     string   `yaml:"driver" env:"DRIVER"`
	OutputRoot string   `yaml:"output-root" env:"OUTPUT_ROOT"`
	S3         S3Config `yaml:"s3" envPrefix:"S3_"`
}

// S3Config configures the s3 artifact driver.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	AccessKeyID     string `yaml:"access-key-id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret-access-key" env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use-path-style" env:"USE_PATH_STYLE"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// PlatformConfig holds the default platform credentials used by runs that
// bring none of their own.
type PlatformConfig struct {
	Token   string `yaml:"token" env:"TOKEN"`
	BaseURL string `yaml:"base-url" env:"BASE_URL"`
}

// Credentials returns the platform defaults as core credentials.
func (p PlatformConfig) Credentials() core.Credentials {
	return core.Credentials{APIToken: p.Token, BaseURL: p.BaseURL}
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			KeepaliveInterval: 15 * time.Second,
			WatchInterval:     250 * time.Millisecond,
			ShutdownTimeout:   10 * time.Second,
		},
		Model: ModelConfig{
			Provider:    "anthropic",
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		Agent: AgentConfig{
			MaxSteps:         50,
			MaxParallelTools: 4,
			Streaming:        true,
			CollapsibleTools: append([]string(nil), memory.DefaultCollapsibleTools...),
			CatalogTTL:       5 * time.Minute,
		},
		SubAgent: SubAgentConfig{
			MaxIterations: 15,
			MaxTokens:     8192,
		},
		Storage: StorageConfig{
			Driver: "memory",
			Path:   "rossum-agent.db",
		},
		Artifacts: ArtifactConfig{
			Driver: "disk",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Platform: PlatformConfig{
			BaseURL: "https://api.elis.rossum.ai/v1",
		},
	}
}

// Load reads the configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("config: read %s: %w", path, err)
		}

		if err := Parse(data, &c); err != nil {
			return c, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return c, fmt.Errorf("config: environment: %w", err)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

// Parse expands ${VAR} references in data and decodes it over c.
func Parse(data []byte, c *Config) error {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate checks value ranges and enumerations. The first problem found is
// returned as a *core.ConfigError.
func (c Config) Validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai", "mock":
	default:
		return core.NewConfigError("model.provider", fmt.Sprintf("unknown model provider %q (want anthropic, openai or mock)", c.Model.Provider))
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return core.NewConfigError("storage.path", "the sqlite driver needs a database path")
		}
	default:
		return core.NewConfigError("storage.driver", fmt.Sprintf("unknown storage driver %q (want memory or sqlite)", c.Storage.Driver))
	}

	switch c.Artifacts.Driver {
	case "disk", "memory":
	case "s3":
		if c.Artifacts.S3.Bucket == "" {
			return core.NewConfigError("artifacts.s3.bucket", "the s3 artifact driver needs a bucket")
		}
	default:
		return core.NewConfigError("artifacts.driver", fmt.Sprintf("unknown artifact driver %q (want disk, memory or s3)", c.Artifacts.Driver))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return core.NewConfigError("logging.format", fmt.Sprintf("unknown log format %q (want json or text)", c.Logging.Format))
	}

	if c.Agent.MaxSteps <= 0 {
		return core.NewConfigError("agent.max-steps", "must be positive")
	}

	if c.SubAgent.MaxIterations <= 0 {
		return core.NewConfigError("subagent.max-iterations", "must be positive")
	}

	if c.Model.MaxTokens <= 0 {
		return core.NewConfigError("model.max-tokens", "must be positive")
	}

	if c.Model.ThinkingBudget < 0 || c.SubAgent.ThinkingBudget < 0 {
		return core.NewConfigError("thinking-budget", "must not be negative")
	}

	if c.Server.KeepaliveInterval < 0 || c.Server.WatchInterval < 0 {
		return core.NewConfigError("server", "intervals must not be negative")
	}

	return nil
}
