// Package config provides configuration management for the analyst service.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analyst service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Plots     PlotsConfig     `mapstructure:"plots"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// ModelConfig configures the code-generating model.
type ModelConfig struct {
	Provider string        `mapstructure:"provider"` // "gemini" or "static"
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PolicyConfig points at the admission policy file.
type PolicyConfig struct {
	Path string `mapstructure:"path"` // empty means built-in defaults
}

// SandboxConfig bounds execution of admitted code.
type SandboxConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxCallStack   int           `mapstructure:"max_call_stack"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	RowLimit       int           `mapstructure:"row_limit"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent"`
}

// PlotsConfig holds chart artifact storage configuration.
type PlotsConfig struct {
	Dir       string `mapstructure:"dir"`
	URLPrefix string `mapstructure:"url_prefix"`
}

// RateLimitConfig throttles model-backed requests.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// AuthConfig holds API key authentication configuration.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// RedisConfig holds Redis connection configuration for the event bus.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // empty disables events
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// MongoDBConfig holds MongoDB connection configuration for the audit trail.
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"` // empty disables auditing
	Database string `mapstructure:"database"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.model", "gemini-pro-latest")
	v.SetDefault("model.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("model.timeout", 60*time.Second)

	v.SetDefault("policy.path", "")

	v.SetDefault("sandbox.timeout", 10*time.Second)
	v.SetDefault("sandbox.max_call_stack", 500)
	v.SetDefault("sandbox.max_output_bytes", 1024*1024)
	v.SetDefault("sandbox.row_limit", 20)
	v.SetDefault("sandbox.max_concurrent", 8)

	v.SetDefault("plots.dir", "plots")
	v.SetDefault("plots.url_prefix", "/plots")

	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "analysis_events")

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "sheet_analyst")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/sheet-analyst")
	}

	// Read environment variables
	v.SetEnvPrefix("SHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// The original deployment read the key from GOOGLE_API_KEY.
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	return &cfg, nil
}
