package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. METIS_SERVER_PORT.
const EnvPrefix = "METIS"

// Load configuration from environment variables and an optional config.yaml in
// the working directory. Environment variables take precedence over values
// from the config file.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the working directory for config.yaml and tolerates its absence; an explicit
// path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.url", "")
	v.SetDefault("store.sqlite_path", "metis.db")

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.model_name", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)

	v.SetDefault("session.generation_timeout", 30*time.Second)
	v.SetDefault("session.default_minutes", 30)

	v.SetDefault("memory.timezone", "UTC")
	v.SetDefault("memory.horizon_days", 30)
}
