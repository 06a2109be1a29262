package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Store   StoreConfig   `mapstructure:"store" validate:"required"`
	LLM     LLMConfig     `mapstructure:"llm" validate:"required"`
	Session SessionConfig `mapstructure:"session" validate:"required"`
	Memory  MemoryConfig  `mapstructure:"memory" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver     string `mapstructure:"driver" validate:"required,oneof=memory postgres sqlite"`
	URL        string `mapstructure:"url" validate:"required_if=Driver postgres"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" validate:"required,oneof=gemini anthropic none"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key" validate:"required_if=Provider anthropic"`
	ModelName       string        `mapstructure:"model_name"`
	MaxTokens       int64         `mapstructure:"max_tokens" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// String masks the API keys.
func (c LLMConfig) String() string {
	return fmt.Sprintf("LLMConfig{Provider:%s, Model:%s, GeminiAPIKey:%s, AnthropicAPIKey:%s}",
		c.Provider, c.ModelName, maskKey(c.GeminiAPIKey), maskKey(c.AnthropicAPIKey))
}

// SessionConfig contains learning session settings.
type SessionConfig struct {
	// GenerationTimeout bounds each compare-and-reveal request
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" validate:"gt=0"`
	DefaultMinutes    int           `mapstructure:"default_minutes" validate:"oneof=15 30 45 60 90 120"`
}

// MemoryConfig contains decay model settings.
type MemoryConfig struct {
	// Timezone is the calendar used to count review days
	Timezone    string `mapstructure:"timezone" validate:"required,timezone"`
	HorizonDays int    `mapstructure:"horizon_days" validate:"gt=0,lte=365"`
}

// Location resolves Timezone, falling back to UTC.
func (c MemoryConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func maskKey(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}
