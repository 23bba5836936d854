//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads the agent's credentials and settings from a .env
// file, the process environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Session backends.
const (
	SessionInMemory = "inmemory"
	SessionRedis    = "redis"
)

// Config holds everything needed to wire the agent.
type Config struct {
	AppName          string        `mapstructure:"app_name"`
	AgentName        string        `mapstructure:"agent_name"`
	AgentDescription string        `mapstructure:"agent_description"`
	ArcadeAPIKey     string        `mapstructure:"arcade_api_key"`
	ArcadeUserID     string        `mapstructure:"arcade_user_id"`
	ArcadeBaseURL    string        `mapstructure:"arcade_base_url"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url"`
	OpenAIModel      string        `mapstructure:"openai_model"`
	OpenAIMaxRetries int           `mapstructure:"openai_max_retries"`
	Toolkits         []string      `mapstructure:"toolkits"`
	Tools            []string      `mapstructure:"tools"`
	ToolLimit        int           `mapstructure:"tool_limit"`
	IncludeTools     []string      `mapstructure:"include_tools"`
	ExcludeTools     []string      `mapstructure:"exclude_tools"`
	ToolPatterns     []string      `mapstructure:"tool_patterns"`
	ConfirmTools     []string      `mapstructure:"confirm_tools"`
	ArtifactTools    []string      `mapstructure:"artifact_tools"`
	Session          string        `mapstructure:"session"`
	RedisURL         string        `mapstructure:"redis_url"`
	Streaming        bool          `mapstructure:"streaming"`
	LogLevel         string        `mapstructure:"log_level"`
	AuthTimeout      time.Duration `mapstructure:"auth_timeout"`
}

var (
	// ErrMissingUserID is returned when ARCADE_USER_ID is not set.
	ErrMissingUserID = errors.New("Missing ARCADE_USER_ID. Add it to your .env file.")
	// ErrMissingModel is returned when OPENAI_MODEL is not set.
	ErrMissingModel = errors.New("Missing OPENAI_MODEL. Add it to your .env file.")
	// ErrMissingAPIKey is returned when ARCADE_API_KEY is not set.
	ErrMissingAPIKey = errors.New("Missing ARCADE_API_KEY. Add it to your .env file.")
)

// envKeys maps config keys to the environment variables that set them.
var envKeys = map[string]string{
	"app_name":           "AGENT_APP_NAME",
	"agent_name":         "AGENT_NAME",
	"arcade_api_key":     "ARCADE_API_KEY",
	"arcade_user_id":     "ARCADE_USER_ID",
	"arcade_base_url":    "ARCADE_BASE_URL",
	"openai_api_key":     "OPENAI_API_KEY",
	"openai_base_url":    "OPENAI_BASE_URL",
	"openai_model":       "OPENAI_MODEL",
	"openai_max_retries": "OPENAI_MAX_RETRIES",
	"toolkits":           "ARCADE_TOOLKITS",
	"tools":              "ARCADE_TOOLS",
	"tool_limit":         "ARCADE_TOOL_LIMIT",
	"include_tools":      "ARCADE_INCLUDE_TOOLS",
	"exclude_tools":      "ARCADE_EXCLUDE_TOOLS",
	"tool_patterns":      "ARCADE_TOOL_PATTERNS",
	"confirm_tools":      "CONFIRM_TOOLS",
	"artifact_tools":     "ARTIFACT_TOOLS",
	"session":            "SESSION_BACKEND",
	"redis_url":          "REDIS_URL",
	"streaming":          "STREAMING",
	"log_level":          "LOG_LEVEL",
	"auth_timeout":       "ARCADE_AUTH_TIMEOUT",
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() map[string]any {
	return map[string]any{
		"app_name":           "my_agent",
		"agent_name":         "google_agent",
		"agent_description":  "An agent that uses Dropbox tools provided to perform any task",
		"arcade_base_url":    "https://api.arcade.dev",
		"openai_max_retries": 2,
		"toolkits":           []string{"Dropbox"},
		"tools":              []string{},
		"tool_limit":         100,
		"include_tools":      []string{},
		"exclude_tools":      []string{},
		"tool_patterns":      []string{},
		"confirm_tools":      []string{},
		"artifact_tools":     []string{"Dropbox_DownloadFile"},
		"session":            SessionInMemory,
		"streaming":          false,
		"log_level":          "info",
		"auth_timeout":       5 * time.Minute,
	}
}

type options struct {
	envFile    string
	configFile string
	viper      *viper.Viper
}

// Option configures Load.
type Option func(*options)

// WithEnvFile sets the dotenv file. Defaults to ".env"; a missing file is ignored.
func WithEnvFile(path string) Option {
	return func(o *options) {
		o.envFile = path
	}
}

// WithConfigFile reads settings from a YAML, JSON or TOML file.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// WithViper uses v, typically one with command line flags bound, as the source.
func WithViper(v *viper.Viper) Option {
	return func(o *options) {
		o.viper = v
	}
}

// Load builds a validated Config.
func Load(opts ...Option) (*Config, error) {
	o := &options{envFile: ".env"}
	for _, opt := range opts {
		opt(o)
	}

	if err := loadEnvFile(o.envFile); err != nil {
		return nil, err
	}

	v := o.viper
	if v == nil {
		v = viper.New()
	}
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Toolkits = splitList(cfg.Toolkits)
	cfg.Tools = splitList(cfg.Tools)
	cfg.IncludeTools = splitList(cfg.IncludeTools)
	cfg.ExcludeTools = splitList(cfg.ExcludeTools)
	cfg.ToolPatterns = splitList(cfg.ToolPatterns)
	cfg.ConfirmTools = splitList(cfg.ConfirmTools)
	cfg.ArtifactTools = splitList(cfg.ArtifactTools)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment, overriding existing values.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// splitList accepts both proper lists and a single comma separated entry,
// which is what a list coming from an environment variable looks like.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the required credentials and settings.
func (c *Config) Validate() error {
	if c.ArcadeUserID == "" {
		return ErrMissingUserID
	}
	if c.OpenAIModel == "" {
		return ErrMissingModel
	}
	if c.ArcadeAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.ToolLimit <= 0 {
		return fmt.Errorf("tool limit must be positive, got %d", c.ToolLimit)
	}
	if len(c.Toolkits) == 0 && len(c.Tools) == 0 {
		return errors.New("no toolkits or tools configured")
	}
	for _, p := range c.ToolPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid tool pattern %q: %w", p, err)
		}
	}
	switch c.Session {
	case SessionInMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return errors.New("redis session backend needs REDIS_URL")
		}
	default:
		return fmt.Errorf("invalid session backend %q, want inmemory or redis", c.Session)
	}
	return nil
}

// ModelName is the model handed to the OpenAI adapter, without a provider prefix.
func (c *Config) ModelName() string {
	return strings.TrimPrefix(c.OpenAIModel, "openai/")
}
