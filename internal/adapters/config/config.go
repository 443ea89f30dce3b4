// Package config loads bridge settings from ~/.deskbridge/config.toml
// via viper. Every knob has a default, so a missing file yields a
// usable configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".deskbridge"
)

type Config struct {
	DevtoolsURL    string
	PageURLPattern string
	Verbose        bool

	ProbeTimeout   time.Duration
	ProbeRetries   int
	NoiseThreshold int

	ResponseTimeout time.Duration
	PollInterval    time.Duration
	StartTimeout    time.Duration
	MaxConcurrent   int
	Multiplex       bool

	SweepInterval time.Duration
	AnchorMaxAge  time.Duration
	ContextMaxAge time.Duration
	MaxContexts   int

	Mattermost Mattermost
}

type Mattermost struct {
	URL             string
	BotUserID       string
	TeamID          string
	PollInterval    time.Duration
	MentionPatterns []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("surface.devtools_url", "http://127.0.0.1:9223")
	v.SetDefault("surface.page_url_pattern", "")
	v.SetDefault("verbose", false)

	v.SetDefault("probe.timeout", "10s")
	v.SetDefault("probe.retries", 2)
	v.SetDefault("probe.noise_threshold", 10)

	v.SetDefault("bridge.response_timeout", "60s")
	v.SetDefault("bridge.poll_interval", "1s")
	v.SetDefault("bridge.start_timeout", "5s")
	v.SetDefault("bridge.max_concurrent", 4)
	v.SetDefault("bridge.multiplex", false)

	v.SetDefault("registry.sweep_interval", "5m")
	v.SetDefault("registry.anchor_max_age", "24h")
	v.SetDefault("registry.context_max_age", "24h")
	v.SetDefault("registry.max_contexts", 1000)

	v.SetDefault("mattermost.url", "")
	v.SetDefault("mattermost.bot_user_id", "")
	v.SetDefault("mattermost.team_id", "")
	v.SetDefault("mattermost.poll_interval", "2s")
	v.SetDefault("mattermost.mention_patterns", []string{})
}

// Load reads the config file if one exists and applies defaults.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(filepath.Join(homeDir, configDir))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DevtoolsURL:    v.GetString("surface.devtools_url"),
		PageURLPattern: v.GetString("surface.page_url_pattern"),
		Verbose:        v.GetBool("verbose"),

		ProbeTimeout:   v.GetDuration("probe.timeout"),
		ProbeRetries:   v.GetInt("probe.retries"),
		NoiseThreshold: v.GetInt("probe.noise_threshold"),

		ResponseTimeout: v.GetDuration("bridge.response_timeout"),
		PollInterval:    v.GetDuration("bridge.poll_interval"),
		StartTimeout:    v.GetDuration("bridge.start_timeout"),
		MaxConcurrent:   v.GetInt("bridge.max_concurrent"),
		Multiplex:       v.GetBool("bridge.multiplex"),

		SweepInterval: v.GetDuration("registry.sweep_interval"),
		AnchorMaxAge:  v.GetDuration("registry.anchor_max_age"),
		ContextMaxAge: v.GetDuration("registry.context_max_age"),
		MaxContexts:   v.GetInt("registry.max_contexts"),

		Mattermost: Mattermost{
			URL:             v.GetString("mattermost.url"),
			BotUserID:       v.GetString("mattermost.bot_user_id"),
			TeamID:          v.GetString("mattermost.team_id"),
			PollInterval:    v.GetDuration("mattermost.poll_interval"),
			MentionPatterns: v.GetStringSlice("mattermost.mention_patterns"),
		},
	}

	if cfg.DevtoolsURL == "" {
		return Config{}, errors.New("surface.devtools_url is empty")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("bridge.poll_interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.ResponseTimeout <= 0 {
		return Config{}, fmt.Errorf("bridge.response_timeout must be positive, got %s", cfg.ResponseTimeout)
	}

	return cfg, nil
}
