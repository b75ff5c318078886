package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arledge/webrd/internal/logging"
)

var log = logging.L("config")

// Config holds the process-wide server configuration. It is immutable after
// Load returns; sessions receive it by pointer and never write to it.
type Config struct {
	Port            int    `mapstructure:"port"`
	ControlPassword string `mapstructure:"password"`
	ViewPassword    string `mapstructure:"view_password"`
	Fullscreen      bool   `mapstructure:"fullscreen"`

	// Streaming limits
	MaxFPS     int `mapstructure:"max_fps"`
	MaxIPS     int `mapstructure:"max_ips"`
	MinQuality int `mapstructure:"min_quality"`
	MaxQuality int `mapstructure:"max_quality"`

	// Repaint budget: force a full frame after this many consecutive
	// partial or empty frames.
	PartialStreakLimit int `mapstructure:"partial_frames_before_full_repaint"`
	EmptyStreakLimit   int `mapstructure:"empty_frames_before_full_repaint"`

	// Encode offload
	EncodeWorkers   int `mapstructure:"encode_workers"`
	EncodeQueueSize int `mapstructure:"encode_queue_size"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Port:               7417,
		MaxFPS:             30,
		MaxIPS:             60,
		MinQuality:         20,
		MaxQuality:         90,
		PartialStreakLimit: 10,
		EmptyStreakLimit:   60,
		EncodeWorkers:      2,
		EncodeQueueSize:    16,
		LogLevel:           "info",
		LogFormat:          "text",
		LogMaxSizeMB:       20,
		LogMaxBackups:      3,
	}
}

// Load reads configuration from the optional YAML file, environment
// (WEBRD_ prefix) and bound command-line flags, then validates it.
// Fatal validation errors abort startup; warnings are logged and the
// offending values clamped.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("webrd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/webrd")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("WEBRD")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Validate config: fatals block startup, warnings are logged and continue.
	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}
