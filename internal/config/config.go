// Package config loads daemon settings from file, environment and
// flags via viper.
//
// Settings govern the process (where to run, how often, where to
// serve status); per-job behavior lives in configure files inside the
// job tree and is deliberately not part of this schema.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// QCHERD_LOGGING_LEVEL.
const EnvPrefix = "QCHERD"

// Settings is the full daemon configuration.
type Settings struct {
	// BaseDir is the root of the managed job tree (required).
	BaseDir string `mapstructure:"base_dir"`

	// Interval between cycles. The tree's root configure file can
	// override it at run time.
	Interval time.Duration `mapstructure:"interval"`

	// ReportPath is the JSONL cycle log destination; empty disables it.
	ReportPath string `mapstructure:"report_path"`

	Queue   QueueSettings   `mapstructure:"queue"`
	Submit  SubmitSettings  `mapstructure:"submit"`
	Server  ServerSettings  `mapstructure:"server"`
	Logging LoggingSettings `mapstructure:"logging"`
	Archive ArchiveSettings `mapstructure:"archive"`
}

// QueueSettings configures the batch scheduler adapter.
type QueueSettings struct {
	// User narrows queue snapshots to one user's jobs.
	User string `mapstructure:"user"`

	// CommandTimeout bounds each scheduler CLI invocation.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// SubmitSettings rate-limit submissions to the scheduler.
type SubmitSettings struct {
	// Rate is submissions per second; zero means unlimited.
	Rate float64 `mapstructure:"rate"`

	// Burst is the limiter burst size.
	Burst int `mapstructure:"burst"`
}

// ServerSettings configure the status API.
type ServerSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LoggingSettings configure structured logging.
type LoggingSettings struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// JSON switches from console to JSON encoding.
	JSON bool `mapstructure:"json"`
}

// ArchiveSettings configure the shared S3 client used when a tree's
// configure files request archiving.
type ArchiveSettings struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default so environment overrides resolve during
	// Unmarshal; viper only consults the environment for known keys.
	v.SetDefault("base_dir", "")
	v.SetDefault("report_path", "")
	v.SetDefault("queue.user", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.profile", "")
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
	v.SetDefault("archive.force_path_style", false)
	v.SetDefault("interval", 2*time.Hour)
	v.SetDefault("queue.command_timeout", 30*time.Second)
	v.SetDefault("submit.rate", 2.0)
	v.SetDefault("submit.burst", 1)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8711)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

// Load reads settings with precedence: explicit file, environment,
// defaults. path == "" skips the file layer entirely.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	var s Settings
	decode := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, decode); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &s, nil
}

// Validate checks settings needed to start the daemon.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.BaseDir) == "" {
		return fmt.Errorf("base_dir is required")
	}
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	switch s.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
