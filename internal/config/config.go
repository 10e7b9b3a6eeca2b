package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface exposes configuration to the rest of the application. Injecting
// this instead of the concrete Config keeps components mockable in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Vision() VisionConfig
	Profiles() ProfilesConfig
	Browser() BrowserConfig
}

// Config is the root configuration object, unmarshalled from the config file
// plus LIRIS_* environment overrides and bound CLI flags.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	VisionCfg   VisionConfig   `mapstructure:"vision" yaml:"vision"`
	ProfilesCfg ProfilesConfig `mapstructure:"profiles" yaml:"profiles"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
}

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Vision() VisionConfig     { return c.VisionCfg }
func (c *Config) Profiles() ProfilesConfig { return c.ProfilesCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }

// LoggerConfig controls the zap setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output, rotated by lumberjack. Empty LogFile disables it.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig tunes the dispatch engine.
type EngineConfig struct {
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	// QueuePollTimeout bounds a worker's blocking pop so shutdown is observed.
	QueuePollTimeout time.Duration `mapstructure:"queue_poll_timeout" yaml:"queue_poll_timeout"`
	// MaxDispatchAttempts caps re-queues of a task whose platform stays
	// unavailable; the task fails with a scheduling error afterwards.
	MaxDispatchAttempts int `mapstructure:"max_dispatch_attempts" yaml:"max_dispatch_attempts"`
	// RetryBackoff is the first unavailability backoff; it doubles per
	// attempt up to RetryBackoffCap.
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RetryBackoffCap time.Duration `mapstructure:"retry_backoff_cap" yaml:"retry_backoff_cap"`
	// DefaultTaskTimeout applies when a submission carries no timeout.
	DefaultTaskTimeout time.Duration `mapstructure:"default_task_timeout" yaml:"default_task_timeout"`
	// SettleWait is the pause after submitting a prompt before extraction.
	SettleWait time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	// ExtractionMethod selects how responses are read back: "clipboard" or
	// "ocr".
	ExtractionMethod string `mapstructure:"extraction_method" yaml:"extraction_method"`
}

// VisionConfig tunes the perception engine.
type VisionConfig struct {
	// CaptureFreshness is how long a cached frame stays valid.
	CaptureFreshness time.Duration `mapstructure:"capture_freshness" yaml:"capture_freshness"`
	// TemplateThreshold is the default normalized cross-correlation floor.
	TemplateThreshold float64 `mapstructure:"template_threshold" yaml:"template_threshold"`
	// TextSimilarity is the default word-similarity floor for text matching.
	TextSimilarity float64 `mapstructure:"text_similarity" yaml:"text_similarity"`
	// TesseractPath overrides the tesseract binary location.
	TesseractPath string `mapstructure:"tesseract_path" yaml:"tesseract_path"`
}

// ProfilesConfig selects profile persistence backends.
type ProfilesConfig struct {
	// Dir is the flat-file backend directory, one JSON file per platform.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// DatabaseURL enables the postgres backend when non-empty; it is tried
	// before the flat-file backend.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// BrowserConfig tunes the chromedp launcher.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// ExecPath overrides the browser binary location.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// LaunchGuard is the minimum interval between browser launches.
	LaunchGuard time.Duration `mapstructure:"launch_guard" yaml:"launch_guard"`
	// PostNavigateWait gives the page time to settle after navigation.
	PostNavigateWait time.Duration `mapstructure:"post_navigate_wait" yaml:"post_navigate_wait"`
}

// ApplyDefaults fills any zero values with sensible production defaults.
func (c *Config) ApplyDefaults() {
	if c.LoggerCfg.Level == "" {
		c.LoggerCfg.Level = "info"
	}
	if c.LoggerCfg.Format == "" {
		c.LoggerCfg.Format = "console"
	}
	if c.LoggerCfg.ServiceName == "" {
		c.LoggerCfg.ServiceName = "liris"
	}
	if c.EngineCfg.WorkerConcurrency <= 0 {
		c.EngineCfg.WorkerConcurrency = 2
	}
	if c.EngineCfg.QueuePollTimeout <= 0 {
		c.EngineCfg.QueuePollTimeout = time.Second
	}
	if c.EngineCfg.MaxDispatchAttempts <= 0 {
		c.EngineCfg.MaxDispatchAttempts = 5
	}
	if c.EngineCfg.RetryBackoff <= 0 {
		c.EngineCfg.RetryBackoff = 5 * time.Second
	}
	if c.EngineCfg.RetryBackoffCap <= 0 {
		c.EngineCfg.RetryBackoffCap = time.Minute
	}
	if c.EngineCfg.DefaultTaskTimeout <= 0 {
		c.EngineCfg.DefaultTaskTimeout = 30 * time.Second
	}
	if c.EngineCfg.SettleWait <= 0 {
		c.EngineCfg.SettleWait = 2 * time.Second
	}
	if c.EngineCfg.ExtractionMethod == "" {
		c.EngineCfg.ExtractionMethod = "clipboard"
	}
	if c.VisionCfg.CaptureFreshness <= 0 {
		c.VisionCfg.CaptureFreshness = 500 * time.Millisecond
	}
	if c.VisionCfg.TemplateThreshold <= 0 {
		c.VisionCfg.TemplateThreshold = 0.8
	}
	if c.VisionCfg.TextSimilarity <= 0 {
		c.VisionCfg.TextSimilarity = 0.7
	}
	if c.ProfilesCfg.Dir == "" {
		if home, err := homedir.Dir(); err == nil {
			c.ProfilesCfg.Dir = filepath.Join(home, ".liris", "profiles")
		} else {
			c.ProfilesCfg.Dir = "profiles"
		}
	}
	if c.BrowserCfg.LaunchGuard <= 0 {
		c.BrowserCfg.LaunchGuard = 3 * time.Second
	}
	if c.BrowserCfg.PostNavigateWait <= 0 {
		c.BrowserCfg.PostNavigateWait = 3 * time.Second
	}
}

// Load unmarshals the current viper state into a Config with defaults applied.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
