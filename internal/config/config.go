// Package config loads the pool service's configuration from a file,
// environment variables, and (via MergeFlags) the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool"`
	Driver  DriverConfig  `mapstructure:"driver"`
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
}

// PoolConfig holds every option spec'd for the context pool itself.
type PoolConfig struct {
	MaxContexts           int    `mapstructure:"max_contexts"`
	DefaultDomainDelayMS  int    `mapstructure:"default_domain_delay_ms"`
	MaxQueueWaitSeconds   int    `mapstructure:"max_queue_wait_seconds"`
	MaxConsecutiveErrors  int    `mapstructure:"max_consecutive_errors"`
	PersistentContextsDir string `mapstructure:"persistent_contexts_path"`
	ShutdownGraceSeconds  int    `mapstructure:"shutdown_grace_seconds"`
	EvictionIdleWeight    float64 `mapstructure:"eviction_idle_weight"`
	EvictionErrorWeight   float64 `mapstructure:"eviction_error_weight"`
}

// DriverConfig is forwarded to the BrowserDriver implementation.
type DriverConfig struct {
	Headless          bool   `mapstructure:"browser_headless"`
	UseVirtualDisplay bool   `mapstructure:"use_virtual_display"`
	VirtualDisplayW   int    `mapstructure:"virtual_display_width"`
	VirtualDisplayH   int    `mapstructure:"virtual_display_height"`
	CDPPort           int    `mapstructure:"cdp_port"`
	CDPPublicHost     string `mapstructure:"cdp_public_host"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig mirrors lumberjack's own knobs.
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// APIConfig configures the thin HTTP adapter.
type APIConfig struct {
	ListenAddr        string `mapstructure:"listen_addr"`
	MetricsListenAddr string `mapstructure:"metrics_listen_addr"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// Load reads configuration from configPath (if non-empty) or the
// default search path chain, applying defaults and environment
// overrides in between.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ctxpoold"))
		}
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindSpecEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if raw := os.Getenv("VIRTUAL_DISPLAY_SIZE"); raw != "" {
		w, h, err := parseDisplaySize(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing VIRTUAL_DISPLAY_SIZE: %w", err)
		}
		cfg.Driver.VirtualDisplayW = w
		cfg.Driver.VirtualDisplayH = h
	}

	return &cfg, nil
}

// bindSpecEnvVars binds the flat, section-less environment variable
// names documented as the operator-facing override mechanism, so e.g.
// MAX_CONTEXTS takes effect alongside viper's own POOL_MAX_CONTEXTS
// form. VIRTUAL_DISPLAY_SIZE is handled separately in Load since it
// packs width and height into one "WxH" value.
func bindSpecEnvVars(v *viper.Viper) {
	pairs := [][2]string{
		{"pool.max_contexts", "MAX_CONTEXTS"},
		{"pool.default_domain_delay_ms", "DEFAULT_DOMAIN_DELAY_MS"},
		{"pool.max_queue_wait_seconds", "MAX_QUEUE_WAIT_SECONDS"},
		{"pool.max_consecutive_errors", "MAX_CONSECUTIVE_ERRORS"},
		{"pool.persistent_contexts_path", "PERSISTENT_CONTEXTS_PATH"},
		{"driver.browser_headless", "BROWSER_HEADLESS"},
		{"driver.use_virtual_display", "USE_VIRTUAL_DISPLAY"},
		{"logging.level", "LOG_LEVEL"},
	}
	for _, p := range pairs {
		v.BindEnv(p[0], p[1])
	}
}

// parseDisplaySize parses the "WxH" form VIRTUAL_DISPLAY_SIZE is
// documented in, e.g. "1920x1080".
func parseDisplaySize(raw string) (int, int, error) {
	w, h, ok := strings.Cut(raw, "x")
	if !ok {
		return 0, 0, fmt.Errorf("expected WxH, got %q", raw)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("width: %w", err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("height: %w", err)
	}
	return width, height, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.max_contexts", 10)
	v.SetDefault("pool.default_domain_delay_ms", 1000)
	v.SetDefault("pool.max_queue_wait_seconds", 300)
	v.SetDefault("pool.max_consecutive_errors", 5)
	v.SetDefault("pool.persistent_contexts_path", "./data/contexts")
	v.SetDefault("pool.shutdown_grace_seconds", 30)
	v.SetDefault("pool.eviction_idle_weight", 1.0)
	v.SetDefault("pool.eviction_error_weight", 2.0)

	v.SetDefault("driver.browser_headless", true)
	v.SetDefault("driver.use_virtual_display", false)
	v.SetDefault("driver.virtual_display_width", 1920)
	v.SetDefault("driver.virtual_display_height", 1080)
	v.SetDefault("driver.cdp_port", 9222)
	v.SetDefault("driver.cdp_public_host", "127.0.0.1")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.metrics_listen_addr", ":9090")
	v.SetDefault("api.requests_per_minute", 120)
	v.SetDefault("api.cors_allowed_origins", []string{"*"})
}

// MergeFlags applies CLI overrides on top of file/env configuration.
// Zero values are treated as "flag not set" and left alone, mirroring
// the teacher's MergeCLIFlags precedence rule.
func (c *Config) MergeFlags(logLevel string, maxContexts int, listenAddr string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if maxContexts > 0 {
		c.Pool.MaxContexts = maxContexts
	}
	if listenAddr != "" {
		c.API.ListenAddr = listenAddr
	}
}
