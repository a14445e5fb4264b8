// Package config loads the server configuration from defaults, an optional
// YAML file, and DRIFTD_-prefixed environment variables, in increasing
// precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	DataDir string `mapstructure:"data_dir"`
	DBPath  string `mapstructure:"db_path"` // empty selects the in-memory job store

	Workers       int `mapstructure:"workers"`
	QueueCapacity int `mapstructure:"queue_capacity"`

	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`

	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`

	JobRetention  time.Duration `mapstructure:"job_retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	YTDLPBinary   string `mapstructure:"ytdlp_binary"`
	FFmpegBinary  string `mapstructure:"ffmpeg_binary"`
	FFprobeBinary string `mapstructure:"ffprobe_binary"`
}

// CacheDir is where raw fetched audio lives.
func (c *Config) CacheDir() string { return filepath.Join(c.DataDir, "cache") }

// WorkDir is per-job scratch space.
func (c *Config) WorkDir() string { return filepath.Join(c.DataDir, "work") }

// OutputDir holds finished artifacts until retention expires.
func (c *Config) OutputDir() string { return filepath.Join(c.DataDir, "output") }

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "") // in-memory job store unless a path is given
	v.SetDefault("workers", 4)
	v.SetDefault("queue_capacity", 100)
	v.SetDefault("cache_max_entries", 50)
	v.SetDefault("cache_ttl", 24*time.Hour)
	v.SetDefault("fetch_timeout", 10*time.Minute)
	v.SetDefault("render_timeout", 30*time.Minute)
	v.SetDefault("job_retention", 7*24*time.Hour)
	v.SetDefault("sweep_interval", time.Hour)
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("ytdlp_binary", "yt-dlp")
	v.SetDefault("ffmpeg_binary", "ffmpeg")
	v.SetDefault("ffprobe_binary", "ffprobe")
}

// Load reads configuration. cfgFile may be empty, in which case only defaults
// and environment variables apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DRIFTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache_max_entries must be positive, got %d", c.CacheMaxEntries)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %v", c.CacheTTL)
	}
	if c.FetchTimeout <= 0 || c.RenderTimeout <= 0 {
		return fmt.Errorf("fetch_timeout and render_timeout must be positive")
	}
	return nil
}
