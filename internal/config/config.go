package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bluesky  BlueskyConfig  `yaml:"bluesky"`
	Download DownloadConfig `yaml:"download"`
	Storage  StorageConfig  `yaml:"storage"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT" default:"4m"`
	MaxFormSize    int64         `yaml:"max_form_size" envconfig:"SERVER_MAX_FORM_SIZE" default:"65536"`
}

// BlueskyConfig holds the social API session configuration.
type BlueskyConfig struct {
	Identifier  string        `yaml:"identifier" envconfig:"BSKY_USER"`
	Password    string        `yaml:"password" envconfig:"BSKY_PASS"`
	PDSHost     string        `yaml:"pds_host" envconfig:"BSKY_PDS_HOST" default:"https://bsky.social"`
	AppViewHost string        `yaml:"appview_host" envconfig:"BSKY_APPVIEW_HOST" default:"https://public.api.bsky.app"`
	VideoHost   string        `yaml:"video_host" envconfig:"BSKY_VIDEO_HOST" default:"https://video.bsky.app"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"BSKY_TIMEOUT" default:"15s"`
}

// DownloadConfig holds manifest and segment fetch configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"30s"`
	Concurrency   int           `yaml:"concurrency" envconfig:"DOWNLOAD_CONCURRENCY" default:"4"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"bsvdl/1.0 (+https://github.com/iconidentify/bsvdl)"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
}

// StorageConfig holds scratch space configuration.
type StorageConfig struct {
	ScratchDir    string `yaml:"scratch_dir" envconfig:"STORAGE_SCRATCH_DIR"`
	MaxOutputSize int64  `yaml:"max_output_size" envconfig:"MAX_OUTPUT_SIZE" default:"268435456"` // 256MB
}

// FFmpegConfig holds the location of the ffmpeg binary.
type FFmpegConfig struct {
	Path string `yaml:"path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	File       string `yaml:"file" envconfig:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB" default:"1"`
	MaxBackups int    `yaml:"max_backups" envconfig:"LOG_MAX_BACKUPS" default:"10"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.Storage.ScratchDir == "" {
		cfg.Storage.ScratchDir = os.TempDir()
	}
	scratch, err := filepath.Abs(cfg.Storage.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch dir: %w", err)
	}
	cfg.Storage.ScratchDir = scratch

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Bluesky.Identifier == "" {
		return fmt.Errorf("BSKY_USER is required")
	}
	if c.Bluesky.Password == "" {
		return fmt.Errorf("BSKY_PASS is required")
	}
	for name, host := range map[string]string{
		"BSKY_PDS_HOST":     c.Bluesky.PDSHost,
		"BSKY_APPVIEW_HOST": c.Bluesky.AppViewHost,
		"BSKY_VIDEO_HOST":   c.Bluesky.VideoHost,
	} {
		if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, host)
		}
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("DOWNLOAD_CONCURRENCY must be at least 1")
	}
	if c.Download.Timeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT must be positive")
	}
	if c.Storage.MaxOutputSize <= 0 {
		return fmt.Errorf("MAX_OUTPUT_SIZE must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VideoBaseURL returns the watch URL prefix for a video on the video host.
func (c *BlueskyConfig) VideoBaseURL(authorID, videoRef string) string {
	return strings.TrimRight(c.VideoHost, "/") + "/watch/" + authorID + "/" + videoRef
}
