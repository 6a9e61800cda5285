package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "secqr"

	// DefaultAPIBaseURL is where the decode, reputation, and report services live.
	DefaultAPIBaseURL = "http://localhost:5000"

	// DefaultDecodeTimeout is generous because decode payloads can be several MiB.
	DefaultDecodeTimeout = 30 * time.Second

	// DefaultReputationTimeout bounds the reputation lookup.
	DefaultReputationTimeout = 10 * time.Second

	// DefaultMaxUploadBytes matches the 5 MiB upload limit.
	DefaultMaxUploadBytes = 5 * 1024 * 1024

	DefaultCameraWidth  = 1280
	DefaultCameraHeight = 720
	DefaultCameraFacing = "environment"

	DefaultServerAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultReputationCacheTTL = 10 * time.Minute

	DefaultBatchSize = 4
)

// Config holds all configuration options. The yaml tags describe the file
// format; environment variables override file values.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Upload   UploadConfig   `yaml:"upload"`
	Camera   CameraConfig   `yaml:"camera"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Verbose  bool           `yaml:"verbose"`
}

// APIConfig locates the remote scan services.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	DecodeTimeout     time.Duration `yaml:"decode_timeout"`
	ReputationTimeout time.Duration `yaml:"reputation_timeout"`
	// ReportTimeout of zero means no timeout.
	ReportTimeout time.Duration `yaml:"report_timeout"`
}

// UploadConfig limits accepted files.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// CameraConfig is the preferred video configuration.
type CameraConfig struct {
	Facing string `yaml:"facing"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// ServerConfig configures `secqr serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTAudience     string        `yaml:"jwt_audience"`
}

// RedisConfig enables the reputation cache when Addr is set.
type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	ReputationTTL time.Duration `yaml:"reputation_ttl"`
}

// DatabaseConfig enables scan history when DSN is set.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           DefaultAPIBaseURL,
			DecodeTimeout:     DefaultDecodeTimeout,
			ReputationTimeout: DefaultReputationTimeout,
		},
		Upload: UploadConfig{MaxBytes: DefaultMaxUploadBytes},
		Camera: CameraConfig{
			Facing: DefaultCameraFacing,
			Width:  DefaultCameraWidth,
			Height: DefaultCameraHeight,
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Redis: RedisConfig{ReputationTTL: DefaultReputationCacheTTL},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if c.API.DecodeTimeout <= 0 {
		return ErrInvalidDecodeTimeout
	}
	if c.API.ReputationTimeout < 0 || c.API.ReportTimeout < 0 {
		return ErrNegativeTimeout
	}
	if c.Upload.MaxBytes <= 0 {
		return ErrInvalidUploadLimit
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return ErrInvalidCameraSize
	}
	if c.Camera.Facing != "environment" && c.Camera.Facing != "user" {
		return ErrInvalidCameraFacing
	}
	if c.Server.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	return nil
}

// ConfigDir returns the XDG config directory for secqr.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}
