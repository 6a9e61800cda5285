package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	ErrInvalidBaseURL         = errors.New("invalid api base_url: must be an absolute http(s) URL")
	ErrInvalidDecodeTimeout   = errors.New("invalid decode timeout: must be positive")
	ErrNegativeTimeout        = errors.New("invalid timeout: must be non-negative")
	ErrInvalidUploadLimit     = errors.New("invalid upload max_bytes: must be positive")
	ErrInvalidCameraSize      = errors.New("invalid camera size: width and height must be positive")
	ErrInvalidCameraFacing    = errors.New("invalid camera facing: must be environment or user")
	ErrInvalidShutdownTimeout = errors.New("invalid shutdown timeout: must be positive")
)

// ErrConfigNotFound is returned when an explicitly requested file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")
