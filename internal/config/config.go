package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheMichaelB/blockbox/internal/models"
)

// Content store backends.
const (
	ContentLocal = "local"
	ContentIPFS  = "ipfs"
	ContentS3    = "s3"
)

// Registry persistence backends.
const (
	RegistryJSON     = "json"
	RegistrySQLite   = "sqlite"
	RegistryBolt     = "bolt"
	RegistryDynamoDB = "dynamodb"
	RegistryS3       = "s3"
)

// Config holds all application configuration.
type Config struct {
	// Wallet identity
	Identity IdentityConfig `json:"identity" mapstructure:"identity"`

	// Remote content storage
	Content ContentConfig `json:"content" mapstructure:"content"`

	// File registry persistence
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`

	// Upload behavior
	Upload UploadConfig `json:"upload" mapstructure:"upload"`

	// Local paths
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// IdentityConfig selects the wallet the session connects as.
type IdentityConfig struct {
	Address string `json:"address,omitempty" mapstructure:"address"`
}

// ContentConfig for the content-addressed store.
type ContentConfig struct {
	Backend    string        `json:"backend" mapstructure:"backend"` // local, ipfs, s3
	Dir        string        `json:"dir" mapstructure:"dir"`         // local backend root
	APIURL     string        `json:"api_url" mapstructure:"api_url"` // IPFS RPC endpoint
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`

	// Bearer token for the RPC endpoint. Resolved from, in order: APIToken,
	// TokenFile, TokenSecretID (AWS Secrets Manager).
	APIToken      string `json:"api_token,omitempty" mapstructure:"api_token"`
	TokenFile     string `json:"token_file,omitempty" mapstructure:"token_file"`
	TokenSecretID string `json:"token_secret_id,omitempty" mapstructure:"token_secret_id"`

	// S3 backend
	Bucket string `json:"bucket,omitempty" mapstructure:"bucket"`
	Prefix string `json:"prefix,omitempty" mapstructure:"prefix"`
	Region string `json:"region,omitempty" mapstructure:"region"`
}

// RegistryConfig for per-identity record persistence.
type RegistryConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // json, sqlite, bolt, dynamodb, s3
	Dir     string `json:"dir" mapstructure:"dir"`
	Table   string `json:"table,omitempty" mapstructure:"table"`   // DynamoDB table
	Bucket  string `json:"bucket,omitempty" mapstructure:"bucket"` // S3 bucket
	Prefix  string `json:"prefix,omitempty" mapstructure:"prefix"`
	Region  string `json:"region,omitempty" mapstructure:"region"`
}

// UploadConfig for batch upload behavior.
type UploadConfig struct {
	MaxConcurrent int           `json:"max_concurrent" mapstructure:"max_concurrent"` // 1 = sequential
	RetryAttempts int           `json:"retry_attempts" mapstructure:"retry_attempts"` // Per-file put retries
	RetryDelay    time.Duration `json:"retry_delay" mapstructure:"retry_delay"`       // Initial retry delay
	MaxFileSize   int64         `json:"max_file_size" mapstructure:"max_file_size"`   // Bytes
	InlinePayload bool          `json:"inline_payload" mapstructure:"inline_payload"` // Keep ciphertext in the record
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir   string `json:"data_dir" mapstructure:"data_dir"`     // Base directory for all data
	ExportDir string `json:"export_dir" mapstructure:"export_dir"` // Downloads land here
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`   // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".blockbox"

	return &Config{
		Content: ContentConfig{
			Backend:    ContentLocal,
			Dir:        filepath.Join(dataDir, "content"),
			APIURL:     "http://127.0.0.1:5001",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "blockbox/1.0",
		},
		Registry: RegistryConfig{
			Backend: RegistryJSON,
			Dir:     filepath.Join(dataDir, "registry"),
		},
		Upload: UploadConfig{
			MaxConcurrent: 1,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			MaxFileSize:   100 * 1024 * 1024, // 100MB
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			ExportDir: "downloads",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Content.Backend {
	case ContentLocal:
		if c.Content.Dir == "" {
			return errors.New("content.dir is required for the local backend")
		}
	case ContentIPFS:
		if c.Content.APIURL == "" {
			return errors.New("content.api_url is required for the ipfs backend")
		}
	case ContentS3:
		if c.Content.Bucket == "" {
			return errors.New("content.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid content backend: %s", c.Content.Backend)
	}

	if c.Content.Timeout <= 0 {
		return errors.New("content.timeout must be positive")
	}

	if c.Content.MaxRetries < 0 {
		return errors.New("content.max_retries must not be negative")
	}

	switch c.Registry.Backend {
	case RegistryJSON, RegistrySQLite, RegistryBolt:
		if c.Registry.Dir == "" {
			return errors.New("registry.dir is required")
		}
	case RegistryDynamoDB:
		if c.Registry.Table == "" {
			return errors.New("registry.table is required for the dynamodb backend")
		}
	case RegistryS3:
		if c.Registry.Bucket == "" {
			return errors.New("registry.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid registry backend: %s", c.Registry.Backend)
	}

	if c.Upload.MaxConcurrent <= 0 {
		return errors.New("upload.max_concurrent must be positive")
	}

	if c.Upload.RetryAttempts < 0 {
		return errors.New("upload.retry_attempts must not be negative")
	}

	if c.Upload.MaxFileSize <= 0 {
		return errors.New("upload.max_file_size must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDir}

	if c.Content.Backend == ContentLocal {
		dirs = append(dirs, c.Content.Dir)
	}
	switch c.Registry.Backend {
	case RegistryJSON, RegistrySQLite, RegistryBolt:
		dirs = append(dirs, c.Registry.Dir)
	}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
