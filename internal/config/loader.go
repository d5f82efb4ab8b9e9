package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BLOCKBOX_LOG_LEVEL.
const EnvPrefix = "BLOCKBOX"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations and tolerates a missing file.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Viper exposes the underlying instance so CLI flags can be bound to keys.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("blockbox")
		for _, dir := range l.defaultPaths() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", l.v.ConfigFileUsed(), err)
			}
		}
	}

	// BLOCKBOX_IDENTITY names the identity table itself under AutomaticEnv
	// and hides identity.address, so the alias is applied here. A bound flag
	// or BLOCKBOX_IDENTITY_ADDRESS still takes precedence.
	if alias := os.Getenv(EnvPrefix + "_IDENTITY"); alias != "" && l.v.GetString("identity.address") == "" {
		l.v.Set("identity.address", alias)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed reports the file Load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// defaultPaths returns default config directories.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "blockbox"),
			filepath.Join(homeDir, ".blockbox"),
		)
	}

	return paths
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("identity.address", cfg.Identity.Address)

	v.SetDefault("content.backend", cfg.Content.Backend)
	v.SetDefault("content.dir", cfg.Content.Dir)
	v.SetDefault("content.api_url", cfg.Content.APIURL)
	v.SetDefault("content.timeout", cfg.Content.Timeout)
	v.SetDefault("content.max_retries", cfg.Content.MaxRetries)
	v.SetDefault("content.user_agent", cfg.Content.UserAgent)
	v.SetDefault("content.api_token", cfg.Content.APIToken)
	v.SetDefault("content.token_file", cfg.Content.TokenFile)
	v.SetDefault("content.token_secret_id", cfg.Content.TokenSecretID)
	v.SetDefault("content.bucket", cfg.Content.Bucket)
	v.SetDefault("content.prefix", cfg.Content.Prefix)
	v.SetDefault("content.region", cfg.Content.Region)

	v.SetDefault("registry.backend", cfg.Registry.Backend)
	v.SetDefault("registry.dir", cfg.Registry.Dir)
	v.SetDefault("registry.table", cfg.Registry.Table)
	v.SetDefault("registry.bucket", cfg.Registry.Bucket)
	v.SetDefault("registry.prefix", cfg.Registry.Prefix)
	v.SetDefault("registry.region", cfg.Registry.Region)

	v.SetDefault("upload.max_concurrent", cfg.Upload.MaxConcurrent)
	v.SetDefault("upload.retry_attempts", cfg.Upload.RetryAttempts)
	v.SetDefault("upload.retry_delay", cfg.Upload.RetryDelay)
	v.SetDefault("upload.max_file_size", cfg.Upload.MaxFileSize)
	v.SetDefault("upload.inline_payload", cfg.Upload.InlinePayload)

	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.export_dir", cfg.Storage.ExportDir)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)
}

// SaveExample writes an example config file. The format follows the file
// extension (json, yaml, toml).
func SaveExample(path string) error {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return os.Chmod(path, 0600)
}
