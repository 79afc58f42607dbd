// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the daemon's settings from a TOML
// file, with OTA_-prefixed environment variables overriding file values
// and built-in defaults filling in the rest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arbor-embedded/otad/pkg/errs"
)

const (
	// EnvPrefix is the environment variable prefix Viper binds for overrides.
	EnvPrefix = "OTA"
	ConfigType = "toml"

	DefaultMDNSService     = "_ota._tcp.local"
	DefaultCheckInterval   = 10 * time.Minute
	DefaultMaxRetries      = 3
	DefaultDownloadTimeout = 90 * time.Second
	DefaultLogLevel        = "info"
	DefaultLockFileName    = ".ota.lock"
	DefaultHistoryFileName = "ota_update_history.json"
)

// Config is an immutable snapshot produced by loading the config file.
type Config struct {
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	DownloadDir      string        `mapstructure:"download_dir"`
	KernelPath       string        `mapstructure:"kernel_path"`
	BackupPath       string        `mapstructure:"backup_path"`
	MaxRetries       int           `mapstructure:"max_retries"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	MDNSService      string        `mapstructure:"mdns_service"`
	FallbackServer   string        `mapstructure:"fallback_server"`
	SkipFormatCheck  bool          `mapstructure:"skip_format_check"`
	LogLevel         string        `mapstructure:"log_level"`
	LockFile         string        `mapstructure:"lock_file"`
	WorkingDir       string        `mapstructure:"working_dir"`
}

// HistoryPath returns the well-known path of the update history log.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.workingDir(), DefaultHistoryFileName)
}

func (c *Config) workingDir() string {
	if c.WorkingDir != "" {
		return c.WorkingDir
	}
	return "."
}

// Validate checks the invariants from the data model: backup_path must
// differ from kernel_path and reside on the same filesystem, and
// download_dir must exist and be writable.
func (c *Config) Validate() error {
	if c.CheckInterval < time.Minute {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("check_interval must be >= 1m, got %s", c.CheckInterval))
	}
	if c.DownloadDir == "" || c.KernelPath == "" || c.BackupPath == "" {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("download_dir, kernel_path, and backup_path are required"))
	}
	if !filepath.IsAbs(c.DownloadDir) || !filepath.IsAbs(c.KernelPath) || !filepath.IsAbs(c.BackupPath) {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("download_dir, kernel_path, and backup_path must be absolute paths"))
	}
	if c.BackupPath == c.KernelPath {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("backup_path must differ from kernel_path"))
	}
	if c.MaxRetries < 0 {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("max_retries must be non-negative"))
	}
	if c.MDNSService == "" {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("mdns_service is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("log_level must be one of debug,info,warn,error, got %q", c.LogLevel))
	}

	info, err := os.Stat(c.DownloadDir)
	if err != nil {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("download_dir %s: %w", c.DownloadDir, err))
	}
	if !info.IsDir() {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("download_dir %s is not a directory", c.DownloadDir))
	}
	if err := unix.Access(c.DownloadDir, unix.W_OK); err != nil {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("download_dir %s is not writable: %w", c.DownloadDir, err))
	}

	var kernelDir, backupDir unix.Stat_t
	if err := unix.Stat(filepath.Dir(c.KernelPath), &kernelDir); err != nil {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("kernel_path directory: %w", err))
	}
	if err := unix.Stat(filepath.Dir(c.BackupPath), &backupDir); err != nil {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("backup_path directory: %w", err))
	}
	if kernelDir.Dev != backupDir.Dev {
		return errs.New(errs.KindConfig, "config.validate", fmt.Errorf("backup_path must be on the same filesystem as kernel_path"))
	}

	return nil
}

// Load reads the TOML config at path, applies defaults for missing
// optional keys, and validates every invariant.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "config.load", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		return nil, errs.New(errs.KindConfig, "config.load", fmt.Errorf("decode config: %w", err))
	}
	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(cfg.workingDir(), DefaultLockFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault emits a template config file at path if one is not
// already present. Idempotent: a pre-existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

const defaultTemplate = `# OTA kernel updater configuration.
check_interval = "10m"
download_dir = "/var/lib/ota/downloads"
kernel_path = "/boot/Image"
backup_path = "/boot/Image.bak"
max_retries = 3
download_timeout = "90s"
mdns_service = "_ota._tcp.local"
fallback_server = ""
skip_format_check = false
log_level = "info"
lock_file = "/var/lib/ota/.ota.lock"
`
