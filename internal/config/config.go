// Package config handles loading and validation of the wgconf tool configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wgconf/wgconf/internal/manage"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/repo"
	"github.com/wgconf/wgconf/pkg/bytesize"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the tool looks for its configuration file.
const DefaultPath = "/etc/wgconf/wgconf.yaml"

// Config holds the tool settings. Command-line flags override them.
type Config struct {
	ConfigDir       string `yaml:"config_dir"`       // directory holding the WireGuard files
	CoordinatorFile string `yaml:"coordinator_file"` // file name of the coordinator inside ConfigDir
	BackupDir       string `yaml:"backup_dir"`
	StagingDir      string `yaml:"staging_dir"`
	DisableBackup   bool   `yaml:"disable_backup"`

	// Endpoint is the coordinator's public host:port written into new peers.
	Endpoint            string `yaml:"endpoint"`
	PersistentKeepalive string `yaml:"persistent_keepalive"`

	LogLevel        string `yaml:"log_level"`
	MetricsTextfile string `yaml:"metrics_textfile"` // empty disables metrics output
	ArchiveDir      string `yaml:"archive_dir"`

	// MinFreeSpace is the free space below which check warns, e.g. "1MB".
	MinFreeSpace string `yaml:"min_free_space"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ConfigDir == "" {
		c.ConfigDir = "/etc/wireguard"
	}
	if c.CoordinatorFile == "" {
		c.CoordinatorFile = model.DefaultCoordinatorFile
	}
	if c.BackupDir == "" {
		c.BackupDir = repo.DefaultBackupDir
	}
	if c.StagingDir == "" {
		c.StagingDir = repo.DefaultStagingDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MinFreeSpace == "" {
		c.MinFreeSpace = "1MB"
	}

	c.ConfigDir = expandHome(c.ConfigDir)
	c.MetricsTextfile = expandHome(c.MetricsTextfile)
	c.ArchiveDir = expandHome(c.ArchiveDir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("config_dir is required")
	}
	if !isBaseName(c.CoordinatorFile) || !strings.HasSuffix(c.CoordinatorFile, ".conf") {
		return fmt.Errorf("coordinator_file %q must be a file name ending in .conf", c.CoordinatorFile)
	}
	if !isBaseName(c.BackupDir) || !isBaseName(c.StagingDir) {
		return fmt.Errorf("backup_dir and staging_dir must be plain directory names")
	}
	if c.BackupDir == c.StagingDir {
		return fmt.Errorf("backup_dir and staging_dir must differ")
	}
	if c.Endpoint != "" {
		if err := manage.ValidateEndpoint(c.Endpoint); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}
	if err := manage.ValidateValue("PersistentKeepalive", c.PersistentKeepalive); err != nil {
		return fmt.Errorf("persistent_keepalive: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := bytesize.Parse(c.MinFreeSpace); err != nil {
		return fmt.Errorf("min_free_space: %w", err)
	}
	return nil
}

func isBaseName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
