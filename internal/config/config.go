// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates .quipu/config.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quipu-vcs/quipu/internal/history"
)

// StorageType selects which Writer/Reader backend the Engine constructs.
type StorageType string

const (
	StorageGitObject  StorageType = "git_object"
	StorageSQLite     StorageType = "sqlite"
	StorageFilesystem StorageType = "filesystem"
)

// Path is the conventional config file location, relative to a repository
// root.
const Path = ".quipu/config.yml"

// Sync holds the sync/subscription settings.
type Sync struct {
	UserID            string   `yaml:"user_id"`
	Subscriptions     []string `yaml:"subscriptions"`
	PersistentIgnores []string `yaml:"persistent_ignores"`
}

// Storage holds storage backend selection.
type Storage struct {
	Type StorageType `yaml:"type"`
}

// Config is the decoded form of .quipu/config.yml.
type Config struct {
	Sync    Sync    `yaml:"sync"`
	Storage Storage `yaml:"storage"`
}

// defaulted fills in zero-value fields with their documented defaults.
func (c *Config) defaulted() *Config {
	if c.Storage.Type == "" {
		c.Storage.Type = StorageGitObject
	}
	return c
}

// Load reads and parses the config file at root's conventional path. A
// missing file is not an error: it returns the all-defaults Config.
func Load(root string) (*Config, error) {
	raw, err := os.ReadFile(filepath.Join(root, Path))
	if err != nil {
		if os.IsNotExist(err) {
			return (&Config{}).defaulted(), nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", history.ErrConfigError, Path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", history.ErrConfigError, Path, err)
	}

	switch cfg.Storage.Type {
	case "", StorageGitObject, StorageSQLite, StorageFilesystem:
	default:
		return nil, fmt.Errorf("%w: unrecognized storage.type %q", history.ErrConfigError, cfg.Storage.Type)
	}

	return cfg.defaulted(), nil
}

// LocalOwner returns sync.user_id from root's config, falling back to
// "local" when unconfigured or the config can't be read. It is the shared
// definition of "this machine's owner id" used by every binary that
// attributes nodes or rewrites refs.
func LocalOwner(root string) string {
	cfg, err := Load(root)
	if err != nil || cfg.Sync.UserID == "" {
		return "local"
	}
	return cfg.Sync.UserID
}
