// Package serverconfig loads and saves this server's own YAML
// configuration file: which databases it serves, where their files live,
// the shared package cache directories, and the mirror used to pull
// binaries that aren't cached locally yet.
package serverconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig describes one repository database this server manages.
type DatabaseConfig struct {
	Name           string   `yaml:"name"`
	Arch           string   `yaml:"arch"`
	Path           string   `yaml:"path"`
	FilesPath      string   `yaml:"files_path,omitempty"`
	LocalPkgDir    string   `yaml:"local_pkg_dir"`
	Mirrors        []string `yaml:"mirrors,omitempty"`
	SyncFromMirror bool     `yaml:"sync_from_mirror"`
}

// Config is this server's top-level configuration.
type Config struct {
	ListenAddress    string           `yaml:"listen_address"`
	StoragePath      string           `yaml:"storage_path"`
	PackageCacheDirs []string         `yaml:"package_cache_dirs"`
	Architectures    []string         `yaml:"architectures"`
	Databases        []DatabaseConfig `yaml:"databases"`
	WorkingDirectory string           `yaml:"working_directory"`
	Debug            bool             `yaml:"debug"`
}

// DefaultConfig returns a Config with reasonable defaults for a
// single-node deployment.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:    "127.0.0.1:8080",
		StoragePath:      defaultStoragePath(),
		Architectures:    []string{"x86_64"},
		WorkingDirectory: defaultWorkingDirectory(),
		Debug:            false,
	}
}

// Load reads a Config from path, falling back to DefaultConfig if path
// doesn't exist (or is empty, in which case the default config location is
// tried first).
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("serverconfig: reading %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("serverconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating its parent directory if needed.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = defaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("serverconfig: creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serverconfig: marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("serverconfig: writing %s: %w", path, err)
	}
	return nil
}

func defaultConfigPath() string {
	if path := os.Getenv("REPOMGR_CONFIG"); path != "" {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "repomgr", "config.yaml")
	}
	return "/etc/repomgr/config.yaml"
}

func defaultStoragePath() string {
	if path := os.Getenv("REPOMGR_STORAGE_PATH"); path != "" {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "repomgr", "repomgr.db")
	}
	return "/var/lib/repomgr/repomgr.db"
}

func defaultWorkingDirectory() string {
	if dir := os.Getenv("REPOMGR_WORKING_DIR"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "repomgr", "working")
	}
	return "/var/lib/repomgr/working"
}
