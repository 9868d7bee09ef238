package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for instancekit
type Config struct {
	// Workspace layout
	Root             string `yaml:"root" env:"INSTANCEKIT_ROOT"`
	ScriptDirname    string `yaml:"script_dirname"`
	InstanceDirname  string `yaml:"instance_dirname"`
	ArchetypeDirname string `yaml:"archetype_dirname"`
	CodebaseDirname  string `yaml:"codebase_dirname"`

	// Extra executable search paths for spawned commands, after the
	// scripts directory
	ExtraPaths []string `yaml:"extra_paths" env:"INSTANCEKIT_EXTRA_PATHS"`

	// Process I/O tuning
	BufferSize int    `yaml:"buffer_size" env:"INSTANCEKIT_BUFFER_SIZE"`
	Encoding   string `yaml:"encoding" env:"INSTANCEKIT_ENCODING"`

	// Debug enables verbose logging
	Debug bool `yaml:"debug" env:"INSTANCEKIT_DEBUG"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ScriptDirname:    "scripts",
		InstanceDirname:  "instances",
		ArchetypeDirname: "archetypes",
		CodebaseDirname:  "codebase",
		BufferSize:       512,
		Encoding:         "utf-8",
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if path := os.Getenv("INSTANCEKIT_CONFIG"); path != "" {
		return path
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "instancekit", "config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "instancekit", "config.yaml")
	}

	return ""
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (env var or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if root := os.Getenv("INSTANCEKIT_ROOT"); root != "" {
		cfg.Root = root
	}

	if paths := os.Getenv("INSTANCEKIT_EXTRA_PATHS"); paths != "" {
		cfg.ExtraPaths = filepath.SplitList(paths)
	}

	if size := os.Getenv("INSTANCEKIT_BUFFER_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid INSTANCEKIT_BUFFER_SIZE: %w", err)
		}
		cfg.BufferSize = n
	}

	if enc := os.Getenv("INSTANCEKIT_ENCODING"); enc != "" {
		cfg.Encoding = enc
	}

	if debug := os.Getenv("INSTANCEKIT_DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "true", "1", "yes":
			cfg.Debug = true
		case "false", "0", "no":
			cfg.Debug = false
		default:
			return fmt.Errorf("invalid INSTANCEKIT_DEBUG: %q", debug)
		}
	}

	return nil
}

// validate checks the configuration for invalid values
func validate(cfg *Config) error {
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", cfg.BufferSize)
	}
	for _, name := range []string{
		cfg.ScriptDirname, cfg.InstanceDirname, cfg.ArchetypeDirname, cfg.CodebaseDirname,
	} {
		if name == "" {
			return fmt.Errorf("directory names must not be empty")
		}
		if strings.ContainsRune(name, os.PathSeparator) {
			return fmt.Errorf("directory name %q must not contain path separators", name)
		}
	}
	return nil
}
