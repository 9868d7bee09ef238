package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// clearEnv isolates a test from ambient instancekit variables.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"INSTANCEKIT_CONFIG",
		"INSTANCEKIT_ROOT",
		"INSTANCEKIT_EXTRA_PATHS",
		"INSTANCEKIT_BUFFER_SIZE",
		"INSTANCEKIT_ENCODING",
		"INSTANCEKIT_DEBUG",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ScriptDirname != "scripts" {
		t.Errorf("ScriptDirname = %q", cfg.ScriptDirname)
	}
	if cfg.InstanceDirname != "instances" {
		t.Errorf("InstanceDirname = %q", cfg.InstanceDirname)
	}
	if cfg.ArchetypeDirname != "archetypes" {
		t.Errorf("ArchetypeDirname = %q", cfg.ArchetypeDirname)
	}
	if cfg.CodebaseDirname != "codebase" {
		t.Errorf("CodebaseDirname = %q", cfg.CodebaseDirname)
	}
	if cfg.BufferSize != 512 {
		t.Errorf("BufferSize = %d, want 512", cfg.BufferSize)
	}
	if cfg.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", cfg.Encoding)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `root: /srv/work
instance_dirname: envs
extra_paths:
  - /opt/bin
buffer_size: 1024
encoding: latin1
debug: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSTANCEKIT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Root != "/srv/work" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.InstanceDirname != "envs" {
		t.Errorf("InstanceDirname = %q", cfg.InstanceDirname)
	}
	// Untouched fields keep their defaults.
	if cfg.ScriptDirname != "scripts" {
		t.Errorf("ScriptDirname = %q", cfg.ScriptDirname)
	}
	if !reflect.DeepEqual(cfg.ExtraPaths, []string{"/opt/bin"}) {
		t.Errorf("ExtraPaths = %v", cfg.ExtraPaths)
	}
	if cfg.BufferSize != 1024 {
		t.Errorf("BufferSize = %d", cfg.BufferSize)
	}
	if cfg.Encoding != "latin1" {
		t.Errorf("Encoding = %q", cfg.Encoding)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("root: /from/file\nbuffer_size: 256\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSTANCEKIT_CONFIG", path)
	t.Setenv("INSTANCEKIT_ROOT", "/from/env")
	t.Setenv("INSTANCEKIT_BUFFER_SIZE", "2048")
	t.Setenv("INSTANCEKIT_EXTRA_PATHS", "/a:/b")
	t.Setenv("INSTANCEKIT_DEBUG", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Root != "/from/env" {
		t.Errorf("Root = %q, want /from/env", cfg.Root)
	}
	if cfg.BufferSize != 2048 {
		t.Errorf("BufferSize = %d, want 2048", cfg.BufferSize)
	}
	if !reflect.DeepEqual(cfg.ExtraPaths, []string{"/a", "/b"}) {
		t.Errorf("ExtraPaths = %v", cfg.ExtraPaths)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestMissingFileIsFine(t *testing.T) {
	clearEnv(t)
	t.Setenv("INSTANCEKIT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferSize != 512 {
		t.Errorf("BufferSize = %d, want default", cfg.BufferSize)
	}
}

func TestInvalidEnvValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"INSTANCEKIT_BUFFER_SIZE", "not-a-number"},
		{"INSTANCEKIT_DEBUG", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("INSTANCEKIT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, true},
		{"negative buffer", func(c *Config) { c.BufferSize = -1 }, true},
		{"empty dirname", func(c *Config) { c.InstanceDirname = "" }, true},
		{"dirname with separator", func(c *Config) { c.ScriptDirname = "a/b" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
