package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg := LoadWithDefaults()

	if cfg.Provider != "local" {
		t.Errorf("expected default provider local, got %q", cfg.Provider)
	}
	if cfg.Server.Port != 8484 {
		t.Errorf("expected default port 8484, got %d", cfg.Server.Port)
	}
	if cfg.Local.Host != "http://localhost:11434" {
		t.Errorf("expected default local host, got %q", cfg.Local.Host)
	}
	if cfg.Tuning.ClusterThreshold != 0.52 {
		t.Errorf("expected default cluster threshold 0.52, got %g", cfg.Tuning.ClusterThreshold)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config must validate, got: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
root_folder: /tmp/sefs-test-root
provider: remote
server:
  port: 9090
tuning:
  watch_debounce_ms: 500
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RootFolder != "/tmp/sefs-test-root" {
		t.Errorf("expected root folder from file, got %q", cfg.RootFolder)
	}
	if cfg.Provider != "remote" {
		t.Errorf("expected provider remote, got %q", cfg.Provider)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	// Unset keys fall back to defaults.
	if cfg.Server.Bind != DefaultServerBind {
		t.Errorf("expected default bind, got %q", cfg.Server.Bind)
	}
	if cfg.Tuning.WatchDebounceMs != 500 {
		t.Errorf("expected watch debounce 500, got %d", cfg.Tuning.WatchDebounceMs)
	}
	if cfg.Tuning.NoiseThreshold != 0.40 {
		t.Errorf("expected default noise threshold, got %g", cfg.Tuning.NoiseThreshold)
	}
}

func TestLoadFromPath_InvalidProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("provider: cloud\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected validation error for unknown provider")
	}
	if !IsValidationError(err) {
		t.Errorf("expected validation error type, got: %v", err)
	}
	if !strings.Contains(err.Error(), "provider") {
		t.Errorf("expected provider in error, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Provider = "nope"
	cfg.Server.Port = 0
	cfg.Tuning.ClusterThreshold = 1.5

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	ves, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(ves) != 3 {
		t.Errorf("expected 3 validation errors, got %d: %v", len(ves), ves)
	}
}

func TestRemoteConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("SEFS_TEST_API_KEY", "from-env")

	c := RemoteConfig{APIKeyEnv: "SEFS_TEST_API_KEY"}
	if got := c.ResolveAPIKey(); got != "from-env" {
		t.Errorf("expected env fallback, got %q", got)
	}

	inline := "inline-key"
	c.APIKey = &inline
	if got := c.ResolveAPIKey(); got != "inline-key" {
		t.Errorf("expected inline key to win, got %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir available")
	}

	cases := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/sefs_root", filepath.Join(home, "sefs_root")},
		{"/absolute/path", "/absolute/path"},
		{"~user/path", "~user/path"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := expandHome(tc.in); got != tc.want {
			t.Errorf("expandHome(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
