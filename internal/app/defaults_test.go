package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("VBT_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("VBT_HOME", "/custom/vbt")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/vbt" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/vbt")
		}
		if defaults["log_dir"] != "/custom/vbt/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/vbt/log")
		}
		if defaults["status_path"] != "/custom/vbt/status" {
			t.Errorf("status_path = %q, want %q", defaults["status_path"], "/custom/vbt/status")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("VBT_CONFIG_PATH", "")
		t.Setenv("VBT_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "vbt.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "vbt")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantStatus := filepath.Join(wantBase, "status")
		if defaults["status_path"] != wantStatus {
			t.Errorf("status_path = %q, want %q", defaults["status_path"], wantStatus)
		}
	})
}
