package app

import (
	"path/filepath"
	"testing"
)

func TestGetDefaults_EnvOverrides(t *testing.T) {
	t.Setenv("DUPENUKEM_CONFIG_PATH", "/custom/config.toml")
	t.Setenv("DUPENUKEM_HOME", "/custom/home")

	defaults, err := GetDefaults()
	if err != nil {
		t.Fatalf("GetDefaults() error = %v", err)
	}

	if defaults["config_path"] != "/custom/config.toml" {
		t.Errorf("config_path = %q, want /custom/config.toml", defaults["config_path"])
	}
	if defaults["base_dir"] != "/custom/home" {
		t.Errorf("base_dir = %q, want /custom/home", defaults["base_dir"])
	}
	if want := filepath.Join("/custom/home", "log"); defaults["log_dir"] != want {
		t.Errorf("log_dir = %q, want %q", defaults["log_dir"], want)
	}
}

func TestGetDefaults_HomeFallback(t *testing.T) {
	t.Setenv("DUPENUKEM_CONFIG_PATH", "")
	t.Setenv("DUPENUKEM_HOME", "")
	t.Setenv("HOME", "/home/testuser")

	defaults, err := GetDefaults()
	if err != nil {
		t.Fatalf("GetDefaults() error = %v", err)
	}

	if want := "/home/testuser/.config/dupenukem.toml"; defaults["config_path"] != want {
		t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
	}
	if want := "/home/testuser/.dupenukem"; defaults["base_dir"] != want {
		t.Errorf("base_dir = %q, want %q", defaults["base_dir"], want)
	}
}
