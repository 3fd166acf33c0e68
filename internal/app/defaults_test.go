package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		name       string
		env        map[string]string
		wantConfig string
		wantBase   string
	}{
		{
			name: "explicit overrides win",
			env: map[string]string{
				"ECORPUS_CONFIG_PATH": "/custom/config.toml",
				"ECORPUS_HOME":        "/custom/ecorpus",
				"XDG_CONFIG_HOME":     "/xdg/config",
				"XDG_DATA_HOME":       "/xdg/data",
			},
			wantConfig: "/custom/config.toml",
			wantBase:   "/custom/ecorpus",
		},
		{
			name: "xdg directories",
			env: map[string]string{
				"XDG_CONFIG_HOME": "/xdg/config",
				"XDG_DATA_HOME":   "/xdg/data",
			},
			wantConfig: "/xdg/config/ecorpus.toml",
			wantBase:   "/xdg/data/ecorpus",
		},
		{
			name: "relative xdg directories are ignored",
			env: map[string]string{
				"XDG_CONFIG_HOME": "config",
				"XDG_DATA_HOME":   "data",
			},
			wantConfig: filepath.Join(home, ".config", "ecorpus.toml"),
			wantBase:   filepath.Join(home, ".local", "share", "ecorpus"),
		},
		{
			name:       "home directory fallback",
			wantConfig: filepath.Join(home, ".config", "ecorpus.toml"),
			wantBase:   filepath.Join(home, ".local", "share", "ecorpus"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"ECORPUS_CONFIG_PATH", "ECORPUS_HOME", "XDG_CONFIG_HOME", "XDG_DATA_HOME"} {
				t.Setenv(key, tt.env[key])
			}

			d, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if d.ConfigPath != tt.wantConfig {
				t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, tt.wantConfig)
			}
			if d.BaseDir != tt.wantBase {
				t.Errorf("BaseDir = %q, want %q", d.BaseDir, tt.wantBase)
			}
		})
	}
}
