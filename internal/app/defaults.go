package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the locations used when no flag says otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
}

// GetDefaults resolves the default locations. Each is taken from the first
// source that is set:
//
//	config: $ECORPUS_CONFIG_PATH, $XDG_CONFIG_HOME/ecorpus.toml, ~/.config/ecorpus.toml
//	data:   $ECORPUS_HOME, $XDG_DATA_HOME/ecorpus, ~/.local/share/ecorpus
func GetDefaults() (*Defaults, error) {
	configPath, err := resolveDir("ECORPUS_CONFIG_PATH", "XDG_CONFIG_HOME", "ecorpus.toml", ".config")
	if err != nil {
		return nil, err
	}
	baseDir, err := resolveDir("ECORPUS_HOME", "XDG_DATA_HOME", "ecorpus", filepath.Join(".local", "share"))
	if err != nil {
		return nil, err
	}
	return &Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}

// resolveDir returns $override, else $xdgVar/name, else ~/homeRel/name.
func resolveDir(override, xdgVar, name, homeRel string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdgVar); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, homeRel, name), nil
}
