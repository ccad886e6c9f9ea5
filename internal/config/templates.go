package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed templates/savesync.env
var embeddedEnvTemplate string

// envTemplate is swapped by tests.
var envTemplate = embeddedEnvTemplate

// DefaultEnvTemplate returns the configuration template shipped with the binary.
func DefaultEnvTemplate() string {
	return envTemplate
}

// WriteDefaultConfig writes the template to path. An existing file is left
// untouched unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(DefaultEnvTemplate()), 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write config template: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install config template: %w", err)
	}
	return nil
}
