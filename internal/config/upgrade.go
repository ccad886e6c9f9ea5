package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tis24dev/savesync/pkg/utils"
)

// UpgradeResult describes what a configuration upgrade did (or would do).
type UpgradeResult struct {
	// BackupPath is the copy of the previous file; empty for a dry run.
	BackupPath string
	// MissingKeys were absent from the user's file and got template defaults.
	MissingKeys []string
	// ExtraKeys are unknown to the template and kept in a "Custom keys" section.
	ExtraKeys []string
	// PreservedValues counts user KEY=VALUE lines kept for template keys.
	PreservedValues int
	Changed         bool
}

// userEntries keeps every value of every key in first-seen order.
type userEntries struct {
	order  []string
	values map[string][]string
}

func collectUserEntries(lines []string) userEntries {
	entries := userEntries{values: make(map[string][]string)}
	for _, line := range lines {
		if utils.IsComment(line) {
			continue
		}
		key, value, ok := utils.SplitKeyValue(line)
		if !ok || key == "" {
			continue
		}
		if _, seen := entries.values[key]; !seen {
			entries.order = append(entries.order, key)
		}
		entries.values[key] = append(entries.values[key], value)
	}
	return entries
}

// UpgradeConfigFile rewrites configPath on top of the embedded template: the
// template layout and comments are kept, user values win for known keys, new
// keys get their defaults and unknown keys move to a trailing custom section.
// The previous file is saved as <path>.backup.<timestamp>; if the result no
// longer loads, the backup is restored.
func UpgradeConfigFile(configPath string) (*UpgradeResult, error) {
	result, newContent, originalContent, err := computeConfigUpgrade(configPath)
	if err != nil || !result.Changed {
		return result, err
	}

	mode := os.FileMode(0o600)
	if info, statErr := os.Stat(configPath); statErr == nil {
		mode = info.Mode() & os.ModePerm
	}

	backupPath := fmt.Sprintf("%s.backup.%s", configPath, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, originalContent, mode); err != nil {
		return result, fmt.Errorf("failed to create backup %s: %w", backupPath, err)
	}
	if err := replaceFile(configPath, []byte(newContent), mode); err != nil {
		return result, err
	}
	result.BackupPath = backupPath

	if _, err := LoadConfig(configPath); err != nil {
		_ = os.Rename(backupPath, configPath)
		return result, fmt.Errorf("upgraded config invalid, restored backup: %w", err)
	}
	return result, nil
}

// PlanUpgradeConfigFile reports what UpgradeConfigFile would change without
// touching the file.
func PlanUpgradeConfigFile(configPath string) (*UpgradeResult, error) {
	result, _, _, err := computeConfigUpgrade(configPath)
	result.BackupPath = ""
	return result, err
}

func replaceFile(path string, data []byte, mode os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary config %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config %s: %w", path, err)
	}
	return nil
}

func computeConfigUpgrade(configPath string) (*UpgradeResult, string, []byte, error) {
	result := &UpgradeResult{}

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		return result, "", nil, fmt.Errorf("configuration path is empty")
	}

	originalContent, err := os.ReadFile(configPath)
	if err != nil {
		return result, "", nil, fmt.Errorf("cannot read configuration file %s: %w", configPath, err)
	}

	lineEnding := "\n"
	if strings.Contains(string(originalContent), "\r\n") {
		lineEnding = "\r\n"
	}
	user := collectUserEntries(splitLines(string(originalContent)))

	template := strings.ReplaceAll(DefaultEnvTemplate(), "\r\n", "\n")
	templateKeys := make(map[string]bool)
	var out []string

	for _, line := range strings.Split(template, "\n") {
		key, _, ok := utils.SplitKeyValue(line)
		if utils.IsComment(line) || !ok || key == "" {
			out = append(out, line)
			continue
		}
		templateKeys[key] = true

		values := user.values[key]
		if len(values) == 0 {
			result.MissingKeys = append(result.MissingKeys, key)
			out = append(out, line)
			continue
		}
		for _, v := range values {
			out = append(out, key+"="+v)
		}
		result.PreservedValues += len(values)
	}

	var custom []string
	for _, key := range user.order {
		if templateKeys[key] {
			continue
		}
		result.ExtraKeys = append(result.ExtraKeys, key)
		for _, v := range user.values[key] {
			custom = append(custom, key+"="+v)
		}
	}
	if len(custom) > 0 {
		out = append(out,
			"",
			"# ----------------------------------------------------------------------",
			"# Custom keys preserved from previous configuration (not present in template)",
			"# ----------------------------------------------------------------------",
		)
		out = append(out, custom...)
	}

	if len(result.MissingKeys) == 0 && len(result.ExtraKeys) == 0 {
		return result, "", originalContent, nil
	}

	newContent := strings.Join(out, lineEnding)
	if strings.HasSuffix(template, "\n") && !strings.HasSuffix(newContent, lineEnding) {
		newContent += lineEnding
	}
	result.Changed = true
	return result, newContent, originalContent, nil
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}
