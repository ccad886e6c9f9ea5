package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const upgradeTemplate = `ROM_DIRECTORY=/default/roms
LOG_PATH=/default/log
KEY1=template
`

func withTemplate(t *testing.T, tmpl string, fn func()) {
	t.Helper()
	prev := envTemplate
	envTemplate = tmpl
	defer func() { envTemplate = prev }()
	fn()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "savesync.env")
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to seed config: %v", err)
	}
	return configPath
}

func TestPlanUpgradeConfigNoChanges(t *testing.T) {
	withTemplate(t, upgradeTemplate, func() {
		configPath := writeConfig(t, upgradeTemplate)

		result, err := PlanUpgradeConfigFile(configPath)
		if err != nil {
			t.Fatalf("PlanUpgradeConfigFile returned error: %v", err)
		}
		if result.Changed {
			t.Fatalf("result.Changed = true; want false for identical config")
		}
		if result.PreservedValues != 3 {
			t.Fatalf("PreservedValues = %d; want 3", result.PreservedValues)
		}
	})
}

func TestUpgradeConfigAddsMissingKeys(t *testing.T) {
	withTemplate(t, upgradeTemplate, func() {
		configPath := writeConfig(t, "ROM_DIRECTORY=/legacy\n")

		result, err := UpgradeConfigFile(configPath)
		if err != nil {
			t.Fatalf("UpgradeConfigFile returned error: %v", err)
		}
		if !result.Changed {
			t.Fatalf("expected result.Changed=true for missing keys")
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read upgraded config: %v", err)
		}
		content := string(data)
		if !strings.Contains(content, "ROM_DIRECTORY=/legacy") {
			t.Fatalf("upgraded config does not keep legacy ROM_DIRECTORY: %s", content)
		}
		if !strings.Contains(content, "LOG_PATH=/default/log") {
			t.Fatalf("upgraded config missing template key LOG_PATH")
		}
	})
}

func TestPlanUpgradeTracksExtraKeysWithoutWriting(t *testing.T) {
	withTemplate(t, upgradeTemplate, func() {
		content := "ROM_DIRECTORY=/legacy\nEXTRA_KEY=value\n"
		configPath := writeConfig(t, content)

		result, err := PlanUpgradeConfigFile(configPath)
		if err != nil {
			t.Fatalf("PlanUpgradeConfigFile returned error: %v", err)
		}
		if len(result.ExtraKeys) != 1 || result.ExtraKeys[0] != "EXTRA_KEY" {
			t.Fatalf("ExtraKeys = %v; want [EXTRA_KEY]", result.ExtraKeys)
		}
		if result.BackupPath != "" {
			t.Fatalf("dry run must not report a backup, got %q", result.BackupPath)
		}
		data, _ := os.ReadFile(configPath)
		if string(data) != content {
			t.Fatalf("dry run modified the file: %q", data)
		}
	})
}

func TestUpgradeConfigCreatesBackupAndCustomSection(t *testing.T) {
	withTemplate(t, upgradeTemplate, func() {
		legacy := "ROM_DIRECTORY=/legacy\nEXTRA_KEY=value\n"
		configPath := writeConfig(t, legacy)

		result, err := UpgradeConfigFile(configPath)
		if err != nil {
			t.Fatalf("UpgradeConfigFile returned error: %v", err)
		}
		if result.BackupPath == "" {
			t.Fatal("expected BackupPath to be populated after upgrade")
		}
		backupContent, err := os.ReadFile(result.BackupPath)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if string(backupContent) != legacy {
			t.Fatalf("backup content mismatch: got %q want %q", string(backupContent), legacy)
		}

		updated, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read upgraded config: %v", err)
		}
		content := string(updated)
		if !strings.Contains(content, "Custom keys preserved") {
			t.Fatalf("expected custom section header, got: %s", content)
		}
		if !strings.Contains(content, "EXTRA_KEY=value") {
			t.Fatalf("expected EXTRA_KEY preserved, got: %s", content)
		}
	})
}

func TestUpgradeConfigRestoresBackupWhenResultInvalid(t *testing.T) {
	withTemplate(t, "AUTO_BACKUP_MODE=simple\nKEY1=x\n", func() {
		legacy := "AUTO_BACKUP_MODE=bogus\n"
		configPath := writeConfig(t, legacy)

		if _, err := UpgradeConfigFile(configPath); err == nil {
			t.Fatal("expected error for config that does not load after upgrade")
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("read config: %v", err)
		}
		if string(data) != legacy {
			t.Fatalf("expected original content restored, got %q", data)
		}
	})
}

func TestPlanUpgradeEmptyPath(t *testing.T) {
	if _, err := PlanUpgradeConfigFile("   "); err == nil {
		t.Fatal("expected error for empty config path")
	}
}

func TestComputeConfigUpgradePreservesValuesAndCRLF(t *testing.T) {
	template := "AGE_RECIPIENT=\nKEY2=default2\nKEY3=default3\n"
	withTemplate(t, template, func() {
		configPath := writeConfig(t, "AGE_RECIPIENT=age1a\r\nAGE_RECIPIENT=age1b\r\n")

		result, newContent, _, err := computeConfigUpgrade(configPath)
		if err != nil {
			t.Fatalf("computeConfigUpgrade returned error: %v", err)
		}
		if !result.Changed {
			t.Fatal("expected result.Changed=true when keys missing")
		}
		if result.PreservedValues != 2 {
			t.Fatalf("PreservedValues = %d; want 2", result.PreservedValues)
		}
		if len(result.MissingKeys) != 2 || result.MissingKeys[0] != "KEY2" || result.MissingKeys[1] != "KEY3" {
			t.Fatalf("MissingKeys = %v; want [KEY2 KEY3]", result.MissingKeys)
		}
		if !strings.Contains(newContent, "AGE_RECIPIENT=age1a\r\nAGE_RECIPIENT=age1b\r\n") {
			t.Fatalf("upgraded content missing preserved values or CRLF:\n%q", newContent)
		}
	})
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "savesync.env")
	if err := WriteDefaultConfig(path, false); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != DefaultEnvTemplate() {
		t.Fatalf("written file differs from template")
	}
	if err := WriteDefaultConfig(path, false); err == nil {
		t.Fatal("expected error when file exists and force is false")
	}
	if err := WriteDefaultConfig(path, true); err != nil {
		t.Fatalf("forced WriteDefaultConfig: %v", err)
	}
}
