package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tis24dev/savesync/internal/types"
	"github.com/tis24dev/savesync/pkg/utils"
)

var multiValueKeys = map[string]bool{
	"AGE_RECIPIENT": true,
	"RCLONE_FLAGS":  true,
}

// envKeys lists every key that can be overridden from the process environment.
var envKeys = []string{
	"AUTO_BACKUP_ENABLED", "BACKUP_ONLY_WIFI", "AUTO_BACKUP_MODE", "N_ROTATING_BACKUP",
	"BACKUP_MANUAL_SAVE", "BACKUP_AUTO_SAVE", "BACKUP_INGAME_SAVE", "AUTO_SAVE_LOAD",
	"ROM_DIRECTORY", "SAVE_DIRECTORY", "CATALOG_PATH",
	"REMOTE_TYPE", "CLOUD_REMOTE", "EXPORT_FOLDER", "RCLONE_FLAGS", "LOCAL_EXPORT_PATH",
	"NETWORK_PROBE_ADDRESS", "NETWORK_PROBE_TIMEOUT",
	"ENCRYPT_ARCHIVE", "AGE_RECIPIENT", "AGE_RECIPIENT_FILE", "AGE_PASSPHRASE",
	"LOG_PATH", "DEBUG_LEVEL", "USE_COLOR", "METRICS_ENABLED", "METRICS_PATH",
	"WATCH_QUIET_SECONDS",
}

// Config holds the SaveSync configuration.
type Config struct {
	// Auto backup
	AutoBackupEnabled bool
	WifiOnly          bool
	BackupMode        types.BackupMode
	RotatingBackups   int
	BackupManualSave  bool
	BackupAutoSave    bool
	BackupIngameSave  bool
	AutoSaveLoad      bool

	// Local storage
	BaseDir       string
	RomDirectory  string
	SaveDirectory string
	CatalogPath   string

	// Remote
	RemoteType          types.RemoteKind
	CloudRemote         string
	ExportFolder        string
	RcloneFlags         []string
	LocalExportPath     string
	NetworkProbeAddress string
	NetworkProbeTimeout time.Duration

	// Encryption
	EncryptArchive   bool
	AgeRecipients    []string
	AgeRecipientFile string
	AgePassphrase    string

	// Logging & metrics
	LogPath        string
	DebugLevel     types.LogLevel
	UseColor       bool
	MetricsEnabled bool
	MetricsPath    string

	// Watcher
	WatchQuiet time.Duration

	ConfigPath string
	raw        map[string]string
}

// DefaultConfigPath returns the configuration path used when --config is not given.
func DefaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("SAVESYNC_CONFIG")); p != "" {
		return p
	}
	return filepath.Join(baseDir(), "savesync.env")
}

// LoadConfig reads the savesync.env configuration file.
func LoadConfig(configPath string) (*Config, error) {
	if !utils.FileExists(configPath) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	rawValues, err := parseEnvFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ConfigPath: configPath,
		raw:        rawValues,
	}

	// Environment variables take precedence over the file.
	cfg.loadEnvOverrides()

	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadEnvOverrides() {
	for _, key := range envKeys {
		if envValue := os.Getenv(key); envValue != "" {
			c.raw[key] = envValue
		}
	}
}

func (c *Config) parse() error {
	c.BaseDir = baseDir()

	c.AutoBackupEnabled = c.getBool("AUTO_BACKUP_ENABLED", false)
	c.WifiOnly = c.getBool("BACKUP_ONLY_WIFI", true)

	modeRaw := c.getString("AUTO_BACKUP_MODE", string(types.BackupModeSimple))
	mode, ok := types.ParseBackupMode(modeRaw)
	if !ok {
		return fmt.Errorf("invalid AUTO_BACKUP_MODE %q (expected simple or rotating)", modeRaw)
	}
	c.BackupMode = mode

	// A rotation needs at least one slot.
	c.RotatingBackups = c.getInt("N_ROTATING_BACKUP", 3)
	if c.RotatingBackups < 1 {
		c.RotatingBackups = 1
	}

	c.BackupManualSave = c.getBool("BACKUP_MANUAL_SAVE", true)
	c.BackupAutoSave = c.getBool("BACKUP_AUTO_SAVE", true)
	c.BackupIngameSave = c.getBool("BACKUP_INGAME_SAVE", true)
	c.AutoSaveLoad = c.getBool("AUTO_SAVE_LOAD", true)

	c.RomDirectory = utils.ExpandHome(c.getString("ROM_DIRECTORY", filepath.Join(c.BaseDir, "roms")))
	c.SaveDirectory = c.getString("SAVE_DIRECTORY", "saves")
	c.CatalogPath = utils.ExpandHome(c.getString("CATALOG_PATH", filepath.Join(c.BaseDir, "catalog.db")))

	remoteType := strings.ToLower(c.getString("REMOTE_TYPE", string(types.RemoteRclone)))
	switch types.RemoteKind(remoteType) {
	case types.RemoteRclone, types.RemoteLocal:
		c.RemoteType = types.RemoteKind(remoteType)
	default:
		return fmt.Errorf("invalid REMOTE_TYPE %q (expected rclone or local)", remoteType)
	}
	c.CloudRemote = strings.TrimSuffix(c.getString("CLOUD_REMOTE", ""), ":")
	c.ExportFolder = strings.Trim(c.getString("EXPORT_FOLDER", "savesync-export"), "/")
	if c.ExportFolder == "" {
		c.ExportFolder = "savesync-export"
	}
	c.RcloneFlags = c.getFlagList("RCLONE_FLAGS")
	c.LocalExportPath = utils.ExpandHome(c.getString("LOCAL_EXPORT_PATH", ""))
	if c.RemoteType == types.RemoteLocal && c.LocalExportPath == "" {
		return errors.New("LOCAL_EXPORT_PATH is required when REMOTE_TYPE=local")
	}

	c.NetworkProbeAddress = c.getString("NETWORK_PROBE_ADDRESS", "")
	c.NetworkProbeTimeout = time.Duration(c.ensurePositiveInt("NETWORK_PROBE_TIMEOUT", 3)) * time.Second

	c.EncryptArchive = c.getBool("ENCRYPT_ARCHIVE", false)
	c.AgeRecipients = c.getStringSlice("AGE_RECIPIENT", nil)
	c.AgeRecipientFile = utils.ExpandHome(c.getString("AGE_RECIPIENT_FILE", ""))
	c.AgePassphrase = c.raw["AGE_PASSPHRASE"]
	if c.EncryptArchive && len(c.AgeRecipients) == 0 && c.AgeRecipientFile == "" && c.AgePassphrase == "" {
		return errors.New("ENCRYPT_ARCHIVE=true requires AGE_RECIPIENT, AGE_RECIPIENT_FILE or AGE_PASSPHRASE")
	}

	c.LogPath = utils.ExpandHome(c.getString("LOG_PATH", ""))
	c.DebugLevel = c.getLogLevel("DEBUG_LEVEL", types.LogLevelInfo)
	c.UseColor = c.getBool("USE_COLOR", true)
	c.MetricsEnabled = c.getBool("METRICS_ENABLED", false)
	c.MetricsPath = utils.ExpandHome(c.getString("METRICS_PATH", filepath.Join(c.BaseDir, "metrics")))

	c.WatchQuiet = time.Duration(c.ensurePositiveInt("WATCH_QUIET_SECONDS", 10)) * time.Second
	return nil
}

// SaveRoot is the directory holding savestates and cartridge saves.
func (c *Config) SaveRoot() string {
	if filepath.IsAbs(c.SaveDirectory) {
		return c.SaveDirectory
	}
	return filepath.Join(c.RomDirectory, c.SaveDirectory)
}

// Get returns a raw configuration value.
func (c *Config) Get(key string) (string, bool) {
	val, ok := c.raw[key]
	return val, ok
}

// Set overrides a raw configuration value.
func (c *Config) Set(key, value string) {
	c.raw[key] = value
}

// Typed getters

func (c *Config) getString(key, defaultValue string) string {
	if val, ok := c.raw[key]; ok && strings.TrimSpace(val) != "" {
		return expandEnvVars(val)
	}
	return defaultValue
}

func (c *Config) getBool(key string, defaultValue bool) bool {
	if val, ok := c.raw[key]; ok && strings.TrimSpace(val) != "" {
		return utils.ParseBool(val)
	}
	return defaultValue
}

func (c *Config) getInt(key string, defaultValue int) int {
	if val, ok := c.raw[key]; ok {
		if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (c *Config) ensurePositiveInt(key string, defaultValue int) int {
	value := c.getInt(key, defaultValue)
	if value <= 0 {
		return defaultValue
	}
	return value
}

func (c *Config) getLogLevel(key string, defaultValue types.LogLevel) types.LogLevel {
	if val, ok := c.raw[key]; ok {
		if level, ok := types.ParseLogLevel(val); ok {
			return level
		}
	}
	return defaultValue
}

func (c *Config) getStringSlice(key string, defaultValue []string) []string {
	val, ok := c.raw[key]
	if !ok {
		return defaultValue
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return []string{}
	}

	parts := strings.FieldsFunc(val, func(r rune) bool {
		switch r {
		case ',', ';', '|', '\n':
			return true
		default:
			return false
		}
	})

	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			trimmed = strings.Trim(trimmed, `"'`)
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return []string{}
	}
	return result
}

// getFlagList splits a command-line style value on whitespace.
func (c *Config) getFlagList(key string) []string {
	val, ok := c.raw[key]
	if !ok {
		return nil
	}
	return strings.Fields(expandEnvVars(val))
}

// expandEnvVars expands environment variables and the special ${BASE_DIR}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if key == "BASE_DIR" {
			return baseDir()
		}
		return os.Getenv(key)
	})
}

func baseDir() string {
	if val := os.Getenv("BASE_DIR"); val != "" {
		return val
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".savesync")
	}
	return "/var/lib/savesync"
}

func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file: %w", err)
	}
	defer file.Close()

	raw := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if utils.IsComment(strings.TrimSpace(line)) {
			continue
		}

		key, value, ok := utils.SplitKeyValue(line)
		if !ok {
			continue
		}

		if multiValueKeys[key] {
			if existing, ok := raw[key]; ok && existing != "" {
				if value != "" {
					raw[key] = existing + "\n" + value
				}
				continue
			}
		}
		raw[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return raw, nil
}
