package types

import "strings"

// BackupMode selects how an auto backup transfers the selected save files.
type BackupMode string

const (
	// BackupModeSimple uploads each save file on its own, overwriting the remote copy.
	BackupModeSimple BackupMode = "simple"

	// BackupModeRotating bundles the save files into one archive stored in a
	// fixed cycle of remote slots.
	BackupModeRotating BackupMode = "rotating"
)

// String returns the string representation of the backup mode.
func (m BackupMode) String() string {
	return string(m)
}

// ParseBackupMode accepts the names and the legacy numeric values (0/1).
func ParseBackupMode(s string) (BackupMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "0":
		return BackupModeSimple, true
	case "rotating", "rotate", "1":
		return BackupModeRotating, true
	default:
		return "", false
	}
}

// SaveClass identifies the kind of save file considered for backup.
type SaveClass string

const (
	// SaveClassManual - user-triggered savestate in a numbered slot
	SaveClassManual SaveClass = "manual"

	// SaveClassAuto - savestate written by the emulator in the reserved slot
	SaveClassAuto SaveClass = "auto"

	// SaveClassCartridge - battery-backed cartridge save (.sav)
	SaveClassCartridge SaveClass = "cartridge"
)

// String returns the string representation of the save class.
func (c SaveClass) String() string {
	return string(c)
}

// RemoteKind represents a remote storage backend.
type RemoteKind string

const (
	// RemoteRclone - any rclone remote (OneDrive, Google Drive, S3, ...)
	RemoteRclone RemoteKind = "rclone"

	// RemoteLocal - a local or mounted export directory
	RemoteLocal RemoteKind = "local"
)

// String returns the string representation of the remote kind.
func (r RemoteKind) String() string {
	return string(r)
}

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug - Debug logs (maximum detail)
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - General information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - Warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - Errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - Critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - No logs
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a level name or number to a LogLevel.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "5", "advanced", "extreme":
		return LogLevelDebug, true
	case "info", "4", "standard":
		return LogLevelInfo, true
	case "warning", "warn", "3":
		return LogLevelWarning, true
	case "error", "2":
		return LogLevelError, true
	case "critical", "1":
		return LogLevelCritical, true
	case "none", "0":
		return LogLevelNone, true
	default:
		return LogLevelInfo, false
	}
}
