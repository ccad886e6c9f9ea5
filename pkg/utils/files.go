package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// FileExists checks whether a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks whether a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	if DirExists(path) {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

// ReplaceExt swaps the extension of a file name (the part after the last dot)
// for ext. A name without a dot gets ext appended.
//
//	ReplaceExt("Zelda.gba", "sav") == "Zelda.sav"
//	ReplaceExt("Zelda", "sav")     == "Zelda.sav"
func ReplaceExt(name, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	base := name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		base = name[:idx]
	}
	return base + "." + ext
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
