// Package platform resolves per-OS directories for the desktop shell.
package platform

import (
	"os"
	"path/filepath"
)

// AppName is the application name used for directory naming
const AppName = "vdr-desktop"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "VDR Desktop App"

// DataDirEnv overrides the data directory when set. Useful for portable
// installs and tests.
const DataDirEnv = "VDR_DATA_DIR"

// GetDataDir returns the application data directory.
// Windows: %APPDATA%\VDR Desktop App
// macOS: ~/Library/Application Support/VDR Desktop App
// Linux: $XDG_DATA_HOME/vdr-desktop or ~/.local/share/vdr-desktop
func GetDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	return getDataDir()
}

// userHomeDir returns the user's home directory, or "." when it is unknown.
func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func homeFallback() string {
	return filepath.Join(userHomeDir(), "."+AppName)
}
