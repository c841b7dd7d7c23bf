//go:build windows
// +build windows

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	appDataDir := os.Getenv("APPDATA")
	if appDataDir == "" {
		return homeFallback()
	}
	return filepath.Join(appDataDir, AppDisplayName)
}
