//go:build darwin
// +build darwin

package platform

import "path/filepath"

func getDataDir() string {
	return filepath.Join(userHomeDir(), "Library", "Application Support", AppDisplayName)
}
