//go:build !linux && !darwin && !windows

package platform

func getDataDir() string {
	return homeFallback()
}
