package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

func GetUserAppDataDir(appName string) (string, error) {
	var base string

	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" && os.Getenv("HOME") != "" {
			base = filepath.Join(os.Getenv("HOME"), ".config")
		}
	}

	if base == "" {
		return "", fmt.Errorf("could not determine base config path")
	}

	appDataPath := filepath.Join(base, appName)
	if err := os.MkdirAll(appDataPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create app data dir: %w", err)
	}

	return appDataPath, nil
}

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
