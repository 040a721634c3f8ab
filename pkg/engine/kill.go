package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// KillTarpit sends SIGTERM to the tarpit started with configPath. The config
// file is optional, mirroring `tarpit up`.
func KillTarpit(configPath string) error {
	config := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
		ApplyDefaults(config)
	}

	storageDir, err := ResolveStoragePath(config, configPath)
	if err != nil {
		return fmt.Errorf("failed to determine storage dir: %w", err)
	}

	pidPath := filepath.Join(storageDir, PID_FILE)
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid PID content in %s: %q", pidPath, pidData)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process with PID %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}

	return nil
}
