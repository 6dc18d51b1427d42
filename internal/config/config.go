package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultFleetFile          = "/etc/homelab/fleet.yaml"
	DefaultCommandTimeoutSec  = 300
	DefaultSSHTimeoutSec      = 30
	DefaultAptLockPollSec     = 30
	DefaultAptLockMaxAttempts = 20
	DefaultLogLevel           = "info"
)

type Config struct {
	LogLevel           string
	FleetFile          string
	CommandTimeout     time.Duration
	SSHTimeout         time.Duration
	AptLockPoll        time.Duration
	AptLockMaxAttempts int
}

func Load() *Config {
	return &Config{
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		FleetFile:          getEnvPath("FLEET_CONFIG", DefaultFleetFile),
		CommandTimeout:     getEnvSeconds("COMMAND_TIMEOUT", DefaultCommandTimeoutSec),
		SSHTimeout:         getEnvSeconds("SSH_TIMEOUT", DefaultSSHTimeoutSec),
		AptLockPoll:        getEnvSeconds("APT_LOCK_POLL", DefaultAptLockPollSec),
		AptLockMaxAttempts: getEnvInt("APT_LOCK_MAX_ATTEMPTS", DefaultAptLockMaxAttempts),
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	if strings.HasPrefix(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			return strings.Replace(path, "$HOME", home, 1)
		}
	}

	return os.ExpandEnv(path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvPath(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return expandPath(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvSeconds reads a duration given in whole seconds. Zero and
// negative values fall back to the default, since a zero timeout would
// expire every command immediately.
func getEnvSeconds(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return time.Duration(intValue) * time.Second
		}
	}
	return time.Duration(defaultValue) * time.Second
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}
