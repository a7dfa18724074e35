package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Shared configuration loaded from environment variables.
// These are populated at startup by the per-process Load functions.
var (
	// LogLevel controls the global zerolog level ("debug", "info", "warn", "error").
	LogLevel string

	// LogFile, when set, mirrors console output into an append-only file.
	LogFile string

	// TempOutputDir is where processes drop per-trace artifacts (hf dumps, bundle json).
	TempOutputDir string

	// PIDDir is where each process writes its pid file on startup.
	PIDDir string

	// WebPort is the port for the ops HTTP server (health, metrics, trace stats).
	WebPort string
)

// loadCommonConfig loads the configuration every process shares.
func loadCommonConfig() error {
	log.Info().Msg("Loading common configuration from environment variables...")

	LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	LogFile = getEnvWithDefault("LOG_FILE", "")
	TempOutputDir = getEnvWithDefault("TEMP_OUTPUT_DIR", os.TempDir())
	PIDDir = getEnvWithDefault("PID_DIR", os.TempDir())
	WebPort = getEnvWithDefault("WEB_PORT", "8080")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("LogLevel", LogLevel).
		Str("TempOutputDir", TempOutputDir).
		Str("PIDDir", PIDDir).
		Msg("Common configuration loaded successfully.")

	return nil
}

// WritePIDFile records the current process id under PIDDir so the operator
// tooling can find and signal running processes.
func WritePIDFile(processName string) error {
	path := filepath.Join(PIDDir, processName+".pid")
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvWithDefault retrieves a string environment variable, falling back to def.
func getEnvWithDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// requireFile checks that a configured path exists and is a regular file.
func requireFile(key, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s points to %s: %w", key, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s points to a directory, expected a file: %s", key, path)
	}
	return nil
}
