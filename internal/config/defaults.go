package config

import (
	"os"
	"path/filepath"
	"strings"

	"video-insights/internal/domain"
)

// DefaultBackendURL matches the executor's development listen address.
const DefaultBackendURL = "http://localhost:8000"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		BackendURL:    DefaultBackendURL,
		CallbackLevel: domain.CallbackLevelClean,
		HistoryPath:   filepath.Join(homeDir, ".video-insights", "history.db"),
	}
}

// Normalize trims user inputs and falls back to defaults for empty or
// unknown values.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.BackendURL = strings.TrimRight(strings.TrimSpace(settings.BackendURL), "/")
	if settings.BackendURL == "" {
		settings.BackendURL = defaults.BackendURL
	}

	settings.CallbackLevel = domain.CallbackLevel(strings.ToLower(strings.TrimSpace(string(settings.CallbackLevel))))
	if !domain.ValidCallbackLevel(settings.CallbackLevel) {
		settings.CallbackLevel = defaults.CallbackLevel
	}

	settings.HistoryPath = strings.TrimSpace(settings.HistoryPath)
	if settings.HistoryPath == "" {
		settings.HistoryPath = defaults.HistoryPath
	}

	return settings
}
