package config

import (
	"os"
	"path/filepath"

	"tikz-playground/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		ListenAddr:            "127.0.0.1:7860",
		WorkDir:               filepath.Join(os.TempDir(), "tikz-playground"),
		CompilerPath:          "pdflatex",
		CompileTimeoutSeconds: 60,
		RasterTimeoutSeconds:  30,
		RasterDensity:         300,
		PreviewMaxWidth:       0,
		LogLevel:              "info",
		EventHistory:          500,
	}
}

// SettingsPath returns the default location of the settings file.
func SettingsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".tikz-playground", "settings.json")
}
