package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tikz-playground/internal/domain"
)

// Environment variables that override file settings.
const (
	EnvListenAddr = "TIKZ_ADDR"
	EnvWorkDir    = "TIKZ_WORKDIR"
	EnvSharedDir  = "TIKZ_SHARED_WORKDIR"
	EnvLogLevel   = "TIKZ_LOG_LEVEL"
)

// ApplyEnv overlays non-empty environment variables onto settings.
func ApplyEnv(settings domain.Settings, getenv func(string) string) (domain.Settings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := strings.TrimSpace(getenv(EnvListenAddr)); v != "" {
		settings.ListenAddr = v
	}
	if v := strings.TrimSpace(getenv(EnvWorkDir)); v != "" {
		settings.WorkDir = v
	}
	if v := strings.TrimSpace(getenv(EnvSharedDir)); v != "" {
		shared, err := strconv.ParseBool(v)
		if err != nil {
			return settings, errors.Wrapf(err, "parse %s", EnvSharedDir)
		}
		settings.SharedWorkDir = shared
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	return settings, nil
}

// Normalize trims string fields and restores defaults for unusable values.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.ListenAddr = strings.TrimSpace(settings.ListenAddr)
	settings.WorkDir = strings.TrimSpace(settings.WorkDir)
	settings.CompilerPath = strings.TrimSpace(settings.CompilerPath)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))

	if settings.ListenAddr == "" {
		settings.ListenAddr = defaults.ListenAddr
	}
	if settings.CompilerPath == "" {
		settings.CompilerPath = defaults.CompilerPath
	}
	if settings.CompileTimeoutSeconds < 0 {
		settings.CompileTimeoutSeconds = defaults.CompileTimeoutSeconds
	}
	if settings.RasterTimeoutSeconds < 0 {
		settings.RasterTimeoutSeconds = defaults.RasterTimeoutSeconds
	}
	if settings.RasterDensity <= 0 {
		settings.RasterDensity = defaults.RasterDensity
	}
	if settings.PreviewMaxWidth < 0 {
		settings.PreviewMaxWidth = 0
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	if settings.EventHistory <= 0 {
		settings.EventHistory = defaults.EventHistory
	}
	return settings
}
