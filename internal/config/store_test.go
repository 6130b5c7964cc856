package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tikz-playground/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	assert.Equal(t, "pdflatex", cfg.CompilerPath)
	assert.Equal(t, 300, cfg.RasterDensity)
	assert.NotEmpty(t, cfg.WorkDir)
	assert.False(t, cfg.SharedWorkDir, "per-job workspaces are the default")
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "missing", "settings.json"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "cfg", "settings.json"))
	want := DefaultSettings()
	want.ListenAddr = ":9000"
	want.SharedWorkDir = true
	want.CompileTimeoutSeconds = 5

	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestJSONStoreLoadPartialKeepsDefaults checks missing keys fall back.
func TestJSONStoreLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listenAddr": ":8080"}`), 0o644))

	got, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", got.ListenAddr)
	assert.Equal(t, DefaultSettings().CompilerPath, got.CompilerPath)
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not-json"), 0o644))

	_, err := NewJSONStore(path).Load()
	assert.Error(t, err)
}

// TestApplyEnvOverrides checks environment precedence.
func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvListenAddr: ":1234",
		EnvWorkDir:    "/srv/tikz",
		EnvSharedDir:  "true",
		EnvLogLevel:   "DEBUG",
	}

	got, err := ApplyEnv(DefaultSettings(), func(key string) string { return env[key] })
	require.NoError(t, err)
	assert.Equal(t, ":1234", got.ListenAddr)
	assert.Equal(t, "/srv/tikz", got.WorkDir)
	assert.True(t, got.SharedWorkDir)
	assert.Equal(t, "debug", got.LogLevel)
}

// TestApplyEnvRejectsBadBool checks malformed flag values surface.
func TestApplyEnvRejectsBadBool(t *testing.T) {
	_, err := ApplyEnv(DefaultSettings(), func(key string) string {
		if key == EnvSharedDir {
			return "sometimes"
		}
		return ""
	})
	assert.Error(t, err)
}

// TestNormalizeRestoresDefaults checks unusable values are replaced.
func TestNormalizeRestoresDefaults(t *testing.T) {
	got := Normalize(domain.Settings{
		ListenAddr:           "  ",
		CompilerPath:         " xelatex ",
		RasterTimeoutSeconds: -3,
		PreviewMaxWidth:      -1,
	})

	assert.Equal(t, DefaultSettings().ListenAddr, got.ListenAddr)
	assert.Equal(t, "xelatex", got.CompilerPath)
	assert.Equal(t, DefaultSettings().RasterTimeoutSeconds, got.RasterTimeoutSeconds)
	assert.Equal(t, 300, got.RasterDensity)
	assert.Equal(t, 0, got.PreviewMaxWidth)
	assert.Equal(t, "info", got.LogLevel)
}
