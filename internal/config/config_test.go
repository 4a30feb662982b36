package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(body), 0o644))
}

func TestLoadUsesHardFallbacksWhenNothingElseSet(t *testing.T) {
	c, err := Load("fit", "storage", t.TempDir(), nil, nil)
	require.NoError(t, err)

	require.Equal(t, "grpc", c.Protocol())
	require.Equal(t, "0.0.0.0", c.Host())
	require.Equal(t, 3000, c.Port())
	require.Equal(t, "", c.Path())
	require.Equal(t, "grpc://0.0.0.0:3000", c.URL())
}

func TestLoadLayersDefaultsUnderFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"host": "10.0.0.5"}`)

	c, err := Load("fit", "storage", dir, map[string]any{"host": "127.0.0.1", "port": 4000}, nil)
	require.NoError(t, err)

	require.Equal(t, "10.0.0.5", c.Host())
	require.Equal(t, 4000, c.Port())
}

func TestEnvOverrideWinsOverFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"port": 4000}`)

	t.Setenv("FIT_STORAGE_PORT", "5000")

	c, err := Load("fit", "storage", dir, map[string]any{"port": 4500}, nil)
	require.NoError(t, err)
	require.Equal(t, 5000, c.Port())
}

func TestEnvOverrideFallsBackToRawStringOnJSONParseFailure(t *testing.T) {
	t.Setenv("FIT_STORAGE_PROTOCOL", "grpc-web")

	c, err := Load("fit", "storage", t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "grpc-web", c.Protocol())
}

func TestExplicitURLIsAuthoritativeOverComponents(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"protocol": "grpc", "host": "0.0.0.0", "port": 3000, "url": "https://trace.internal:9443/v1"}`)

	c, err := Load("fit", "trace", dir, nil, nil)
	require.NoError(t, err)

	require.Equal(t, "https", c.Protocol())
	require.Equal(t, "trace.internal", c.Host())
	require.Equal(t, 9443, c.Port())
	require.Equal(t, "/v1", c.Path())
	require.Equal(t, "https://trace.internal:9443/v1", c.URL())
}

func TestURLEnvOverrideReconcilesComponents(t *testing.T) {
	t.Setenv("FIT_STORAGE_URL", "grpc://storage.internal:3100")

	c, err := Load("fit", "storage", t.TempDir(), nil, nil)
	require.NoError(t, err)

	require.Equal(t, "storage.internal", c.Host())
	require.Equal(t, 3100, c.Port())
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	_, err := Load("fit", "storage", filepath.Join(t.TempDir(), "nonexistent"), nil, nil)
	require.NoError(t, err)
}
