package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsForOmittedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target_instance_name: survival-1
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "survival-1", cfg.TargetInstanceName)
	assert.Equal(t, "0.0.0.0:25565", cfg.ListenAddr)
	assert.Equal(t, int32(773), cfg.MCProtocolVersion)
	assert.Equal(t, 20, cfg.MaxPlayers)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "127.0.0.1:25566"
target_instance_name: creative-2
mc_target_port: 25567
mc_target_motd: "Creative World"
max_players: 5
log_level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:25566", cfg.ListenAddr)
	assert.Equal(t, "creative-2", cfg.TargetInstanceName)
	assert.Equal(t, 25567, cfg.MCTargetPort)
	assert.Equal(t, "Creative World", cfg.MCTargetMOTD)
	assert.Equal(t, 5, cfg.MaxPlayers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingTargetInstanceNameIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: "0.0.0.0:25565"`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadFavicon_MissingPathDegradesToEmpty(t *testing.T) {
	cfg := &Config{FaviconPath: ""}
	assert.Equal(t, "", cfg.LoadFavicon())

	cfg = &Config{FaviconPath: "/nonexistent/favicon.png"}
	assert.Equal(t, "", cfg.LoadFavicon())
}

func TestLoadFavicon_EncodesAsDataURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "favicon.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0644))

	cfg := &Config{FaviconPath: path}
	got := cfg.LoadFavicon()
	assert.Contains(t, got, "data:image/png;base64,")
}
