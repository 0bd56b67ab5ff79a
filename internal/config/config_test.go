package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionLease)
	assert.Equal(t, 2*time.Minute, cfg.Auth.InvitationTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Game.BotMoveDelay)
	assert.Equal(t, 25, cfg.Game.WinPoints)
	assert.Equal(t, 15, cfg.Game.LossPenalty)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":9000"
game:
  bot_move_delay: 0s
  win_points: 30
logging:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, time.Duration(0), cfg.Game.BotMoveDelay)
	assert.Equal(t, 30, cfg.Game.WinPoints)
	assert.Equal(t, 15, cfg.Game.LossPenalty, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  session_lease: -1s\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
