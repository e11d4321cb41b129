package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, c.Rules.DuplicateWindow)
	assert.Equal(t, 14, c.Rules.MorningCutoffHour)
	assert.Equal(t, 10*time.Second, c.App.StoreTimeout)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frontdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: dev
  timezone: America/Mexico_City
database:
  driver: postgres
  dsn: postgres://localhost/gym
rules:
  duplicate_window: 2m
telegram:
  admin_chat_id: 42
`), 0o600))

	t.Setenv("FRONTDESK_HTTP_ADDR", ":9090")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, "postgres", c.Database.Driver)
	assert.Equal(t, 2*time.Minute, c.Rules.DuplicateWindow)
	assert.Equal(t, int64(42), c.Telegram.AdminChatID)
	assert.Equal(t, ":9090", c.HTTP.Addr)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", loc.String())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("FRONTDESK_DATABASE_DRIVER", "mysql")

	_, err := Load("")
	assert.ErrorContains(t, err, "database.driver")
}
