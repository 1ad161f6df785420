package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	return v
}

func TestDefaultsNeedSecret(t *testing.T) {
	_, err := Load(newTestViper(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "careline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
database:
  driver: memory
auth:
  jwt_secret: "0123456789abcdef0123"
chat:
  store_timeout: 2s
realtime:
  allow_query_user: true
`), 0o600))

	cfg, err := Load(newTestViper(), path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Chat.StoreTimeout)
	assert.Equal(t, 50, cfg.Chat.HistoryDefaultLimit)
	assert.True(t, cfg.Realtime.AllowQueryUser)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CARELINE_AUTH_JWT_SECRET", "env-secret-env-secret")
	t.Setenv("CARELINE_DATABASE_DRIVER", "memory")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "env-secret-env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	v := newTestViper()
	v.Set("auth.jwt_secret", "0123456789abcdef")
	v.Set("database.driver", "mongo")

	_, err := Load(v, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}
