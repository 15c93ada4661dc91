package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultGraphQLURL, cfg.Backend.GraphQLURL)
	assert.Equal(t, DefaultSubscriptionsURL, cfg.Backend.SubscriptionsURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout())
	assert.Equal(t, []string{"openid", "profile"}, cfg.Auth.ScopeList())
	assert.Equal(t, DefaultDevAddr, cfg.DevBackend.Addr)
	assert.Equal(t, 24*time.Hour, cfg.DevBackend.TokenTTL())
	assert.Equal(t, 15*time.Second, cfg.DevBackend.KeepAliveInterval())
	assert.Equal(t, []string{"general", "random"}, cfg.DevBackend.SeedChannels)
	assert.Error(t, cfg.DevBackend.Validate())
}

func TestLoadEnvLists(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOBBY_DEV_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	t.Setenv("LOBBY_DEV_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.DevBackend.AllowedOrigins)
	assert.NoError(t, cfg.DevBackend.Validate())
}

func TestLoadTOMLAndEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "lobby.toml")
	content := `
[log]
level = "debug"

[auth]
client_id = "from-toml"
domain = "tenant.example.com"

[backend]
timeout = "5s"

[devbackend]
seed_channels = ["lobby", "help"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("LOBBY_AUTH_CLIENT_ID", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Auth.ClientID)
	assert.Equal(t, "tenant.example.com", cfg.Auth.Domain)
	assert.Equal(t, 5*time.Second, cfg.Backend.RequestTimeout())
	assert.Equal(t, []string{"lobby", "help"}, cfg.DevBackend.SeedChannels)
	assert.NoError(t, cfg.Auth.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOBBY_AUTH_DOMAIN=dotenv.example.com\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LOBBY_AUTH_DOMAIN") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv.example.com", cfg.Auth.Domain)
}

func TestAuthValidate(t *testing.T) {
	assert.Error(t, AuthConfig{Domain: "x"}.Validate())
	assert.Error(t, AuthConfig{ClientID: "x"}.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, 30*time.Second, BackendConfig{Timeout: "soon"}.RequestTimeout())
	assert.Equal(t, 30*time.Second, BackendConfig{Timeout: "-1s"}.RequestTimeout())
}
