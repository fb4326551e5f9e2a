package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, 5, cfg.Sessions.MaxRotations)
	assert.Equal(t, 10, cfg.RateLimit.LoginLimit)
	assert.False(t, cfg.Redis.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("ACCESS_TOKEN_EXPIRATION", "15m")
	t.Setenv("REFRESH_MAX_ROTATIONS", "3")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3001, https://animehub.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "access", cfg.JWT.AccessSecret)
	assert.Equal(t, "refresh", cfg.JWT.RefreshSecret)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, 3, cfg.Sessions.MaxRotations)
	assert.Equal(t, []string{"http://localhost:3001", "https://animehub.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("ENV", EnvProduction)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
