package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_FromEnvironment(t *testing.T) {
	t.Setenv(EnvHTTPAddr, ":9090")
	t.Setenv(EnvDatabaseDSN, "postgres://env")
	t.Setenv(EnvAccessTokenTTL, "30m")
	t.Setenv(EnvRefreshTokenTTL, "48h")
	t.Setenv(EnvRetryAttempts, "5")
	t.Setenv(EnvLogLevel, "warn")

	var c Config
	c.LoadDefaults()
	require.NoError(t, parseEnv(&c, ""))

	assert.Equal(t, ":9090", c.EndpointAddrHTTP)
	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, "postgres://env", c.DatabaseDSN)
	assert.Equal(t, 30*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 48*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 5, c.RefreshRetryAttempts)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestParseEnv_DotenvFileYieldsToEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte(
		EnvGRPCAddr+"=:1111\n"+EnvSecretKey+"=from-file\n",
	), 0o600))
	t.Setenv(EnvGRPCAddr, ":2222")

	var c Config
	c.LoadDefaults()
	require.NoError(t, parseEnv(&c, file))

	assert.Equal(t, ":2222", c.EndpointAddrGRPC)
	assert.Equal(t, "from-file", c.SecretKey)
}

func TestParseEnv_MissingFileIsIgnored(t *testing.T) {
	var c Config
	c.LoadDefaults()
	require.NoError(t, parseEnv(&c, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
}

func TestParseEnv_InvalidValues(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		t.Setenv(EnvAccessTokenTTL, "one day")
		var c Config
		err := parseEnv(&c, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvAccessTokenTTL)
	})
	t.Run("retries", func(t *testing.T) {
		t.Setenv(EnvRetryAttempts, "many")
		var c Config
		err := parseEnv(&c, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvRetryAttempts)
	})
}
