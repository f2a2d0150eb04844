package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognised by parseEnv.
const (
	EnvHTTPAddr        = "AUTHCORE_HTTP_ADDR"
	EnvGRPCAddr        = "AUTHCORE_GRPC_ADDR"
	EnvDatabaseDSN     = "AUTHCORE_DATABASE_DSN"
	EnvSecretKey       = "AUTHCORE_SECRET_KEY"
	EnvAccessTokenTTL  = "AUTHCORE_ACCESS_TOKEN_TTL"
	EnvRefreshTokenTTL = "AUTHCORE_REFRESH_TOKEN_TTL"
	EnvRetryAttempts   = "AUTHCORE_REFRESH_RETRY_ATTEMPTS"
	EnvLogLevel        = "AUTHCORE_LOG_LEVEL"
)

// parseEnv overlays settings from the process environment and, for variables
// the environment does not define, from the dotenv file at envFile. A missing
// file is not an error.
func parseEnv(config *Config, envFile string) error {
	fileValues := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileValues = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	}

	if v, ok := lookup(EnvHTTPAddr); ok {
		config.EndpointAddrHTTP = v
	}
	if v, ok := lookup(EnvGRPCAddr); ok {
		config.EndpointAddrGRPC = v
	}
	if v, ok := lookup(EnvDatabaseDSN); ok {
		config.DatabaseDSN = v
	}
	if v, ok := lookup(EnvSecretKey); ok {
		config.SecretKey = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		config.LogLevel = v
	}

	for key, dst := range map[string]*time.Duration{
		EnvAccessTokenTTL:  &config.AccessTokenValidityDuration,
		EnvRefreshTokenTTL: &config.RefreshTokenValidityDuration,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvRetryAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryAttempts, err)
		}
		config.RefreshRetryAttempts = n
	}

	return nil
}
