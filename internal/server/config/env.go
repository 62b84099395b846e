package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/flagx"
)

const envPrefix = "VIDACCOUNTS_"

// parseEnv overlays VIDACCOUNTS_* variables. It exists mainly so secrets do
// not have to be written to a config file or passed on the command line.
// Malformed numeric values are ignored.
func parseEnv(config *Config) {
	envString("HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("STORAGE_DRIVER", &config.StorageDriver)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("MONGO_URI", &config.MongoURI)
	envString("MONGO_DATABASE", &config.MongoDatabase)
	envString("ACCESS_TOKEN_SECRET", &config.AccessTokenSecret)
	envString("REFRESH_TOKEN_SECRET", &config.RefreshTokenSecret)
	envDuration("ACCESS_TOKEN_EXPIRY", &config.AccessTokenValidityDuration)
	envDuration("REFRESH_TOKEN_EXPIRY", &config.RefreshTokenValidityDuration)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_PUBLIC_BASE_URL", &config.S3PublicBaseURL)
	envBool("COOKIE_SECURE", &config.CookieSecure)
	if v, ok := os.LookupEnv(envPrefix + "CORS_ORIGINS"); ok {
		config.AllowedOrigins = flagx.SplitList(v)
	}
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
