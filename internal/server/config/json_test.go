package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("VIDACCOUNTS_CONFIG", "")

	t.Run("overrides only present keys", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{
			"endpoint_addr_http":              ":9000",
			"storage_driver":                  "mongo",
			"access_token_secret":             "a",
			"refresh_token_secret":            "r",
			"access_token_validity_duration":  "90s",
			"refresh_token_validity_duration": "72h",
			"store_timeout":                   "2s",
			"password_hash_algorithm":         "argon2id",
			"cookie_secure":                   false,
			"prefer_authorization_header":     true,
			"allowed_origins":                 []string{"https://app.example"},
			"rate_limit_burst":                3,
		})
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, ":9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, StorageMongo, cfg.StorageDriver)
		assert.Equal(t, "a", cfg.AccessTokenSecret)
		assert.Equal(t, "r", cfg.RefreshTokenSecret)
		assert.Equal(t, 90*time.Second, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 72*time.Hour, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
		assert.Equal(t, HashArgon2id, cfg.PasswordHashAlgorithm)
		assert.False(t, cfg.CookieSecure)
		assert.True(t, cfg.PreferAuthorizationHeader)
		assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
		assert.Equal(t, 3, cfg.RateLimitBurst)

		// untouched defaults
		assert.Equal(t, "media", cfg.S3Bucket)
		assert.Equal(t, 10, cfg.BcryptCost)
	})

	t.Run("no file is a no-op", func(t *testing.T) {
		os.Args = []string{"testbin"}
		cfg := &Config{EndpointAddrHTTP: ":1"}
		parseJson(cfg)
		assert.Equal(t, ":1", cfg.EndpointAddrHTTP)
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(t.TempDir(), "nope.json")}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("invalid json panics", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
		os.Args = []string{"testbin", "-c", path}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
