package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"HOSTING_SERVER_PORT", "HOSTING_SERVER_READ_TIMEOUT", "HOSTING_SERVER_WRITE_TIMEOUT",
	"HOSTING_AUTHORITY_URL", "HOSTING_AUTHORITY_TOKEN", "HOSTING_AUTHORITY_PRODUCTID",
	"HOSTING_AUTHORITY_TIMEOUT",
	"HOSTING_RELAY_BASEURL", "HOSTING_RELAY_SERVICEKEY", "HOSTING_RELAY_SERVICEKEYFILE",
	"HOSTING_RELAY_PASSPHRASE", "HOSTING_RELAY_TIMEOUT",
	"HOSTING_SESSION_LIFETIME", "HOSTING_SESSION_PIN_TTL",
	"HOSTING_SECURITY_ALLOWED_ORIGINS", "HOSTING_SECURITY_ENABLE_CORS",
	"HOSTING_SECURITY_MAX_VALIDATION_ATTEMPTS",
	"HOSTING_LOGGING_LEVEL", "HOSTING_LOGGING_FORMAT", "HOSTING_LOGGING_OUTPUT",
	"HOSTING_LICENSES_STORE_PATH",
	"HOSTING_WEBSOCKET_READ_BUFFER_SIZE",
}

// withCleanEnv snapshots and clears all config environment variables for
// the duration of the test.
func withCleanEnv(t *testing.T) {
	t.Helper()

	saved := make(map[string]string, len(configEnvVars))
	for _, key := range configEnvVars {
		saved[key] = os.Getenv(key)
		os.Unsetenv(key)
	}

	t.Cleanup(func() {
		for key, val := range saved {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	})
}

// setRequiredEnv sets the secrets without which Load refuses to start
func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("HOSTING_AUTHORITY_TOKEN", "WyIxMjM0IiwiQUJDRCJd")
	os.Setenv("HOSTING_AUTHORITY_PRODUCTID", "12345")
	os.Setenv("HOSTING_RELAY_BASEURL", "http://127.0.0.1:5543")
	os.Setenv("HOSTING_RELAY_SERVICEKEY", "test-service-key")
}

// chdirTemp switches the working directory to a fresh temp dir so Load
// does not pick up a stray config.yaml.
func chdirTemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	withCleanEnv(t)
	chdirTemp(t)
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 1048576, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "https://api.cryptolens.io/api/key/Activate", cfg.Authority.URL)
	assert.Equal(t, "WyIxMjM0IiwiQUJDRCJd", cfg.Authority.Token)
	assert.Equal(t, 12345, cfg.Authority.ProductID)
	assert.Equal(t, 10*time.Second, cfg.Authority.Timeout)

	assert.Equal(t, "http://127.0.0.1:5543", cfg.Relay.BaseURL)
	assert.Equal(t, "test-service-key", cfg.Relay.ServiceKey)
	assert.Equal(t, 30*time.Second, cfg.Relay.Timeout)

	assert.Equal(t, 2*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, 5*time.Minute, cfg.Session.PinTTL)
	assert.Equal(t, time.Minute, cfg.Session.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.Session.TombstoneRetention)
	assert.False(t, cfg.Session.SingleSessionPerLicense)

	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Security.EnableCORS)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)
	assert.Equal(t, 50, cfg.Security.RateLimit.Burst)
	assert.Equal(t, 5, cfg.Security.MaxValidationAttempts)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)

	assert.Equal(t, "licenses.json", cfg.Licenses.StorePath)

	assert.Equal(t, 1024, cfg.WebSocket.ReadBufferSize)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
}

func TestLoad_EnvOverrides(t *testing.T) {
	withCleanEnv(t)
	chdirTemp(t)
	setRequiredEnv(t)

	os.Setenv("HOSTING_SERVER_PORT", "9090")
	os.Setenv("HOSTING_SERVER_READ_TIMEOUT", "30s")
	os.Setenv("HOSTING_SESSION_LIFETIME", "1h")
	os.Setenv("HOSTING_SESSION_PIN_TTL", "90s")
	os.Setenv("HOSTING_SECURITY_ALLOWED_ORIGINS", "http://example.com,https://example.com")
	os.Setenv("HOSTING_LOGGING_LEVEL", "debug")
	os.Setenv("HOSTING_LOGGING_FORMAT", "text")
	os.Setenv("HOSTING_LOGGING_OUTPUT", "stdout")
	os.Setenv("HOSTING_LICENSES_STORE_PATH", "/var/lib/hosting/licenses.json")
	os.Setenv("HOSTING_WEBSOCKET_READ_BUFFER_SIZE", "2048")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, 90*time.Second, cfg.Session.PinTTL)
	assert.Equal(t, []string{"http://example.com", "https://example.com"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format) // validate() forces json
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "/var/lib/hosting/licenses.json", cfg.Licenses.StorePath)
	assert.Equal(t, 2048, cfg.WebSocket.ReadBufferSize)
}

func TestLoad_MissingSecrets(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		errContains string
	}{
		{
			name: "missing authority token",
			setupEnv: func() {
				os.Setenv("HOSTING_AUTHORITY_PRODUCTID", "12345")
				os.Setenv("HOSTING_RELAY_BASEURL", "http://127.0.0.1:5543")
				os.Setenv("HOSTING_RELAY_SERVICEKEY", "key")
			},
			errContains: "authority access token is required",
		},
		{
			name: "missing product id",
			setupEnv: func() {
				os.Setenv("HOSTING_AUTHORITY_TOKEN", "token")
				os.Setenv("HOSTING_RELAY_BASEURL", "http://127.0.0.1:5543")
				os.Setenv("HOSTING_RELAY_SERVICEKEY", "key")
			},
			errContains: "authority product id is required",
		},
		{
			name: "missing relay base url",
			setupEnv: func() {
				os.Setenv("HOSTING_AUTHORITY_TOKEN", "token")
				os.Setenv("HOSTING_AUTHORITY_PRODUCTID", "12345")
				os.Setenv("HOSTING_RELAY_SERVICEKEY", "key")
			},
			errContains: "relay base URL is required",
		},
		{
			name: "missing service key",
			setupEnv: func() {
				os.Setenv("HOSTING_AUTHORITY_TOKEN", "token")
				os.Setenv("HOSTING_AUTHORITY_PRODUCTID", "12345")
				os.Setenv("HOSTING_RELAY_BASEURL", "http://127.0.0.1:5543")
			},
			errContains: "relay service key or service key file is required",
		},
		{
			name: "service key file without passphrase",
			setupEnv: func() {
				os.Setenv("HOSTING_AUTHORITY_TOKEN", "token")
				os.Setenv("HOSTING_AUTHORITY_PRODUCTID", "12345")
				os.Setenv("HOSTING_RELAY_BASEURL", "http://127.0.0.1:5543")
				os.Setenv("HOSTING_RELAY_SERVICEKEYFILE", "service.key")
			},
			errContains: "passphrase is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCleanEnv(t)
			chdirTemp(t)
			tt.setupEnv()

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		errContains string
	}{
		{
			name: "port out of range",
			setupEnv: func() {
				os.Setenv("HOSTING_SERVER_PORT", "99999")
			},
			errContains: "invalid server port",
		},
		{
			name: "zero port",
			setupEnv: func() {
				os.Setenv("HOSTING_SERVER_PORT", "0")
			},
			errContains: "invalid server port",
		},
		{
			name: "negative read timeout",
			setupEnv: func() {
				os.Setenv("HOSTING_SERVER_READ_TIMEOUT", "-5s")
			},
			errContains: "read timeout must be positive",
		},
		{
			name: "write timeout not covering relay timeout",
			setupEnv: func() {
				os.Setenv("HOSTING_SERVER_WRITE_TIMEOUT", "20s")
				os.Setenv("HOSTING_RELAY_TIMEOUT", "30s")
			},
			errContains: "must exceed relay timeout",
		},
		{
			name: "zero session lifetime",
			setupEnv: func() {
				os.Setenv("HOSTING_SESSION_LIFETIME", "-1s")
			},
			errContains: "session lifetime must be positive",
		},
		{
			name: "zero attempt window",
			setupEnv: func() {
				os.Setenv("HOSTING_SECURITY_ATTEMPT_WINDOW", "0")
			},
			errContains: "attempt window must be positive",
		},
		{
			name: "negative block duration",
			setupEnv: func() {
				os.Setenv("HOSTING_SECURITY_BLOCK_DURATION", "-1m")
			},
			errContains: "block duration must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCleanEnv(t)
			chdirTemp(t)
			setRequiredEnv(t)
			tt.setupEnv()

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	withCleanEnv(t)
	dir := chdirTemp(t)

	yamlContent := `
server:
  port: 9099
authority:
  token: file-token
  product_id: 777
relay:
  base_url: http://127.0.0.1:6000
  service_key: file-key
licenses:
  store_path: store/licenses.json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	// File values override defaults
	assert.Equal(t, 9099, cfg.Server.Port)
	assert.Equal(t, "file-token", cfg.Authority.Token)
	assert.Equal(t, 777, cfg.Authority.ProductID)
	assert.Equal(t, "http://127.0.0.1:6000", cfg.Relay.BaseURL)
	assert.Equal(t, "file-key", cfg.Relay.ServiceKey)
	assert.Equal(t, "store/licenses.json", cfg.Licenses.StorePath)

	// Keys absent from the file keep their defaults
	assert.Equal(t, "https://api.cryptolens.io/api/key/Activate", cfg.Authority.URL)
	assert.Equal(t, 2*time.Hour, cfg.Session.Lifetime)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	withCleanEnv(t)
	dir := chdirTemp(t)

	yamlContent := `
server:
  port: 9099
authority:
  token: file-token
  product_id: 777
relay:
  base_url: http://127.0.0.1:6000
  service_key: file-key
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0644))

	os.Setenv("HOSTING_SERVER_PORT", "9090")
	os.Setenv("HOSTING_AUTHORITY_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "env-token", cfg.Authority.Token)
	// Fields only the file sets still come through
	assert.Equal(t, 777, cfg.Authority.ProductID)
	assert.Equal(t, "file-key", cfg.Relay.ServiceKey)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	withCleanEnv(t)
	dir := chdirTemp(t)
	setRequiredEnv(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [not a map"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestValidate_Normalization(t *testing.T) {
	cfg := Default()
	cfg.Authority.Token = "token"
	cfg.Authority.ProductID = 1
	cfg.Relay.BaseURL = "http://127.0.0.1:5543"
	cfg.Relay.ServiceKey = "key"

	cfg.Logging.Format = "text"
	cfg.Logging.Output = "syslog"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.validate())

	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Authority.Token)
	assert.Empty(t, cfg.Relay.ServiceKey)
	assert.Empty(t, cfg.Relay.BaseURL)

	// A bare default config must not validate, secrets are mandatory.
	assert.Error(t, cfg.validate())
}
