package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Authority AuthorityConfig    `yaml:"authority" envconfig:"AUTHORITY"`
	Relay     RelayConfig        `yaml:"relay" envconfig:"RELAY"`
	Session   SessionConfig      `yaml:"session" envconfig:"SESSION"`
	Security  SecurityConfig     `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Licenses  LicenseStoreConfig `yaml:"licenses" envconfig:"LICENSES"`
	WebSocket WebSocketConfig    `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// AuthorityConfig contains the external license authority configuration.
// Token and ProductID have no defaults on purpose, Load fails without them.
type AuthorityConfig struct {
	URL       string        `yaml:"url" envconfig:"URL"`
	Token     string        `yaml:"token" envconfig:"TOKEN"`
	ProductID int           `yaml:"product_id" envconfig:"PRODUCTID"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// RelayConfig contains the downstream relay backend configuration.
// At least one of ServiceKey or ServiceKeyFile must be provided; the
// file variant holds the key sealed with the passphrase.
type RelayConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASEURL"`
	ServiceKey     string        `yaml:"service_key" envconfig:"SERVICEKEY"`
	ServiceKeyFile string        `yaml:"service_key_file" envconfig:"SERVICEKEYFILE"`
	Passphrase     string        `yaml:"passphrase" envconfig:"PASSPHRASE"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// SessionConfig contains session registry configuration
type SessionConfig struct {
	Lifetime                time.Duration `yaml:"lifetime" envconfig:"LIFETIME"`
	PinTTL                  time.Duration `yaml:"pin_ttl" envconfig:"PIN_TTL"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
	TombstoneRetention      time.Duration `yaml:"tombstone_retention" envconfig:"TOMBSTONE_RETENTION"`
	SingleSessionPerLicense bool          `yaml:"single_session_per_license" envconfig:"SINGLE_SESSION_PER_LICENSE"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins        []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS            bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit             RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	MaxValidationAttempts int             `yaml:"max_validation_attempts" envconfig:"MAX_VALIDATION_ATTEMPTS"`
	AttemptWindow         time.Duration   `yaml:"attempt_window" envconfig:"ATTEMPT_WINDOW"`
	BlockDuration         time.Duration   `yaml:"block_duration" envconfig:"BLOCK_DURATION"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// LicenseStoreConfig contains the local license store configuration
type LicenseStoreConfig struct {
	StorePath string `yaml:"store_path" envconfig:"STORE_PATH"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load loads configuration with env > file > default precedence.
// The config file is optional; the environment variables carry the
// HOSTING_ prefix.
func Load() (*Config, error) {
	cfg := Default()

	// Layer the config file over the defaults if one exists
	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment variables win over everything
	if err := envconfig.Process("HOSTING", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges a YAML file into cfg, keys absent from the file
// keep their current values
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Authority.URL == "" {
		return fmt.Errorf("authority URL is required")
	}

	if c.Authority.Token == "" {
		return fmt.Errorf("authority access token is required")
	}

	if c.Authority.ProductID <= 0 {
		return fmt.Errorf("authority product id is required")
	}

	if c.Authority.Timeout <= 0 {
		return fmt.Errorf("authority timeout must be positive")
	}

	if c.Relay.BaseURL == "" {
		return fmt.Errorf("relay base URL is required")
	}

	if c.Relay.ServiceKey == "" && c.Relay.ServiceKeyFile == "" {
		return fmt.Errorf("relay service key or service key file is required")
	}

	if c.Relay.ServiceKeyFile != "" && c.Relay.ServiceKey == "" && c.Relay.Passphrase == "" {
		return fmt.Errorf("relay passphrase is required to open the service key file")
	}

	if c.Relay.Timeout <= 0 {
		return fmt.Errorf("relay timeout must be positive")
	}

	// The write timeout covers the whole response, so a relay forward
	// that runs to its own deadline must still fit inside it.
	if c.Server.WriteTimeout <= c.Relay.Timeout {
		return fmt.Errorf("server write timeout (%s) must exceed relay timeout (%s)",
			c.Server.WriteTimeout, c.Relay.Timeout)
	}

	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("session lifetime must be positive")
	}

	if c.Session.PinTTL <= 0 {
		return fmt.Errorf("session pin ttl must be positive")
	}

	if c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("session cleanup interval must be positive")
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Security.MaxValidationAttempts <= 0 {
		return fmt.Errorf("max validation attempts must be positive")
	}

	if c.Security.AttemptWindow <= 0 {
		return fmt.Errorf("attempt window must be positive")
	}

	if c.Security.BlockDuration <= 0 {
		return fmt.Errorf("block duration must be positive")
	}

	if c.Licenses.StorePath == "" {
		return fmt.Errorf("license store path is required")
	}

	// Log output is JSON only, normalize whatever came in.
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration. Secrets are left empty, callers
// that need a loadable config must still provide them.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  45 * time.Second,
		},
		Authority: AuthorityConfig{
			URL:     "https://api.cryptolens.io/api/key/Activate",
			Timeout: 10 * time.Second,
		},
		Relay: RelayConfig{
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Lifetime:                2 * time.Hour,
			PinTTL:                  5 * time.Minute,
			CleanupInterval:         time.Minute,
			TombstoneRetention:      24 * time.Hour,
			SingleSessionPerLicense: false,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
			MaxValidationAttempts: 5,
			AttemptWindow:         15 * time.Minute,
			BlockDuration:         15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    "logs/app.log",
			Development: false,
		},
		Licenses: LicenseStoreConfig{
			StorePath: "licenses.json",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
