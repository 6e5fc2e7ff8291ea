// Package config provides centralized configuration management for the
// hosting relay service. It handles loading configuration from multiple
// sources, validation, and provides a type-safe API for accessing
// configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern HOSTING_* for namespacing:
//
//	HOSTING_SERVER_PORT=8080
//	HOSTING_AUTHORITY_TOKEN=WyI0...
//	HOSTING_AUTHORITY_PRODUCTID=12345
//	HOSTING_RELAY_BASEURL=http://10.0.0.5:5543
//	HOSTING_RELAY_SERVICEKEY=secret
//	HOSTING_LOGGING_LEVEL=info
//
// # Secrets
//
// The authority access token and the relay service key never ship with
// defaults. Load returns an error when either is missing so the process
// refuses to start half-configured instead of failing on the first
// request that needs them. The relay service key may alternatively be
// read from an encrypted key file, see the Relay section.
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
