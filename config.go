// Package dexmail holds the client configuration shared by the auth
// orchestrator, the send pipeline and the dev tooling.
package dexmail

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment.
type Config struct {
	// APIBaseURL is the auth/mail backend base URL.
	APIBaseURL string `env:"DEXMAIL_API_URL" envDefault:"http://localhost:9000"`

	// ProviderBaseURL is the embedded-identity provider base URL.
	ProviderBaseURL string `env:"DEXMAIL_PROVIDER_URL" envDefault:"http://localhost:9000/cdp"`

	// PlatformDomain marks platform recipients and completes bare
	// usernames.
	PlatformDomain string `env:"DEXMAIL_DOMAIN" envDefault:"dexmail.app"`

	// LogoutGrace is the wallet-disconnect grace period before
	// auto-logout.
	LogoutGrace time.Duration `env:"DEXMAIL_LOGOUT_GRACE" envDefault:"2s"`

	// RedisURL enables the Redis session store and the Redis stream
	// event publisher when set.
	RedisURL string `env:"REDIS_URL"`

	// EscrowAddress receives escrowed transfer assets.
	EscrowAddress string `env:"DEXMAIL_ESCROW_ADDRESS" envDefault:"0x000000000000000000000000000000000000dEaD"`

	// RegistryAddress is the on-chain email registry.
	RegistryAddress string `env:"DEXMAIL_REGISTRY_ADDRESS"`

	// ListenAddr is where the dev stub backend serves.
	ListenAddr string `env:"DEXMAIL_LISTEN_ADDR" envDefault:":9000"`

	// Debug raises the log level.
	Debug bool `env:"DEXMAIL_DEBUG"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
