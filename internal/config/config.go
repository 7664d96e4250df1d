// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Gateway holds the event gateway's configuration.
type Gateway struct {
	Addr              string        `env:"GATEWAY_ADDR" envDefault:":8080"`
	DBPath            string        `env:"GATEWAY_DB_PATH" envDefault:"data/threats.db"`
	JWTSecret         string        `env:"GATEWAY_JWT_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL          time.Duration `env:"GATEWAY_TOKEN_TTL" envDefault:"2h"`
	HeartbeatInterval time.Duration `env:"GATEWAY_HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// Watcher holds the demo watcher's configuration.
type Watcher struct {
	Host     string `env:"REALTIME_HOST" envDefault:"localhost:8080"`
	Secure   bool   `env:"REALTIME_SECURE" envDefault:"false"`
	TenantID string `env:"REALTIME_TENANT_ID" envDefault:"demo-tenant"`
	UserID   string `env:"REALTIME_USER_ID" envDefault:"demo-user"`
	Token    string `env:"REALTIME_TOKEN"`
}

// Parse loads configuration into target from the environment.
func Parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
