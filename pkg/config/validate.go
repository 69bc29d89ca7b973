// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if c.JWT.AuthEnabled && (strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret") {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if !c.Transfer.BlockThreshold.IsPositive() {
		return fmt.Errorf("TRANSFER_BLOCK_THRESHOLD must be positive")
	}
	if c.Unlock.CodeTTL <= 0 {
		return fmt.Errorf("UNLOCK_CODE_TTL must be positive")
	}

	return nil
}
