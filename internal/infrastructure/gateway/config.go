package gateway

import (
	"errors"
	"time"
)

// Config contains connection settings for one settlement gateway endpoint
type Config struct {
	// BaseURL is the gateway API base URL
	BaseURL string
	// APIKey authenticates requests to the gateway
	APIKey string
	// Timeout bounds every call; an expired deadline surfaces as a transient failure
	Timeout time.Duration
}

// Errors for configuration validation
var (
	ErrGatewayMissingBaseURL = errors.New("gateway: missing base URL")
	ErrGatewayMissingAPIKey  = errors.New("gateway: missing API key")
)

const defaultGatewayTimeout = 30 * time.Second

// Validate validates the configuration and applies the default timeout
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrGatewayMissingBaseURL
	}
	if c.APIKey == "" {
		return ErrGatewayMissingAPIKey
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultGatewayTimeout
	}
	return nil
}
