package jobengine

import (
	"fmt"
	"strings"
)

// Config holds connection settings for the external workflow engine
type Config struct {
	// BaseURL is the engine API root, e.g. "https://api.coze.cn"
	BaseURL string
	// Token is the bearer token for all engine calls
	Token string
	// TimeoutSeconds bounds submit and poll requests. Streams are exempt: a
	// long-running stream ends when upstream ends.
	TimeoutSeconds int
	// MaxResponseBytes caps non-streaming response bodies
	MaxResponseBytes int64
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("jobengine: base URL is required")
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("jobengine: token is required")
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 10 << 20 // 10MB
	}
	return nil
}
