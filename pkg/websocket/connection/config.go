package connection

import (
	"fmt"
	"time"
)

// Config holds WebSocket connection configuration
type Config struct {
	// Connection settings
	URL              string        `json:"url" validate:"omitempty,url"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`

	// Buffer settings
	ReadBufferSize  int   `json:"read_buffer_size"`
	WriteBufferSize int   `json:"write_buffer_size"`
	MaxMessageSize  int64 `json:"max_message_size"`

	// Timing settings
	WriteTimeout time.Duration `json:"write_timeout"`
	PingInterval time.Duration `json:"ping_interval"` // 0 disables keepalive pings
	PongTimeout  time.Duration `json:"pong_timeout"`

	// Reconnection policy: the Nth automatic retry waits BaseDelay*N
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
}

// DefaultConfig returns a configuration with the device defaults
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   1024 * 1024, // 1MB
		WriteTimeout:     10 * time.Second,
		PingInterval:     0,
		PongTimeout:      10 * time.Second,
		MaxRetries:       5,
		BaseDelay:        3 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive")
	}

	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("write buffer size must be positive")
	}

	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if c.MaxRetries > 0 && c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive when retries are enabled")
	}

	if c.PingInterval > 0 && c.PongTimeout <= 0 {
		return fmt.Errorf("pong timeout must be positive when pings are enabled")
	}

	return nil
}

// ApplyDefaults fills in missing values with defaults. MaxRetries is left
// alone because zero is a meaningful value (never reconnect).
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaults.PongTimeout
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaults.BaseDelay
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig(url string) Config {
	config := DefaultConfig()
	config.URL = url
	config.ConnectTimeout = 5 * time.Second
	config.HandshakeTimeout = 5 * time.Second
	config.WriteTimeout = time.Second
	config.BaseDelay = 3 * time.Second
	return config
}
