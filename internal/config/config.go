package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

// EnvPrefix is prepended to every environment override, e.g.
// LAMP_DEVICE_WS_URL or LAMP_RECONNECT_MAX_RETRIES.
const EnvPrefix = "LAMP"

// Config represents the application configuration
type Config struct {
	Device        DeviceConfig        `mapstructure:"device"`
	Connection    ConnectionConfig    `mapstructure:"connection"`
	Reconnect     ReconnectConfig     `mapstructure:"reconnect"`
	Session       SessionConfig       `mapstructure:"session"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// DeviceConfig locates the lamp
type DeviceConfig struct {
	WebSocketURL   string        `mapstructure:"ws_url" validate:"required,url"`
	APIURL         string        `mapstructure:"api_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// ConnectionConfig tunes the WebSocket transport
type ConnectionConfig struct {
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	PingInterval     time.Duration `mapstructure:"ping_interval" validate:"gte=0"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout" validate:"gte=0"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size" validate:"gt=0"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size" validate:"gt=0"`
	MaxMessageSize   int64         `mapstructure:"max_message_size" validate:"gt=0"`
}

// ReconnectConfig is the automatic reconnect policy: retry N waits
// base_delay*N, and at most max_retries retries follow a loss.
type ReconnectConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
}

// SessionConfig throttles outbound lamp commands
type SessionConfig struct {
	CommandRate  float64 `mapstructure:"command_rate" validate:"gt=0"` // commands per second
	CommandBurst int     `mapstructure:"command_burst" validate:"gte=1"`
}

// NotificationsConfig sizes the notification feed and filters it by level
type NotificationsConfig struct {
	Capacity          int  `mapstructure:"capacity" validate:"gte=1"`
	StatusChanges     bool `mapstructure:"status_changes"`
	ScheduleReminders bool `mapstructure:"schedule_reminders"`
	BatteryAlerts     bool `mapstructure:"battery_alerts"`
}

// ServerConfig represents the local dashboard server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	CORSAllowOrigin string        `mapstructure:"cors_allow_origin" validate:"required"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path" validate:"required"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr      string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// LoadConfig loads configuration from defaults, an optional file and the
// environment. Environment variables (and .env) win over the file.
func LoadConfig(path string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	defaults := connection.DefaultConfig()

	// Device defaults
	v.SetDefault("device.ws_url", "ws://192.168.4.1/ws")
	v.SetDefault("device.api_url", "http://192.168.4.1/api")
	v.SetDefault("device.request_timeout", 10*time.Second)

	// Connection defaults
	v.SetDefault("connection.connect_timeout", defaults.ConnectTimeout)
	v.SetDefault("connection.handshake_timeout", defaults.HandshakeTimeout)
	v.SetDefault("connection.write_timeout", defaults.WriteTimeout)
	v.SetDefault("connection.ping_interval", defaults.PingInterval)
	v.SetDefault("connection.pong_timeout", defaults.PongTimeout)
	v.SetDefault("connection.read_buffer_size", defaults.ReadBufferSize)
	v.SetDefault("connection.write_buffer_size", defaults.WriteBufferSize)
	v.SetDefault("connection.max_message_size", defaults.MaxMessageSize)

	// Reconnect defaults
	v.SetDefault("reconnect.max_retries", defaults.MaxRetries)
	v.SetDefault("reconnect.base_delay", defaults.BaseDelay)

	// Session defaults
	v.SetDefault("session.command_rate", 4.0)
	v.SetDefault("session.command_burst", 2)

	// Notification defaults
	v.SetDefault("notifications.capacity", 100)
	v.SetDefault("notifications.status_changes", true)
	v.SetDefault("notifications.schedule_reminders", true)
	v.SetDefault("notifications.battery_alerts", true)

	// Server defaults
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.cors_allow_origin", "*")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output_path", "stderr")

	// Metrics defaults
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "lamp")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if config.Connection.PingInterval > 0 && config.Connection.PongTimeout <= 0 {
		return fmt.Errorf("pong_timeout must be positive when ping_interval is set")
	}

	if !strings.HasPrefix(config.Device.WebSocketURL, "ws://") && !strings.HasPrefix(config.Device.WebSocketURL, "wss://") {
		return fmt.Errorf("invalid websocket url: %s", config.Device.WebSocketURL)
	}

	return nil
}

// WebSocket translates the transport sections into a connection.Config.
func (c *Config) WebSocket() connection.Config {
	return connection.Config{
		URL:              c.Device.WebSocketURL,
		ConnectTimeout:   c.Connection.ConnectTimeout,
		HandshakeTimeout: c.Connection.HandshakeTimeout,
		ReadBufferSize:   c.Connection.ReadBufferSize,
		WriteBufferSize:  c.Connection.WriteBufferSize,
		MaxMessageSize:   c.Connection.MaxMessageSize,
		WriteTimeout:     c.Connection.WriteTimeout,
		PingInterval:     c.Connection.PingInterval,
		PongTimeout:      c.Connection.PongTimeout,
		MaxRetries:       c.Reconnect.MaxRetries,
		BaseDelay:        c.Reconnect.BaseDelay,
	}
}
