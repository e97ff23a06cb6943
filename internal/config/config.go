package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// FramePolicyClose closes a session that sends a frame kind the server does not handle.
	FramePolicyClose = "close"
	// FramePolicyIgnore drops unsupported frames and keeps the session open.
	FramePolicyIgnore = "ignore"

	// StoragePolicyContinue logs a failed append and still broadcasts the message.
	StoragePolicyContinue = "continue"
	// StoragePolicyClose drops the message and closes the sender's session.
	StoragePolicyClose = "close"
)

// Config holds server configuration values.
type Config struct {
	Addr                 string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout    time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
	MaxMessageBytes      int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	Subprotocol          string        `mapstructure:"subprotocol" yaml:"subprotocol" validate:"required_if=RequireSubprotocol true"`
	RequireSubprotocol   bool          `mapstructure:"require_subprotocol" yaml:"require_subprotocol"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	DatabasePath         string        `mapstructure:"database_path" yaml:"database_path" validate:"required"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn warning error"`
	FramePolicy          string        `mapstructure:"frame_policy" yaml:"frame_policy" validate:"oneof=close ignore"`
	StorageFailurePolicy string        `mapstructure:"storage_failure_policy" yaml:"storage_failure_policy" validate:"oneof=continue close"`
	Relay                RelayConfig   `mapstructure:"relay" yaml:"relay"`
}

// RelayConfig configures the line-oriented TCP gateway.
type RelayConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" validate:"required"`
	Upstream string `mapstructure:"upstream" yaml:"upstream" validate:"required,url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 "127.0.0.1:8000",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		WriteTimeout:         5 * time.Second,
		MaxMessageBytes:      32 << 10,
		Subprotocol:          "chatcast",
		RequireSubprotocol:   true,
		DatabasePath:         "./data.sqlite",
		LogLevel:             "info",
		FramePolicy:          FramePolicyClose,
		StorageFailurePolicy: StoragePolicyContinue,
		Relay: RelayConfig{
			Addr:     "0.0.0.0:3333",
			Upstream: "ws://127.0.0.1:8000/ws",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints declared in struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.IdleTimeout != 0 {
		c.IdleTimeout = other.IdleTimeout
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.Subprotocol != "" {
		c.Subprotocol = other.Subprotocol
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.FramePolicy != "" {
		c.FramePolicy = other.FramePolicy
	}
	if other.StorageFailurePolicy != "" {
		c.StorageFailurePolicy = other.StorageFailurePolicy
	}
	if other.Relay.Addr != "" {
		c.Relay.Addr = other.Relay.Addr
	}
	if other.Relay.Upstream != "" {
		c.Relay.Upstream = other.Relay.Upstream
	}
}
