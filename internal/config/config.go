package config

import "time"

// Config holds server and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer      int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	// RateLimit caps publish and presence frames per connection per minute. 0 disables it.
	RateLimit         int           `mapstructure:"rate_limit" yaml:"rate_limit"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTRequired bool          `mapstructure:"jwt_required" yaml:"jwt_required"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	Room RoomConfig `mapstructure:"room" yaml:"room"`
}

// RoomConfig tunes the client-side room lifecycle.
type RoomConfig struct {
	AttachTimeout time.Duration `mapstructure:"attach_timeout" yaml:"attach_timeout"`
	DetachTimeout time.Duration `mapstructure:"detach_timeout" yaml:"detach_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "wirechat.db",
		MaxMessageBytes:   1 << 20,
		ClientBuffer:      64,
		JWTIssuer:         "wirechat",
		JWTAudience:       "wirechat",
		TokenTTL:          time.Hour,
		Room: RoomConfig{
			AttachTimeout: 10 * time.Second,
			DetachTimeout: 10 * time.Second,
		},
	}
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
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if other.RateLimit != 0 {
		c.RateLimit = other.RateLimit
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.TokenTTL != 0 {
		c.TokenTTL = other.TokenTTL
	}
	if other.Room.AttachTimeout != 0 {
		c.Room.AttachTimeout = other.Room.AttachTimeout
	}
	if other.Room.DetachTimeout != 0 {
		c.Room.DetachTimeout = other.Room.DetachTimeout
	}
}
