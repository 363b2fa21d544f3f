package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// SubscriberBuffer is the per-subscriber delta buffer; overflowing it
	// drops the subscriber, which then resubscribes for a fresh snapshot.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
	// JoinRateLimit caps join attempts per connection per minute, 0 disables.
	JoinRateLimit int `mapstructure:"join_rate_limit" yaml:"join_rate_limit"`

	PublicRoomName        string `mapstructure:"public_room_name" yaml:"public_room_name"`
	PublicRoomDescription string `mapstructure:"public_room_description" yaml:"public_room_description"`

	// Engine selects the room-simulation backend: "standalone" or "livekit".
	Engine        string `mapstructure:"engine" yaml:"engine"`
	SessionSecret string `mapstructure:"session_secret" yaml:"session_secret"`
	SimURL        string `mapstructure:"sim_url" yaml:"sim_url"`

	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`
	LiveKitURL       string `mapstructure:"livekit_url" yaml:"livekit_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":2567",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxMessageBytes:   1 << 20,

		LogLevel:  "info",
		LogFormat: "console",

		SubscriberBuffer: 64,
		JoinRateLimit:    30,

		PublicRoomName:        "Public Lobby",
		PublicRoomDescription: "Make new friends and prepare for your next adventure!",

		Engine:        "standalone",
		SessionSecret: "dev-secret-change-me",
		SimURL:        "ws://localhost:2568/sim",
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
	if other.SubscriberBuffer != 0 {
		c.SubscriberBuffer = other.SubscriberBuffer
	}
}
