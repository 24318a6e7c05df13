package broker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/miladsoleymani/crosslink/core"
)

const (
	// Namespace prefixes every channel name.
	Namespace = "crosslink"

	// DefaultSubChannel is used when no sub-channel is configured.
	DefaultSubChannel = "main"

	// DefaultConnectTimeout bounds the initial connect attempt.
	DefaultConnectTimeout = 5 * time.Second
)

// Config holds broker-agnostic configuration.
// Broker plugins extract the fields they need.
type Config struct {
	// Type selects the plugin.
	Type core.BrokerType

	// ServerName is this process's identity for server-targeted messages.
	ServerName string

	// SubChannel scopes traffic: only processes sharing it see each other.
	SubChannel string

	// Brokers is a list of transport addresses (e.g., "nats://localhost:4222").
	Brokers []string

	// Username and Password are applied only when both are non-empty.
	Username string
	Password string

	// ConnectTimeout bounds Initialize; zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Codec names the wire codec ("json" or "cbor"); empty means json.
	Codec string

	// Workers and QueueSize size the inbound dispatcher; zero means default.
	Workers   int
	QueueSize int

	// Logger, when set, replaces the plugin's default logger.
	Logger *zerolog.Logger

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}

// Channel returns the channel name shared by all processes on the same sub-channel.
func (c Config) Channel() string {
	return ChannelName(c.SubChannel)
}

// Credentials returns the configured username and password. ok is false
// unless both are set; a lone username or password means no credentials.
func (c Config) Credentials() (username, password string, ok bool) {
	if c.Username == "" || c.Password == "" {
		return "", "", false
	}
	return c.Username, c.Password, true
}

// Timeout returns the connect timeout, applying the default.
func (c Config) Timeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}

// ChannelName builds "<namespace>:<sub-channel>".
func ChannelName(subChannel string) string {
	if subChannel == "" {
		subChannel = DefaultSubChannel
	}
	return Namespace + ":" + subChannel
}
