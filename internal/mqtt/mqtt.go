// Package mqtt publishes classification results to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	// It returns an error if the publish operation fails.
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Status payloads retained on the status topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // results topic, status goes to Topic + "/status"
	QoS      byte
	Retain   bool // retain result messages at the broker

	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnectDelay time.Duration
}

// StatusTopic returns the topic carrying the retained online/offline status.
func (c Config) StatusTopic() string {
	return c.Topic + "/status"
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:             conf.DefaultMQTTTopic,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnectDelay: 5 * time.Minute,
	}
}

// ConfigFromSettings builds a client config. The client ID gets a random
// suffix so two instances never take over each other's session.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	m := settings.MQTT

	cfg.Broker = m.Broker
	cfg.Username = m.Username
	cfg.Password = m.Password
	cfg.QoS = m.QoS
	cfg.Retain = m.Retain
	if m.Topic != "" {
		cfg.Topic = m.Topic
	}

	clientID := m.ClientID
	if clientID == "" {
		clientID = "livesound"
	}
	cfg.ClientID = clientID + "-" + uuid.NewString()[:8]

	return cfg
}

// GetLogger returns the mqtt package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
