package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/observability/metrics"
)

// client implements the Client interface on top of paho. Reconnects are left
// to paho's auto-reconnect.
type client struct {
	config         Config
	internalClient mqtt.Client
	mu             sync.Mutex
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration.
func NewClient(config Config, m *metrics.MQTTMetrics) Client {
	return &client{
		config:  config,
		metrics: m,
		log:     GetLogger().With(logger.String("broker", config.Broker)),
	}
}

// Connect resolves the broker host and connects. The last will marks the
// status topic offline if the connection drops without a clean disconnect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connectionError(fmt.Errorf("invalid broker URL: %w", err))
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err))
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectDelay)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetWill(c.config.StatusTopic(), StatusOffline, c.config.QoS, true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return connectionError(ctx.Err())
	case <-time.After(c.config.ConnectTimeout):
		return connectionError(fmt.Errorf("connection timeout"))
	}
	if err := token.Error(); err != nil {
		return connectionError(fmt.Errorf("connection error: %w", err))
	}

	return nil
}

// Publish sends payload to topic and waits for the broker acknowledgement
// allowed by the configured QoS.
func (c *client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	ic := c.internalClient
	c.mu.Unlock()

	if ic == nil || !ic.IsConnected() {
		return publishError(fmt.Errorf("not connected to MQTT broker"), topic)
	}

	token := ic.Publish(topic, c.config.QoS, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return publishError(ctx.Err(), topic)
	case <-time.After(c.config.PublishTimeout):
		return publishError(fmt.Errorf("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		return publishError(err, topic)
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) onConnect(mc mqtt.Client) {
	c.log.Info("connected to MQTT broker")
	c.metrics.UpdateConnectionStatus(true)

	// paho runs this handler on its own goroutine, so waiting is fine
	token := mc.Publish(c.config.StatusTopic(), c.config.QoS, true, StatusOnline)
	if token.WaitTimeout(c.config.PublishTimeout) && token.Error() != nil {
		c.log.Warn("failed to publish online status", logger.Error(token.Error()))
	}
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
}

func (c *client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	c.log.Debug("reconnecting to MQTT broker")
	c.metrics.IncrementReconnectAttempts()
}

func connectionError(err error) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}
