package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/observability/metrics"
	"github.com/tphakala/livesound/internal/results"
	"github.com/tphakala/livesound/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type message struct {
	topic   string
	payload []byte
	retain  bool
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	failPublish  bool
	messages     []message
	disconnected bool
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPublish {
		return publishError(errors.NewStd("broker unavailable"), topic)
	}
	c.messages = append(c.messages, message{topic: topic, payload: payload, retain: retain})
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) published() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func newTestMQTTMetrics(t *testing.T) *metrics.MQTTMetrics {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func runPublisher(t *testing.T, p *Publisher, b *results.Broadcaster) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx, b) }()
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, time.Millisecond)
	return cancel, errc
}

func TestPublisherForwardsResults(t *testing.T) {
	t.Parallel()

	client := &fakeClient{connected: true}
	m := newTestMQTTMetrics(t)
	cfg := DefaultConfig()
	cfg.Topic = "home/livesound"

	b := results.NewBroadcaster(8, nil)
	defer b.Close()

	cancel, errc := runPublisher(t, NewPublisher(client, cfg, m), b)

	b.Publish(&results.ClassificationResult{
		SessionID:  "s1",
		Model:      "yamnet",
		Categories: []results.Category{{Index: 0, Label: "Speech", Score: 0.91}},
	})
	require.Eventually(t, func() bool { return len(client.published()) == 1 }, time.Second, time.Millisecond)

	msg := client.published()[0]
	assert.Equal(t, "home/livesound", msg.topic)
	assert.False(t, msg.retain)

	var got results.ClassificationResult
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "Speech", got.Categories[0].Label)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.Publishes.WithLabelValues(metrics.StatusSuccess)), 0)

	cancel()
	require.NoError(t, <-errc)

	msgs := client.published()
	last := msgs[len(msgs)-1]
	assert.Equal(t, "home/livesound/status", last.topic)
	assert.Equal(t, StatusOffline, string(last.payload))
	assert.True(t, last.retain)
	assert.True(t, client.disconnected)
	assert.Equal(t, 0, b.Subscribers())
}

func TestPublisherCountsFailures(t *testing.T) {
	t.Parallel()

	client := &fakeClient{connected: true, failPublish: true}
	m := newTestMQTTMetrics(t)
	b := results.NewBroadcaster(8, nil)
	defer b.Close()

	cancel, errc := runPublisher(t, NewPublisher(client, DefaultConfig(), m), b)

	for range 3 {
		b.Publish(&results.ClassificationResult{Model: "yamnet"})
	}
	require.Eventually(t, func() bool {
		return promtestutil.ToFloat64(m.Publishes.WithLabelValues(metrics.StatusError)) == 3
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	assert.Empty(t, client.published())
}

func TestPublisherStopsWhenBroadcasterCloses(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	b := results.NewBroadcaster(8, nil)
	cancel, errc := runPublisher(t, NewPublisher(client, DefaultConfig(), nil), b)
	defer cancel()

	b.Close()
	err := testutil.Receive(t, errc, testutil.ShortTestTimeout, "publisher did not stop after the broadcaster closed")
	require.NoError(t, err)
	// never connected, so no offline status
	assert.Empty(t, client.published())
	assert.True(t, client.disconnected)
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	s := conf.Defaults()
	s.MQTT.Broker = "tcp://broker.local:1883"
	s.MQTT.Topic = "lab/audio"
	s.MQTT.ClientID = "mic-1"
	s.MQTT.QoS = 1

	a := ConfigFromSettings(&s)
	b := ConfigFromSettings(&s)

	assert.Equal(t, "tcp://broker.local:1883", a.Broker)
	assert.Equal(t, "lab/audio/status", a.StatusTopic())
	assert.Equal(t, byte(1), a.QoS)
	assert.Regexp(t, `^mic-1-[0-9a-f]{8}$`, a.ClientID)
	assert.NotEqual(t, a.ClientID, b.ClientID)

	s.MQTT.Topic = ""
	assert.Equal(t, conf.DefaultMQTTTopic, ConfigFromSettings(&s).Topic)
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "://not a url"
	c := NewClient(cfg, nil)

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))

	assert.False(t, c.IsConnected())
	err = c.Publish(t.Context(), "t", []byte("x"), false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))

	c.Disconnect()
}
