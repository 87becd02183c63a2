package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/observability/metrics"
	"github.com/tphakala/livesound/internal/results"
)

// Publisher forwards every result from a broadcaster subscription to the
// results topic. It runs on its own goroutine with its own bounded queue, so
// a slow or absent broker only ever drops old results.
type Publisher struct {
	client     Client
	config     Config
	metrics    *metrics.MQTTMetrics
	log        logger.Logger
	errLimiter *rate.Limiter
}

// NewPublisher creates a publisher. m may be nil.
func NewPublisher(client Client, config Config, m *metrics.MQTTMetrics) *Publisher {
	return &Publisher{
		client:     client,
		config:     config,
		metrics:    m,
		log:        GetLogger().Module("publisher"),
		errLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Run subscribes to broadcaster and publishes until ctx is cancelled or the
// broadcaster closes. On exit it marks the status topic offline and
// disconnects.
func (p *Publisher) Run(ctx context.Context, broadcaster *results.Broadcaster) error {
	sub := broadcaster.Subscribe()
	defer sub.Unsubscribe()
	defer p.shutdown()

	p.log.Info("publishing results", logger.String("topic", p.config.Topic))

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.publish(ctx, r)
		}
	}
}

// publish sends one result. Failures are logged and counted only.
func (p *Publisher) publish(ctx context.Context, r *results.ClassificationResult) {
	payload, err := json.Marshal(r)
	if err != nil {
		p.log.Error("failed to marshal result", logger.Error(err))
		return
	}

	start := time.Now()
	err = p.client.Publish(ctx, p.config.Topic, payload, p.config.Retain)
	p.metrics.RecordPublish(len(payload), time.Since(start), err)

	if err != nil && ctx.Err() == nil && p.errLimiter.Allow() {
		p.log.Warn("failed to publish result", logger.Error(err))
	}
}

func (p *Publisher) shutdown() {
	if p.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
		defer cancel()
		if err := p.client.Publish(ctx, p.config.StatusTopic(), []byte(StatusOffline), true); err != nil {
			p.log.Warn("failed to publish offline status", logger.Error(err))
		}
	}
	p.client.Disconnect()
	p.log.Info("stopped publishing results")
}
