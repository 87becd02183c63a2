package results

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/livesound/internal/logger"
)

// DefaultQueueSize is the per-subscriber queue capacity when none is given.
const DefaultQueueSize = 32

// Recorder receives broadcaster measurements.
type Recorder interface {
	RecordResultPublished()
	RecordResultDropped()
}

type noopRecorder struct{}

func (noopRecorder) RecordResultPublished() {}
func (noopRecorder) RecordResultDropped()   {}

// Broadcaster delivers every published result to each subscriber's bounded
// queue. A full queue loses its oldest entry, so Publish never blocks and slow
// consumers see the most recent results.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[uint64]*Subscription
	nextID    uint64
	queueSize int
	closed    bool

	latest   atomic.Pointer[ClassificationResult]
	recorder Recorder
}

// Subscription is one consumer's view of the stream.
type Subscription struct {
	id      uint64
	ch      chan *ClassificationResult
	b       *Broadcaster
	dropped atomic.Uint64
	once    sync.Once
}

// NewBroadcaster returns a broadcaster with per-subscriber queues of
// queueSize entries. A nil recorder disables measurements.
func NewBroadcaster(queueSize int, recorder Recorder) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Broadcaster{
		subs:      make(map[uint64]*Subscription),
		queueSize: queueSize,
		recorder:  recorder,
	}
}

// Subscribe registers a consumer. Only results published after this call are
// delivered. On a closed broadcaster the returned channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription{
		ch: make(chan *ClassificationResult, b.queueSize),
		b:  b,
	}
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}

	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Publish delivers r to every subscriber and makes it the latest result.
func (b *Broadcaster) Publish(r *ClassificationResult) {
	if r == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.latest.Store(r)
	b.recorder.RecordResultPublished()

	for _, s := range b.subs {
		s.offer(r, b.recorder)
	}
}

// offer enqueues r, evicting the oldest entries while the queue is full.
// Callers hold b.mu so the channel cannot be closed underneath.
func (s *Subscription) offer(r *ClassificationResult, recorder Recorder) {
	for {
		select {
		case s.ch <- r:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			recorder.RecordResultDropped()
		default:
			// consumer drained it meanwhile
		}
	}
}

// Latest returns the most recently published result, or nil.
func (b *Broadcaster) Latest() *ClassificationResult {
	return b.latest.Load()
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later Publish calls are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.once.Do(func() { close(s.ch) })
		delete(b.subs, id)
	}
	GetLogger().Debug("broadcaster closed")
}

// C returns the delivery channel. It is closed on Unsubscribe or when the
// broadcaster closes.
func (s *Subscription) C() <-chan *ClassificationResult {
	return s.ch
}

// Dropped returns how many queued results were evicted for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		GetLogger().Debug("subscriber removed",
			logger.Uint64("dropped", s.dropped.Load()),
			logger.Int("remaining", len(b.subs)))
	}
	s.once.Do(func() { close(s.ch) })
}
