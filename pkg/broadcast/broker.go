package broadcast

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Broker is a process-wide registry of per-user subscriber queues.
// Create it with New and release it with Close.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string][]*Queue
	limit       int
	policy      AdmissionPolicy
	queueSize   int
	closed      bool

	seq    atomic.Uint64
	logger *slog.Logger
	now    func() time.Time

	// Observability metrics
	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	evicted   atomic.Int64
}

// Stats is a point-in-time snapshot of broker state.
type Stats struct {
	Users     int   // Users with at least one live queue
	Queues    int   // Live queues across all users
	Published int64 // Envelopes published, including ones nobody received
	Delivered int64 // Successful enqueues
	Dropped   int64 // Enqueues refused because a queue was full
	Evicted   int64 // Queues disconnected by the broker
}

// eviction is a queue detached from the registry that still needs its
// disconnect notification. Notifications are sent outside the registry lock.
type eviction struct {
	userID string
	queue  *Queue
	reason string
}

// New creates a broker with the EvictOldest policy, DefaultSubscriberLimit
// and DefaultQueueSize unless overridden by options.
func New(opts ...Option) *Broker {
	b := &Broker{
		subscribers: make(map[string][]*Queue),
		limit:       DefaultSubscriberLimit,
		policy:      EvictOldest,
		queueSize:   DefaultQueueSize,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func normalizeUserID(userID string) (string, bool) {
	id := strings.TrimSpace(userID)
	return id, id != ""
}

// Subscribe registers a new queue for the user.
//
// When the user is at the limit, EvictOldest detaches the oldest queue and
// sends it a disconnect signal, while RejectNew returns ErrCapacityExceeded.
func (b *Broker) Subscribe(userID string) (*Queue, error) {
	id, ok := normalizeUserID(userID)
	if !ok {
		return nil, ErrInvalidSubscriber
	}

	q := newQueue(b.queueSize)
	var evicted []eviction

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}

	queues := b.subscribers[id]
	if len(queues) >= b.limit {
		if b.policy == RejectNew {
			b.mu.Unlock()
			return nil, ErrCapacityExceeded
		}
		// Keep limit-1 queues so the new one fits.
		n := len(queues) - b.limit + 1
		for _, old := range queues[:n] {
			evicted = append(evicted, eviction{userID: id, queue: old, reason: ReasonReplaced})
		}
		queues = slices.Clone(queues[n:])
	}
	b.subscribers[id] = append(queues, q)
	b.mu.Unlock()

	b.notifyEvicted(evicted)

	return q, nil
}

// Unsubscribe removes the queue from the user's registry entry.
// It is safe to call more than once and for queues that were evicted.
func (b *Broker) Unsubscribe(userID string, q *Queue) {
	id, ok := normalizeUserID(userID)
	if !ok || q == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	queues, exists := b.subscribers[id]
	if !exists {
		return
	}

	idx := slices.Index(queues, q)
	if idx < 0 {
		return
	}

	queues = slices.Delete(queues, idx, idx+1)
	if len(queues) == 0 {
		delete(b.subscribers, id)
		return
	}
	b.subscribers[id] = queues
}

// Publish delivers an envelope to every live queue of the user without
// blocking. Full queues drop the envelope. Returns the number of queues that
// accepted it.
func (b *Broker) Publish(ctx context.Context, userID, channel, eventType string, data any) int {
	id, ok := normalizeUserID(userID)
	if !ok {
		return 0
	}

	env := b.envelope(channel, eventType, data)

	b.mu.Lock()
	targets := slices.Clone(b.subscribers[id])
	b.mu.Unlock()

	return b.fanOut(ctx, env, targets)
}

// Broadcast delivers one envelope to the live queues of every listed user.
// Duplicate and empty identities are ignored.
func (b *Broker) Broadcast(ctx context.Context, userIDs []string, channel, eventType string, data any) int {
	seen := make(map[string]struct{}, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, raw := range userIDs {
		id, ok := normalizeUserID(raw)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	env := b.envelope(channel, eventType, data)

	var targets []*Queue
	b.mu.Lock()
	for _, id := range ids {
		targets = append(targets, b.subscribers[id]...)
	}
	b.mu.Unlock()

	return b.fanOut(ctx, env, targets)
}

// SetSubscriberLimit changes the per-user limit (minimum 1) and disconnects
// the oldest queues of any user now above it.
func (b *Broker) SetSubscriberLimit(n int) {
	n = max(n, 1)
	var evicted []eviction

	b.mu.Lock()
	b.limit = n
	for id, queues := range b.subscribers {
		if len(queues) <= n {
			continue
		}
		over := len(queues) - n
		for _, old := range queues[:over] {
			evicted = append(evicted, eviction{userID: id, queue: old, reason: ReasonLimitReduced})
		}
		b.subscribers[id] = slices.Clone(queues[over:])
	}
	b.mu.Unlock()

	b.notifyEvicted(evicted)
}

// SubscriberLimit returns the current per-user limit.
func (b *Broker) SubscriberLimit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// Subscribers returns the number of live queues registered for the user.
func (b *Broker) Subscribers(userID string) int {
	id, ok := normalizeUserID(userID)
	if !ok {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[id])
}

// Stats returns a snapshot of registry size and delivery counters.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	users := len(b.subscribers)
	queues := 0
	for _, qs := range b.subscribers {
		queues += len(qs)
	}
	b.mu.Unlock()

	return Stats{
		Users:     users,
		Queues:    queues,
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Evicted:   b.evicted.Load(),
	}
}

// Close disconnects every queue with the shutdown reason and empties the
// registry. Subscribe fails with ErrBrokerClosed afterwards; Publish becomes a
// no-op. Calling Close again does nothing.
func (b *Broker) Close() error {
	var evicted []eviction

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, queues := range b.subscribers {
		for _, q := range queues {
			evicted = append(evicted, eviction{userID: id, queue: q, reason: ReasonShutdown})
		}
	}
	clear(b.subscribers)
	b.mu.Unlock()

	b.notifyEvicted(evicted)

	b.logger.Info("broker closed", slog.Int("disconnected", len(evicted)))
	return nil
}

func (b *Broker) envelope(channel, eventType string, data any) Envelope {
	return Envelope{
		Sequence:   b.seq.Add(1),
		Channel:    channel,
		Type:       eventType,
		OccurredAt: b.now(),
		Data:       data,
	}
}

func (b *Broker) fanOut(ctx context.Context, env Envelope, targets []*Queue) int {
	b.published.Add(1)

	delivered := 0
	for _, q := range targets {
		if q.offer(env) {
			delivered++
			continue
		}
		b.dropped.Add(1)
	}
	b.delivered.Add(int64(delivered))

	if dropped := len(targets) - delivered; dropped > 0 {
		b.logger.DebugContext(ctx, "envelope dropped for slow subscribers",
			slog.Uint64("sequence", env.Sequence),
			slog.String("channel", env.Channel),
			slog.Int("dropped", dropped),
		)
	}

	return delivered
}

// notifyEvicted must be called without holding b.mu.
func (b *Broker) notifyEvicted(evicted []eviction) {
	for _, e := range evicted {
		signal := b.envelope(ChannelSystem, TypeDisconnected, DisconnectData{Reason: e.reason})
		if e.queue.shutdown(signal) {
			b.evicted.Add(1)
			b.logger.Debug("subscriber evicted",
				slog.String("user_id", e.userID),
				slog.String("reason", e.reason),
				slog.Uint64("sequence", signal.Sequence),
			)
		}
	}
}
