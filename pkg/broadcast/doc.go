// Package broadcast provides an in-memory, per-user event broker for fanning out
// notifications to long-lived streaming connections.
//
// The broker keeps a registry that maps a user identity to the ordered list of
// that user's live subscriber queues, oldest first. Publishing never blocks: an
// envelope is offered to every queue without waiting, and a full queue simply
// drops the event for that subscriber so one stalled client cannot slow down
// the publisher or any other subscriber.
//
// # Architecture
//
// The package defines three types:
//   - Envelope: one immutable notification (sequence, channel, type, time, data)
//   - Queue: a bounded FIFO owned by a single streaming connection
//   - Broker: the registry, admission policy and global sequence counter
//
// Queue contents are a tagged variant. A receiver sees one of:
//   - KindData: a published envelope
//   - KindSignal: a system "disconnected" envelope (eviction, limit change, shutdown)
//   - KindClose: the close sentinel; nothing follows it
//
// # Usage
//
//	b := broadcast.New(
//		broadcast.WithQueueSize(64),
//		broadcast.WithSubscriberLimit(5),
//	)
//	defer b.Close()
//
//	q, err := b.Subscribe("user-1")
//	if err != nil {
//		// ErrInvalidSubscriber or ErrCapacityExceeded
//	}
//	defer b.Unsubscribe("user-1", q)
//
//	b.Publish(ctx, "user-1", "notifications", "notification.created", payload)
//
//	for {
//		item, err := q.Receive(ctx, 25*time.Second)
//		if errors.Is(err, broadcast.ErrReceiveTimeout) {
//			// idle, send a keepalive
//			continue
//		}
//		if err != nil || item.Kind != broadcast.KindData {
//			return
//		}
//		// deliver item.Envelope
//	}
//
// # Admission Policies
//
// When a user already holds the maximum number of subscriptions:
//   - EvictOldest (default): the oldest queue receives a disconnect envelope and
//     the close sentinel, is removed from the registry, and the new queue is admitted
//   - RejectNew: Subscribe returns ErrCapacityExceeded and nothing changes
//
// # Ordering
//
// A single queue receives envelopes in the order their enqueue completed. No
// ordering is guaranteed across users or across queues of the same user.
// Events published while a user has no queue are not retained.
//
// # Thread Safety
//
// All types are safe for concurrent use. Registry changes happen under one
// mutex; sequence numbers come from an atomic counter; eviction items are
// written outside the registry lock.
package broadcast
