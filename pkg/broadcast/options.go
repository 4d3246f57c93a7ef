package broadcast

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultSubscriberLimit is the default number of live queues allowed per user.
const DefaultSubscriberLimit = 5

// AdmissionPolicy decides what Subscribe does when a user is at the limit.
type AdmissionPolicy uint8

const (
	// EvictOldest disconnects the user's oldest queue and admits the new one.
	EvictOldest AdmissionPolicy = iota
	// RejectNew refuses the new subscription with ErrCapacityExceeded.
	RejectNew
)

// String implements fmt.Stringer.
func (p AdmissionPolicy) String() string {
	switch p {
	case EvictOldest:
		return "evict_oldest"
	case RejectNew:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseAdmissionPolicy converts a configuration value into an AdmissionPolicy.
func ParseAdmissionPolicy(s string) (AdmissionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "evict", "evict_oldest", "evict-oldest":
		return EvictOldest, nil
	case "reject", "reject_new", "reject-new":
		return RejectNew, nil
	default:
		return EvictOldest, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Config provides environment-based configuration for the broker.
type Config struct {
	QueueSize       int    `env:"BROKER_QUEUE_SIZE" envDefault:"64"`
	SubscriberLimit int    `env:"BROKER_MAX_SUBSCRIBERS_PER_USER" envDefault:"5"`
	AdmissionPolicy string `env:"BROKER_ADMISSION_POLICY" envDefault:"evict_oldest"`
}

// NewFromConfig creates a Broker from configuration.
// Additional options override config values.
func NewFromConfig(cfg Config, opts ...Option) (*Broker, error) {
	policy, err := ParseAdmissionPolicy(cfg.AdmissionPolicy)
	if err != nil {
		return nil, err
	}

	configOpts := []Option{WithAdmissionPolicy(policy)}
	if cfg.QueueSize > 0 {
		configOpts = append(configOpts, WithQueueSize(cfg.QueueSize))
	}
	if cfg.SubscriberLimit > 0 {
		configOpts = append(configOpts, WithSubscriberLimit(cfg.SubscriberLimit))
	}
	configOpts = append(configOpts, opts...)

	return New(configOpts...), nil
}

// Option configures a Broker.
type Option func(*Broker)

// WithQueueSize sets the data capacity of every new subscriber queue.
func WithQueueSize(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

// WithSubscriberLimit sets the maximum number of live queues per user (minimum 1).
func WithSubscriberLimit(n int) Option {
	return func(b *Broker) {
		b.limit = max(n, 1)
	}
}

// WithAdmissionPolicy sets the policy applied when a user is at the limit.
func WithAdmissionPolicy(p AdmissionPolicy) Option {
	return func(b *Broker) {
		b.policy = p
	}
}

// WithLogger sets the logger for broker lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp envelopes.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}
