package broker

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher emits framed messages on one pub/sub channel and verifies
// the recipient count the backend reports.
type Publisher struct {
	id         string
	channel    string
	opts       Options
	channelKey string
	log        *zap.Logger

	mu   sync.Mutex
	conn *redis.Client
}

// NewPublisher prepares a publisher for the given channel. No I/O
// happens until Connect.
func NewPublisher(channel string, opts ...Option) *Publisher {
	o := applyOptions(opts)
	id := newInstanceID()
	return &Publisher{
		id:         id,
		channel:    channel,
		opts:       o,
		channelKey: newKeyBuilder(o.Prefix).channel(channel),
		log:        componentLogger(o.Logger, "publisher", id).With(zap.String("channel", channel)),
	}
}

// Connect opens the command connection.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return ErrAlreadyConnected
	}
	p.conn = dial(p.opts.Redis)
	p.log.Debug("connected")
	return nil
}

// Disconnect is idempotent and resolves quietly when the publisher was
// never connected.
func (p *Publisher) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	p.log.Debug("disconnected")
	return conn.Close()
}

// Publish frames the message and publishes it. When fewer recipients
// than the configured minimum were listening the call fails with
// *InsufficientRecipientsError; the recipients that were listening
// still received the message.
func (p *Publisher) Publish(ctx context.Context, message any) (int64, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	messageID := nextMessageID()
	payload, err := composePubSubMessage(messageID, message)
	if err != nil {
		return 0, err
	}
	received, err := conn.Publish(ctx, p.channelKey, payload).Result()
	if err != nil {
		return 0, err
	}
	p.log.Debug("published", zap.String("message", messageID), zap.Int64("recipients", received))
	if received < int64(p.opts.MinimumRecipients) {
		return 0, &InsufficientRecipientsError{Received: received, Minimum: p.opts.MinimumRecipients}
	}
	return received, nil
}
