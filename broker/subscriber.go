package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Subscriber listens on one pub/sub channel and invokes its handler for
// every message. Handler failures are logged and swallowed; they never
// stop the subscriber or reach the publisher.
type Subscriber struct {
	id         string
	channel    string
	handler    MessageHandler
	opts       Options
	channelKey string
	log        *zap.Logger

	mu        sync.Mutex
	conn      *redis.Client
	sub       *redis.PubSub
	listening bool
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSubscriber prepares a subscriber for the given channel. No I/O
// happens until Listen.
func NewSubscriber(channel string, handler MessageHandler, opts ...Option) *Subscriber {
	o := applyOptions(opts)
	id := newInstanceID()
	return &Subscriber{
		id:         id,
		channel:    channel,
		handler:    handler,
		opts:       o,
		channelKey: newKeyBuilder(o.Prefix).channel(channel),
		log:        componentLogger(o.Logger, "subscriber", id).With(zap.String("channel", channel)),
	}
}

// Listen opens the subscriber connection and arms the message callback.
// It returns once the subscription is acknowledged.
func (s *Subscriber) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return ErrAlreadyListening
	}
	s.conn = dial(s.opts.Redis)
	s.sub = s.conn.Subscribe(ctx, s.channelKey)
	if _, err := s.sub.Receive(ctx); err != nil {
		_ = s.sub.Close()
		_ = s.conn.Close()
		s.sub, s.conn = nil, nil
		return fmt.Errorf("broker: listen on %s: %w", s.channelKey, err)
	}
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.listening = true

	go s.loop(s.sub.Channel(), s.done)

	s.log.Info("subscriber listening")
	return nil
}

// Stop is idempotent and safe to call before Listen. A stopped
// subscriber may Listen again.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return nil
	}
	s.listening = false
	sub, conn, done := s.sub, s.conn, s.done
	s.sub, s.conn = nil, nil
	s.cancel()
	s.mu.Unlock()

	err := multierr.Append(
		sub.Unsubscribe(context.Background(), s.channelKey),
		closeAll(sub, conn),
	)

	select {
	case <-done:
	case <-ctx.Done():
		return multierr.Append(err, ctx.Err())
	}
	s.log.Info("subscriber stopped")
	return err
}

func (s *Subscriber) loop(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		s.dispatch([]byte(msg.Payload))
	}
}

// dispatch decodes one frame and runs the handler in its own goroutine,
// with failures contained.
func (s *Subscriber) dispatch(payload []byte) {
	msg, err := parsePubSubMessage(payload)
	if err != nil {
		s.log.Warn("discarding malformed message", zap.Error(err))
		return
	}
	c := &Context{ctx: s.runCtx, id: msg.ID, name: s.channel, payload: msg.Message}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Warn("message handler panicked",
					zap.String("message", msg.ID), zap.Any("panic", r))
			}
		}()
		if err := s.handler(c); err != nil {
			s.log.Warn("message handler failed",
				zap.String("message", msg.ID), zap.Error(err))
		}
	}()
}
