package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client issues requests on one queue. It holds a single command
// connection plus one short-lived subscriber connection per request, so
// concurrent requests never share a response listener.
type Client struct {
	id        string
	queue     string
	opts      Options
	keys      keyBuilder
	queueKey  string
	notifyKey string
	log       *zap.Logger
	tracker   *runningRequests

	mu           sync.Mutex
	cmd          *redis.Client
	connected    bool
	shuttingDown bool
}

// NewClient prepares a client for the given queue. No I/O happens until
// Connect.
func NewClient(queue string, opts ...Option) *Client {
	o := applyOptions(opts)
	id := newInstanceID()
	keys := newKeyBuilder(o.Prefix)
	return &Client{
		id:        id,
		queue:     queue,
		opts:      o,
		keys:      keys,
		queueKey:  keys.queue(queue),
		notifyKey: keys.notify(queue),
		log:       componentLogger(o.Logger, "client", id).With(zap.String("queue", queue)),
		tracker:   newRunningRequests(),
	}
}

// Connect opens the command connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return ErrAlreadyConnected
	}
	c.cmd = dial(c.opts.Redis)
	c.connected = true
	c.shuttingDown = false
	c.log.Debug("connected")
	return nil
}

// Disconnect waits until every in-flight request has completed or timed
// out, then closes the command connection. It is idempotent and safe to
// call before Connect.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.shuttingDown = true
	c.mu.Unlock()

	if n := c.tracker.size(); n > 0 {
		c.log.Debug("waiting for in-flight requests", zap.Int("pending", n))
	}
	if err := c.tracker.wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	cmd := c.cmd
	c.cmd = nil
	c.connected = false
	c.mu.Unlock()
	if cmd == nil {
		// A concurrent Disconnect already closed the connection.
		return nil
	}

	c.log.Debug("disconnected")
	return cmd.Close()
}

// Request sends one request and blocks until its response, the
// configured timeout, or ctx cancellation. A handler failure on the
// worker side comes back as a *WireError.
func (c *Client) Request(ctx context.Context, data any) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	if c.shuttingDown {
		c.mu.Unlock()
		return nil, ErrShuttingDown
	}
	cmd := c.cmd
	requestID := newRequestID()
	// Registered under the same lock as the shuttingDown check, so
	// Disconnect never misses a request it has to wait for.
	c.tracker.add(requestID, c.opts.Timeout+trackerSlack)
	c.mu.Unlock()
	defer c.tracker.finish(requestID)

	log := c.log.With(zap.String("request", requestID))
	responseKey := c.keys.response(requestID)

	payload, err := composeRequest(requestID, data)
	if err != nil {
		return nil, fmt.Errorf("broker: encode request: %w", err)
	}

	// The response travels over a dedicated subscriber connection: a
	// subscribed connection cannot issue other commands, and a private
	// one keeps concurrent requests of the same client isolated.
	subConn := dial(c.opts.Redis)
	sub := subConn.Subscribe(ctx, responseKey)
	defer func() {
		_ = sub.Unsubscribe(context.Background(), responseKey)
		_ = closeAll(sub, subConn)
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("broker: subscribe response channel: %w", err)
	}

	// Enqueue strictly before notifying: a worker woken by the
	// notification must find the item on the list.
	if err := cmd.RPush(ctx, c.queueKey, payload).Err(); err != nil {
		return nil, fmt.Errorf("broker: enqueue request: %w", err)
	}
	receivers, err := cmd.Publish(ctx, c.notifyKey, composeNotification()).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: notify workers: %w", err)
	}
	if receivers == 0 {
		// A worker may still arrive before the timeout.
		log.Info("no active worker on queue")
	}

	return c.await(ctx, sub, log)
}

// await reads response frames until a well-formed one arrives or the
// timeout expires. Malformed frames are protocol damage: logged and
// skipped, never fatal.
func (c *Client) await(ctx context.Context, sub *redis.PubSub, log *zap.Logger) (json.RawMessage, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	for {
		msg, err := sub.ReceiveMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				log.Debug("request timed out")
				return nil, ErrTimeout
			}
			return nil, err
		}
		resp, err := parseResponse([]byte(msg.Payload))
		if err != nil {
			log.Warn("discarding malformed response", zap.Error(err))
			continue
		}
		if !resp.OK {
			log.Debug("request failed remotely", zap.String("error", resp.Error.Message))
			return nil, resp.Error
		}
		log.Debug("request resolved")
		return resp.Response, nil
	}
}
