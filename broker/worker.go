package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Worker lifecycle states. Transitions are monotonic except for the
// idle/working loop while listening.
type workerState int32

const (
	workerCreated workerState = iota
	workerIdle
	workerWorking
	workerDraining
	workerStopped
)

// Worker subscribes to the request-notification channel of one queue
// and handles claimed requests one at a time. Notifications are
// advisory: the authoritative claim is the LPOP against the queue list,
// so two workers racing for the same item settle at the backend.
type Worker struct {
	id        string
	queue     string
	handler   Handler
	opts      Options
	keys      keyBuilder
	queueKey  string
	notifyKey string
	log       *zap.Logger

	mu      sync.Mutex
	state   workerState
	cmd     *redis.Client
	subConn *redis.Client
	sub     *redis.PubSub

	runCtx   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error
}

// NewWorker prepares a worker for the given queue. No I/O happens until
// Listen.
func NewWorker(queue string, handler Handler, opts ...Option) *Worker {
	o := applyOptions(opts)
	id := newInstanceID()
	keys := newKeyBuilder(o.Prefix)
	return &Worker{
		id:        id,
		queue:     queue,
		handler:   handler,
		opts:      o,
		keys:      keys,
		queueKey:  keys.queue(queue),
		notifyKey: keys.notify(queue),
		log:       componentLogger(o.Logger, "worker", id).With(zap.String("queue", queue)),
		done:      make(chan struct{}),
	}
}

// Listen opens the two backend connections, subscribes to the
// notification channel and, once the subscription is acknowledged, runs
// a first queue check to pick up items enqueued before the worker
// arrived.
func (w *Worker) Listen(ctx context.Context) error {
	w.mu.Lock()
	if w.state != workerCreated {
		w.mu.Unlock()
		return ErrAlreadyListening
	}
	w.runCtx, w.cancel = context.WithCancel(context.Background())
	w.cmd = dial(w.opts.Redis)
	w.subConn = dial(w.opts.Redis)
	w.sub = w.subConn.Subscribe(ctx, w.notifyKey)
	if _, err := w.sub.Receive(ctx); err != nil {
		_ = w.sub.Close()
		_ = closeAll(w.subConn, w.cmd)
		w.sub, w.subConn, w.cmd = nil, nil, nil
		w.cancel()
		w.mu.Unlock()
		return fmt.Errorf("broker: listen on %s: %w", w.notifyKey, err)
	}
	w.state = workerIdle
	notifications := w.sub.Channel()
	w.mu.Unlock()

	go w.loop(notifications)
	go w.checkQueue()

	w.log.Info("worker listening")
	return nil
}

// Stop is idempotent. A worker in the middle of a request drains: the
// handler finishes and its response is published before the connections
// close. Stop returns once the connections are closed.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case workerCreated:
		w.state = workerStopped
		close(w.done)
		w.mu.Unlock()
	case workerStopped, workerDraining:
		w.mu.Unlock()
	case workerWorking:
		w.state = workerDraining
		w.mu.Unlock()
		w.log.Info("draining current request before shutdown")
	case workerIdle:
		w.state = workerDraining
		w.mu.Unlock()
		w.shutdown()
	}

	select {
	case <-w.done:
		return w.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop turns notification messages into claim attempts. It exits when
// the subscription closes during shutdown.
func (w *Worker) loop(notifications <-chan *redis.Message) {
	for range notifications {
		w.wake()
	}
}

// checkQueue claims queued work the notification for which was missed,
// e.g. items enqueued before this worker subscribed.
func (w *Worker) checkQueue() {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd == nil {
		// Already shut down.
		return
	}
	n, err := cmd.LLen(w.runCtx, w.queueKey).Result()
	if err != nil {
		if w.runCtx.Err() == nil {
			w.log.Warn("queue length check failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		w.wake()
	}
}

// wake moves an idle worker into the claim/serve loop. Anything that is
// not idle ignores the signal: a working worker re-checks the queue
// itself after the handler returns.
func (w *Worker) wake() {
	w.mu.Lock()
	if w.state != workerIdle {
		state := w.state
		w.mu.Unlock()
		w.log.Debug("notification ignored", zap.Int32("state", int32(state)))
		return
	}
	w.state = workerWorking
	w.mu.Unlock()

	for {
		// A drain request that arrived between items wins over new work.
		w.mu.Lock()
		if w.state == workerDraining {
			w.mu.Unlock()
			w.shutdown()
			return
		}
		w.mu.Unlock()

		raw, err := w.cmd.LPop(w.runCtx, w.queueKey).Result()
		if errors.Is(err, redis.Nil) {
			w.log.Debug("queue empty, another worker claimed the item")
			w.settle()
			return
		}
		if err != nil {
			if w.runCtx.Err() == nil {
				w.log.Warn("claim failed", zap.Error(err))
			}
			w.settle()
			return
		}

		w.serve([]byte(raw))

		w.mu.Lock()
		if w.state == workerDraining {
			w.mu.Unlock()
			w.shutdown()
			return
		}
		w.mu.Unlock()
	}
}

// settle leaves the claim loop: back to idle, or into shutdown when a
// Stop arrived while the worker was busy.
func (w *Worker) settle() {
	w.mu.Lock()
	if w.state == workerDraining {
		w.mu.Unlock()
		w.shutdown()
		return
	}
	if w.state == workerWorking {
		w.state = workerIdle
	}
	w.mu.Unlock()
}

// serve runs the handler for one claimed request and publishes the
// response. A failed publish is logged and dropped; the client's
// timeout is the safety net, the item is not re-queued.
func (w *Worker) serve(raw []byte) {
	req, err := parseRequest(raw)
	if err != nil {
		w.log.Warn("dropping malformed request", zap.Error(err))
		return
	}
	log := w.log.With(zap.String("request", req.ID))
	log.Debug("handling request")

	result, handlerErr := w.invoke(req)

	var payload []byte
	if handlerErr != nil {
		log.Debug("handler failed", zap.Error(handlerErr))
		payload = composeError(req.ID, handlerErr)
	} else {
		payload, err = composeResponse(req.ID, result)
		if err != nil {
			log.Warn("response not serializable", zap.Error(err))
			payload = composeError(req.ID, fmt.Errorf("response not serializable: %w", err))
		}
	}

	if err := w.cmd.Publish(w.runCtx, w.keys.response(req.ID), payload).Err(); err != nil {
		log.Warn("could not publish response", zap.Error(err))
	}
}

// invoke runs the user handler with panic containment: a panicking
// handler becomes an error response, not a dead worker.
func (w *Worker) invoke(req *wireRequest) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	c := &Context{ctx: w.runCtx, id: req.ID, name: w.queue, payload: req.Data}
	return w.handler(c)
}

// shutdown closes both connections exactly once and releases Stop.
func (w *Worker) shutdown() {
	w.mu.Lock()
	if w.state == workerStopped {
		w.mu.Unlock()
		return
	}
	w.state = workerStopped
	sub, subConn, cmd := w.sub, w.subConn, w.cmd
	w.sub, w.subConn, w.cmd = nil, nil, nil
	w.mu.Unlock()

	var err error
	if sub != nil {
		err = multierr.Append(err, sub.Unsubscribe(context.Background(), w.notifyKey))
		err = multierr.Append(err, sub.Close())
	}
	err = multierr.Append(err, closeAll(subConn, cmd))
	w.cancel()

	w.closeErr = err
	close(w.done)
	w.log.Info("worker stopped")
}
