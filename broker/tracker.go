package broker

import (
	"context"
	"sync"
	"time"
)

// trackerSlack is added to the request timeout before a pending id is
// expired from the tracker. The expiry counts from registration, while
// the request's own timer starts once the request is enqueued and
// announced, so the request's timer fires first unless that setup takes
// longer than the slack. The expiry only guards Disconnect against a
// request that never reaches its cleanup path.
const trackerSlack = 100 * time.Millisecond

// runningRequests tracks the in-flight request ids of one client so
// Disconnect can wait for them. The drained channel is closed exactly
// while the set is empty.
type runningRequests struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	drained chan struct{}
}

func newRunningRequests() *runningRequests {
	t := &runningRequests{
		pending: make(map[string]*time.Timer),
		drained: make(chan struct{}),
	}
	close(t.drained)
	return t
}

// add registers a pending request and schedules its expiry.
func (t *runningRequests) add(id string, expiry time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; ok {
		return
	}
	if len(t.pending) == 0 {
		t.drained = make(chan struct{})
	}
	t.pending[id] = time.AfterFunc(expiry, func() { t.finish(id) })
}

// finish removes a pending request; it is a no-op for unknown ids, so
// the expiry timer and the request's own cleanup may both call it.
func (t *runningRequests) finish(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.pending[id]
	if !ok {
		return
	}
	timer.Stop()
	delete(t.pending, id)
	if len(t.pending) == 0 {
		close(t.drained)
	}
}

// wait blocks until the set is empty or ctx is done.
func (t *runningRequests) wait(ctx context.Context) error {
	t.mu.Lock()
	drained := t.drained
	t.mu.Unlock()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *runningRequests) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
