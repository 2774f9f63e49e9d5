package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerWaitWhenEmpty(t *testing.T) {
	tr := newRunningRequests()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.wait(ctx))
}

func TestTrackerWaitBlocksUntilFinished(t *testing.T) {
	tr := newRunningRequests()
	tr.add("a", time.Minute)
	tr.add("b", time.Minute)
	assert.Equal(t, 2, tr.size())

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- tr.wait(ctx)
	}()

	tr.finish("a")
	select {
	case <-done:
		t.Fatal("wait returned while a request was still pending")
	case <-time.After(50 * time.Millisecond):
	}

	tr.finish("b")
	require.NoError(t, <-done)
	assert.Equal(t, 0, tr.size())
}

func TestTrackerFinishUnknownID(t *testing.T) {
	tr := newRunningRequests()
	tr.finish("ghost")
	assert.Equal(t, 0, tr.size())
}

func TestTrackerExpiryReleasesWait(t *testing.T) {
	tr := newRunningRequests()
	tr.add("stuck", 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.wait(ctx))
	assert.Equal(t, 0, tr.size())
}

func TestTrackerWaitHonorsContext(t *testing.T) {
	tr := newRunningRequests()
	tr.add("slow", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.wait(ctx), context.DeadlineExceeded)
	tr.finish("slow")
}

func TestTrackerReusableAfterDrain(t *testing.T) {
	tr := newRunningRequests()
	tr.add("one", time.Minute)
	tr.finish("one")

	tr.add("two", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.wait(ctx), context.DeadlineExceeded)
	tr.finish("two")
}
