package broker

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// resetDefaults clears the process-wide registry around a test.
func resetDefaults(t *testing.T) {
	t.Helper()
	defaultsMu.Lock()
	saved := processDefaults
	processDefaults = nil
	defaultsMu.Unlock()
	t.Cleanup(func() {
		defaultsMu.Lock()
		processDefaults = saved
		defaultsMu.Unlock()
	})
}

func TestApplyOptionsDefaults(t *testing.T) {
	resetDefaults(t)
	o := applyOptions(nil)
	assert.Equal(t, "rrb:", o.Prefix)
	assert.Equal(t, time.Second, o.Timeout)
	assert.Equal(t, 0, o.MinimumRecipients)
	assert.Equal(t, "localhost:6379", o.Redis.Addr)
	assert.NotNil(t, o.Logger)
}

func TestSetDefaultsMergeOrder(t *testing.T) {
	resetDefaults(t)
	SetDefaults(WithPrefix("first:"), WithTimeout(5*time.Second))
	SetDefaults(WithPrefix("second:"))

	o := applyOptions(nil)
	assert.Equal(t, "second:", o.Prefix)
	assert.Equal(t, 5*time.Second, o.Timeout)

	// Per-participant options override the registry.
	o = applyOptions([]Option{WithPrefix("local:")})
	assert.Equal(t, "local:", o.Prefix)
}

func TestPrefixSnapshotAtConstruction(t *testing.T) {
	resetDefaults(t)
	SetDefaults(WithLogger(zap.NewNop()))
	c := NewClient("jobs")
	assert.Equal(t, "rrb:q:jobs", c.queueKey)

	// Changing the defaults must not move the keys of an open client.
	SetDefaults(WithPrefix("late:"))
	assert.Equal(t, "rrb:q:jobs", c.queueKey)
	assert.Equal(t, "late:q:jobs", NewClient("jobs").queueKey)
}

func TestWithRedisNilIgnored(t *testing.T) {
	resetDefaults(t)
	o := applyOptions([]Option{WithRedis(nil)})
	assert.NotNil(t, o.Redis)

	custom := &redis.Options{Addr: "redis.internal:6380"}
	o = applyOptions([]Option{WithRedis(custom)})
	assert.Equal(t, "redis.internal:6380", o.Redis.Addr)
}

func TestWithTimeoutRejectsNonPositive(t *testing.T) {
	resetDefaults(t)
	o := applyOptions([]Option{WithTimeout(-1)})
	assert.Equal(t, time.Second, o.Timeout)
}
