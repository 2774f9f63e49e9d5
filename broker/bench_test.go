package broker

import (
	"context"
	"testing"
	"time"
)

// Round-trip latency of the full request path against a live Redis:
// RPUSH, notification, LPOP, handler, response publish, receive.
func BenchmarkRequest(b *testing.B) {
	opts := liveOpts(b, WithTimeout(5*time.Second))
	ctx := context.Background()

	w := NewWorker("bench", echoHandler, opts...)
	if err := w.Listen(ctx); err != nil {
		b.Fatal(err)
	}
	defer w.Stop(ctx)

	c := NewClient("bench", opts...)
	if err := c.Connect(ctx); err != nil {
		b.Fatal(err)
	}
	defer c.Disconnect(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Request(ctx, i); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPublish(b *testing.B) {
	opts := liveOpts(b)
	ctx := context.Background()

	p := NewPublisher("bench", opts...)
	if err := p.Connect(ctx); err != nil {
		b.Fatal(err)
	}
	defer p.Disconnect(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Publish(ctx, i); err != nil {
			b.Fatal(err)
		}
	}
}
