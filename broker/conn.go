package broker

import (
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// dial opens a fresh backend connection from a copy of the configured
// options. Participants never share connections: a subscribed
// connection only accepts pub/sub commands, so anything that both
// subscribes and issues commands holds two of these.
func dial(opts *redis.Options) *redis.Client {
	o := *opts
	return redis.NewClient(&o)
}

// closeAll closes every non-nil closer and aggregates the failures.
func closeAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		if c == nil {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	return err
}
