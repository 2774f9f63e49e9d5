package broker

import (
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPrefix  = "rrb:"
	defaultTimeout = time.Second
	defaultAddr    = "localhost:6379"
)

// Options collects the recognized settings of all participants. Zero
// values mean "use the default".
type Options struct {
	// Redis is the backend connection configuration. Every connection a
	// participant opens is dialed from a copy of it.
	Redis *redis.Options

	// Prefix is prepended to every generated key and channel name.
	Prefix string

	// Timeout bounds a client request from enqueue to response.
	Timeout time.Duration

	// MinimumRecipients is the number of subscribers a publish must
	// reach before it counts as delivered.
	MinimumRecipients int

	// Logger receives all participant logging.
	Logger *zap.Logger
}

type Option func(*Options)

func WithRedis(o *redis.Options) Option {
	return func(opts *Options) {
		if o != nil {
			opts.Redis = o
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(opts *Options) { opts.Prefix = prefix }
}

func WithTimeout(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.Timeout = d
		}
	}
}

func WithMinimumRecipients(n int) Option {
	return func(opts *Options) {
		if n >= 0 {
			opts.MinimumRecipients = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(opts *Options) {
		if l != nil {
			opts.Logger = l
		}
	}
}

var (
	defaultsMu      sync.RWMutex
	processDefaults []Option
)

// SetDefaults registers process-wide defaults applied under the options
// of every participant constructed afterwards. Successive calls merge:
// later defaults override earlier ones, per-participant options
// override both. Already-constructed participants are unaffected.
func SetDefaults(opts ...Option) {
	defaultsMu.Lock()
	processDefaults = append(processDefaults, opts...)
	defaultsMu.Unlock()
}

func applyOptions(opts []Option) Options {
	o := Options{
		Prefix:  defaultPrefix,
		Timeout: defaultTimeout,
	}
	defaultsMu.RLock()
	registered := make([]Option, len(processDefaults))
	copy(registered, processDefaults)
	defaultsMu.RUnlock()
	for _, apply := range registered {
		apply(&o)
	}
	for _, apply := range opts {
		apply(&o)
	}
	if o.Redis == nil {
		o.Redis = &redis.Options{Addr: defaultAddr}
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	return o
}
