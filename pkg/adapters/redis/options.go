package redis

import (
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "anima:"

type config struct {
	prefix string
	ttl    time.Duration
}

// Option configures the Redis adapters.
type Option func(*config)

// WithTTL sets the expiration for transcripts. Facts never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

func newConfig(opts []Option) config {
	c := config{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewClient creates a go-redis client for address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}
