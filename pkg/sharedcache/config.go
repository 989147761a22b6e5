package sharedcache

import "time"

// Config holds Redis connection and entry lifetime settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration

	// TTL applied to every cached entry
	TTL time.Duration
}

// DefaultConfig returns the defaults used when nothing is configured
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		TTL:          time.Hour,
	}
}
