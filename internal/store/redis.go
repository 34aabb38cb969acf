package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisClientName = "envelope-relay"

// RedisOptions overrides settings parsed from the URL. Zero values keep
// whatever the URL or the client library default to.
type RedisOptions struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore owns the Redis client shared by the queue, the rate limiter
// and the circuit breaker.
type RedisStore struct {
	client *redis.Client
	addr   string
}

// RedisPoolStats is a JSON-friendly view of the connection pool.
type RedisPoolStats struct {
	Addr       string `json:"addr"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
}

// NewRedis connects and pings the server. The client is closed again if
// the ping fails.
func NewRedis(ctx context.Context, o RedisOptions) (*RedisStore, error) {
	opts, err := o.clientOptions()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	s := &RedisStore{client: client, addr: opts.Addr}
	if err := s.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (o RedisOptions) clientOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = redisClientName
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	if o.DialTimeout > 0 {
		opts.DialTimeout = o.DialTimeout
	}
	if o.ReadTimeout > 0 {
		opts.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout > 0 {
		opts.WriteTimeout = o.WriteTimeout
	}
	return opts, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ping satisfies the health check signature.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis at %s: %w", s.addr, err)
	}
	return nil
}

func (s *RedisStore) PoolStats() RedisPoolStats {
	ps := s.client.PoolStats()
	return RedisPoolStats{
		Addr:       s.addr,
		TotalConns: uint32(ps.TotalConns),
		IdleConns:  uint32(ps.IdleConns),
		Hits:       uint32(ps.Hits),
		Misses:     uint32(ps.Misses),
		Timeouts:   uint32(ps.Timeouts),
	}
}
