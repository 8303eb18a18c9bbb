// Package kvstore implements C10: a thin adapter over the backend store
// providing the eight wire primitives, each accepting an already
// fully-qualified key (§4.9). The backend driver is go-redis/v9; the
// retry-with-backoff wrapper around transient errors follows the
// teacher's retryWithBackoff (crypto/chain/ethereum/enhanced_provider.go),
// narrowed to the store's own maximum of 3 in-call retries.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nostrkv/kvgate/internal/metrics"
)

const maxRetries = 3

var retryBaseDelay = 50 * time.Millisecond

// Store wraps a redis.Client with the gateway's eight KV primitives.
type Store struct {
	rdb *redis.Client
}

// New connects to the backend at url (a redis:// connection string).
func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse backend_url: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// IsReady reports backend connectivity via PING (§4.9).
func (s *Store) IsReady(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err() == nil
}

// Close releases the backend connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func retryWithBackoff(ctx context.Context, command string, fn func() error) error {
	start := time.Now()
	defer func() {
		metrics.BackendCallDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	delay := retryBaseDelay
	for i := 0; i <= maxRetries; i++ {
		if err := fn(); err == nil {
			metrics.BackendCalls.WithLabelValues(command, "ok").Inc()
			return nil
		} else {
			lastErr = err
			if i < maxRetries {
				metrics.BackendRetries.WithLabelValues(command).Inc()
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					metrics.BackendCalls.WithLabelValues(command, "error").Inc()
					return ctx.Err()
				}
				delay *= 2
			}
		}
	}
	metrics.BackendCalls.WithLabelValues(command, "error").Inc()
	return fmt.Errorf("backend operation failed after %d retries: %w", maxRetries, lastErr)
}

// Get returns the raw bytes stored at key, or (nil, false) if absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	var found bool
	err := retryWithBackoff(ctx, "get", func() error {
		v, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

// Set stores raw value bytes at key, with an optional TTL in seconds
// (ttlSeconds <= 0 means no expiry).
func (s *Store) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	var expiry time.Duration
	if ttlSeconds > 0 {
		expiry = time.Duration(ttlSeconds) * time.Second
	}
	return retryWithBackoff(ctx, "set", func() error {
		return s.rdb.Set(ctx, key, value, expiry).Err()
	})
}

// Del deletes key, returning the number of keys actually removed (0 or 1).
func (s *Store) Del(ctx context.Context, key string) (int, error) {
	var n int64
	err := retryWithBackoff(ctx, "del", func() error {
		v, err := s.rdb.Del(ctx, key).Result()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return int(n), err
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := retryWithBackoff(ctx, "exists", func() error {
		v, err := s.rdb.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n > 0, err
}

// MGet returns raw values for each key in order; a missing key yields nil
// at that position.
func (s *Store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := retryWithBackoff(ctx, "mget", func() error {
		results, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, r := range results {
			if r == nil {
				out[i] = nil
				continue
			}
			if str, ok := r.(string); ok {
				out[i] = []byte(str)
			}
		}
		return nil
	})
	return out, err
}

// Expire sets key's TTL to ttlSeconds, reporting whether the key existed.
func (s *Store) Expire(ctx context.Context, key string, ttlSeconds int) (bool, error) {
	var ok bool
	err := retryWithBackoff(ctx, "expire", func() error {
		v, err := s.rdb.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second).Result()
		if err != nil {
			return err
		}
		ok = v
		return nil
	})
	return ok, err
}

// TTL returns remaining seconds (-2 if no such key, -1 if no expiry, else
// seconds remaining), following the redis TTL command semantics directly
// (§4.6).
func (s *Store) TTL(ctx context.Context, key string) (int, error) {
	var seconds int
	err := retryWithBackoff(ctx, "ttl", func() error {
		d, err := s.rdb.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		seconds = ttlSecondsFromDuration(d)
		return nil
	})
	return seconds, err
}

// ttlSecondsFromDuration maps a go-redis TTL duration to the wire TTL
// convention: -2 no such key, -1 no expiry, else seconds remaining.
// go-redis reports the two sentinels as raw -2/-1 durations.
func ttlSecondsFromDuration(d time.Duration) int {
	switch {
	case d == -2 || d == -2*time.Second:
		return -2
	case d == -1 || d == -1*time.Second:
		return -1
	default:
		return int(d / time.Second)
	}
}

// ListPush head-pushes a JSON record onto list, then trims the list to
// maxLen entries, used by the audit log (§4.10).
func (s *Store) ListPush(ctx context.Context, list string, record []byte, maxLen int64) error {
	return retryWithBackoff(ctx, "listpush", func() error {
		if err := s.rdb.LPush(ctx, list, record).Err(); err != nil {
			return err
		}
		return s.rdb.LTrim(ctx, list, 0, maxLen-1).Err()
	})
}

// ListRange returns up to count most recent entries of list.
func (s *Store) ListRange(ctx context.Context, list string, count int64) ([][]byte, error) {
	var out [][]byte
	err := retryWithBackoff(ctx, "listrange", func() error {
		vals, err := s.rdb.LRange(ctx, list, 0, count-1).Result()
		if err != nil {
			return err
		}
		out = make([][]byte, len(vals))
		for i, v := range vals {
			out[i] = []byte(v)
		}
		return nil
	})
	return out, err
}
