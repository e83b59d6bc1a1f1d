package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
	checkTimeout    = 2 * time.Second
)

// Check pings one backing store.
type Check func(ctx context.Context) error

// waitReady retries ping with doubling backoff so the server can start
// alongside its stores.
func waitReady(ctx context.Context, log zerolog.Logger, store string, ping Check) error {
	backoff := connectBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			return err
		}
		log.Warn().Err(err).
			Str("store", store).
			Int("attempt", attempt).
			Dur("retry_in", backoff).
			Msg("Store not ready")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Health reports whether the stores the API depends on are reachable.
type Health struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealth checks pool and rdb.
func NewHealth(pool *pgxpool.Pool, rdb *redis.Client) *Health {
	return &Health{
		checks: map[string]Check{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		timeout: checkTimeout,
	}
}

// Status pings every store concurrently. It returns "up" or the error text
// per store, and false when any of them is down.
func (h *Health) Status(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(h.checks))
	for name, check := range h.checks {
		go func() { results <- result{name: name, err: check(ctx)} }()
	}

	status := make(map[string]string, len(h.checks))
	healthy := true
	for range h.checks {
		r := <-results
		if r.err != nil {
			status[r.name] = r.err.Error()
			healthy = false
			continue
		}
		status[r.name] = "up"
	}
	return status, healthy
}
