package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/config"
)

const (
	cleanupInterval  = 10 * time.Second
	cleanupBatchSize = 100
)

// MediaStore is the part of the media layer the cleanup worker needs.
type MediaStore interface {
	MediaInUse(ctx context.Context, url string) (bool, error)
}

// FileRemover deletes the local file behind a media URL.
type FileRemover interface {
	Remove(url string) error
}

// OrphanQueue holds orphaned media URLs with the time they were orphaned.
type OrphanQueue interface {
	// Due lists up to limit URLs orphaned at or before before.
	Due(ctx context.Context, before time.Time, limit int64) ([]string, error)
	// Claim removes url from the queue and reports whether this caller did.
	Claim(ctx context.Context, url string) (bool, error)
	// Requeue puts url back as if it had been orphaned at at.
	Requeue(ctx context.Context, url string, at time.Time) error
}

// RedisOrphanQueue is the OrphanQueue behind config.MediaOrphanQueue.
type RedisOrphanQueue struct {
	rdb *redis.Client
}

// NewRedisOrphanQueue creates a new RedisOrphanQueue.
func NewRedisOrphanQueue(rdb *redis.Client) *RedisOrphanQueue {
	return &RedisOrphanQueue{rdb: rdb}
}

func (q *RedisOrphanQueue) Due(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	return q.rdb.ZRangeByScore(ctx, config.MediaOrphanQueue, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(before.Unix(), 10),
		Count: limit,
	}).Result()
}

func (q *RedisOrphanQueue) Claim(ctx context.Context, url string) (bool, error) {
	n, err := q.rdb.ZRem(ctx, config.MediaOrphanQueue, url).Result()
	return n == 1, err
}

func (q *RedisOrphanQueue) Requeue(ctx context.Context, url string, at time.Time) error {
	return q.rdb.ZAdd(ctx, config.MediaOrphanQueue, redis.Z{Score: float64(at.Unix()), Member: url}).Err()
}

// MediaCleanupWorker deletes upload files that no question has referenced
// for at least the grace period. A URL that is referenced again within
// that window is kept.
type MediaCleanupWorker struct {
	queue   OrphanQueue
	store   MediaStore
	remover FileRemover
	log     zerolog.Logger
	grace   time.Duration
	retry   time.Duration
	now     func() time.Time
}

// NewMediaCleanupWorker creates a new MediaCleanupWorker.
func NewMediaCleanupWorker(queue OrphanQueue, store MediaStore, remover FileRemover, grace time.Duration, log zerolog.Logger) *MediaCleanupWorker {
	return &MediaCleanupWorker{
		queue:   queue,
		store:   store,
		remover: remover,
		log:     log.With().Str("component", "media_cleanup_worker").Logger(),
		grace:   grace,
		retry:   time.Minute,
		now:     time.Now,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *MediaCleanupWorker) Start(ctx context.Context) {
	w.log.Info().Dur("grace", w.grace).Msg("Worker started")

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.processDue(ctx)
		}
	}
}

// processDue cleans every URL whose grace period is over and returns how
// many files it removed.
func (w *MediaCleanupWorker) processDue(ctx context.Context) int {
	removed := 0
	for {
		urls, err := w.queue.Due(ctx, w.now().Add(-w.grace), cleanupBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Reading orphan queue failed")
			}
			return removed
		}

		for _, url := range urls {
			claimed, err := w.queue.Claim(ctx, url)
			if err != nil {
				w.log.Error().Err(err).Str("url", url).Msg("Claiming orphan failed")
				return removed
			}
			if !claimed {
				continue
			}

			done, err := w.cleanup(ctx, url)
			if err != nil {
				w.log.Error().Err(err).Str("url", url).Msg("Cleanup error, retrying later")
				// Due again after w.retry.
				if err := w.queue.Requeue(ctx, url, w.now().Add(w.retry-w.grace)); err != nil {
					w.log.Error().Err(err).Str("url", url).Msg("Requeue failed, file left on disk")
				}
				continue
			}
			if done {
				removed++
			}
		}

		if len(urls) < cleanupBatchSize {
			return removed
		}
	}
}

// cleanup removes url's file unless a question picked it up again. It
// reports whether the file was removed.
func (w *MediaCleanupWorker) cleanup(ctx context.Context, url string) (bool, error) {
	inUse, err := w.store.MediaInUse(ctx, url)
	if err != nil {
		return false, err
	}
	if inUse {
		w.log.Debug().Str("url", url).Msg("Media referenced again, keeping file")
		return false, nil
	}
	if err := w.remover.Remove(url); err != nil {
		return false, err
	}
	w.log.Debug().Str("url", url).Msg("Removed orphaned media")
	return true, nil
}

// drain handles what is already due before shutdown. URLs still inside
// their grace period stay queued for the next start.
func (w *MediaCleanupWorker) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if n := w.processDue(ctx); n > 0 {
		w.log.Info().Int("count", n).Msg("Drained due orphans")
	}
}
