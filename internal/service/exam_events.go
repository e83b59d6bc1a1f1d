package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/model"
)

// ExamEvents drops cached exam trees and fans change events out to
// everyone watching an exam.
type ExamEvents struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewExamEvents creates a new ExamEvents.
func NewExamEvents(rdb *redis.Client, log zerolog.Logger) *ExamEvents {
	return &ExamEvents{
		rdb: rdb,
		log: log.With().Str("component", "exam_events").Logger(),
	}
}

// Changed invalidates the exam's cached tree and publishes evt. Failures
// are logged only: the database write already succeeded.
func (e *ExamEvents) Changed(ctx context.Context, evt model.ExamEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		e.log.Error().Err(err).Msg("Marshal event")
		return
	}

	pipe := e.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.ExamTreeKey(evt.ExamID))
	pipe.Publish(ctx, config.CacheKey.ExamEventsChannel(evt.ExamID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		e.log.Warn().Err(err).
			Int64("exam_id", evt.ExamID).
			Str("type", string(evt.Type)).
			Msg("Failed to invalidate cache or publish event")
		return
	}

	e.log.Debug().
		Int64("exam_id", evt.ExamID).
		Str("type", string(evt.Type)).
		Int64("entity_id", evt.EntityID).
		Msg("Exam changed")
}

// Subscribe opens a subscription to one exam's events. The caller closes it.
func (e *ExamEvents) Subscribe(ctx context.Context, examID int64) *redis.PubSub {
	return e.rdb.Subscribe(ctx, config.CacheKey.ExamEventsChannel(examID))
}
