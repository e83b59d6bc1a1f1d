package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/repository"
	"github.com/stemsi/exstem-authoring/internal/response"
)

// Domain Errors
var (
	ErrNotExamAuthor = errors.New("not the author of this exam")
)

// ExamService handles exam business logic and the Redis tree cache.
type ExamService struct {
	examRepo *repository.ExamRepository
	media    *MediaService
	events   *ExamEvents
	rdb      *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	media *MediaService,
	events *ExamEvents,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		media:    media,
		events:   events,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

func authorize(authorID, actorID int) error {
	if authorID != actorID {
		return ErrNotExamAuthor
	}
	return nil
}

// ListByAuthor retrieves one page of an author's exams.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, response.NewPagination(page, perPage, total), nil
}

// GetTree returns the exam with its parts and questions. Trees are cached
// in Redis until the exam or anything below it changes.
func (s *ExamService) GetTree(ctx context.Context, id int64, actorID int) (*model.Exam, error) {
	key := config.CacheKey.ExamTreeKey(id)

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var exam model.Exam
		if err := json.Unmarshal(data, &exam); err == nil {
			if err := authorize(exam.AuthorID, actorID); err != nil {
				return nil, err
			}
			return &exam, nil
		}
		s.log.Warn().Int64("exam_id", id).Msg("Discarding unreadable cached tree")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Int64("exam_id", id).Msg("Tree cache read failed")
	}

	exam, err := s.examRepo.GetTree(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(exam.AuthorID, actorID); err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(exam); err == nil {
		if err := s.rdb.Set(ctx, key, payload, s.cfg.ExamCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Int64("exam_id", id).Msg("Tree cache write failed")
		}
	}
	return exam, nil
}

// Create inserts a new exam owned by exam.AuthorID.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Int64("exam_id", exam.ID).Int("author_id", exam.AuthorID).Msg("Exam created")
	return nil
}

// Update overwrites the exam's own fields.
func (s *ExamService) Update(ctx context.Context, actorID int, exam *model.Exam) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if err := authorize(existing.AuthorID, actorID); err != nil {
		return err
	}
	if err := s.examRepo.Update(ctx, exam); err != nil {
		return err
	}
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventExamUpdated, ExamID: exam.ID, ActorID: actorID})
	return nil
}

// Delete removes an exam with everything below it and queues its media
// files for cleanup.
func (s *ExamService) Delete(ctx context.Context, id int64, actorID int) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(existing.AuthorID, actorID); err != nil {
		return err
	}
	orphans, err := s.examRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.media.QueueOrphans(ctx, orphans...)
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventExamDeleted, ExamID: id, ActorID: actorID})
	s.log.Info().Int64("exam_id", id).Int("media", len(orphans)).Msg("Exam deleted")
	return nil
}

// Authorize checks that actorID may edit the exam.
func (s *ExamService) Authorize(ctx context.Context, examID int64, actorID int) error {
	existing, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	return authorize(existing.AuthorID, actorID)
}
