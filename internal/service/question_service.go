package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/repository"
)

// QuestionService handles question business logic.
type QuestionService struct {
	partRepo     *repository.PartRepository
	questionRepo *repository.QuestionRepository
	media        *MediaService
	events       *ExamEvents
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(
	partRepo *repository.PartRepository,
	questionRepo *repository.QuestionRepository,
	media *MediaService,
	events *ExamEvents,
	log zerolog.Logger,
) *QuestionService {
	return &QuestionService{
		partRepo:     partRepo,
		questionRepo: questionRepo,
		media:        media,
		events:       events,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// Create adds a question to a part of an exam the actor authored.
func (s *QuestionService) Create(ctx context.Context, actorID int, q *model.Question) error {
	examID, authorID, err := s.partRepo.Owner(ctx, q.PartID)
	if err != nil {
		return err
	}
	if err := authorize(authorID, actorID); err != nil {
		return err
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return err
	}
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventQuestionSaved, ExamID: examID, EntityID: q.ID, ActorID: actorID})
	return nil
}

// Update overwrites a question. Media files it no longer references are
// queued for cleanup.
func (s *QuestionService) Update(ctx context.Context, actorID int, q *model.Question) error {
	examID, authorID, err := s.questionRepo.Owner(ctx, q.ID)
	if err != nil {
		return err
	}
	if err := authorize(authorID, actorID); err != nil {
		return err
	}
	prev, err := s.questionRepo.Update(ctx, q)
	if err != nil {
		return err
	}
	s.media.QueueOrphans(ctx, replacedURL(prev.ImageURL, q.ImageURL), replacedURL(prev.AudioURL, q.AudioURL))
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventQuestionSaved, ExamID: examID, EntityID: q.ID, ActorID: actorID})
	return nil
}

// Delete removes a question and renumbers the rest of its part.
func (s *QuestionService) Delete(ctx context.Context, actorID int, id int64) error {
	_, authorID, err := s.questionRepo.Owner(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(authorID, actorID); err != nil {
		return err
	}
	examID, orphans, err := s.questionRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.media.QueueOrphans(ctx, orphans...)
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventQuestionDeleted, ExamID: examID, EntityID: id, ActorID: actorID})
	return nil
}

// replacedURL returns the old URL when it is no longer referenced.
func replacedURL(old, current *string) string {
	if old == nil || *old == "" {
		return ""
	}
	if current != nil && *current == *old {
		return ""
	}
	return *old
}
