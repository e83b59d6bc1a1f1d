package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/repository"
)

// PartService handles part business logic.
type PartService struct {
	examRepo *repository.ExamRepository
	partRepo *repository.PartRepository
	media    *MediaService
	events   *ExamEvents
	log      zerolog.Logger
}

// NewPartService creates a new PartService.
func NewPartService(
	examRepo *repository.ExamRepository,
	partRepo *repository.PartRepository,
	media *MediaService,
	events *ExamEvents,
	log zerolog.Logger,
) *PartService {
	return &PartService{
		examRepo: examRepo,
		partRepo: partRepo,
		media:    media,
		events:   events,
		log:      log.With().Str("component", "part_service").Logger(),
	}
}

// Create adds a part to an exam the actor authored.
func (s *PartService) Create(ctx context.Context, actorID int, part *model.Part) error {
	exam, err := s.examRepo.GetByID(ctx, part.ExamID)
	if err != nil {
		return err
	}
	if err := authorize(exam.AuthorID, actorID); err != nil {
		return err
	}
	if err := s.partRepo.Create(ctx, part); err != nil {
		return err
	}
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventPartSaved, ExamID: part.ExamID, EntityID: part.ID, ActorID: actorID})
	return nil
}

// Update overwrites a part and moves it if its number changed.
func (s *PartService) Update(ctx context.Context, actorID int, part *model.Part) error {
	_, authorID, err := s.partRepo.Owner(ctx, part.ID)
	if err != nil {
		return err
	}
	if err := authorize(authorID, actorID); err != nil {
		return err
	}
	if err := s.partRepo.Update(ctx, part); err != nil {
		return err
	}
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventPartSaved, ExamID: part.ExamID, EntityID: part.ID, ActorID: actorID})
	return nil
}

// Delete removes a part with its questions and renumbers the rest.
func (s *PartService) Delete(ctx context.Context, actorID int, id int64) error {
	_, authorID, err := s.partRepo.Owner(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(authorID, actorID); err != nil {
		return err
	}
	examID, orphans, err := s.partRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.media.QueueOrphans(ctx, orphans...)
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventPartDeleted, ExamID: examID, EntityID: id, ActorID: actorID})
	return nil
}
