package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/repository"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// MediaService stores question media on local disk and queues files that
// are no longer referenced.
type MediaService struct {
	questionRepo *repository.QuestionRepository
	events       *ExamEvents
	rdb          *redis.Client
	cfg          *config.Config
	log          zerolog.Logger
}

// NewMediaService creates a new MediaService.
func NewMediaService(
	questionRepo *repository.QuestionRepository,
	events *ExamEvents,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *MediaService {
	return &MediaService{
		questionRepo: questionRepo,
		events:       events,
		rdb:          rdb,
		cfg:          cfg,
		log:          log.With().Str("component", "media_service").Logger(),
	}
}

// MaxBytes returns the upload limit for kind.
func (s *MediaService) MaxBytes(kind model.MediaKind) int64 {
	if kind == model.MediaAudio {
		return s.cfg.MaxAudioBytes
	}
	return s.cfg.MaxImageBytes
}

// Upload validates file, stores it and points the question's kind slot at
// it. The file it replaces is queued for cleanup.
func (s *MediaService) Upload(ctx context.Context, actorID int, questionID int64, kind model.MediaKind, file io.Reader, size int64) (*model.MediaUpload, error) {
	examID, authorID, err := s.questionRepo.Owner(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(authorID, actorID); err != nil {
		return nil, err
	}

	limit := s.MaxBytes(kind)
	if size > limit {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, size, limit)
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: max %d bytes", ErrFileTooLarge, limit)
	}

	contentType, ext, err := sniffMedia(data, kind)
	if err != nil {
		return nil, err
	}
	if kind == model.MediaImage {
		if data, err = downscaleImage(data, contentType, s.cfg.MaxImageDimension); err != nil {
			return nil, err
		}
	}

	rel := string(kind) + "s/" + uuid.New().String() + ext
	dest := filepath.Join(s.cfg.UploadDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	mediaURL := s.cfg.PublicBaseURL + "/uploads/" + rel

	q, replaced, err := s.questionRepo.SetMedia(ctx, questionID, kind, mediaURL)
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("path", dest).Msg("Failed to remove unused upload")
		}
		return nil, err
	}
	if replaced != nil {
		s.QueueOrphans(ctx, *replaced)
	}

	s.log.Info().
		Int64("question_id", questionID).
		Str("kind", string(kind)).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("Media uploaded")
	s.events.Changed(ctx, model.ExamEvent{Type: model.EventMediaUploaded, ExamID: examID, EntityID: questionID, ActorID: actorID})

	return &model.MediaUpload{URL: mediaURL, Question: *q}, nil
}

// QueueOrphans records media URLs that nothing references anymore. The
// cleanup worker deletes them once the grace period has passed; queueing a
// URL again restarts its grace period. Empty URLs are ignored.
func (s *MediaService) QueueOrphans(ctx context.Context, urls ...string) {
	now := float64(time.Now().Unix())
	members := make([]redis.Z, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			members = append(members, redis.Z{Score: now, Member: u})
		}
	}
	if len(members) == 0 {
		return
	}
	if err := s.rdb.ZAdd(ctx, config.MediaOrphanQueue, members...).Err(); err != nil {
		s.log.Error().Err(err).Int("count", len(members)).Msg("Failed to queue orphaned media")
	}
}

// Remove deletes the local file behind mediaURL. URLs that do not point into
// the upload directory and files that are already gone are ignored.
func (s *MediaService) Remove(mediaURL string) error {
	path, ok := mediaPath(s.cfg.UploadDir, s.cfg.PublicBaseURL, mediaURL)
	if !ok {
		s.log.Debug().Str("url", mediaURL).Msg("Skipping non-local media")
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
