package composer

import (
	"context"

	"github.com/stemsi/exstem-authoring/internal/model"
)

// Remote is the exam API the manager synchronizes with. Implementations
// wrap ErrNotFound for missing entities and ErrNetwork for transport
// failures, and return *ValidationError when the server rejects a payload.
type Remote interface {
	GetExam(ctx context.Context, id int64) (*model.Exam, error)
	CreateExam(ctx context.Context, req model.ExamRequest) (*model.Exam, error)
	UpdateExam(ctx context.Context, id int64, req model.ExamRequest) (*model.Exam, error)
	DeleteExam(ctx context.Context, id int64) error

	CreatePart(ctx context.Context, examID int64, req model.PartRequest) (*model.Part, error)
	UpdatePart(ctx context.Context, id int64, req model.PartRequest) (*model.Part, error)
	DeletePart(ctx context.Context, id int64) error

	CreateQuestion(ctx context.Context, partID int64, req model.QuestionRequest) (*model.Question, error)
	UpdateQuestion(ctx context.Context, id int64, req model.QuestionRequest) (*model.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error

	UploadMedia(ctx context.Context, questionID int64, kind model.MediaKind, file MediaFile) (*model.MediaUpload, error)
}
