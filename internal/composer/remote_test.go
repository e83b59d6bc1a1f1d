package composer

import (
	"context"
	"fmt"
	"sync"

	"github.com/stemsi/exstem-authoring/internal/model"
)

type call struct {
	Op       string
	ID       int64 // target id for updates/deletes/uploads, parent id for creates
	Returned int64
}

// fakeRemote is an in-memory Remote recording every call in order.
type fakeRemote struct {
	mu     sync.Mutex
	nextID int64
	calls  []call
	exams  map[int64]*model.Exam

	// fail returns an error for a call; nil means success.
	fail func(op string, id int64, n int) error
	// uploadGate, when set, blocks uploads until it is closed.
	uploadGate chan struct{}
	counts     map[string]int
	// lostResponse, when set, makes uploads store the file and then fail
	// with it, as if the response never arrived.
	lostResponse error

	lastQuestionReq map[int64]model.QuestionRequest
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:          100,
		exams:           make(map[int64]*model.Exam),
		counts:          make(map[string]int),
		lastQuestionReq: make(map[int64]model.QuestionRequest),
	}
}

func (f *fakeRemote) record(op string, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[op]++
	if f.fail != nil {
		if err := f.fail(op, id, f.counts[op]); err != nil {
			f.calls = append(f.calls, call{Op: op, ID: id})
			return 0, err
		}
	}
	var ret int64
	if len(op) > 6 && op[:6] == "create" {
		f.nextID++
		ret = f.nextID
	}
	f.calls = append(f.calls, call{Op: op, ID: id, Returned: ret})
	return ret, nil
}

func (f *fakeRemote) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

func (f *fakeRemote) callsOf(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.counts = make(map[string]int)
}

func (f *fakeRemote) GetExam(_ context.Context, id int64) (*model.Exam, error) {
	if _, err := f.record("get_exam", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, fmt.Errorf("exam %d: %w", id, ErrNotFound)
	}
	return e, nil
}

func (f *fakeRemote) CreateExam(_ context.Context, req model.ExamRequest) (*model.Exam, error) {
	id, err := f.record("create_exam", 0)
	if err != nil {
		return nil, err
	}
	return &model.Exam{ID: id, Title: req.Title}, nil
}

func (f *fakeRemote) UpdateExam(_ context.Context, id int64, req model.ExamRequest) (*model.Exam, error) {
	if _, err := f.record("update_exam", id); err != nil {
		return nil, err
	}
	return &model.Exam{ID: id, Title: req.Title}, nil
}

func (f *fakeRemote) DeleteExam(_ context.Context, id int64) error {
	_, err := f.record("delete_exam", id)
	return err
}

func (f *fakeRemote) CreatePart(_ context.Context, examID int64, req model.PartRequest) (*model.Part, error) {
	id, err := f.record("create_part", examID)
	if err != nil {
		return nil, err
	}
	return &model.Part{ID: id, ExamID: examID, PartNumber: req.PartNumber}, nil
}

func (f *fakeRemote) UpdatePart(_ context.Context, id int64, req model.PartRequest) (*model.Part, error) {
	if _, err := f.record("update_part", id); err != nil {
		return nil, err
	}
	return &model.Part{ID: id, PartNumber: req.PartNumber}, nil
}

func (f *fakeRemote) DeletePart(_ context.Context, id int64) error {
	_, err := f.record("delete_part", id)
	return err
}

func (f *fakeRemote) CreateQuestion(_ context.Context, partID int64, req model.QuestionRequest) (*model.Question, error) {
	id, err := f.record("create_question", partID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastQuestionReq[id] = req
	for _, e := range f.exams {
		for pi := range e.Parts {
			if e.Parts[pi].ID == partID {
				e.Parts[pi].Questions = append(e.Parts[pi].Questions, model.Question{ID: id, PartID: partID})
			}
		}
	}
	f.mu.Unlock()
	return &model.Question{ID: id, PartID: partID}, nil
}

func (f *fakeRemote) UpdateQuestion(_ context.Context, id int64, req model.QuestionRequest) (*model.Question, error) {
	if _, err := f.record("update_question", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastQuestionReq[id] = req
	f.mu.Unlock()
	return &model.Question{ID: id}, nil
}

func (f *fakeRemote) DeleteQuestion(_ context.Context, id int64) error {
	_, err := f.record("delete_question", id)
	return err
}

func (f *fakeRemote) UploadMedia(ctx context.Context, questionID int64, kind model.MediaKind, _ MediaFile) (*model.MediaUpload, error) {
	if f.uploadGate != nil {
		select {
		case <-f.uploadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if _, err := f.record("upload_"+string(kind), questionID); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://cdn.example.com/uploads/%s-%d", kind, questionID)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.exams {
		for pi := range e.Parts {
			for qi := range e.Parts[pi].Questions {
				q := &e.Parts[pi].Questions[qi]
				if q.ID != questionID {
					continue
				}
				if kind == model.MediaAudio {
					q.AudioURL = &url
				} else {
					q.ImageURL = &url
				}
			}
		}
	}
	if f.lostResponse != nil {
		return nil, f.lostResponse
	}
	return &model.MediaUpload{URL: url, Question: model.Question{ID: questionID}}, nil
}
