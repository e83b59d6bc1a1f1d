package composer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/model"
)

// Manager owns one exam tree and keeps it in sync with a Remote.
//
// All methods are safe for concurrent use. Mutations only touch memory;
// network calls happen in Load, Save, the delete operations and media
// uploads for questions the server already knows.
type Manager struct {
	mu            sync.Mutex
	remote        Remote
	log           zerolog.Logger
	policy        MediaPolicy
	ids           idSource
	media         *mediaStore
	exam          *Exam
	deletes       []pendingDelete
	skipUnchanged bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log.With().Str("component", "exam_composer").Logger() }
}

// WithMediaPolicy replaces the default attachment policy.
func WithMediaPolicy(p MediaPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithSkipUnchanged makes Save skip update calls for persisted entities
// that were not edited since they were loaded or last saved.
func WithSkipUnchanged() Option {
	return func(m *Manager) { m.skipUnchanged = true }
}

// WithClock overrides the time source used for placeholder ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.ids.now = now }
}

// NewManager returns a Manager holding an empty, unsaved exam.
func NewManager(remote Remote, opts ...Option) *Manager {
	m := &Manager{
		remote: remote,
		log:    zerolog.Nop(),
		policy: DefaultMediaPolicy(),
		ids:    idSource{now: time.Now},
		media:  newMediaStore(),
		exam:   &Exam{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type pendingDelete struct {
	kind EntityKind
	id   int64
}

// Snapshot returns a deep copy of the current tree.
func (m *Manager) Snapshot() *Exam {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exam.clone()
}

// TemporaryMedia reports how many temporary references are still held.
func (m *Manager) TemporaryMedia() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.len()
}

// Preview returns the bytes behind a temporary reference.
func (m *Manager) Preview(ref string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.get(ref)
}

// NewExam discards the current tree and starts an empty draft.
func (m *Manager) NewExam() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(&Exam{})
}

// Load replaces the tree with the exam stored under id.
func (m *Manager) Load(ctx context.Context, id int64) (*Exam, error) {
	remote, err := m.remote.GetExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load exam %d: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(examFromModel(remote))
	m.log.Debug().Int64("exam_id", id).Int("parts", len(m.exam.Parts)).Msg("Exam loaded")
	return m.exam.clone(), nil
}

func (m *Manager) replace(e *Exam) {
	for _, p := range m.exam.Parts {
		for _, q := range p.Questions {
			m.discardQuestion(q)
		}
	}
	if len(m.deletes) > 0 {
		m.log.Warn().Int("count", len(m.deletes)).Msg("Dropping queued deletes of previous exam")
	}
	m.deletes = nil
	m.exam = e
}

// CreateLocalPart appends an empty part with a placeholder id.
func (m *Manager) CreateLocalPart() *Part {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &Part{
		ID:         m.ids.next(),
		PartNumber: len(m.exam.Parts) + 1,
		dirty:      true,
	}
	m.exam.Parts = append(m.exam.Parts, p)
	c := *p
	return &c
}

// DeletePart removes the part at partIndex together with its questions.
// The local tree changes immediately; if the part was persisted the server
// delete is issued right away. When that call fails the error is returned
// and the delete is retried on the next Save.
func (m *Manager) DeletePart(ctx context.Context, partIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.part(partIndex)
	if err != nil {
		return err
	}
	m.exam.Parts = append(m.exam.Parts[:partIndex], m.exam.Parts[partIndex+1:]...)
	renumberParts(m.exam)
	for _, q := range p.Questions {
		m.discardQuestion(q)
	}

	if sid, ok := p.ID.ServerID(); ok {
		return m.remoteDelete(ctx, pendingDelete{kind: KindPart, id: sid})
	}
	return nil
}

// CreateLocalQuestion appends a question with a placeholder id to the part
// at partIndex.
func (m *Manager) CreateLocalQuestion(partIndex int) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.part(partIndex)
	if err != nil {
		return nil, err
	}
	q := &Question{
		ID:            m.ids.next(),
		QuestionType:  model.QuestionTypeMultipleChoice,
		Points:        1,
		QuestionOrder: len(p.Questions) + 1,
		dirty:         true,
	}
	p.Questions = append(p.Questions, q)
	return &Question{ID: q.ID, QuestionType: q.QuestionType, Points: q.Points, QuestionOrder: q.QuestionOrder}, nil
}

// DeleteQuestion removes a question and renumbers its siblings. Server
// deletes follow the same policy as DeletePart.
func (m *Manager) DeleteQuestion(ctx context.Context, partIndex, questionIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, q, err := m.question(partIndex, questionIndex)
	if err != nil {
		return err
	}
	p.Questions = append(p.Questions[:questionIndex], p.Questions[questionIndex+1:]...)
	renumberQuestions(p)
	m.discardQuestion(q)

	if sid, ok := q.ID.ServerID(); ok {
		return m.remoteDelete(ctx, pendingDelete{kind: KindQuestion, id: sid})
	}
	return nil
}

// DeleteExam deletes the saved exam and resets to an empty draft.
func (m *Manager) DeleteExam(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sid, ok := m.exam.ID.ServerID(); ok {
		if err := m.remote.DeleteExam(ctx, sid); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete exam %d: %w", sid, err)
		}
	}
	m.replace(&Exam{})
	return nil
}

func (m *Manager) remoteDelete(ctx context.Context, d pendingDelete) error {
	if err := m.issueDelete(ctx, d); err != nil {
		m.deletes = append(m.deletes, d)
		m.log.Warn().Err(err).Str("kind", string(d.kind)).Int64("id", d.id).Msg("Delete failed, queued for next save")
		return fmt.Errorf("delete %s %d: %w", d.kind, d.id, err)
	}
	return nil
}

// issueDelete treats an entity that is already gone as deleted.
func (m *Manager) issueDelete(ctx context.Context, d pendingDelete) error {
	var err error
	switch d.kind {
	case KindPart:
		err = m.remote.DeletePart(ctx, d.id)
	case KindQuestion:
		err = m.remote.DeleteQuestion(ctx, d.id)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// discardQuestion cancels uploads and frees temporary media of a question
// leaving the tree.
func (m *Manager) discardQuestion(q *Question) {
	q.removed = true
	if q.cancel != nil {
		q.cancel()
	}
	for kind, up := range q.uploads {
		m.media.release(up.ref)
		up.finish(ErrUploadCanceled)
		delete(q.uploads, kind)
	}
	for kind, pm := range q.pending {
		m.media.release(pm.ref)
		delete(q.pending, kind)
	}
	m.media.release(q.Image)
	m.media.release(q.Audio)
}

func (m *Manager) part(i int) (*Part, error) {
	if i < 0 || i >= len(m.exam.Parts) {
		return nil, fmt.Errorf("%w: part %d of %d", ErrIndexOutOfRange, i, len(m.exam.Parts))
	}
	return m.exam.Parts[i], nil
}

func (m *Manager) question(pi, qi int) (*Part, *Question, error) {
	p, err := m.part(pi)
	if err != nil {
		return nil, nil, err
	}
	if qi < 0 || qi >= len(p.Questions) {
		return nil, nil, fmt.Errorf("%w: question %d of %d in part %d", ErrIndexOutOfRange, qi, len(p.Questions), pi)
	}
	return p, p.Questions[qi], nil
}
