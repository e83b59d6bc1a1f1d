package composer

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/validator"
)

// SaveResult summarizes one Save.
type SaveResult struct {
	// Exam is the tree after the save, with server ids filled in for
	// everything that was stored.
	Exam *Exam

	Created int
	Updated int
	Skipped int
	Deleted int

	// Failures lists entities that were not stored.
	Failures []EntityFailure
	// Warnings lists media uploads that failed; their slots were reverted.
	Warnings []EntityFailure
}

// OK reports whether every exam, part and question was stored.
func (r *SaveResult) OK() bool { return len(r.Failures) == 0 }

func (r *SaveResult) fail(ref EntityRef, op string, err error) {
	r.Failures = append(r.Failures, EntityFailure{Entity: ref, Op: op, Err: err})
}

func (r *SaveResult) warn(ref EntityRef, op string, err error) {
	r.Warnings = append(r.Warnings, EntityFailure{Entity: ref, Op: op, Err: err})
}

// Save stores the tree top-down: exam, then each part in order, then each
// of its questions in order, then media held for questions that had no
// server id yet. Every call waits for the id the previous step produced.
//
// Invalid exam fields fail with *ValidationError before any network call.
// A failed exam upsert aborts the save. Failures below the exam are
// collected per entity while the rest keeps going; they are returned as
// *PartialSaveError together with the result.
func (m *Manager) Save(ctx context.Context) (*SaveResult, error) {
	if err := m.awaitUploads(ctx); err != nil {
		return nil, fmt.Errorf("wait for uploads: %w", err)
	}
	defer m.mu.Unlock()

	req := m.exam.request()
	if fields := validator.Struct(req); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}

	res := &SaveResult{}
	m.retryDeletes(ctx, res)

	examID, err := m.upsertExam(ctx, req, res)
	if err != nil {
		return nil, err
	}

	for pi, p := range m.exam.Parts {
		if err := ctx.Err(); err != nil {
			return m.finishSave(res, err)
		}

		partID, ok := m.upsertPart(ctx, examID, pi, p, res)
		if !ok {
			for qi, q := range p.Questions {
				res.fail(questionRef(pi, qi, q), "create", ErrParentNotSaved)
			}
			continue
		}

		for qi, q := range p.Questions {
			if err := ctx.Err(); err != nil {
				return m.finishSave(res, err)
			}
			questionID, ok := m.upsertQuestion(ctx, partID, pi, qi, q, res)
			if !ok {
				continue
			}
			m.flushPendingMedia(ctx, questionID, pi, qi, q, res)
		}
	}

	return m.finishSave(res, nil)
}

func (m *Manager) finishSave(res *SaveResult, interrupted error) (*SaveResult, error) {
	res.Exam = m.exam.clone()
	m.log.Info().
		Str("exam_id", m.exam.ID.String()).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("deleted", res.Deleted).
		Int("failures", len(res.Failures)).
		Int("warnings", len(res.Warnings)).
		Msg("Exam saved")

	if interrupted != nil {
		return res, fmt.Errorf("save interrupted: %w", interrupted)
	}
	if len(res.Failures) > 0 {
		return res, &PartialSaveError{Failures: res.Failures}
	}
	return res, nil
}

func (m *Manager) retryDeletes(ctx context.Context, res *SaveResult) {
	remaining := m.deletes[:0]
	for _, d := range m.deletes {
		if err := m.issueDelete(ctx, d); err != nil {
			remaining = append(remaining, d)
			res.fail(EntityRef{Kind: d.kind, ID: PersistedID(d.id), PartIndex: -1, QuestionIndex: -1}, "delete", err)
			continue
		}
		res.Deleted++
	}
	m.deletes = remaining
}

func (m *Manager) upsertExam(ctx context.Context, req model.ExamRequest, res *SaveResult) (int64, error) {
	e := m.exam
	if sid, ok := e.ID.ServerID(); ok {
		if m.skipUnchanged && !e.dirty {
			res.Skipped++
			return sid, nil
		}
		if _, err := m.remote.UpdateExam(ctx, sid, req); err != nil {
			return 0, fmt.Errorf("update exam %d: %w", sid, err)
		}
		e.dirty = false
		res.Updated++
		return sid, nil
	}

	created, err := m.remote.CreateExam(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("create exam: %w", err)
	}
	e.ID = PersistedID(created.ID)
	e.dirty = false
	res.Created++
	return created.ID, nil
}

// upsertPart returns the part's server id and whether its questions can be
// stored under it. A persisted part whose update failed still has an id.
func (m *Manager) upsertPart(ctx context.Context, examID int64, pi int, p *Part, res *SaveResult) (int64, bool) {
	if sid, ok := p.ID.ServerID(); ok {
		if m.skipUnchanged && !p.dirty {
			res.Skipped++
			return sid, true
		}
		if _, err := m.remote.UpdatePart(ctx, sid, p.request()); err != nil {
			res.fail(partRef(pi, p), "update", err)
			return sid, true
		}
		p.dirty = false
		res.Updated++
		return sid, true
	}

	created, err := m.remote.CreatePart(ctx, examID, p.request())
	if err != nil {
		res.fail(partRef(pi, p), "create", err)
		return 0, false
	}
	p.ID = PersistedID(created.ID)
	p.dirty = false
	res.Created++
	return created.ID, true
}

func (m *Manager) upsertQuestion(ctx context.Context, partID int64, pi, qi int, q *Question, res *SaveResult) (int64, bool) {
	if sid, ok := q.ID.ServerID(); ok {
		if m.skipUnchanged && !q.dirty {
			res.Skipped++
			return sid, true
		}
		if _, err := m.remote.UpdateQuestion(ctx, sid, q.request()); err != nil {
			res.fail(questionRef(pi, qi, q), "update", err)
			return sid, false
		}
		q.dirty = false
		res.Updated++
		return sid, true
	}

	created, err := m.remote.CreateQuestion(ctx, partID, q.request())
	if err != nil {
		res.fail(questionRef(pi, qi, q), "create", err)
		return 0, false
	}
	q.ID = PersistedID(created.ID)
	q.dirty = false
	res.Created++
	return created.ID, true
}

// flushPendingMedia uploads files attached before the question existed on
// the server. Failures revert the slot and become warnings.
func (m *Manager) flushPendingMedia(ctx context.Context, questionID int64, pi, qi int, q *Question, res *SaveResult) {
	for _, kind := range []model.MediaKind{model.MediaImage, model.MediaAudio} {
		pm, ok := q.pending[kind]
		if !ok {
			continue
		}
		delete(q.pending, kind)
		m.media.release(pm.ref)

		up, err := m.remote.UploadMedia(ctx, questionID, kind, pm.file)
		if err != nil && outcomeUnknown(err) {
			if examID, ok := m.exam.ID.ServerID(); ok {
				if stored, ok := m.storedMedia(ctx, examID, questionID, kind); ok && stored != pm.prev {
					q.setRef(kind, stored)
					m.log.Warn().Err(err).Int64("question_id", questionID).Str("kind", string(kind)).Str("url", stored.URL).Msg("Media upload response lost, adopted stored value")
					continue
				}
			}
		}
		if err != nil {
			q.setRef(kind, pm.prev)
			ref := questionRef(pi, qi, q)
			ref.Kind = KindMedia
			res.warn(ref, "upload "+string(kind), fmt.Errorf("%w: %v", ErrUploadFailed, err))
			m.log.Warn().Err(err).Int64("question_id", questionID).Str("kind", string(kind)).Msg("Deferred media upload failed")
			continue
		}
		q.setRef(kind, Durable(up.URL))
	}
}

func partRef(pi int, p *Part) EntityRef {
	return EntityRef{Kind: KindPart, ID: p.ID, PartIndex: pi, QuestionIndex: -1}
}

func questionRef(pi, qi int, q *Question) EntityRef {
	return EntityRef{Kind: KindQuestion, ID: q.ID, PartIndex: pi, QuestionIndex: qi}
}

// IsRetryable reports whether err is worth retrying unchanged, as opposed
// to errors the user has to fix first.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrPartialSave)
}
