package composer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stemsi/exstem-authoring/internal/model"
)

// Upload tracks a background upload started by AttachMedia.
type Upload struct {
	Kind model.MediaKind

	ref    MediaRef
	prev   MediaRef
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func newUpload(kind model.MediaKind, ref, prev MediaRef) *Upload {
	return &Upload{Kind: kind, ref: ref, prev: prev, done: make(chan struct{})}
}

// Done is closed once the upload has settled.
func (u *Upload) Done() <-chan struct{} { return u.done }

// Err returns the outcome after Done is closed.
func (u *Upload) Err() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

// Wait blocks until the upload settles or ctx ends.
func (u *Upload) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Upload) finish(err error) {
	u.once.Do(func() {
		u.err = err
		if u.cancel != nil {
			u.cancel()
		}
		close(u.done)
	})
}

// AttachMedia validates file and shows it on the question at once through a
// temporary reference. A question the server already knows gets the file
// uploaded in the background and the returned Upload reports the outcome;
// on failure the slot reverts to its previous value. For a question that
// has not been saved yet the file is kept until Save and the Upload is nil.
func (m *Manager) AttachMedia(partIndex, questionIndex int, file MediaFile, kind model.MediaKind) (*Upload, error) {
	contentType, err := m.policy.Check(kind, file)
	if err != nil {
		return nil, err
	}
	file.ContentType = contentType

	m.mu.Lock()
	defer m.mu.Unlock()

	_, q, err := m.question(partIndex, questionIndex)
	if err != nil {
		return nil, err
	}

	prev := q.committed(kind)
	m.supersede(q, kind)

	ref := m.media.put(file.Data)
	q.setRef(kind, ref)
	q.dirty = true

	sid, ok := q.ID.ServerID()
	if !ok {
		if q.pending == nil {
			q.pending = make(map[model.MediaKind]*pendingMedia)
		}
		q.pending[kind] = &pendingMedia{file: file, ref: ref, prev: prev}
		return nil, nil
	}

	up := newUpload(kind, ref, prev)
	ctx, cancel := context.WithCancel(q.lifetime())
	up.cancel = cancel
	if q.uploads == nil {
		q.uploads = make(map[model.MediaKind]*Upload)
	}
	q.uploads[kind] = up

	go m.runUpload(ctx, q, sid, up, file)
	return up, nil
}

// ClearMedia empties a media slot. The server copy is cleared on the next
// save of the question.
func (m *Manager) ClearMedia(partIndex, questionIndex int, kind model.MediaKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown media kind %q", ErrInvalidMedia, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, q, err := m.question(partIndex, questionIndex)
	if err != nil {
		return err
	}
	m.supersede(q, kind)
	m.media.release(q.ref(kind))
	q.setRef(kind, MediaRef{})
	q.dirty = true
	return nil
}

// supersede drops whatever attach is still outstanding for the slot.
func (m *Manager) supersede(q *Question, kind model.MediaKind) {
	if pm, ok := q.pending[kind]; ok {
		m.media.release(pm.ref)
		delete(q.pending, kind)
	}
	if up, ok := q.uploads[kind]; ok {
		m.media.release(up.ref)
		delete(q.uploads, kind)
		up.finish(ErrUploadCanceled)
	}
}

func (m *Manager) runUpload(ctx context.Context, q *Question, questionID int64, up *Upload, file MediaFile) {
	res, err := m.remote.UploadMedia(ctx, questionID, up.Kind, file)

	var stored MediaRef
	var reconciled bool
	if err != nil && outcomeUnknown(err) && ctx.Err() == nil {
		m.mu.Lock()
		examID, ok := m.exam.ID.ServerID()
		m.mu.Unlock()
		if ok {
			stored, reconciled = m.storedMedia(ctx, examID, questionID, up.Kind)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q.removed || q.uploads[up.Kind] != up {
		// The question or this attach is gone; nothing to apply.
		if err == nil {
			m.log.Debug().Int64("question_id", questionID).Str("kind", string(up.Kind)).Msg("Discarding stale upload result")
		}
		up.finish(ErrUploadCanceled)
		return
	}
	delete(q.uploads, up.Kind)
	m.media.release(up.ref)

	if err == nil {
		q.setRef(up.Kind, Durable(res.URL))
		up.finish(nil)
		return
	}

	if reconciled && stored != up.prev {
		// The server stored the file even though the response was lost.
		q.setRef(up.Kind, stored)
		m.log.Warn().Err(err).Int64("question_id", questionID).Str("kind", string(up.Kind)).Str("url", stored.URL).Msg("Media upload response lost, adopted stored value")
		up.finish(nil)
		return
	}

	q.setRef(up.Kind, up.prev)
	m.log.Warn().Err(err).Int64("question_id", questionID).Str("kind", string(up.Kind)).Msg("Media upload failed, reverted")
	if errors.Is(err, context.Canceled) {
		up.finish(ErrUploadCanceled)
		return
	}
	up.finish(fmt.Errorf("%w: %s for question %d: %v", ErrUploadFailed, up.Kind, questionID, err))
}

// outcomeUnknown reports upload errors after which the server may still
// have stored the file.
func outcomeUnknown(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded)
}

// storedMedia reads the kind slot of a question as the server has it. ok is
// false when the server could not be asked.
func (m *Manager) storedMedia(ctx context.Context, examID, questionID int64, kind model.MediaKind) (MediaRef, bool) {
	exam, err := m.remote.GetExam(ctx, examID)
	if err != nil {
		m.log.Warn().Err(err).Int64("question_id", questionID).Msg("Could not read back media after failed upload")
		return MediaRef{}, false
	}
	for _, p := range exam.Parts {
		for _, q := range p.Questions {
			if q.ID != questionID {
				continue
			}
			if kind == model.MediaAudio {
				return mediaRefFrom(q.AudioURL), true
			}
			return mediaRefFrom(q.ImageURL), true
		}
	}
	return MediaRef{}, false
}

// awaitUploads waits until no background upload is running and returns
// with m.mu held.
func (m *Manager) awaitUploads(ctx context.Context) error {
	for {
		m.mu.Lock()
		var running []*Upload
		for _, p := range m.exam.Parts {
			for _, q := range p.Questions {
				for _, up := range q.uploads {
					running = append(running, up)
				}
			}
		}
		if len(running) == 0 {
			return nil
		}
		m.mu.Unlock()

		for _, up := range running {
			select {
			case <-up.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
