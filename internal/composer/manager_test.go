package composer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngFile() MediaFile {
	return MediaFile{Name: "diagram.png", ContentType: "image/png", Data: pngHeader}
}

func strPtr(s string) *string { return &s }

// newDraft returns a manager holding a valid, unsaved exam.
func newDraft(t *testing.T, remote Remote, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(remote, opts...)
	require.NoError(t, m.UpdateField(ExamField("title"), "Grammar Quiz"))
	require.NoError(t, m.UpdateField(ExamField("level"), model.ExamLevelTopikI))
	require.NoError(t, m.UpdateField(ExamField("duration_minutes"), 40))
	return m
}

func storedExam() *model.Exam {
	return &model.Exam{
		ID:              10,
		Title:           "Reading Mock",
		Level:           model.ExamLevelTopikII,
		DurationMinutes: 60,
		Parts: []model.Part{{
			ID:         5,
			ExamID:     10,
			PartNumber: 1,
			Title:      "Reading",
			Questions: []model.Question{{
				ID:            50,
				PartID:        5,
				QuestionText:  "What is the main idea?",
				QuestionType:  model.QuestionTypeReading,
				Points:        2,
				QuestionOrder: 1,
				ImageURL:      strPtr("https://cdn.example.com/uploads/old.png"),
			}},
		}},
	}
}

func assertContiguous(t *testing.T, e *Exam) {
	t.Helper()
	for i, p := range e.Parts {
		require.Equal(t, i+1, p.PartNumber, "part number at index %d", i)
		for j, q := range p.Questions {
			require.Equal(t, j+1, q.QuestionOrder, "question order at part %d index %d", i, j)
		}
	}
}

func TestPartNumberingStaysContiguous(t *testing.T) {
	m := NewManager(newFakeRemote())
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for step := 0; step < 200; step++ {
		n := len(m.Snapshot().Parts)
		if n == 0 || rng.Intn(3) > 0 {
			p := m.CreateLocalPart()
			assert.Equal(t, n+1, p.PartNumber)
		} else {
			require.NoError(t, m.DeletePart(ctx, rng.Intn(n)))
		}
		assertContiguous(t, m.Snapshot())
	}
}

func TestQuestionOrderStaysContiguous(t *testing.T) {
	m := NewManager(newFakeRemote())
	m.CreateLocalPart()
	m.CreateLocalPart()
	rng := rand.New(rand.NewSource(11))
	ctx := context.Background()

	for step := 0; step < 300; step++ {
		pi := rng.Intn(2)
		n := len(m.Snapshot().Parts[pi].Questions)
		if n == 0 || rng.Intn(3) > 0 {
			q, err := m.CreateLocalQuestion(pi)
			require.NoError(t, err)
			assert.Equal(t, n+1, q.QuestionOrder)
		} else {
			require.NoError(t, m.DeleteQuestion(ctx, pi, rng.Intn(n)))
		}
		assertContiguous(t, m.Snapshot())
	}
}

func TestPlaceholderIDs(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	m := NewManager(newFakeRemote(), WithClock(func() time.Time { return fixed }))

	a := m.CreateLocalPart()
	b := m.CreateLocalPart()
	assert.False(t, a.ID.IsPersisted())
	assert.Greater(t, b.ID.Key(), a.ID.Key(), "placeholders must stay unique under a frozen clock")
	assert.Greater(t, a.ID.Key(), placeholderFloor)

	_, ok := a.ID.ServerID()
	assert.False(t, ok)
}

func TestSaveNewExamCreatesTopDown(t *testing.T) {
	remote := newFakeRemote()
	m := newDraft(t, remote)
	m.CreateLocalPart()
	require.NoError(t, m.UpdateField(PartField(0, "title"), "Part 1"))
	for i := 0; i < 2; i++ {
		_, err := m.CreateLocalQuestion(0)
		require.NoError(t, err)
		require.NoError(t, m.UpdateField(QuestionField(0, i, "question_text"), "Choose the correct particle"))
	}

	res, err := m.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 4, res.Created)
	assert.Zero(t, res.Updated)

	assert.Equal(t, []string{"create_exam", "create_part", "create_question", "create_question"}, remote.ops())

	examID := remote.callsOf("create_exam")[0].Returned
	partCall := remote.callsOf("create_part")[0]
	assert.Equal(t, examID, partCall.ID, "part must be created under the new exam id")
	for _, qc := range remote.callsOf("create_question") {
		assert.Equal(t, partCall.Returned, qc.ID, "questions must be created under the new part id")
	}

	saved := res.Exam
	sid, ok := saved.ID.ServerID()
	require.True(t, ok)
	assert.Equal(t, examID, sid)
	for _, p := range saved.Parts {
		assert.True(t, p.ID.IsPersisted())
		for _, q := range p.Questions {
			assert.True(t, q.ID.IsPersisted())
		}
	}
}

func TestCreateAndUpdateBranching(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	m := NewManager(remote)
	ctx := context.Background()

	_, err := m.Load(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, m.UpdateField(QuestionField(0, 0, "points"), 3))
	m.CreateLocalPart()
	_, err = m.CreateLocalQuestion(1)
	require.NoError(t, err)
	require.NoError(t, m.UpdateField(QuestionField(1, 0, "question_text"), "Listen and answer"))
	remote.reset()

	_, err = m.Save(ctx)
	require.NoError(t, err)

	assert.Len(t, remote.callsOf("update_question"), 1)
	assert.Equal(t, int64(50), remote.callsOf("update_question")[0].ID)
	assert.Len(t, remote.callsOf("create_question"), 1)
	assert.Len(t, remote.callsOf("create_part"), 1)
	assert.Len(t, remote.callsOf("update_part"), 1)
	assert.Empty(t, remote.callsOf("create_exam"))

	// A second save only updates: everything is persisted now.
	remote.reset()
	_, err = m.Save(ctx)
	require.NoError(t, err)
	for _, op := range remote.ops() {
		assert.NotContains(t, op, "create")
	}
}

func TestReplaceQuestionInExistingPart(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	m := NewManager(remote)
	ctx := context.Background()

	_, err := m.Load(ctx, 10)
	require.NoError(t, err)
	remote.reset()

	require.NoError(t, m.DeleteQuestion(ctx, 0, 0))
	_, err = m.CreateLocalQuestion(0)
	require.NoError(t, err)
	require.NoError(t, m.UpdateField(QuestionField(0, 0, "question_text"), "Replacement"))

	res, err := m.Save(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"delete_question", "update_exam", "update_part", "create_question"}, remote.ops())
	assert.Equal(t, int64(50), remote.callsOf("delete_question")[0].ID)
	assert.Equal(t, int64(5), remote.callsOf("create_question")[0].ID)

	questions := res.Exam.Parts[0].Questions
	require.Len(t, questions, 1)
	sid, ok := questions[0].ID.ServerID()
	require.True(t, ok)
	assert.NotEqual(t, int64(50), sid)
	assert.Equal(t, 1, questions[0].QuestionOrder)
}

func TestDeferredMediaUploadsAfterCreate(t *testing.T) {
	remote := newFakeRemote()
	m := newDraft(t, remote)
	m.CreateLocalPart()
	_, err := m.CreateLocalQuestion(0)
	require.NoError(t, err)
	require.NoError(t, m.UpdateField(QuestionField(0, 0, "question_text"), "Describe the picture"))

	up, err := m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)
	assert.Nil(t, up, "unsaved question defers the upload")

	preview := m.Snapshot().Parts[0].Questions[0].Image
	assert.True(t, preview.Temporary)
	data, ok := m.Preview(preview.URL)
	require.True(t, ok)
	assert.Equal(t, pngHeader, data)
	assert.Empty(t, remote.ops(), "nothing is sent before save")

	res, err := m.Save(context.Background())
	require.NoError(t, err)

	ops := remote.ops()
	assert.Equal(t, []string{"create_exam", "create_part", "create_question", "upload_image"}, ops)
	qid := remote.callsOf("create_question")[0].Returned
	assert.Equal(t, qid, remote.callsOf("upload_image")[0].ID)

	req := remote.lastQuestionReq[qid]
	assert.Nil(t, req.ImageURL, "temporary references are never sent")

	img := res.Exam.Parts[0].Questions[0].Image
	assert.False(t, img.Temporary)
	assert.Equal(t, "https://cdn.example.com/uploads/image-"+strconv.FormatInt(qid, 10), img.URL)
	assert.Zero(t, m.TemporaryMedia())
}

func TestUploadFailureRevertsSlot(t *testing.T) {
	tests := []struct {
		name string
		prev *string
	}{
		{name: "previous durable url", prev: strPtr("https://cdn.example.com/uploads/old.png")},
		{name: "previously empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			stored := storedExam()
			stored.Parts[0].Questions[0].ImageURL = tt.prev
			remote.exams[10] = stored
			remote.fail = func(op string, _ int64, _ int) error {
				if op == "upload_image" {
					return errors.New("storage unavailable")
				}
				return nil
			}

			m := NewManager(remote)
			ctx := context.Background()
			_, err := m.Load(ctx, 10)
			require.NoError(t, err)
			before := m.Snapshot().Parts[0].Questions[0].Image

			up, err := m.AttachMedia(0, 0, pngFile(), model.MediaImage)
			require.NoError(t, err)
			require.NotNil(t, up)

			err = up.Wait(ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUploadFailed)

			assert.Equal(t, before, m.Snapshot().Parts[0].Questions[0].Image)
			assert.Zero(t, m.TemporaryMedia())
		})
	}
}

func TestLostUploadResponseAdoptsStoredURL(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.lostResponse = fmt.Errorf("POST upload-image: %w: context deadline exceeded", ErrNetwork)

	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	up, err := m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)
	require.NoError(t, up.Wait(ctx))

	want := Durable("https://cdn.example.com/uploads/image-50")
	assert.Equal(t, want, m.Snapshot().Parts[0].Questions[0].Image)
	assert.Zero(t, m.TemporaryMedia())

	_, err = m.Save(ctx)
	require.NoError(t, err)
	req := remote.lastQuestionReq[50]
	require.NotNil(t, req.ImageURL)
	assert.Equal(t, want.URL, *req.ImageURL, "the replaced file is never referenced again")
}

func TestLostUploadResponseRevertsWhenNothingStored(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.fail = func(op string, _ int64, _ int) error {
		if op == "upload_image" {
			return fmt.Errorf("%w: connection reset", ErrNetwork)
		}
		return nil
	}

	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	up, err := m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)
	assert.ErrorIs(t, up.Wait(ctx), ErrUploadFailed)

	assert.Equal(t, Durable("https://cdn.example.com/uploads/old.png"), m.Snapshot().Parts[0].Questions[0].Image)
	assert.Equal(t, []string{"get_exam", "upload_image", "get_exam"}, remote.ops())
}

func TestLostDeferredUploadResponseAdoptsStoredURL(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.lostResponse = fmt.Errorf("%w: unexpected EOF", ErrNetwork)

	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)
	_, err = m.CreateLocalQuestion(0)
	require.NoError(t, err)
	require.NoError(t, m.UpdateField(QuestionField(0, 1, "question_text"), "Look at the chart"))
	_, err = m.AttachMedia(0, 1, pngFile(), model.MediaImage)
	require.NoError(t, err)

	res, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	qid := remote.callsOf("create_question")[0].Returned
	img := res.Exam.Parts[0].Questions[1].Image
	assert.Equal(t, Durable("https://cdn.example.com/uploads/image-"+strconv.FormatInt(qid, 10)), img)
}

func TestImmediateUploadForPersistedQuestion(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	up, err := m.AttachMedia(0, 0, MediaFile{Name: "dialog.mp3", ContentType: "audio/mpeg", Data: []byte("ID3\x03\x00\x00\x00")}, model.MediaAudio)
	require.NoError(t, err)
	require.NoError(t, up.Wait(ctx))

	audio := m.Snapshot().Parts[0].Questions[0].Audio
	assert.Equal(t, Durable("https://cdn.example.com/uploads/audio-50"), audio)
	assert.Equal(t, int64(50), remote.callsOf("upload_audio")[0].ID)
	assert.Zero(t, m.TemporaryMedia())
}

func TestPartialFailureIsolation(t *testing.T) {
	remote := newFakeRemote()
	remote.fail = func(op string, _ int64, n int) error {
		if op == "create_question" && n == 2 {
			return errors.New("question rejected")
		}
		return nil
	}
	m := newDraft(t, remote)
	m.CreateLocalPart()
	for i := 0; i < 3; i++ {
		_, err := m.CreateLocalQuestion(0)
		require.NoError(t, err)
	}

	res, err := m.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialSave)

	var pse *PartialSaveError
	require.ErrorAs(t, err, &pse)
	require.Len(t, pse.Failures, 1)
	assert.Equal(t, KindQuestion, pse.Failures[0].Entity.Kind)
	assert.Equal(t, 1, pse.Failures[0].Entity.QuestionIndex)

	assert.Len(t, remote.callsOf("create_question"), 3)
	questions := res.Exam.Parts[0].Questions
	assert.True(t, questions[0].ID.IsPersisted())
	assert.False(t, questions[1].ID.IsPersisted())
	assert.True(t, questions[2].ID.IsPersisted())

	// Retrying only creates the one that failed.
	remote.reset()
	_, err = m.Save(context.Background())
	require.NoError(t, err)
	assert.Len(t, remote.callsOf("create_question"), 1)
}

func TestFailedPartSkipsItsQuestions(t *testing.T) {
	remote := newFakeRemote()
	remote.fail = func(op string, _ int64, n int) error {
		if op == "create_part" && n == 1 {
			return errors.New("boom")
		}
		return nil
	}
	m := newDraft(t, remote)
	m.CreateLocalPart()
	m.CreateLocalPart()
	for pi := 0; pi < 2; pi++ {
		for i := 0; i < 2; i++ {
			_, err := m.CreateLocalQuestion(pi)
			require.NoError(t, err)
		}
	}

	res, err := m.Save(context.Background())
	require.ErrorIs(t, err, ErrPartialSave)
	require.Len(t, res.Failures, 3)
	assert.Equal(t, KindPart, res.Failures[0].Entity.Kind)
	assert.ErrorIs(t, res.Failures[1].Err, ErrParentNotSaved)
	assert.ErrorIs(t, res.Failures[2].Err, ErrParentNotSaved)

	// The second part and its questions still went through.
	assert.Len(t, remote.callsOf("create_question"), 2)
	assert.True(t, res.Exam.Parts[1].ID.IsPersisted())
}

func TestValidationBlocksNetwork(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(m *Manager)
		field string
	}{
		{name: "empty title", edit: func(m *Manager) { _ = m.UpdateField(ExamField("title"), "") }, field: "title"},
		{name: "blank title", edit: func(m *Manager) { _ = m.UpdateField(ExamField("title"), "   \t") }, field: "title"},
		{name: "zero duration", edit: func(m *Manager) { _ = m.UpdateField(ExamField("duration_minutes"), 0) }, field: "duration_minutes"},
		{name: "negative duration", edit: func(m *Manager) { _ = m.UpdateField(ExamField("duration_minutes"), -5) }, field: "duration_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			m := newDraft(t, remote)
			tt.edit(m)

			_, err := m.Save(context.Background())
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
			assert.Empty(t, remote.ops())
		})
	}

	t.Run("level unset", func(t *testing.T) {
		remote := newFakeRemote()
		m := NewManager(remote)
		require.NoError(t, m.UpdateField(ExamField("title"), "Quiz"))
		require.NoError(t, m.UpdateField(ExamField("duration_minutes"), 10))
		_, err := m.Save(context.Background())
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "level")
		assert.Empty(t, remote.ops())
	})
}

func TestAttachMediaRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		file MediaFile
		kind model.MediaKind
	}{
		{name: "image too large", file: MediaFile{Name: "big.png", ContentType: "image/png", Data: make([]byte, 5*1024*1024+1)}, kind: model.MediaImage},
		{name: "audio too large", file: MediaFile{Name: "big.mp3", ContentType: "audio/mpeg", Data: make([]byte, 20*1024*1024+1)}, kind: model.MediaAudio},
		{name: "pdf as image", file: MediaFile{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7")}, kind: model.MediaImage},
		{name: "image as audio", file: pngFile(), kind: model.MediaAudio},
		{name: "empty", file: MediaFile{Name: "empty.png", ContentType: "image/png"}, kind: model.MediaImage},
		{name: "unknown kind", file: pngFile(), kind: model.MediaKind("video")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			remote.exams[10] = storedExam()
			m := NewManager(remote)
			_, err := m.Load(context.Background(), 10)
			require.NoError(t, err)
			remote.reset()
			before := m.Snapshot()

			_, err = m.AttachMedia(0, 0, tt.file, tt.kind)
			require.ErrorIs(t, err, ErrInvalidMedia)
			assert.Empty(t, remote.ops())
			assert.Zero(t, m.TemporaryMedia())
			assert.Equal(t, before, m.Snapshot())
		})
	}
}

func TestSniffsUndeclaredContentType(t *testing.T) {
	ct, err := DefaultMediaPolicy().Check(model.MediaImage, MediaFile{Name: "x", Data: pngHeader})
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	ct, err = DefaultMediaPolicy().Check(model.MediaImage, MediaFile{Name: "x", ContentType: "IMAGE/JPEG; q=1", Data: []byte{0xff, 0xd8, 0xff}})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)
}

func TestDeletingQuestionCancelsUpload(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.uploadGate = make(chan struct{})
	defer close(remote.uploadGate)

	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	up, err := m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TemporaryMedia())

	require.NoError(t, m.DeleteQuestion(ctx, 0, 0))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.ErrorIs(t, up.Wait(waitCtx), ErrUploadCanceled)
	assert.Zero(t, m.TemporaryMedia())
	assert.Empty(t, remote.callsOf("upload_image"))
}

func TestReattachReleasesPreviousReference(t *testing.T) {
	m := newDraft(t, newFakeRemote())
	m.CreateLocalPart()
	_, err := m.CreateLocalQuestion(0)
	require.NoError(t, err)

	_, err = m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)
	first := m.Snapshot().Parts[0].Questions[0].Image
	_, err = m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)

	assert.Equal(t, 1, m.TemporaryMedia())
	_, ok := m.Preview(first.URL)
	assert.False(t, ok)

	require.NoError(t, m.ClearMedia(0, 0, model.MediaImage))
	assert.Zero(t, m.TemporaryMedia())
	assert.True(t, m.Snapshot().Parts[0].Questions[0].Image.IsZero())
}

func TestDeletingPartReleasesMedia(t *testing.T) {
	m := newDraft(t, newFakeRemote())
	m.CreateLocalPart()
	for i := 0; i < 2; i++ {
		_, err := m.CreateLocalQuestion(0)
		require.NoError(t, err)
		_, err = m.AttachMedia(0, i, pngFile(), model.MediaImage)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.TemporaryMedia())

	require.NoError(t, m.DeletePart(context.Background(), 0))
	assert.Zero(t, m.TemporaryMedia())
}

func TestSaveWaitsForRunningUpload(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.uploadGate = make(chan struct{})
	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	_, err = m.AttachMedia(0, 0, pngFile(), model.MediaImage)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Save(ctx)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("save finished before the upload settled")
	case <-time.After(50 * time.Millisecond):
	}
	close(remote.uploadGate)
	require.NoError(t, <-done)

	ops := remote.ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, "upload_image", ops[1], "upload settles before any upsert") // ops[0] is get_exam
	req := remote.lastQuestionReq[50]
	require.NotNil(t, req.ImageURL)
	assert.Equal(t, "https://cdn.example.com/uploads/image-50", *req.ImageURL)
}

func TestFailedDeleteIsRetriedOnSave(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.fail = func(op string, _ int64, n int) error {
		if op == "delete_part" && n == 1 {
			return ErrNetwork
		}
		return nil
	}
	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	err = m.DeletePart(ctx, 0)
	require.ErrorIs(t, err, ErrNetwork)
	assert.Empty(t, m.Snapshot().Parts, "removal is optimistic")

	res, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Len(t, remote.callsOf("delete_part"), 2)
}

func TestDeleteOfMissingEntityIsSuccess(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	remote.fail = func(op string, _ int64, _ int) error {
		if op == "delete_question" {
			return ErrNotFound
		}
		return nil
	}
	m := NewManager(remote)
	_, err := m.Load(context.Background(), 10)
	require.NoError(t, err)
	assert.NoError(t, m.DeleteQuestion(context.Background(), 0, 0))
}

func TestSkipUnchanged(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	m := NewManager(remote, WithSkipUnchanged())
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)
	remote.reset()

	res, err := m.Save(ctx)
	require.NoError(t, err)
	assert.Empty(t, remote.ops())
	assert.Equal(t, 3, res.Skipped)

	require.NoError(t, m.UpdateField(QuestionField(0, 0, "explanation"), "Look at the first sentence."))
	_, err = m.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"update_question"}, remote.ops())
}

func TestLoadRenumbersStoredGaps(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[3] = &model.Exam{
		ID: 3, Title: "Gaps", Level: model.ExamLevelBasic, DurationMinutes: 10,
		Parts: []model.Part{
			{ID: 8, PartNumber: 5, Questions: []model.Question{{ID: 81, QuestionOrder: 7}, {ID: 80, QuestionOrder: 3}}},
			{ID: 7, PartNumber: 2},
		},
	}
	m := NewManager(remote)
	e, err := m.Load(context.Background(), 3)
	require.NoError(t, err)

	assertContiguous(t, e)
	assert.Equal(t, int64(7), e.Parts[0].ID.Key())
	assert.Equal(t, int64(80), e.Parts[1].Questions[0].ID.Key())
}

func TestLoadNotFound(t *testing.T) {
	m := NewManager(newFakeRemote())
	_, err := m.Load(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFieldErrors(t *testing.T) {
	m := newDraft(t, newFakeRemote())
	m.CreateLocalPart()
	_, err := m.CreateLocalQuestion(0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    Path
		value   any
		wantErr error
	}{
		{name: "unknown exam field", path: ExamField("colour"), value: "red", wantErr: ErrValidation},
		{name: "derived part number", path: PartField(0, "part_number"), value: 4, wantErr: ErrValidation},
		{name: "derived question order", path: QuestionField(0, 0, "question_order"), value: 2, wantErr: ErrValidation},
		{name: "media is not a field", path: QuestionField(0, 0, "image_url"), value: "x", wantErr: ErrValidation},
		{name: "wrong type", path: ExamField("duration_minutes"), value: "forty", wantErr: ErrValidation},
		{name: "unknown level", path: ExamField("level"), value: "EXPERT", wantErr: ErrValidation},
		{name: "zero points", path: QuestionField(0, 0, "points"), value: 0, wantErr: ErrValidation},
		{name: "part out of range", path: PartField(3, "title"), value: "x", wantErr: ErrIndexOutOfRange},
		{name: "question out of range", path: QuestionField(0, 9, "question_text"), value: "x", wantErr: ErrIndexOutOfRange},
		{name: "json number", path: QuestionField(0, 0, "points"), value: float64(4)},
		{name: "question type", path: QuestionField(0, 0, "question_type"), value: model.QuestionTypeListening},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.UpdateField(tt.path, tt.value)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeleteExam(t *testing.T) {
	remote := newFakeRemote()
	remote.exams[10] = storedExam()
	m := NewManager(remote)
	ctx := context.Background()
	_, err := m.Load(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, m.DeleteExam(ctx))
	assert.Equal(t, int64(10), remote.callsOf("delete_exam")[0].ID)
	snap := m.Snapshot()
	assert.False(t, snap.ID.IsPersisted())
	assert.Empty(t, snap.Parts)
}
