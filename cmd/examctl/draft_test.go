package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/composer"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRemote is an in-memory API keyed by server id.
type memRemote struct {
	mu        sync.Mutex
	next      int64
	exams     map[int64]*model.Exam
	parts     map[int64]*model.Part
	questions map[int64]*model.Question
	uploads   int
}

func newMemRemote() *memRemote {
	return &memRemote{
		next:      100,
		exams:     map[int64]*model.Exam{},
		parts:     map[int64]*model.Part{},
		questions: map[int64]*model.Question{},
	}
}

func (r *memRemote) id() int64 { r.next++; return r.next }

func (r *memRemote) GetExam(_ context.Context, id int64) (*model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, composer.ErrNotFound
	}
	out := *e
	out.Parts = nil
	for _, p := range r.sortedParts(id) {
		cp := *p
		cp.Questions = nil
		for _, q := range r.sortedQuestions(p.ID) {
			cp.Questions = append(cp.Questions, *q)
		}
		out.Parts = append(out.Parts, cp)
	}
	return &out, nil
}

func (r *memRemote) sortedParts(examID int64) []*model.Part {
	var out []*model.Part
	for n := 1; ; n++ {
		found := false
		for _, p := range r.parts {
			if p.ExamID == examID && p.PartNumber == n {
				out = append(out, p)
				found = true
			}
		}
		if !found {
			return out
		}
	}
}

func (r *memRemote) sortedQuestions(partID int64) []*model.Question {
	var out []*model.Question
	for n := 1; ; n++ {
		found := false
		for _, q := range r.questions {
			if q.PartID == partID && q.QuestionOrder == n {
				out = append(out, q)
				found = true
			}
		}
		if !found {
			return out
		}
	}
}

func (r *memRemote) CreateExam(_ context.Context, req model.ExamRequest) (*model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &model.Exam{ID: r.id(), Title: req.Title, Description: req.Description, Level: req.Level,
		DurationMinutes: req.DurationMinutes, Instructions: req.Instructions, Requirements: req.Requirements}
	r.exams[e.ID] = e
	out := *e
	return &out, nil
}

func (r *memRemote) UpdateExam(_ context.Context, id int64, req model.ExamRequest) (*model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, composer.ErrNotFound
	}
	e.Title, e.Description, e.Level = req.Title, req.Description, req.Level
	e.DurationMinutes, e.Instructions, e.Requirements = req.DurationMinutes, req.Instructions, req.Requirements
	out := *e
	return &out, nil
}

func (r *memRemote) DeleteExam(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exams, id)
	return nil
}

func (r *memRemote) CreatePart(_ context.Context, examID int64, req model.PartRequest) (*model.Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &model.Part{ID: r.id(), ExamID: examID, PartNumber: len(r.sortedParts(examID)) + 1, Title: req.Title,
		Description: req.Description, Instructions: req.Instructions, TimeLimitMinutes: req.TimeLimitMinutes}
	r.parts[p.ID] = p
	out := *p
	return &out, nil
}

func (r *memRemote) UpdatePart(_ context.Context, id int64, req model.PartRequest) (*model.Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[id]
	if !ok {
		return nil, composer.ErrNotFound
	}
	p.Title, p.Description, p.Instructions, p.TimeLimitMinutes = req.Title, req.Description, req.Instructions, req.TimeLimitMinutes
	out := *p
	return &out, nil
}

func (r *memRemote) DeletePart(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[id]
	if !ok {
		return composer.ErrNotFound
	}
	delete(r.parts, id)
	for qid, q := range r.questions {
		if q.PartID == id {
			delete(r.questions, qid)
		}
	}
	for _, other := range r.parts {
		if other.ExamID == p.ExamID && other.PartNumber > p.PartNumber {
			other.PartNumber--
		}
	}
	return nil
}

func (r *memRemote) CreateQuestion(_ context.Context, partID int64, req model.QuestionRequest) (*model.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := &model.Question{ID: r.id(), PartID: partID, QuestionOrder: len(r.sortedQuestions(partID)) + 1}
	fillQuestion(q, req)
	r.questions[q.ID] = q
	out := *q
	return &out, nil
}

func (r *memRemote) UpdateQuestion(_ context.Context, id int64, req model.QuestionRequest) (*model.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, composer.ErrNotFound
	}
	fillQuestion(q, req)
	out := *q
	return &out, nil
}

func fillQuestion(q *model.Question, req model.QuestionRequest) {
	q.QuestionText, q.QuestionType, q.OptionsText = req.QuestionText, req.QuestionType, req.OptionsText
	q.CorrectAnswer, q.Explanation, q.Points = req.CorrectAnswer, req.Explanation, req.Points
	q.ImageURL, q.AudioURL = req.ImageURL, req.AudioURL
}

func (r *memRemote) DeleteQuestion(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return composer.ErrNotFound
	}
	delete(r.questions, id)
	for _, other := range r.questions {
		if other.PartID == q.PartID && other.QuestionOrder > q.QuestionOrder {
			other.QuestionOrder--
		}
	}
	return nil
}

func (r *memRemote) UploadMedia(_ context.Context, questionID int64, kind model.MediaKind, file composer.MediaFile) (*model.MediaUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[questionID]
	if !ok {
		return nil, composer.ErrNotFound
	}
	r.uploads++
	url := "/uploads/" + string(kind) + "s/" + file.Name
	if kind == model.MediaAudio {
		q.AudioURL = &url
	} else {
		q.ImageURL = &url
	}
	return &model.MediaUpload{URL: url, Question: *q}, nil
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// Smallest valid PNG signature plus IHDR, enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

const yamlDraft = `
title: TOPIK I mock
level: TOPIK_I
duration_minutes: 100
parts:
  - title: Listening
    questions:
      - question_text: What do you hear?
        question_type: LISTENING
        points: 2
        image: cover.png
      - question_text: Second
  - title: Reading
    questions:
      - question_text: Read this
        question_type: READING
`

func push(t *testing.T, remote *memRemote, path string) *composer.SaveResult {
	t.Helper()
	d, err := readDraft(path)
	require.NoError(t, err)

	m := composer.NewManager(remote, composer.WithSkipUnchanged())
	if d.ID != 0 {
		_, err = m.Load(context.Background(), d.ID)
		require.NoError(t, err)
	} else {
		m.NewExam()
	}
	a := &applier{m: m, baseDir: filepath.Dir(path), log: zerolog.Nop()}
	require.NoError(t, a.apply(context.Background(), d))

	res, err := m.Save(context.Background())
	require.NoError(t, err)
	return res
}

func TestPushCreatesExamFromYAML(t *testing.T) {
	validator.Setup()
	dir := t.TempDir()
	writeFile(t, dir, "cover.png", pngBytes)
	path := writeFile(t, dir, "draft.yaml", []byte(yamlDraft))

	remote := newMemRemote()
	res := push(t, remote, path)
	assert.True(t, res.OK())
	assert.Equal(t, 6, res.Created) // exam, 2 parts, 3 questions
	assert.Equal(t, 1, remote.uploads)

	sid, ok := res.Exam.ID.ServerID()
	require.True(t, ok)
	stored, err := remote.GetExam(context.Background(), sid)
	require.NoError(t, err)
	require.Len(t, stored.Parts, 2)
	assert.Equal(t, "Listening", stored.Parts[0].Title)
	require.Len(t, stored.Parts[0].Questions, 2)
	first := stored.Parts[0].Questions[0]
	assert.Equal(t, model.QuestionTypeListening, first.QuestionType)
	assert.Equal(t, 2, first.Points)
	require.NotNil(t, first.ImageURL)
	assert.Equal(t, "/uploads/images/cover.png", *first.ImageURL)
	assert.Equal(t, 1, stored.Parts[0].Questions[1].Points)
}

func TestShowOutputPushesBackUnchanged(t *testing.T) {
	validator.Setup()
	dir := t.TempDir()
	writeFile(t, dir, "cover.png", pngBytes)
	remote := newMemRemote()
	res := push(t, remote, writeFile(t, dir, "draft.yaml", []byte(yamlDraft)))

	sid, _ := res.Exam.ID.ServerID()
	m := composer.NewManager(remote)
	exam, err := m.Load(context.Background(), sid)
	require.NoError(t, err)

	out, err := os.Create(filepath.Join(dir, "shown.json"))
	require.NoError(t, err)
	require.NoError(t, writeDraft(out, draftFromExam(exam), "json"))
	require.NoError(t, out.Close())

	again := push(t, remote, out.Name())
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, 6, again.Skipped)
	assert.Equal(t, 1, remote.uploads)
}

func TestPushDeletesOmittedEntities(t *testing.T) {
	validator.Setup()
	dir := t.TempDir()
	writeFile(t, dir, "cover.png", pngBytes)
	remote := newMemRemote()
	res := push(t, remote, writeFile(t, dir, "draft.yaml", []byte(yamlDraft)))

	d := draftFromExam(res.Exam)
	d.Parts = d.Parts[:1]
	d.Parts[0].Questions = d.Parts[0].Questions[1:]
	d.Parts[0].Questions = append(d.Parts[0].Questions, draftQuestion{QuestionText: "Added", Points: 3})

	out, err := os.Create(filepath.Join(dir, "edit.yaml"))
	require.NoError(t, err)
	require.NoError(t, writeDraft(out, d, "yaml"))
	require.NoError(t, out.Close())

	push(t, remote, out.Name())

	stored, err := remote.GetExam(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, stored.Parts, 1)
	require.Len(t, stored.Parts[0].Questions, 2)
	assert.Equal(t, "Second", stored.Parts[0].Questions[0].QuestionText)
	assert.Equal(t, 1, stored.Parts[0].Questions[0].QuestionOrder)
	assert.Equal(t, "Added", stored.Parts[0].Questions[1].QuestionText)
	assert.Len(t, remote.questions, 2)
}

func TestCheckDraftRejectsReordering(t *testing.T) {
	validator.Setup()
	dir := t.TempDir()
	writeFile(t, dir, "cover.png", pngBytes)
	remote := newMemRemote()
	res := push(t, remote, writeFile(t, dir, "draft.yaml", []byte(yamlDraft)))

	d := draftFromExam(res.Exam)
	d.Parts[0], d.Parts[1] = d.Parts[1], d.Parts[0]
	assert.ErrorIs(t, checkDraft(d, res.Exam), errDraft)

	d = draftFromExam(res.Exam)
	d.Parts = append([]draftPart{{Title: "New first"}}, d.Parts...)
	assert.ErrorIs(t, checkDraft(d, res.Exam), errDraft)

	d = draftFromExam(res.Exam)
	d.Parts[1].Questions = append(d.Parts[1].Questions, d.Parts[0].Questions[0])
	assert.ErrorIs(t, checkDraft(d, res.Exam), errDraft)

	d = draftFromExam(res.Exam)
	d.ID = 999
	assert.ErrorIs(t, checkDraft(d, res.Exam), errDraft)
}

func TestReadDraftRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()

	_, err := readDraft(writeFile(t, dir, "bad.yaml", []byte("title: x\ncolour: red\n")))
	assert.ErrorIs(t, err, errDraft)

	_, err = readDraft(writeFile(t, dir, "bad.json", []byte(`{"title":"x","colour":"red"}`)))
	assert.ErrorIs(t, err, errDraft)

	_, err = readDraft(writeFile(t, dir, "draft.txt", []byte("title: x")))
	assert.ErrorIs(t, err, errDraft)
}

func TestPushAsksBeforeDeleting(t *testing.T) {
	validator.Setup()
	dir := t.TempDir()
	writeFile(t, dir, "cover.png", pngBytes)
	remote := newMemRemote()
	res := push(t, remote, writeFile(t, dir, "draft.yaml", []byte(yamlDraft)))

	d := draftFromExam(res.Exam)
	d.Parts = d.Parts[:1]
	d.Parts[0].Questions = d.Parts[0].Questions[:1]

	m := composer.NewManager(remote)
	_, err := m.Load(context.Background(), d.ID)
	require.NoError(t, err)

	var asked []deletion
	a := &applier{m: m, baseDir: dir, log: zerolog.Nop(), confirm: func(plan []deletion) bool {
		asked = plan
		return false
	}}
	assert.ErrorIs(t, a.apply(context.Background(), d), errAborted)

	require.Len(t, asked, 2)
	assert.Equal(t, -1, asked[0].Question)
	assert.Equal(t, 1, asked[0].Part)
	assert.Equal(t, 0, asked[1].Part)
	assert.Equal(t, 1, asked[1].Question)
	assert.Contains(t, asked[1].String(), "question 1.2")

	stored, err := remote.GetExam(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Parts, 2)
	assert.Len(t, remote.questions, 3)
}
