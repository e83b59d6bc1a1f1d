package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/composer"
	"github.com/stemsi/exstem-authoring/internal/model"
	"gopkg.in/yaml.v3"
)

// draftExam is the file format read by push and written by show. Entities
// with an id edit what the server has; entities without one are created.
type draftExam struct {
	ID              int64           `json:"id,omitempty" yaml:"id,omitempty"`
	Title           string          `json:"title" yaml:"title"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Level           model.ExamLevel `json:"level" yaml:"level"`
	DurationMinutes int             `json:"duration_minutes" yaml:"duration_minutes"`
	Instructions    string          `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Requirements    string          `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Parts           []draftPart     `json:"parts" yaml:"parts"`
}

type draftPart struct {
	ID               int64           `json:"id,omitempty" yaml:"id,omitempty"`
	Title            string          `json:"title,omitempty" yaml:"title,omitempty"`
	Description      string          `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions     string          `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	TimeLimitMinutes int             `json:"time_limit_minutes,omitempty" yaml:"time_limit_minutes,omitempty"`
	Questions        []draftQuestion `json:"questions" yaml:"questions"`
}

// draftQuestion.Image and Audio hold either the URL the server already
// has, or a path to a local file (relative to the draft) to upload.
type draftQuestion struct {
	ID            int64              `json:"id,omitempty" yaml:"id,omitempty"`
	QuestionText  string             `json:"question_text" yaml:"question_text"`
	QuestionType  model.QuestionType `json:"question_type,omitempty" yaml:"question_type,omitempty"`
	OptionsText   string             `json:"options_text,omitempty" yaml:"options_text,omitempty"`
	CorrectAnswer string             `json:"correct_answer,omitempty" yaml:"correct_answer,omitempty"`
	Explanation   string             `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Points        int                `json:"points,omitempty" yaml:"points,omitempty"`
	Image         string             `json:"image,omitempty" yaml:"image,omitempty"`
	Audio         string             `json:"audio,omitempty" yaml:"audio,omitempty"`
}

var errDraft = errors.New("invalid draft")

// readDraft decodes a .json, .yaml or .yml draft. Unknown keys are errors.
func readDraft(path string) (*draftExam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	d := &draftExam{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(d)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(d)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", errDraft, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errDraft, path, err)
	}
	return d, nil
}

// draftFromExam renders a composer tree in the draft format.
func draftFromExam(e *composer.Exam) *draftExam {
	d := &draftExam{
		Title:           e.Title,
		Description:     e.Description,
		Level:           e.Level,
		DurationMinutes: e.DurationMinutes,
		Instructions:    e.Instructions,
		Requirements:    e.Requirements,
		Parts:           make([]draftPart, 0, len(e.Parts)),
	}
	d.ID, _ = e.ID.ServerID()
	for _, p := range e.Parts {
		dp := draftPart{
			Title:            p.Title,
			Description:      p.Description,
			Instructions:     p.Instructions,
			TimeLimitMinutes: p.TimeLimitMinutes,
			Questions:        make([]draftQuestion, 0, len(p.Questions)),
		}
		dp.ID, _ = p.ID.ServerID()
		for _, q := range p.Questions {
			dq := draftQuestion{
				QuestionText:  q.QuestionText,
				QuestionType:  q.QuestionType,
				OptionsText:   q.OptionsText,
				CorrectAnswer: q.CorrectAnswer,
				Explanation:   q.Explanation,
				Points:        q.Points,
				Image:         q.Image.URL,
				Audio:         q.Audio.URL,
			}
			dq.ID, _ = q.ID.ServerID()
			dp.Questions = append(dp.Questions, dq)
		}
		d.Parts = append(d.Parts, dp)
	}
	return d
}

// checkDraft verifies that d can be applied to cur without reordering:
// referenced ids must exist in cur in the same relative order, and new
// entities may only follow existing ones. It runs before any change is made.
func checkDraft(d *draftExam, cur *composer.Exam) error {
	if sid, ok := cur.ID.ServerID(); ok && d.ID != 0 && d.ID != sid {
		return fmt.Errorf("%w: draft is for exam %d, loaded %d", errDraft, d.ID, sid)
	}

	parts := make(map[int64]*composer.Part, len(cur.Parts))
	partPos := make(map[int64]int, len(cur.Parts))
	for i, p := range cur.Parts {
		if sid, ok := p.ID.ServerID(); ok {
			parts[sid] = p
			partPos[sid] = i
		}
	}

	last, sawNew := -1, false
	for pi, dp := range d.Parts {
		if dp.ID == 0 {
			sawNew = true
		} else {
			pos, ok := partPos[dp.ID]
			switch {
			case !ok:
				return fmt.Errorf("%w: part %d (id %d) is not part of this exam", errDraft, pi+1, dp.ID)
			case sawNew || pos < last:
				return fmt.Errorf("%w: part %d (id %d) is out of order; existing parts cannot be reordered", errDraft, pi+1, dp.ID)
			}
			last = pos
		}
		if err := checkQuestions(pi, dp, parts[dp.ID]); err != nil {
			return err
		}
	}
	return nil
}

func checkQuestions(pi int, dp draftPart, p *composer.Part) error {
	pos := make(map[int64]int)
	if p != nil {
		for i, q := range p.Questions {
			if sid, ok := q.ID.ServerID(); ok {
				pos[sid] = i
			}
		}
	}
	last, sawNew := -1, false
	for qi, dq := range dp.Questions {
		if dq.ID == 0 {
			sawNew = true
			continue
		}
		at, ok := pos[dq.ID]
		switch {
		case !ok:
			return fmt.Errorf("%w: part %d question %d (id %d) is not in this part", errDraft, pi+1, qi+1, dq.ID)
		case sawNew || at < last:
			return fmt.Errorf("%w: part %d question %d (id %d) is out of order; existing questions cannot be reordered", errDraft, pi+1, qi+1, dq.ID)
		}
		last = at
	}
	return nil
}

// applier turns a draft into composer operations.
type applier struct {
	m       *composer.Manager
	baseDir string
	log     zerolog.Logger
	// confirm approves the deletions a draft implies. Nil approves all.
	confirm func(plan []deletion) bool
}

var errAborted = errors.New("push aborted")

// apply brings the manager's tree in line with d. Entities missing from d
// are deleted once confirmed; failed server deletes are retried by the
// next Save.
func (a *applier) apply(ctx context.Context, d *draftExam) error {
	if err := checkDraft(d, a.m.Snapshot()); err != nil {
		return err
	}

	plan := planDeletes(d, a.m.Snapshot())
	if len(plan) > 0 && a.confirm != nil && !a.confirm(plan) {
		return errAborted
	}
	for _, del := range plan {
		if del.Question < 0 {
			a.warnDelete(a.m.DeletePart(ctx, del.Part), "part", del.ID)
		} else {
			a.warnDelete(a.m.DeleteQuestion(ctx, del.Part, del.Question), "question", del.ID)
		}
	}

	cur := a.m.Snapshot()
	if err := a.setExam(cur, d); err != nil {
		return err
	}
	for pi, dp := range d.Parts {
		var p *composer.Part
		if pi < len(cur.Parts) {
			p = cur.Parts[pi]
		} else {
			p = a.m.CreateLocalPart()
		}
		if err := a.setPart(ctx, pi, p, dp); err != nil {
			return err
		}
	}
	return nil
}

// deletion is an entity the draft omits. Question is -1 for a whole part.
type deletion struct {
	Part     int
	Question int
	ID       composer.ID
}

func (d deletion) String() string {
	if d.Question < 0 {
		return fmt.Sprintf("part %d (id %s)", d.Part+1, d.ID)
	}
	return fmt.Sprintf("question %d.%d (id %s)", d.Part+1, d.Question+1, d.ID)
}

// planDeletes lists omitted entities from last to first, so each index is
// still valid when its turn comes.
func planDeletes(d *draftExam, cur *composer.Exam) []deletion {
	keepParts := make(map[int64]draftPart, len(d.Parts))
	for _, dp := range d.Parts {
		if dp.ID != 0 {
			keepParts[dp.ID] = dp
		}
	}

	var plan []deletion
	for pi := len(cur.Parts) - 1; pi >= 0; pi-- {
		p := cur.Parts[pi]
		sid, _ := p.ID.ServerID()
		dp, keep := keepParts[sid]
		if !keep {
			plan = append(plan, deletion{Part: pi, Question: -1, ID: p.ID})
			continue
		}

		keepQuestions := make(map[int64]bool, len(dp.Questions))
		for _, dq := range dp.Questions {
			keepQuestions[dq.ID] = dq.ID != 0
		}
		for qi := len(p.Questions) - 1; qi >= 0; qi-- {
			q := p.Questions[qi]
			if qsid, _ := q.ID.ServerID(); !keepQuestions[qsid] {
				plan = append(plan, deletion{Part: pi, Question: qi, ID: q.ID})
			}
		}
	}
	return plan
}

func (a *applier) warnDelete(err error, kind string, id composer.ID) {
	if err != nil {
		a.log.Warn().Err(err).Str("kind", kind).Str("id", id.String()).Msg("Delete failed, will retry on save")
	}
}

func (a *applier) setExam(cur *composer.Exam, d *draftExam) error {
	return firstErr(
		setField(a.m, composer.ExamField("title"), cur.Title, d.Title),
		setField(a.m, composer.ExamField("description"), cur.Description, d.Description),
		setField(a.m, composer.ExamField("instructions"), cur.Instructions, d.Instructions),
		setField(a.m, composer.ExamField("requirements"), cur.Requirements, d.Requirements),
		setField(a.m, composer.ExamField("duration_minutes"), cur.DurationMinutes, d.DurationMinutes),
		setField(a.m, composer.ExamField("level"), string(cur.Level), string(d.Level)),
	)
}

func (a *applier) setPart(ctx context.Context, pi int, p *composer.Part, dp draftPart) error {
	err := firstErr(
		setField(a.m, composer.PartField(pi, "title"), p.Title, dp.Title),
		setField(a.m, composer.PartField(pi, "description"), p.Description, dp.Description),
		setField(a.m, composer.PartField(pi, "instructions"), p.Instructions, dp.Instructions),
		setField(a.m, composer.PartField(pi, "time_limit_minutes"), p.TimeLimitMinutes, dp.TimeLimitMinutes),
	)
	if err != nil {
		return err
	}

	for qi, dq := range dp.Questions {
		var q *composer.Question
		if qi < len(p.Questions) {
			q = p.Questions[qi]
		} else if q, err = a.m.CreateLocalQuestion(pi); err != nil {
			return err
		}
		if err := a.setQuestion(pi, qi, q, dq); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) setQuestion(pi, qi int, q *composer.Question, dq draftQuestion) error {
	field := func(name string) composer.Path { return composer.QuestionField(pi, qi, name) }
	errs := []error{
		setField(a.m, field("question_text"), q.QuestionText, dq.QuestionText),
		setField(a.m, field("options_text"), q.OptionsText, dq.OptionsText),
		setField(a.m, field("correct_answer"), q.CorrectAnswer, dq.CorrectAnswer),
		setField(a.m, field("explanation"), q.Explanation, dq.Explanation),
	}
	// Zero values keep the question's current type and points.
	if dq.QuestionType != "" {
		errs = append(errs, setField(a.m, field("question_type"), string(q.QuestionType), string(dq.QuestionType)))
	}
	if dq.Points != 0 {
		errs = append(errs, setField(a.m, field("points"), q.Points, dq.Points))
	}
	errs = append(errs,
		a.setMedia(pi, qi, model.MediaImage, q.Image, dq.Image),
		a.setMedia(pi, qi, model.MediaAudio, q.Audio, dq.Audio),
	)
	return firstErr(errs...)
}

func (a *applier) setMedia(pi, qi int, kind model.MediaKind, cur composer.MediaRef, want string) error {
	switch {
	case want == cur.URL:
		return nil
	case want == "":
		return a.m.ClearMedia(pi, qi, kind)
	case isRemoteURL(want):
		return fmt.Errorf("%w: part %d question %d %s: %q is not this question's current file; give a local path to upload",
			errDraft, pi+1, qi+1, kind, want)
	}

	path := want
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("part %d question %d %s: %w", pi+1, qi+1, kind, err)
	}
	_, err = a.m.AttachMedia(pi, qi, composer.MediaFile{Name: filepath.Base(path), Data: data}, kind)
	return err
}

func isRemoteURL(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "/uploads/")
}

func setField[T comparable](m *composer.Manager, path composer.Path, cur, want T) error {
	if cur == want {
		return nil
	}
	return m.UpdateField(path, want)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
