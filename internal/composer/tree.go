package composer

import (
	"context"
	"sort"

	"github.com/stemsi/exstem-authoring/internal/model"
)

// Exam is the root of the tree being edited.
type Exam struct {
	ID              ID
	Title           string
	Description     string
	Level           model.ExamLevel
	DurationMinutes int
	Instructions    string
	Requirements    string
	Parts           []*Part

	dirty bool
}

// Part is an ordered section owned by its exam.
type Part struct {
	ID               ID
	PartNumber       int
	Title            string
	Description      string
	Instructions     string
	TimeLimitMinutes int
	Questions        []*Question

	dirty bool
}

// Question is owned by its part. Image and Audio may hold temporary
// references until their upload completes.
type Question struct {
	ID            ID
	QuestionText  string
	QuestionType  model.QuestionType
	OptionsText   string
	CorrectAnswer string
	Explanation   string
	Points        int
	QuestionOrder int
	Image         MediaRef
	Audio         MediaRef

	dirty   bool
	removed bool
	pending map[model.MediaKind]*pendingMedia
	uploads map[model.MediaKind]*Upload

	// life is cancelled when the question leaves the tree, aborting any
	// upload still running for it.
	life   context.Context
	cancel context.CancelFunc
}

// pendingMedia is a file attached before the question had a server id.
type pendingMedia struct {
	file MediaFile
	ref  MediaRef
	prev MediaRef
}

func (q *Question) ref(kind model.MediaKind) MediaRef {
	if kind == model.MediaAudio {
		return q.Audio
	}
	return q.Image
}

func (q *Question) setRef(kind model.MediaKind, r MediaRef) {
	if kind == model.MediaAudio {
		q.Audio = r
	} else {
		q.Image = r
	}
}

// committed returns the last value of a slot that the server knows about.
func (q *Question) committed(kind model.MediaKind) MediaRef {
	cur := q.ref(kind)
	if !cur.Temporary {
		return cur
	}
	if pm, ok := q.pending[kind]; ok && pm.ref == cur {
		return pm.prev
	}
	if up, ok := q.uploads[kind]; ok && up.ref == cur {
		return up.prev
	}
	return MediaRef{}
}

func (q *Question) lifetime() context.Context {
	if q.life == nil {
		q.life, q.cancel = context.WithCancel(context.Background())
	}
	return q.life
}

func (e *Exam) request() model.ExamRequest {
	return model.ExamRequest{
		Title:           e.Title,
		Description:     e.Description,
		Level:           e.Level,
		DurationMinutes: e.DurationMinutes,
		Instructions:    e.Instructions,
		Requirements:    e.Requirements,
	}
}

func (p *Part) request() model.PartRequest {
	return model.PartRequest{
		PartNumber:       p.PartNumber,
		Title:            p.Title,
		Description:      p.Description,
		Instructions:     p.Instructions,
		TimeLimitMinutes: p.TimeLimitMinutes,
	}
}

func (q *Question) request() model.QuestionRequest {
	return model.QuestionRequest{
		QuestionText:  q.QuestionText,
		QuestionType:  q.QuestionType,
		OptionsText:   q.OptionsText,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Points:        q.Points,
		QuestionOrder: q.QuestionOrder,
		ImageURL:      q.committed(model.MediaImage).durableURL(),
		AudioURL:      q.committed(model.MediaAudio).durableURL(),
	}
}

// examFromModel builds a clean tree from a server response. Stored order
// values only decide the initial order; numbering is recomputed from it.
func examFromModel(m *model.Exam) *Exam {
	e := &Exam{
		ID:              PersistedID(m.ID),
		Title:           m.Title,
		Description:     m.Description,
		Level:           m.Level,
		DurationMinutes: m.DurationMinutes,
		Instructions:    m.Instructions,
		Requirements:    m.Requirements,
		Parts:           make([]*Part, 0, len(m.Parts)),
	}

	parts := append([]model.Part(nil), m.Parts...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	for _, mp := range parts {
		p := &Part{
			ID:               PersistedID(mp.ID),
			PartNumber:       mp.PartNumber,
			Title:            mp.Title,
			Description:      mp.Description,
			Instructions:     mp.Instructions,
			TimeLimitMinutes: mp.TimeLimitMinutes,
			Questions:        make([]*Question, 0, len(mp.Questions)),
		}
		questions := append([]model.Question(nil), mp.Questions...)
		sort.SliceStable(questions, func(i, j int) bool { return questions[i].QuestionOrder < questions[j].QuestionOrder })
		for _, mq := range questions {
			p.Questions = append(p.Questions, &Question{
				ID:            PersistedID(mq.ID),
				QuestionText:  mq.QuestionText,
				QuestionType:  mq.QuestionType,
				OptionsText:   mq.OptionsText,
				CorrectAnswer: mq.CorrectAnswer,
				Explanation:   mq.Explanation,
				Points:        mq.Points,
				QuestionOrder: mq.QuestionOrder,
				Image:         mediaRefFrom(mq.ImageURL),
				Audio:         mediaRefFrom(mq.AudioURL),
			})
		}
		renumberQuestions(p)
		e.Parts = append(e.Parts, p)
	}
	renumberParts(e)
	return e
}

func renumberParts(e *Exam) {
	for i, p := range e.Parts {
		if p.PartNumber != i+1 {
			p.PartNumber = i + 1
			p.dirty = true
		}
	}
}

func renumberQuestions(p *Part) {
	for i, q := range p.Questions {
		if q.QuestionOrder != i+1 {
			q.QuestionOrder = i + 1
			q.dirty = true
		}
	}
}

// clone returns a deep copy without the bookkeeping fields.
func (e *Exam) clone() *Exam {
	c := *e
	c.dirty = false
	c.Parts = make([]*Part, len(e.Parts))
	for i, p := range e.Parts {
		pc := *p
		pc.dirty = false
		pc.Questions = make([]*Question, len(p.Questions))
		for j, q := range p.Questions {
			pc.Questions[j] = &Question{
				ID:            q.ID,
				QuestionText:  q.QuestionText,
				QuestionType:  q.QuestionType,
				OptionsText:   q.OptionsText,
				CorrectAnswer: q.CorrectAnswer,
				Explanation:   q.Explanation,
				Points:        q.Points,
				QuestionOrder: q.QuestionOrder,
				Image:         q.Image,
				Audio:         q.Audio,
			}
		}
		c.Parts[i] = &pc
	}
	return &c
}
