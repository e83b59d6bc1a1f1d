package composer

import (
	"fmt"

	"github.com/stemsi/exstem-authoring/internal/model"
)

// Path addresses one editable field in the tree.
type Path struct {
	Part     int
	Question int
	Field    string
}

// ExamField addresses a field of the exam itself.
func ExamField(name string) Path { return Path{Part: -1, Question: -1, Field: name} }

// PartField addresses a field of the part at index part.
func PartField(part int, name string) Path { return Path{Part: part, Question: -1, Field: name} }

// QuestionField addresses a field of a question.
func QuestionField(part, question int, name string) Path {
	return Path{Part: part, Question: question, Field: name}
}

func (p Path) String() string {
	switch {
	case p.Part < 0:
		return p.Field
	case p.Question < 0:
		return fmt.Sprintf("parts[%d].%s", p.Part, p.Field)
	default:
		return fmt.Sprintf("parts[%d].questions[%d].%s", p.Part, p.Question, p.Field)
	}
}

// UpdateField sets one field in memory. Numbering fields are derived from
// position and media slots change through AttachMedia and ClearMedia, so
// neither can be set here.
func (m *Manager) UpdateField(path Path, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case path.Part < 0:
		return setExamField(m.exam, path, value)
	case path.Question < 0:
		p, err := m.part(path.Part)
		if err != nil {
			return err
		}
		return setPartField(p, path, value)
	default:
		_, q, err := m.question(path.Part, path.Question)
		if err != nil {
			return err
		}
		return setQuestionField(q, path, value)
	}
}

func setExamField(e *Exam, path Path, value any) error {
	var err error
	switch path.Field {
	case "title":
		e.Title, err = asString(path, value)
	case "description":
		e.Description, err = asString(path, value)
	case "instructions":
		e.Instructions, err = asString(path, value)
	case "requirements":
		e.Requirements, err = asString(path, value)
	case "duration_minutes":
		e.DurationMinutes, err = asInt(path, value)
	case "level":
		var s string
		if s, err = asString(path, value); err == nil {
			if lvl := model.ExamLevel(s); lvl.Valid() {
				e.Level = lvl
			} else {
				err = fieldError(path.String(), fmt.Sprintf("unknown level %q", s))
			}
		}
	default:
		return unknownField(path)
	}
	if err == nil {
		e.dirty = true
	}
	return err
}

func setPartField(p *Part, path Path, value any) error {
	var err error
	switch path.Field {
	case "title":
		p.Title, err = asString(path, value)
	case "description":
		p.Description, err = asString(path, value)
	case "instructions":
		p.Instructions, err = asString(path, value)
	case "time_limit_minutes":
		var n int
		if n, err = asInt(path, value); err == nil && n < 0 {
			err = fieldError(path.String(), "must not be negative")
		} else if err == nil {
			p.TimeLimitMinutes = n
		}
	default:
		return unknownField(path)
	}
	if err == nil {
		p.dirty = true
	}
	return err
}

func setQuestionField(q *Question, path Path, value any) error {
	var err error
	switch path.Field {
	case "question_text":
		q.QuestionText, err = asString(path, value)
	case "options_text":
		q.OptionsText, err = asString(path, value)
	case "correct_answer":
		q.CorrectAnswer, err = asString(path, value)
	case "explanation":
		q.Explanation, err = asString(path, value)
	case "points":
		var n int
		if n, err = asInt(path, value); err == nil && n < 1 {
			err = fieldError(path.String(), "must be a positive integer")
		} else if err == nil {
			q.Points = n
		}
	case "question_type":
		var s string
		if s, err = asString(path, value); err == nil {
			if t := model.QuestionType(s); t.Valid() {
				q.QuestionType = t
			} else {
				err = fieldError(path.String(), fmt.Sprintf("unknown question type %q", s))
			}
		}
	default:
		return unknownField(path)
	}
	if err == nil {
		q.dirty = true
	}
	return err
}

func unknownField(path Path) error {
	return fieldError(path.String(), "unknown or read-only field")
}

func asString(path Path, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case model.ExamLevel:
		return string(v), nil
	case model.QuestionType:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fieldError(path.String(), fmt.Sprintf("expected text, got %T", value))
}

func asInt(path Path, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fieldError(path.String(), fmt.Sprintf("expected whole number, got %v", value))
}
