package model

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeFillBlank      QuestionType = "FILL_BLANK"
	QuestionTypeListening      QuestionType = "LISTENING"
	QuestionTypeReading        QuestionType = "READING"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeFillBlank, QuestionTypeListening, QuestionTypeReading:
		return true
	}
	return false
}

// Question represents a single question inside a part.
type Question struct {
	ID            int64        `json:"id"`
	PartID        int64        `json:"part_id"`
	QuestionText  string       `json:"question_text"`
	QuestionType  QuestionType `json:"question_type"`
	OptionsText   string       `json:"options_text"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Points        int          `json:"points"`
	QuestionOrder int          `json:"question_order"`
	ImageURL      *string      `json:"image_url"`
	AudioURL      *string      `json:"audio_url"`
}

// QuestionRequest is the payload for creating or updating a question.
// ImageURL and AudioURL replace the stored values; nil clears them.
type QuestionRequest struct {
	QuestionText  string       `json:"question_text" binding:"required,notblank,max=5000"`
	QuestionType  QuestionType `json:"question_type" binding:"required,oneof=MULTIPLE_CHOICE FILL_BLANK LISTENING READING"`
	OptionsText   string       `json:"options_text" binding:"max=5000"`
	CorrectAnswer string       `json:"correct_answer" binding:"max=1000"`
	Explanation   string       `json:"explanation" binding:"max=5000"`
	Points        int          `json:"points" binding:"required,min=1,max=1000"`
	QuestionOrder int          `json:"question_order" binding:"min=0"`
	ImageURL      *string      `json:"image_url" binding:"omitempty,max=2048"`
	AudioURL      *string      `json:"audio_url" binding:"omitempty,max=2048"`
}
