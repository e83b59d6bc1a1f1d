package model

import "time"

// ExamLevel enumerates the difficulty tracks an exam can target.
type ExamLevel string

const (
	ExamLevelTopikI       ExamLevel = "TOPIK_I"
	ExamLevelTopikII      ExamLevel = "TOPIK_II"
	ExamLevelBasic        ExamLevel = "BASIC"
	ExamLevelIntermediate ExamLevel = "INTERMEDIATE"
	ExamLevelAdvanced     ExamLevel = "ADVANCED"
)

// ExamLevels lists every accepted level in display order.
var ExamLevels = []ExamLevel{
	ExamLevelTopikI,
	ExamLevelTopikII,
	ExamLevelBasic,
	ExamLevelIntermediate,
	ExamLevelAdvanced,
}

// Valid reports whether l is one of the known levels.
func (l ExamLevel) Valid() bool {
	for _, v := range ExamLevels {
		if v == l {
			return true
		}
	}
	return false
}

// Exam is an exam with its ordered parts. Parts is only populated when the
// full tree is requested.
type Exam struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Level           ExamLevel `json:"level"`
	DurationMinutes int       `json:"duration_minutes"`
	Instructions    string    `json:"instructions"`
	Requirements    string    `json:"requirements"`
	AuthorID        int       `json:"author_id"`
	Parts           []Part    `json:"parts,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExamRequest is the payload for creating or updating an exam. Updates
// always carry the full form.
type ExamRequest struct {
	Title           string    `json:"title" binding:"required,notblank,max=255"`
	Description     string    `json:"description" binding:"max=5000"`
	Level           ExamLevel `json:"level" binding:"required,oneof=TOPIK_I TOPIK_II BASIC INTERMEDIATE ADVANCED"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,min=1,max=600"`
	Instructions    string    `json:"instructions" binding:"max=5000"`
	Requirements    string    `json:"requirements" binding:"max=5000"`
}
