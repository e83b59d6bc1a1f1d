package model

// Part is an ordered section of an exam.
type Part struct {
	ID               int64      `json:"id"`
	ExamID           int64      `json:"exam_id"`
	PartNumber       int        `json:"part_number"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Instructions     string     `json:"instructions"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	Questions        []Question `json:"questions,omitempty"`
}

// PartRequest is the payload for creating or updating a part.
// A zero PartNumber on create appends the part at the end.
type PartRequest struct {
	PartNumber       int    `json:"part_number" binding:"min=0"`
	Title            string `json:"title" binding:"max=255"`
	Description      string `json:"description" binding:"max=5000"`
	Instructions     string `json:"instructions" binding:"max=5000"`
	TimeLimitMinutes int    `json:"time_limit_minutes" binding:"min=0,max=600"`
}
