package model

import "time"

// EventType names a change to an exam tree.
type EventType string

const (
	EventExamUpdated     EventType = "exam.updated"
	EventExamDeleted     EventType = "exam.deleted"
	EventPartSaved       EventType = "part.saved"
	EventPartDeleted     EventType = "part.deleted"
	EventQuestionSaved   EventType = "question.saved"
	EventQuestionDeleted EventType = "question.deleted"
	EventMediaUploaded   EventType = "media.uploaded"
)

// ExamEvent is published whenever an exam tree changes so other open
// editors can refresh.
type ExamEvent struct {
	Type      EventType `json:"type"`
	ExamID    int64     `json:"exam_id"`
	EntityID  int64     `json:"entity_id,omitempty"`
	ActorID   int       `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
