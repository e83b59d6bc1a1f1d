package websocket

import "github.com/stemsi/exstem-authoring/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is the only message shape clients send.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError       Event = "error"
	EventPong        Event = "pong"
	EventExamChanged Event = "exam_changed"
)

// ExamEventMessage wraps a change published for the watched exam.
type ExamEventMessage struct {
	Event  Event           `json:"event"`
	Change model.ExamEvent `json:"change"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
