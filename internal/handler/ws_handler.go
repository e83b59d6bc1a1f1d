package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/middleware"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
	"github.com/stemsi/exstem-authoring/internal/service"
	ws "github.com/stemsi/exstem-authoring/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams exam change events to open editors.
type WSHandler struct {
	examService *service.ExamService
	events      *service.ExamEvents
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(examService *service.ExamService, events *service.ExamEvents, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		examService: examService,
		events:      events,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// ExamEvents godoc
// WS /ws/v1/admin/exams/:id/events
// Pushes every change to the exam tree until the client disconnects.
func (h *WSHandler) ExamEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.examService.Authorize(c.Request.Context(), examID, claims.UserID); err != nil {
		failWith(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("admin_id", claims.UserID).
		Int64("exam_id", examID).
		Logger()
	wsLog.Info().Msg("Editor connected")

	ctx := c.Request.Context()
	sub := h.events.Subscribe(ctx, examID)
	defer sub.Close()

	// The reader only handles pings and notices the client leaving.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg ws.RequestEnvelope
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
				continue
			}
			_ = conn.WriteError("unknown action: " + string(msg.Action))
		}
	}()

	keepAlive := time.NewTicker(ws.PingInterval)
	defer keepAlive.Stop()
	messages := sub.Channel()

	for {
		select {
		case <-closed:
			wsLog.Debug().Msg("Connection closed")
			return
		case <-keepAlive.C:
			if err := conn.WritePing(); err != nil {
				return
			}
		case m, ok := <-messages:
			if !ok {
				return
			}
			var evt model.ExamEvent
			if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed event")
				continue
			}
			if err := conn.WriteTyped(ws.ExamEventMessage{Event: ws.EventExamChanged, Change: evt}); err != nil {
				return
			}
			if evt.Type == model.EventExamDeleted {
				_ = conn.WriteClose("exam deleted")
				return
			}
		}
	}
}
