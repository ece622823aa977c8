package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"timed-quiz-bot/internal/app"
	"timed-quiz-bot/internal/domain"
	"timed-quiz-bot/internal/report"
	"github.com/gorilla/websocket"
)

// WSHandler speaks the router protocol: one JSON message per user action,
// one or more JSON messages back. Messages on a single connection are
// processed strictly in arrival order.
type WSHandler struct {
	engine    *app.Engine
	theory    *app.TheoryBook
	reports   *report.Service
	authToken string
	upgrader  websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, theory *app.TheoryBook, reports *report.Service, authToken string) *WSHandler {
	return &WSHandler{
		engine:    engine,
		theory:    theory,
		reports:   reports,
		authToken: authToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type theoryPayload struct {
	Page int `json:"page"`
}

type adminPayload struct {
	Action string `json:"action"`
}

type exportPayload struct {
	Name string `json:"name"`
	Data []byte `json:"data"` // base64 in JSON
}

type noticePayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and runs the per-user action loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != h.authToken {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}
	identity := domain.Identity{
		ID:       userID,
		Username: r.URL.Query().Get("username"),
		FullName: r.URL.Query().Get("name"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		for _, out := range h.dispatch(r.Context(), identity, inbound) {
			if err := conn.WriteJSON(out); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, id domain.Identity, inbound inboundMessage) []outboundMessage {
	switch inbound.Type {
	case "start_quiz":
		view, err := h.engine.StartAttempt(ctx, id)
		if err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "question", Payload: view}}

	case "submit_answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return notice("invalid submit_answer payload")
		}
		result, err := h.engine.SubmitAnswer(ctx, id, payload.QuestionIndex, payload.OptionIndex)
		if err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "answer_result", Payload: result}}

	case "quit":
		if err := h.engine.RecordInteraction(ctx, id, "quiz_quit", nil); err != nil {
			return h.failure(id, err)
		}
		summary, err := h.engine.QuitAttempt(ctx, id)
		if err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "finished", Payload: summary}}

	case "view_menu":
		if err := h.engine.RecordInteraction(ctx, id, "menu_open", nil); err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "menu", Payload: h.engine.Menu()}}

	case "view_theory":
		var payload theoryPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return notice("invalid view_theory payload")
		}
		if err := h.engine.RecordInteraction(ctx, id, "theory_open", map[string]int{"page": payload.Page}); err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "theory", Payload: h.theory.Page(payload.Page)}}

	case "view_leaderboard":
		if err := h.engine.RecordInteraction(ctx, id, "leaderboard_open", nil); err != nil {
			return h.failure(id, err)
		}
		entries, err := h.engine.Leaderboard(ctx, 10)
		if err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "leaderboard", Payload: entries}}

	case "my_identity":
		if err := h.engine.RecordInteraction(ctx, id, "my_identity", nil); err != nil {
			return h.failure(id, err)
		}
		return []outboundMessage{{Type: "identity", Payload: map[string]int64{"userId": id.ID}}}

	case "admin_command":
		var payload adminPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return notice("invalid admin_command payload")
		}
		if err := h.engine.RecordInteraction(ctx, id, "admin_command", map[string]string{"action": payload.Action}); err != nil {
			return h.failure(id, err)
		}
		result, err := h.reports.Handle(ctx, id.ID, payload.Action)
		if err != nil {
			return h.failure(id, err)
		}
		out := []outboundMessage{{Type: "report", Payload: noticePayload{Message: result.Text}}}
		if result.File != nil {
			out = append(out, outboundMessage{Type: "export", Payload: exportPayload{Name: result.File.Name, Data: result.File.Data}})
		}
		return out

	default:
		return notice("unsupported message type")
	}
}

// failure maps benign, user-recoverable errors to notices and everything
// else to a generic error message.
func (h *WSHandler) failure(id domain.Identity, err error) []outboundMessage {
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		return notice("No quiz in progress. Send start_quiz to begin.")
	case errors.Is(err, domain.ErrStaleAnswer):
		return notice("Those buttons are stale. Send start_quiz to begin a new run.")
	case errors.Is(err, domain.ErrAccessDenied):
		return notice("Access denied.")
	case errors.Is(err, domain.ErrClearNotArmed):
		return notice("Clear was not confirmed. Send clear_confirm first.")
	case errors.Is(err, domain.ErrUnknownAdminAction):
		return notice("Unknown admin action.")
	default:
		log.Printf("action failed for user %d: %v", id.ID, err)
		return []outboundMessage{{Type: "error", Payload: noticePayload{Message: "Something went wrong, try again."}}}
	}
}

func notice(message string) []outboundMessage {
	return []outboundMessage{{Type: "notice", Payload: noticePayload{Message: message}}}
}
