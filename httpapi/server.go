// Package httpapi exposes the tutoring pipeline over HTTP: synchronous turn
// submission, a websocket endpoint for streamed turn events, mastery readouts
// and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tutorflow/tutorflow"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/logging"
	"github.com/tutorflow/tutorflow/observability"
)

// Server routes HTTP traffic to a TutorFlow instance.
type Server struct {
	flow     *tutorflow.TutorFlow
	logger   *logging.TurnLogger
	upgrader websocket.Upgrader
}

// New creates an HTTP server around the given TutorFlow instance.
func New(flow *tutorflow.TutorFlow, logger *logging.TurnLogger) *Server {
	if logger == nil {
		logger = logging.NewTurnLogger(&logging.LoggerConfig{Level: logging.LogLevelError, Output: io.Discard})
	}
	return &Server{
		flow:   flow,
		logger: logger.WithComponent("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/turns", s.handleTurn)
	r.Get("/v1/turns/ws", s.handleTurnWS)
	r.Post("/v1/turns/{id}/cancel", s.handleCancelTurn)
	r.Get("/v1/students/{id}/mastery", s.handleMastery)
	r.Get("/v1/students/{id}/weak-topics", s.handleWeakTopics)

	return r
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	Input     string `json:"input"`
}

func (req *turnRequest) validate() error {
	if strings.TrimSpace(req.StudentID) == "" {
		return errors.New("student_id is required")
	}
	if strings.TrimSpace(req.CourseID) == "" {
		return errors.New("course_id is required")
	}
	if strings.TrimSpace(req.Input) == "" {
		return errors.New("input is required")
	}
	return nil
}

type turnResponse struct {
	TurnID     string             `json:"turn_id"`
	SessionID  string             `json:"session_id"`
	Outcome    string             `json:"outcome"`
	Text       string             `json:"text"`
	Citations  []core.Citation    `json:"citations,omitempty"`
	Evaluation *core.Evaluation   `json:"evaluation,omitempty"`
	Mastery    *core.MasteryDelta `json:"mastery,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	terminal, _, err := s.flow.RunTurnSync(r.Context(), req.SessionID, req.StudentID, req.CourseID, req.Input)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "turn_failed", err.Error())
		return
	}

	// Fragments are raw model output; only the terminal event carries the
	// finalized text with citations resolved and malformed blocks stripped.
	respondJSON(w, http.StatusOK, turnResponse{
		TurnID:     terminal.TurnID,
		SessionID:  terminal.SessionID,
		Outcome:    string(terminal.Outcome()),
		Text:       terminal.Text,
		Citations:  terminal.Citations,
		Evaluation: terminal.Evaluation,
		Mastery:    terminal.Mastery,
		Error:      terminal.ErrorMessage,
	})
}

// handleTurnWS accepts one turn request as the first text message, then
// streams every turn event back as JSON. Closing the socket cancels the turn.
func (s *Server) handleTurnWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var req turnRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = writeWSError(conn, "invalid_request", err.Error())
		return
	}
	if err := req.validate(); err != nil {
		_ = writeWSError(conn, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	turn, events, err := s.flow.RunTurn(ctx, req.SessionID, req.StudentID, req.CourseID, req.Input)
	if err != nil {
		_ = writeWSError(conn, "turn_rejected", err.Error())
		return
	}

	// Reads only detect the peer going away; any inbound message or error
	// cancels the in-flight turn.
	go func() {
		_ = conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.logger.WithTurn(turn.SessionID, turn.ID).Debug("websocket turn started")

	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			cancel()
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) handleCancelTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.flow.CancelTurn(id); err != nil {
		respondError(w, http.StatusNotFound, "turn_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "cancelling", "turn_id": id})
}

func (s *Server) handleMastery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.flow.Mastery().List(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "mastery_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"student_id": id, "concepts": rows})
}

func (s *Server) handleWeakTopics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	threshold := 0.5
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			respondError(w, http.StatusBadRequest, "invalid_threshold", "threshold must be a number in [0,1]")
			return
		}
		threshold = v
	}
	rows, err := s.flow.Mastery().WeakTopics(r.Context(), id, threshold)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "mastery_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"student_id": id, "threshold": threshold, "weak_topics": rows})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeWSError(conn *websocket.Conn, code, message string) error {
	return conn.WriteJSON(errorResponse{Error: message, Code: code})
}
