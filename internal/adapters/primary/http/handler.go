package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type Handler struct {
	service  ports.TranscriptionService
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(service ports.TranscriptionService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.With("component", "http.Handler"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.startSession)
	mux.HandleFunc("POST /sessions/{sessionId}/stop", h.stopSession)
	mux.HandleFunc("GET /sessions/{sessionId}", h.getSession)
	mux.HandleFunc("GET /sessions/{sessionId}/events", h.streamEvents)
}

type startRequest struct {
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
	Language    string `json:"language"`
	KeepAudio   bool   `json:"keepAudio"`
	WaitForEnd  *bool  `json:"waitForEnd"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusEvent is one line on the events stream.
type statusEvent struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	waitForEnd := true
	if req.WaitForEnd != nil {
		waitForEnd = *req.WaitForEnd
	}
	session, err := h.service.StartSession(r.Context(), domain.MeetingRequest{
		MeetingURL:  req.URL,
		DisplayName: req.DisplayName,
		Language:    req.Language,
		KeepAudio:   req.KeepAudio,
		WaitForEnd:  waitForEnd,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMeetingURL) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.log.Error("failed to start session", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, session)
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	sessionId := r.PathValue("sessionId")
	if sessionId == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	session, err := h.service.StopSession(r.Context(), sessionId)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionId := r.PathValue("sessionId")
	if sessionId == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	session, err := h.service.GetSession(r.Context(), sessionId)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// streamEvents pushes status lines over a websocket until the session finishes or
// the client goes away.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	sessionId := r.PathValue("sessionId")
	events, unsubscribe, err := h.service.Subscribe(sessionId)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "session_id", sessionId, "error", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
				return
			}
			if err := conn.WriteJSON(statusEvent{Message: msg, Time: time.Now().UTC()}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
