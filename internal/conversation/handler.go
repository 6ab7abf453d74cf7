package conversation

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/saludtb/tb-assistant/pkg/logging"
)

// Handler exposes the dialogue service over HTTP.
type Handler struct {
	service Service
	logger  *logging.Logger
}

func NewHandler(service Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger.Named("handler")}
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type messageResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
	Task           string `json:"task,omitempty"`
	TaskStatus     string `json:"task_status,omitempty"`
}

// PostMessage handles POST /chat/message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.service.ProcessMessage(r.Context(), req.UserID, req.Message)
	if err != nil {
		h.logger.Error("process message failed", "user_id", req.UserID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{
		Reply:          reply.Content,
		ConversationID: reply.ConversationID,
		Task:           string(reply.Task),
		TaskStatus:     reply.TaskStatus,
	})
}

// GetHistory handles GET /chat/history/{userID}.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	conv, err := h.service.History(r.Context(), userID)
	if err != nil {
		h.logger.Error("history lookup failed", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	if conv == nil {
		h.writeError(w, http.StatusNotFound, "no active conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// DeleteConversation handles DELETE /chat/conversation/{userID}.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	existed, err := h.service.Close(r.Context(), userID)
	if err != nil {
		h.logger.Error("conversation close failed", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not close conversation")
		return
	}
	if !existed {
		h.writeError(w, http.StatusNotFound, "no active conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCount handles GET /chat/conversations/count.
func (h *Handler) GetCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ActiveCount(r.Context())
	if err != nil {
		h.logger.Error("active count failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not count conversations")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"active_conversations": n})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
