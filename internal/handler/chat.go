package handler

import (
	"log/slog"
	"net/http"

	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/httputil"
)

// ChatHandler handles chat HTTP requests.
// Handlers only communicate with services, never repositories.
type ChatHandler struct {
	runService domainchat.RunService
	logger     *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(runService domainchat.RunService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		runService: runService,
		logger:     logger,
	}
}

// CreateChatRequest is the request body for creating a chat.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// CreateChat creates a new chat session
// POST /api/chats
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req CreateChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	chat, err := h.runService.CreateChat(r.Context(), userID, req.Title)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, chat)
}

// GetChatMessages retrieves a chat's history. If a run is still in
// progress, the response carries its id in active_run_id so the client
// can reconnect to the event stream.
// GET /api/chats/{id}/messages
func (h *ChatHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	history, err := h.runService.GetChatMessages(r.Context(), chatID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, history)
}

// HealthCheck reports liveness
// GET /health
func (h *ChatHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
