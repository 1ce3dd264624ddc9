package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/handler/sse"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/httputil"
)

// RunHandler handles agent run HTTP requests: starting a run and
// re-attaching to its event stream.
type RunHandler struct {
	runService domainchat.RunService
	sseConfig  *sse.Config
	logger     *slog.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runService domainchat.RunService, sseConfig *sse.Config, logger *slog.Logger) *RunHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &RunHandler{
		runService: runService,
		sseConfig:  sseConfig,
		logger:     logger,
	}
}

// StartRunRequest is the request body for starting a run.
type StartRunRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// StartRun starts an agent run and streams its events via SSE. The run
// id is returned in the X-Run-Id header before the first event, so the
// client can reconnect to GET /api/runs/{id}/stream if the connection
// drops mid-run.
// POST /api/chats/{id}/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	var req StartRunRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.runService.StartRun(r.Context(), &domainchat.StartRunRequest{
		ChatID:  chatID,
		UserID:  httputil.GetUserID(r),
		Message: req.Message,
		Model:   req.Model,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("X-Run-Id", resp.Run.ID)
	writer.Flush()

	h.logger.Info("run started",
		"run_id", resp.Run.ID,
		"chat_id", chatID,
		"user_message_id", resp.UserMessage.ID,
	)

	h.streamChunks(r, resp.Run.ID, resp.Stream, writer)
}

// StreamRun re-attaches to a run's event stream, replaying from
// startIndex and then following live output. Completed runs replay
// from the durable event log.
// GET /api/runs/{id}/stream?startIndex=N
func (h *RunHandler) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := PathParam(w, r, "id", "Run ID")
	if !ok {
		return
	}

	startIndex := 0
	if raw := r.URL.Query().Get("startIndex"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "startIndex must be an integer")
			return
		}
		startIndex = parsed
	}

	stream, err := h.runService.Resume(r.Context(), runID, startIndex)
	if err != nil {
		handleError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("X-Run-Id", runID)
	writer.Flush()

	h.logger.Debug("run stream attached", "run_id", runID, "start_index", startIndex)

	h.streamChunks(r, runID, stream, writer)
}

// streamChunks forwards chunks to the client until the stream ends or
// the client disconnects. Keep-alive comments go out between chunks to
// survive idle proxies. Client disconnect does not cancel the run: the
// loop keeps executing on its own context and the client reconnects via
// StreamRun.
func (h *RunHandler) streamChunks(
	r *http.Request,
	runID string,
	stream <-chan chatModels.Chunk,
	writer *sse.Writer,
) {
	ticker := time.NewTicker(h.sseConfig.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				h.logger.Debug("run stream complete", "run_id", runID)
				return
			}
			if err := writer.WriteChunk(chunk); err != nil {
				h.logger.Info("client disconnected during event write",
					"run_id", runID,
					"error", err,
				)
				return
			}

		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				h.logger.Info("client disconnected during keepalive",
					"run_id", runID,
					"error", err,
				)
				return
			}

		case <-r.Context().Done():
			h.logger.Debug("client context done", "run_id", runID)
			return
		}
	}
}
