package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loresmith/loresmith-be/repository"
	"github.com/loresmith/loresmith-be/types"
)

const (
	defaultQueryLogLimit = 20
	maxQueryLogLimit     = 100
)

type FeedbackHandler struct {
	queryLogs repository.QueryLogRepo
	logger    *slog.Logger
}

func NewFeedbackHandler(queryLogs repository.QueryLogRepo, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		queryLogs: queryLogs,
		logger:    logger,
	}
}

// HandleSubmitFeedback attaches a rating to a logged query.
func (h *FeedbackHandler) HandleSubmitFeedback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queryID := chi.URLParam(r, "id")
		if _, err := uuid.Parse(queryID); err != nil {
			sendError(w, "invalid query id", http.StatusBadRequest)
			return
		}

		var req types.FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Rating < 1 || req.Rating > 5 {
			sendError(w, "rating must be between 1 and 5", http.StatusBadRequest)
			return
		}

		if err := h.queryLogs.UpdateFeedback(r.Context(), queryID, req.Rating, req.Comment); err != nil {
			sendError(w, err.Error(), statusForError(err))
			return
		}
		sendData(w, map[string]string{"query_id": queryID})
	}
}

// HandleGetQueryLog returns one logged query with its answer and sources.
func (h *FeedbackHandler) HandleGetQueryLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queryID := chi.URLParam(r, "id")
		if _, err := uuid.Parse(queryID); err != nil {
			sendError(w, "invalid query id", http.StatusBadRequest)
			return
		}

		queryLog, err := h.queryLogs.GetQueryLog(r.Context(), queryID)
		if err != nil {
			sendError(w, err.Error(), statusForError(err))
			return
		}
		sendData(w, queryLog)
	}
}

// HandleListQueryLogs pages through a collection's query history, newest
// first.
func (h *FeedbackHandler) HandleListQueryLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collectionID, err := uuid.Parse(chi.URLParam(r, "collectionID"))
		if err != nil {
			sendError(w, "invalid collection id", http.StatusBadRequest)
			return
		}

		limit := queryIntParam(r, "limit", defaultQueryLogLimit)
		if limit < 1 || limit > maxQueryLogLimit {
			limit = defaultQueryLogLimit
		}
		offset := queryIntParam(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		logs, err := h.queryLogs.ListQueryLogs(r.Context(), collectionID.String(), limit, offset)
		if err != nil {
			h.logger.Error("failed to list query logs",
				"collection_id", collectionID.String(),
				"error", err)
			sendError(w, "failed to list query logs", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []*types.QueryLog{}
		}
		sendData(w, logs)
	}
}

func queryIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
