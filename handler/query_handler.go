package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/loresmith/loresmith-be/service"
	"github.com/loresmith/loresmith-be/types"
)

type QueryHandler struct {
	answers *service.AnswerService
	logger  *slog.Logger
}

func NewQueryHandler(answers *service.AnswerService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		answers: answers,
		logger:  logger,
	}
}

// HandleQuery answers a question synchronously: retrieval, generation and
// query logging all complete before the response is written.
func (h *QueryHandler) HandleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.CollectionID == uuid.Nil {
			sendError(w, "collection_id is required", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			sendError(w, "question is required", http.StatusBadRequest)
			return
		}

		answer, err := h.answers.Answer(r.Context(), &req)
		if err != nil {
			h.logger.Error("query failed",
				"collection_id", req.CollectionID.String(),
				"error", err)
			sendError(w, err.Error(), statusForError(err))
			return
		}
		sendData(w, answer)
	}
}
