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

type SearchHandler struct {
	retrieval *service.RetrievalService
	logger    *slog.Logger
}

func NewSearchHandler(retrieval *service.RetrievalService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		retrieval: retrieval,
		logger:    logger,
	}
}

// HandleSearch runs hybrid retrieval without answer generation. Useful for
// debugging what a query would ground on.
func (h *SearchHandler) HandleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.CollectionID == uuid.Nil {
			sendError(w, "collection_id is required", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			sendData(w, types.SearchResponse{Chunks: []types.ScoredChunk{}})
			return
		}

		chunks, err := h.retrieval.HybridSearch(r.Context(), req)
		if err != nil {
			h.logger.Error("search failed",
				"collection_id", req.CollectionID.String(),
				"error", err)
			sendError(w, "search failed: "+err.Error(), statusForError(err))
			return
		}
		if chunks == nil {
			chunks = []types.ScoredChunk{}
		}
		sendData(w, types.SearchResponse{Chunks: chunks})
	}
}
