package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
)

type ResourceHandler struct {
	resources database.ResourceStore
	chunks    database.ChunkStore
	logger    *slog.Logger
}

func NewResourceHandler(resources database.ResourceStore, chunks database.ChunkStore, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{
		resources: resources,
		chunks:    chunks,
		logger:    logger,
	}
}

// HandleGetResource reports ingestion progress for one resource.
func (h *ResourceHandler) HandleGetResource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			sendError(w, "invalid resource id", http.StatusBadRequest)
			return
		}

		resource, err := h.resources.GetResource(r.Context(), id)
		if err != nil {
			sendError(w, err.Error(), statusForError(err))
			return
		}
		chunkCount, err := h.chunks.CountChunks(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to count chunks", "resource_id", id.String(), "error", err)
			sendError(w, "failed to load resource", http.StatusInternalServerError)
			return
		}

		sendData(w, types.ResourceStatusResponse{
			ID:           resource.ID.String(),
			CollectionID: resource.CollectionID.String(),
			Filename:     resource.Filename,
			Status:       resource.Status,
			PageCount:    resource.PageCount,
			ChunkCount:   chunkCount,
			ErrorMessage: resource.ErrorMessage,
			Metadata:     resource.Metadata,
		})
	}
}

// HandleListResources lists every resource in a collection.
func (h *ResourceHandler) HandleListResources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collectionID, err := uuid.Parse(chi.URLParam(r, "collectionID"))
		if err != nil {
			sendError(w, "invalid collection id", http.StatusBadRequest)
			return
		}

		resources, err := h.resources.ListResources(r.Context(), collectionID)
		if err != nil {
			h.logger.Error("failed to list resources", "collection_id", collectionID.String(), "error", err)
			sendError(w, "failed to list resources", http.StatusInternalServerError)
			return
		}
		if resources == nil {
			resources = []*types.Resource{}
		}
		sendData(w, resources)
	}
}
