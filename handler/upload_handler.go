package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/queue"
	"github.com/loresmith/loresmith-be/service"
	"github.com/loresmith/loresmith-be/types"
)

const maxUploadSize = 50 << 20

type UploadHandler struct {
	files     *service.FileService
	resources database.ResourceStore
	jobs      queue.JobQueue
	logger    *slog.Logger
}

func NewUploadHandler(files *service.FileService, resources database.ResourceStore, jobs queue.JobQueue, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		files:     files,
		resources: resources,
		jobs:      jobs,
		logger:    logger,
	}
}

// HandleUpload accepts a multipart document upload, registers the resource
// as pending and queues it for ingestion. Processing happens asynchronously;
// the response only acknowledges receipt.
func (h *UploadHandler) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			sendError(w, "file too large or malformed form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			sendError(w, "file field is required", http.StatusBadRequest)
			return
		}
		file.Close()

		collectionID, err := uuid.Parse(r.FormValue("collection_id"))
		if err != nil {
			sendError(w, "collection_id is required", http.StatusBadRequest)
			return
		}

		var tags []string
		if raw := r.FormValue("tags"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &tags); err != nil {
				sendError(w, "tags must be a JSON string array", http.StatusBadRequest)
				return
			}
		}

		storedPath, err := h.files.SaveUpload(header)
		if err != nil {
			if errors.Is(err, types.ErrFormatUnsupported) {
				sendError(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.logger.Error("failed to store upload", "filename", header.Filename, "error", err)
			sendError(w, "failed to store file", http.StatusInternalServerError)
			return
		}

		resource := &types.Resource{
			ID:           uuid.New(),
			CollectionID: collectionID,
			Filename:     header.Filename,
			Status:       types.ResourceStatusPending,
			Metadata: types.ResourceMetadata{
				"stored_path": storedPath,
			},
		}
		if len(tags) > 0 {
			resource.Metadata["tags"] = tags
		}
		if err := h.resources.CreateResource(r.Context(), resource); err != nil {
			h.logger.Error("failed to create resource", "filename", header.Filename, "error", err)
			sendError(w, "failed to register resource", http.StatusInternalServerError)
			return
		}

		job := types.IngestJob{
			ResourceID:   resource.ID,
			CollectionID: collectionID,
			FilePath:     storedPath,
		}
		if err := h.jobs.Enqueue(r.Context(), job); err != nil {
			h.logger.Error("failed to enqueue ingest job", "resource_id", resource.ID.String(), "error", err)
			if statusErr := h.resources.UpdateStatus(r.Context(), resource.ID, types.ResourceStatusFailed, "could not queue for processing"); statusErr != nil {
				h.logger.Error("failed to mark resource failed", "resource_id", resource.ID.String(), "error", statusErr)
			}
			sendError(w, "ingestion queue unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(types.DataResponse{
			Status: true,
			Data: types.UploadResponse{
				ID:       resource.ID.String(),
				Filename: resource.Filename,
				Status:   resource.Status,
			},
		})
	}
}
