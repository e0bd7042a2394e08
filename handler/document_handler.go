package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/service"
)

var documentContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
}

type DocumentHandler struct {
	resources database.ResourceStore
	files     *service.FileService
	logger    *slog.Logger
}

func NewDocumentHandler(resources database.ResourceStore, files *service.FileService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		resources: resources,
		files:     files,
		logger:    logger,
	}
}

// HandleServeDocument streams the original uploaded file for a resource.
func (h *DocumentHandler) HandleServeDocument() http.HandlerFunc {
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

		storedPath, _ := resource.Metadata["stored_path"].(string)
		if storedPath == "" {
			sendError(w, "resource has no stored file", http.StatusNotFound)
			return
		}

		f, err := h.files.Open(storedPath)
		if err != nil {
			h.logger.Error("failed to open stored file",
				"resource_id", id.String(),
				"path", storedPath,
				"error", err)
			sendError(w, "stored file unavailable", http.StatusNotFound)
			return
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			sendError(w, "stored file unavailable", http.StatusInternalServerError)
			return
		}

		ext := strings.ToLower(filepath.Ext(resource.Filename))
		contentType := documentContentTypes[ext]
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", resource.Filename))
		http.ServeContent(w, r, resource.Filename, stat.ModTime(), f)
	}
}
