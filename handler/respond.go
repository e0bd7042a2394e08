package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
)

func sendData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(types.DataResponse{
		Status: true,
		Data:   data,
	})
}

func sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.DataResponse{
		Status:  false,
		Message: message,
	})
}

// statusForError maps service errors to HTTP statuses. Unknown errors are
// internal.
func statusForError(err error) int {
	switch {
	case errors.Is(err, database.ErrResourceNotFound), errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound
	case errors.Is(err, types.ErrFormatUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrCompletionProviderError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
