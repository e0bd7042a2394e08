package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing resource", database.ErrResourceNotFound, http.StatusNotFound},
		{"missing query log", mongo.ErrNoDocuments, http.StatusNotFound},
		{"unsupported format", types.ErrFormatUnsupported, http.StatusBadRequest},
		{"completion provider", types.ErrCompletionProviderError, http.StatusBadGateway},
		{"wrapped sentinel", fmt.Errorf("open upload: %w", types.ErrFormatUnsupported), http.StatusBadRequest},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}

func TestCorsMiddleware(t *testing.T) {
	mw := NewCorsHandler()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("Preflight short-circuits with CORS headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.Middleware(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil))

		require.Equal(t, http.StatusOK, rec.Code, "preflight never reaches the inner handler")
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("Other methods pass through with headers applied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.Middleware(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
