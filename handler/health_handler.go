package handler

import (
	"net/http"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/loresmith/loresmith-be/database"
)

type HealthHandler struct {
	pg    *database.Postgres
	mongo *mongo.Client
}

func NewHealthHandler(pg *database.Postgres, mongoClient *mongo.Client) *HealthHandler {
	return &HealthHandler{
		pg:    pg,
		mongo: mongoClient,
	}
}

// HandleHealth reports liveness of both datastores.
func (h *HealthHandler) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.pg.DB.PingContext(r.Context()); err != nil {
			sendError(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := h.mongo.Ping(r.Context(), readpref.Primary()); err != nil {
			sendError(w, "mongodb unavailable", http.StatusServiceUnavailable)
			return
		}
		sendData(w, map[string]string{"status": "ok"})
	}
}
