/*
Copyright © 2025 loresmith
*/
package cmd

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/loresmith/loresmith-be/config"
	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/handler"
	"github.com/loresmith/loresmith-be/logger"
	"github.com/loresmith/loresmith-be/queue"
	"github.com/loresmith/loresmith-be/repository"
	"github.com/loresmith/loresmith-be/service"
	"github.com/loresmith/loresmith-be/types"
)

const shutdownTimeout = 10 * time.Second

// startServerCmd represents the start command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	Long:  `Starts the HTTP server: document upload and ingestion, hybrid search, and grounded question answering over REST and WebSocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		logg := logger.New(logger.ParseLevel(cfg.LogLevel))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipe, err := buildPipeline(cfg, logg)
		if err != nil {
			log.Fatalf("Failed to build ingestion pipeline: %v", err)
		}
		defer pipe.Close()

		mongoClient, err := database.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())

		queryLogs, err := repository.NewQueryLogRepo(mongoClient.Database(cfg.MongoDatabase))
		if err != nil {
			log.Fatalf("Failed to init query log repository: %v", err)
		}

		// Query-side services
		retrieval := service.NewRetrievalService(pipe.embedder, pipe.chunks, cfg.Pipeline.SearchTopK, logg)
		answers := service.NewAnswerService(retrieval, pipe.completions, queryLogs, logg)
		wsService := service.NewWebSocketService(answers, logg)

		// Background ingestion
		jobs := queue.NewInMemoryQueue(cfg.Pipeline.QueueSize)
		pool := queue.NewPool(cfg.Pipeline.WorkerCount, jobs, pipe.ingest, logg)
		pool.Start(ctx)
		requeueUnfinished(ctx, pipe.resources, jobs, logg)

		// Handlers
		corsHandler := handler.NewCorsHandler()
		uploadHandler := handler.NewUploadHandler(pipe.files, pipe.resources, jobs, logg)
		resourceHandler := handler.NewResourceHandler(pipe.resources, pipe.chunks, logg)
		documentHandler := handler.NewDocumentHandler(pipe.resources, pipe.files, logg)
		searchHandler := handler.NewSearchHandler(retrieval, logg)
		queryHandler := handler.NewQueryHandler(answers, logg)
		feedbackHandler := handler.NewFeedbackHandler(queryLogs, logg)
		healthHandler := handler.NewHealthHandler(pipe.pg, mongoClient)

		router := chi.NewRouter()
		router.Use(corsHandler.Middleware)
		router.Get("/healthz", healthHandler.HandleHealth())
		router.Route("/api/v1", func(r chi.Router) {
			r.Post("/resources", uploadHandler.HandleUpload())
			r.Get("/resources/{id}", resourceHandler.HandleGetResource())
			r.Get("/resources/{id}/file", documentHandler.HandleServeDocument())
			r.Get("/collections/{collectionID}/resources", resourceHandler.HandleListResources())
			r.Get("/collections/{collectionID}/queries", feedbackHandler.HandleListQueryLogs())
			r.Post("/search", searchHandler.HandleSearch())
			r.Post("/query", queryHandler.HandleQuery())
			r.Get("/query/stream", wsService.HandleQuery)
			r.Get("/queries/{id}", feedbackHandler.HandleGetQueryLog())
			r.Post("/queries/{id}/feedback", feedbackHandler.HandleSubmitFeedback())
		})

		server := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: router,
		}
		go func() {
			logg.Info("server listening", "port", cfg.Port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error("server error", "error", err)
				stop()
			}
		}()

		<-ctx.Done()
		logg.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error("server shutdown failed", "error", err)
		}
		jobs.Close()
		pool.Wait()
	},
}

// requeueUnfinished re-enqueues resources that never reached a terminal
// status, typically because a previous process died mid-ingest. Processing
// is idempotent, so redelivering them is safe.
func requeueUnfinished(ctx context.Context, resources *database.ResourceDBStore, jobs queue.JobQueue, logg *slog.Logger) {
	unfinished, err := resources.ListResourcesByStatus(ctx, types.ResourceStatusPending, types.ResourceStatusProcessing)
	if err != nil {
		logg.Error("failed to list unfinished resources", "error", err)
		return
	}
	for _, resource := range unfinished {
		storedPath, _ := resource.Metadata["stored_path"].(string)
		if storedPath == "" {
			logg.Warn("unfinished resource has no stored file, skipping",
				"resource_id", resource.ID.String())
			continue
		}
		job := types.IngestJob{
			ResourceID:   resource.ID,
			CollectionID: resource.CollectionID,
			FilePath:     storedPath,
		}
		if err := jobs.Enqueue(ctx, job); err != nil {
			logg.Error("failed to requeue resource", "resource_id", resource.ID.String(), "error", err)
			return
		}
		logg.Info("requeued unfinished resource",
			"resource_id", resource.ID.String(),
			"status", resource.Status)
	}
}

func init() {
	rootCmd.AddCommand(startServerCmd)
}
