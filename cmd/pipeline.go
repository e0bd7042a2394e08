/*
Copyright © 2025 loresmith
*/
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/loresmith/loresmith-be/config"
	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/service"
	"github.com/loresmith/loresmith-be/utils"
)

// pipeline bundles the ingestion side of the application: everything needed
// to take an uploaded file to embedded chunks. The server and the CLI ingest
// commands share it.
type pipeline struct {
	pg        *database.Postgres
	resources *database.ResourceDBStore
	chunks    *database.ChunkDBStore
	files     *service.FileService
	embedder  *service.EmbedService
	ingest    *service.IngestService

	embeddings  service.EmbeddingProvider
	completions service.CompletionProvider
}

func buildPipeline(cfg *config.Config, logg *slog.Logger) (*pipeline, error) {
	pg, err := database.NewPostgres(cfg.PostgresURL, cfg.EmbeddingDimension)
	if err != nil {
		return nil, err
	}
	resources, err := database.NewResourceDBStore(pg)
	if err != nil {
		pg.Close()
		return nil, err
	}
	chunks, err := database.NewChunkDBStore(pg)
	if err != nil {
		pg.Close()
		return nil, err
	}

	embeddings, completions, err := buildProviders(cfg)
	if err != nil {
		pg.Close()
		return nil, err
	}

	files, err := service.NewFileService(cfg.UploadDir)
	if err != nil {
		pg.Close()
		return nil, err
	}

	extract := service.NewExtractService(logg)
	segmenter := service.NewSegmentService()
	chunker := service.NewChunkService(cfg.Pipeline.Chunk, tokenCounter(logg), segmenter)
	embedder := service.NewEmbedService(embeddings, chunks, cfg.Pipeline.EmbedBatchSize, cfg.CostPerMillion, logg)
	ingest := service.NewIngestService(extract, chunker, embedder, resources, chunks, logg)

	return &pipeline{
		pg:          pg,
		resources:   resources,
		chunks:      chunks,
		files:       files,
		embedder:    embedder,
		ingest:      ingest,
		embeddings:  embeddings,
		completions: completions,
	}, nil
}

func (p *pipeline) Close() {
	p.pg.Close()
}

func buildProviders(cfg *config.Config) (service.EmbeddingProvider, service.CompletionProvider, error) {
	switch cfg.AIProvider {
	case "gemini":
		keys := strings.Split(cfg.GeminiAPIKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		svc, err := service.NewGeminiService(keys, cfg.Model, cfg.EmbeddingModel, cfg.EmbeddingDimension)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init gemini provider: %w", err)
		}
		return svc, svc, nil
	case "", "openai":
		svc := service.NewOpenAIService(cfg.AIEndpoint, cfg.OpenAIAPIKey, cfg.Model, cfg.EmbeddingModel, cfg.EmbeddingDimension)
		return svc, svc, nil
	default:
		return nil, nil, fmt.Errorf("unknown ai provider %q", cfg.AIProvider)
	}
}

// tokenCounter prefers the exact tokenizer, since chunk bounds are defined
// in its units. The chars/4 estimate only covers environments where the BPE
// data cannot be loaded.
func tokenCounter(logg *slog.Logger) utils.TokenCounter {
	counter, err := utils.NewTiktokenCounter()
	if err != nil {
		logg.Warn("tiktoken unavailable, falling back to approximate token counts", "error", err)
		return utils.ApproxCounter{}
	}
	return counter
}
