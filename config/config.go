package config

import (
	"fmt"

	"github.com/loresmith/loresmith-be/types"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"port"`
	LogLevel      string `mapstructure:"log_level"`
	UploadDir     string `mapstructure:"upload_dir"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	MongoURI      string `mapstructure:"MONGODB_URI"`
	MongoDatabase string `mapstructure:"mongo_database"`

	AIProvider         string  `mapstructure:"ai_provider"`
	AIEndpoint         string  `mapstructure:"ai_endpoint"`
	OpenAIAPIKey       string  `mapstructure:"OPENAI_API_KEY"`
	GeminiAPIKeys      string  `mapstructure:"GEMINI_API_KEYS"`
	Model              string  `mapstructure:"model"`
	EmbeddingModel     string  `mapstructure:"embedding_model"`
	EmbeddingDimension int     `mapstructure:"embedding_dimension"`
	CostPerMillion     float64 `mapstructure:"cost_per_million_tokens"`

	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type PipelineConfig struct {
	Chunk          types.ChunkConfig `mapstructure:"chunk"`
	EmbedBatchSize int               `mapstructure:"embed_batch_size"`
	WorkerCount    int               `mapstructure:"worker_count"`
	QueueSize      int               `mapstructure:"queue_size"`
	SearchTopK     int               `mapstructure:"search_top_k"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set up Viper to read from config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("mongo_database", "loresmith")
	v.SetDefault("ai_provider", "openai")
	v.SetDefault("embedding_dimension", 1536)
	v.SetDefault("cost_per_million_tokens", 0.02)
	v.SetDefault("pipeline.chunk.min_tokens", types.DefaultChunkConfig.MinTokens)
	v.SetDefault("pipeline.chunk.max_tokens", types.DefaultChunkConfig.MaxTokens)
	v.SetDefault("pipeline.chunk.target_tokens", types.DefaultChunkConfig.TargetTokens)
	v.SetDefault("pipeline.chunk.overlap_tokens", types.DefaultChunkConfig.OverlapTokens)
	v.SetDefault("pipeline.embed_batch_size", 100)
	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.search_top_k", 10)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Bind environment variables
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("GEMINI_API_KEYS")
	v.BindEnv("POSTGRES_URL")
	v.BindEnv("MONGODB_URI")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
