package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/loresmith/loresmith-be/types"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiService implements EmbeddingProvider and CompletionProvider on the
// Gemini API. It holds a pool of API keys and rotates to the next key when a
// call fails, which dodges per-key quota exhaustion on free-tier keys.
type GeminiService struct {
	apiKeys        []string
	currentKey     int
	client         *genai.Client
	modelName      string
	embeddingModel string
	dimension      int
	mu             sync.Mutex
}

func NewGeminiService(apiKeys []string, modelName, embeddingModel string, dimension int) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}

	service := &GeminiService{
		apiKeys:        apiKeys,
		currentKey:     0,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		dimension:      dimension,
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	if err := service.initClientLocked(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *GeminiService) initClientLocked() error {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	return nil
}

func (s *GeminiService) rotateAPIKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	if err := s.client.Close(); err != nil {
		return err
	}
	return s.initClientLocked()
}

func (s *GeminiService) currentClient() *genai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *GeminiService) ModelName() string {
	return s.modelName
}

func (s *GeminiService) Dimension() int {
	return s.dimension
}

func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) (*types.EmbeddingResult, error) {
	resp, err := s.batchEmbed(ctx, texts)
	if err != nil {
		// Try the next key once before reporting the failure upstream.
		if rerr := s.rotateAPIKey(); rerr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingProviderError, rerr)
		}
		resp, err = s.batchEmbed(ctx, texts)
		if err != nil {
			return nil, classifyGeminiEmbeddingError(err)
		}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrEmbeddingProviderError, len(texts), len(resp.Embeddings))
	}

	// Batch results come back in request order; the index is ours to assign.
	items := make([]types.EmbeddingItem, 0, len(resp.Embeddings))
	for i, embedding := range resp.Embeddings {
		items = append(items, types.EmbeddingItem{
			Index:  i,
			Vector: embedding.Values,
		})
	}
	return &types.EmbeddingResult{Items: items}, nil
}

func (s *GeminiService) batchEmbed(ctx context.Context, texts []string) (*genai.BatchEmbedContentsResponse, error) {
	em := s.currentClient().EmbeddingModel(s.embeddingModel)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	return em.BatchEmbedContents(ctx, batch)
}

func (s *GeminiService) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error) {
	chat, prompt, err := s.newChat(req)
	if err != nil {
		return nil, err
	}

	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		if rerr := s.rotateAPIKey(); rerr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCompletionProviderError, rerr)
		}
		chat, prompt, _ = s.newChat(req)
		resp, err = chat.SendMessage(ctx, genai.Text(prompt))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCompletionProviderError, err)
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no response generated", types.ErrCompletionProviderError)
	}

	result := &types.CompletionResult{Text: geminiResponseText(resp)}
	applyGeminiUsage(result, resp.UsageMetadata)
	return result, nil
}

func (s *GeminiService) CompleteStream(ctx context.Context, req *types.CompletionRequest, handler types.StreamHandler) (*types.CompletionResult, error) {
	chat, prompt, err := s.newChat(req)
	if err != nil {
		return nil, err
	}

	result := &types.CompletionResult{}
	iter := chat.SendMessageStream(ctx, genai.Text(prompt))
	rotated := false
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return result, nil
		}
		if err != nil {
			// Restarting a stream replays content, so only rotate keys
			// while nothing has been emitted yet.
			if result.Text == "" && !rotated {
				rotated = true
				if rerr := s.rotateAPIKey(); rerr == nil {
					chat, prompt, _ = s.newChat(req)
					iter = chat.SendMessageStream(ctx, genai.Text(prompt))
					continue
				}
			}
			return result, fmt.Errorf("%w: %v", types.ErrCompletionProviderError, err)
		}

		applyGeminiUsage(result, resp.UsageMetadata)
		text := geminiResponseText(resp)
		if text == "" {
			continue
		}
		result.Text += text
		handler(text)
	}
}

// newChat builds a fresh chat session. Sessions are per call because the
// underlying model is rebuilt whenever the API key rotates.
func (s *GeminiService) newChat(req *types.CompletionRequest) (*genai.ChatSession, string, error) {
	if len(req.Messages) == 0 {
		return nil, "", fmt.Errorf("%w: empty message list", types.ErrCompletionProviderError)
	}

	model := s.currentClient().GenerativeModel(s.modelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	history := make([]*genai.Content, 0, len(req.Messages)-1)
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if msg.Role == types.MessageRoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  role,
		})
	}

	chat := model.StartChat()
	chat.History = history
	return chat, req.Messages[len(req.Messages)-1].Content, nil
}

func geminiResponseText(resp *genai.GenerateContentResponse) string {
	content := ""
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content += string(text)
			}
		}
	}
	return content
}

func applyGeminiUsage(result *types.CompletionResult, usage *genai.UsageMetadata) {
	if usage == nil {
		return
	}
	result.PromptTokens = int(usage.PromptTokenCount)
	result.CompletionTokens = int(usage.CandidatesTokenCount)
}

func classifyGeminiEmbeddingError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
	}
	return fmt.Errorf("%w: %v", types.ErrEmbeddingProviderError, err)
}
