package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/loresmith/loresmith-be/types"
	"github.com/sashabaranov/go-openai"
)

// OpenAIService implements EmbeddingProvider and CompletionProvider against
// any OpenAI-compatible endpoint, including self-hosted servers that speak
// the same wire format.
type OpenAIService struct {
	client         *openai.Client
	model          string
	embeddingModel string
	dimension      int
}

func NewOpenAIService(baseURL, apiKey, model, embeddingModel string, dimension int) *OpenAIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL // Set this to your local LLM server URL
	}
	client := openai.NewClientWithConfig(config)
	return &OpenAIService{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		dimension:      dimension,
	}
}

func (s *OpenAIService) ModelName() string {
	return s.model
}

func (s *OpenAIService) Dimension() int {
	return s.dimension
}

func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) (*types.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.embeddingModel),
	}
	if s.dimension > 0 {
		req.Dimensions = s.dimension
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyEmbeddingError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrEmbeddingProviderError, len(texts), len(resp.Data))
	}

	items := make([]types.EmbeddingItem, 0, len(resp.Data))
	for _, data := range resp.Data {
		items = append(items, types.EmbeddingItem{
			Index:  data.Index,
			Vector: data.Embedding,
		})
	}
	return &types.EmbeddingResult{
		Items:        items,
		PromptTokens: resp.Usage.PromptTokens,
	}, nil
}

func (s *OpenAIService) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error) {
	resp, err := s.client.CreateChatCompletion(ctx, s.chatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCompletionProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response generated", types.ErrCompletionProviderError)
	}

	return &types.CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (s *OpenAIService) CompleteStream(ctx context.Context, req *types.CompletionRequest, handler types.StreamHandler) (*types.CompletionResult, error) {
	chatReq := s.chatRequest(req)
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := s.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCompletionProviderError, err)
	}
	defer stream.Close()

	result := &types.CompletionResult{}
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return result, fmt.Errorf("%w: %v", types.ErrCompletionProviderError, err)
		}
		// The final usage frame arrives with an empty choice list.
		if resp.Usage != nil {
			result.PromptTokens = resp.Usage.PromptTokens
			result.CompletionTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		result.Text += delta
		handler(delta)
	}
}

func (s *OpenAIService) chatRequest(req *types.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == types.MessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Messages:    messages,
		Model:       s.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func classifyEmbeddingError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
	}
	return fmt.Errorf("%w: %v", types.ErrEmbeddingProviderError, err)
}
