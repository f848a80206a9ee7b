// Package answer synthesizes natural-language answers from retrieved chunks.
package answer

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/models"
	"github.com/climateintel/greenhouse/internal/retrieval"
	"github.com/climateintel/greenhouse/pkg/utils"
)

// DefaultMaxResults bounds retrieval when the request does not specify one.
const DefaultMaxResults = 5

const noAnswerMessage = "I couldn't find any relevant information in the knowledge base for your question."

const systemPrompt = "You are a climate policy expert. Provide accurate, well-sourced answers based on the provided documents."

// Service answers questions over the retrieval coordinator. With an OpenAI
// client configured it synthesizes answers via chat completion; without one
// (or when the API call fails) it falls back to an extractive answer built
// from the top chunk.
type Service struct {
	coordinator *retrieval.Coordinator
	client      *openai.Client
	model       string
	logger      *zap.Logger
}

// NewService creates an answer service. apiKey may be empty, which disables
// LLM synthesis and uses the extractive fallback.
func NewService(coordinator *retrieval.Coordinator, apiKey, model string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &Service{
		coordinator: coordinator,
		client:      client,
		model:       model,
		logger:      logger,
	}
}

// Answer retrieves the top maxResults chunks for question and builds a
// response. Retrieval failures are logged and reported to the caller as an
// empty answer with zero confidence, never as an error: the end user sees "no
// relevant information" rather than an internal failure.
func (s *Service) Answer(ctx context.Context, question string, maxResults int) *models.QueryResponse {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	results, err := s.coordinator.Retrieve(ctx, question, maxResults)
	if err != nil {
		s.logger.Error("retrieval failed", zap.String("question", question), zap.Error(err))
		return &models.QueryResponse{Answer: noAnswerMessage, Sources: []models.DocumentSource{}}
	}
	if len(results) == 0 {
		return &models.QueryResponse{Answer: noAnswerMessage, Sources: []models.DocumentSource{}}
	}

	sources := make([]models.DocumentSource, len(results))
	for i, r := range results {
		sources[i] = models.DocumentSource{
			Filename:       r.Chunk.Filename(),
			RelevanceScore: r.Score,
		}
	}
	return &models.QueryResponse{
		Answer:          s.synthesize(ctx, question, results),
		Sources:         sources,
		ConfidenceScore: retrieval.Confidence(results),
	}
}

func (s *Service) synthesize(ctx context.Context, question string, results []models.SearchResult) string {
	if s.client == nil {
		return extractiveAnswer(results)
	}
	answer, err := s.completeChat(ctx, question, results)
	if err != nil {
		s.logger.Warn("chat completion failed, using extractive answer", zap.Error(err))
		return extractiveAnswer(results)
	}
	return answer
}

func (s *Service) completeChat(ctx context.Context, question string, results []models.SearchResult) (string, error) {
	n := len(results)
	if n > 3 {
		n = 3
	}
	var b strings.Builder
	for i, r := range results[:n] {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Document: %s\n%s", r.Chunk.Filename(), utils.Truncate(r.Chunk.Text, 1000))
	}
	prompt := fmt.Sprintf(`Based on the following climate policy documents, please answer the question.

Context:
%s

Question: %s

Please provide a comprehensive answer based on the provided context. If the context doesn't contain enough information to fully answer the question, please state that clearly.

Answer:`, b.String(), question)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// extractiveAnswer builds an answer directly from the top chunk.
func extractiveAnswer(results []models.SearchResult) string {
	top := results[0]
	answer := fmt.Sprintf("Based on the document '%s', here's relevant information:\n\n%s",
		top.Chunk.Filename(), utils.Truncate(top.Chunk.Text, 400))
	if len(results) > 1 {
		answer += fmt.Sprintf("\n\nAdditional relevant information was found in %d other documents.", len(results)-1)
	}
	return answer
}
