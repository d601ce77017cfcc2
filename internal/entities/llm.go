package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/config"
)

// LLMExtractor asks a chat model for entities in JSON mode.
type LLMExtractor struct {
	client    llms.Model
	labels    []string
	threshold float64
	logger    *zap.Logger
}

type llmEntity struct {
	Label      string  `json:"label"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type llmResponse struct {
	Entities []llmEntity `json:"entities"`
}

// NewLLMExtractor builds an extractor over an OpenAI-compatible chat endpoint
func NewLLMExtractor(cfg config.EntitiesConfig, logger *zap.Logger) (*LLMExtractor, error) {
	token := cfg.LLMAPIKey
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.LLMBaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.LLMModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewLLMExtractorWithModel(client, cfg.Labels, cfg.Threshold, logger), nil
}

// NewLLMExtractorWithModel wraps an existing llms.Model
func NewLLMExtractorWithModel(client llms.Model, labels []string, threshold float64, logger *zap.Logger) *LLMExtractor {
	return &LLMExtractor{client: client, labels: labels, threshold: threshold, logger: logger}
}

func (e *LLMExtractor) systemPrompt() string {
	var b strings.Builder
	b.WriteString("Extract named entities from the user's search query.\n")
	if len(e.labels) > 0 {
		b.WriteString("Only use these labels: ")
		b.WriteString(strings.Join(e.labels, ", "))
		b.WriteString(".\n")
	}
	b.WriteString(`Respond with JSON only: {"entities":[{"label":"...","text":"...","confidence":0.0}]}. `)
	b.WriteString("text must be copied verbatim from the query. Return an empty list when nothing matches.")
	return b.String()
}

// Extract implements Extractor
func (e *LLMExtractor) Extract(ctx context.Context, text string) (map[string]string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, e.systemPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	resp, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if len(resp.Choices) == 0 {
		e.logger.Debug("no choices returned from model")
		return map[string]string{}, nil
	}

	raw := stripCodeFence(resp.Choices[0].Content)
	var parsed llmResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		e.logger.Warn("unparseable entity response", zap.String("response", raw), zap.Error(err))
		return nil, fmt.Errorf("%w: malformed response: %v", ErrExtraction, err)
	}

	allowed := make(map[string]bool, len(e.labels))
	for _, l := range e.labels {
		allowed[l] = true
	}

	spans := make([]Span, 0, len(parsed.Entities))
	for _, ent := range parsed.Entities {
		if len(allowed) > 0 && !allowed[ent.Label] {
			continue
		}
		score := ent.Confidence
		if score == 0 {
			score = 1
		}
		spans = append(spans, Span{Text: ent.Text, Label: ent.Label, Score: score})
	}
	return Collapse(spans, e.threshold), nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
