package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/internal/resilience"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an embedder from embedding settings.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	model := string(e.model)
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	observability.EmbeddingRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.EmbeddingRequestsTotal.WithLabelValues(model, "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		observability.EmbeddingRequestsTotal.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs: %w", ErrEmptyResponse, len(resp.Data), len(texts), ErrProvider)
	}

	observability.EmbeddingRequestsTotal.WithLabelValues(model, "success").Inc()
	if resp.Usage.PromptTokens > 0 {
		observability.EmbeddingTokensTotal.WithLabelValues(model).Add(float64(resp.Usage.PromptTokens))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}

	e.logger.Debug("embedding request completed",
		zap.String("model", model),
		zap.Int("inputs", len(texts)),
		zap.Int("dimensions", len(out[0])),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// parseAPIError wraps provider failures with ErrProvider. Client errors other
// than rate limiting are marked permanent so they are not retried.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		wrapped := fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, ErrProvider)
		return classify(reqErr.HTTPStatusCode, wrapped)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrProvider)
		return classify(apiErr.HTTPStatusCode, wrapped)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("embedding request failed: %v: %w", err, ErrProvider)
}

func classify(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return resilience.Permanent(err)
	}
	return err
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
