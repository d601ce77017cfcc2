package entities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/soundprediction/go-gline-rs/pkg/gline"
	"go.uber.org/zap"
)

// SpanModel is the part of a GLiNER model the extractor uses.
type SpanModel interface {
	Predict(text string, labels []string) ([]Span, error)
	Close()
}

// ModelLoader acquires a span model for a HF model id or local directory.
type ModelLoader func(model string) (SpanModel, error)

// GlinerExtractor runs a GLiNER span model in process. The model is acquired
// on first use; concurrent first callers block on a single acquisition, and a
// failed acquisition is attempted again by the next call.
type GlinerExtractor struct {
	model     string
	labels    []string
	threshold float64
	load      ModelLoader
	logger    *zap.Logger

	mu   sync.Mutex
	span SpanModel
}

// NewGlinerExtractor creates an extractor for model predicting labels.
// A nil loader uses the go-gline-rs runtime.
func NewGlinerExtractor(model string, labels []string, threshold float64, load ModelLoader, logger *zap.Logger) *GlinerExtractor {
	if load == nil {
		load = loadGlineModel
	}
	return &GlinerExtractor{
		model:     model,
		labels:    labels,
		threshold: threshold,
		load:      load,
		logger:    logger,
	}
}

// Extract implements Extractor
func (g *GlinerExtractor) Extract(ctx context.Context, text string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.acquire(); err != nil {
		return nil, err
	}

	spans, err := g.span.Predict(text, g.labels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return Collapse(spans, g.threshold), nil
}

// Warm acquires the model ahead of the first request.
func (g *GlinerExtractor) Warm() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquire()
}

// acquire must be called with mu held
func (g *GlinerExtractor) acquire() error {
	if g.span != nil {
		return nil
	}

	g.logger.Info("acquiring recognition model", zap.String("model", g.model))
	m, err := g.load(g.model)
	if err != nil {
		g.logger.Error("failed to acquire recognition model",
			zap.String("model", g.model),
			zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, g.model, err)
	}

	g.span = m
	g.logger.Info("recognition model ready", zap.String("model", g.model))
	return nil
}

// Close releases the model
func (g *GlinerExtractor) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.span != nil {
		g.span.Close()
		g.span = nil
	}
}

var glineInit = sync.OnceValue(gline.Init)

type glineModel struct {
	m *gline.Model
}

// loadGlineModel loads model.onnx and tokenizer.json from a local directory,
// or downloads them from the Hugging Face hub.
func loadGlineModel(model string) (SpanModel, error) {
	if err := glineInit(); err != nil {
		return nil, fmt.Errorf("failed to init gline: %w", err)
	}

	if _, err := os.Stat(model); err == nil {
		m, err := gline.NewSpanModel(filepath.Join(model, "model.onnx"), filepath.Join(model, "tokenizer.json"))
		if err != nil {
			return nil, err
		}
		return &glineModel{m: m}, nil
	}

	m, err := gline.NewSpanModelFromHF(model)
	if err != nil {
		return nil, err
	}
	return &glineModel{m: m}, nil
}

func (g *glineModel) Predict(text string, labels []string) ([]Span, error) {
	results, err := g.m.Predict([]string{text}, labels)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	spans := make([]Span, 0, len(results[0]))
	for _, e := range results[0] {
		spans = append(spans, Span{
			Text:  e.Text,
			Label: e.Label,
			Score: float64(e.Probability),
		})
	}
	return spans, nil
}

func (g *glineModel) Close() {
	g.m.Close()
}
