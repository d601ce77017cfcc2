package entities

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/internal/resilience"
)

func TestCollapse(t *testing.T) {
	tests := []struct {
		name      string
		spans     []Span
		threshold float64
		want      map[string]string
	}{
		{
			name:  "empty",
			spans: nil,
			want:  map[string]string{},
		},
		{
			name: "highest score per label",
			spans: []Span{
				{Text: "Honda", Label: "make", Score: 0.7},
				{Text: "Toyota", Label: "make", Score: 0.9},
				{Text: "red", Label: "color", Score: 0.8},
			},
			want: map[string]string{"make": "Toyota", "color": "red"},
		},
		{
			name: "below threshold dropped",
			spans: []Span{
				{Text: "sedan", Label: "vehicle type", Score: 0.3},
				{Text: " Civic ", Label: "model", Score: 0.6},
			},
			threshold: 0.5,
			want:      map[string]string{"model": "Civic"},
		},
		{
			name:  "blank text ignored",
			spans: []Span{{Text: "  ", Label: "make", Score: 1}},
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Collapse(tt.spans, tt.threshold))
		})
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		query string
		found map[string]string
		want  string
	}{
		{"no entities", "red sedan", nil, "red sedan"},
		{"appends in label order", "cheap car", map[string]string{"model": "Civic", "make": "Honda"}, "cheap car Honda Civic"},
		{"skips text already present", "red honda", map[string]string{"make": "Honda", "color": "red"}, "red honda"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.query, tt.found))
		})
	}
}

type fakeSpanModel struct {
	spans  []Span
	err    error
	closed bool
}

func (f *fakeSpanModel) Predict(text string, labels []string) ([]Span, error) {
	return f.spans, f.err
}

func (f *fakeSpanModel) Close() { f.closed = true }

func TestGlinerExtractor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("model acquired once under concurrent first use", func(t *testing.T) {
		var loads atomic.Int32
		model := &fakeSpanModel{spans: []Span{{Text: "Toyota", Label: "make", Score: 0.9}}}
		loader := func(string) (SpanModel, error) {
			loads.Add(1)
			time.Sleep(10 * time.Millisecond)
			return model, nil
		}
		g := NewGlinerExtractor("urchade/gliner_small-v2.1", []string{"make"}, 0.5, loader, logger)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := g.Extract(context.Background(), "used Toyota")
				assert.NoError(t, err)
				assert.Equal(t, map[string]string{"make": "Toyota"}, got)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), loads.Load())
		g.Close()
		assert.True(t, model.closed)
	})

	t.Run("failed acquisition is attempted again", func(t *testing.T) {
		var loads atomic.Int32
		loader := func(string) (SpanModel, error) {
			if loads.Add(1) == 1 {
				return nil, errors.New("download interrupted")
			}
			return &fakeSpanModel{}, nil
		}
		g := NewGlinerExtractor("m", nil, 0, loader, logger)

		_, err := g.Extract(context.Background(), "x")
		assert.ErrorIs(t, err, ErrModelUnavailable)

		got, err := g.Extract(context.Background(), "x")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("prediction failure", func(t *testing.T) {
		loader := func(string) (SpanModel, error) {
			return &fakeSpanModel{err: errors.New("onnx runtime error")}, nil
		}
		g := NewGlinerExtractor("m", nil, 0, loader, logger)
		require.NoError(t, g.Warm())

		_, err := g.Extract(context.Background(), "x")
		assert.ErrorIs(t, err, ErrExtraction)
	})
}

type fakeLLM struct {
	content string
	err     error
	calls   int
	opts    llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLLMExtractor(t *testing.T) {
	logger := zaptest.NewLogger(t)
	labels := []string{"make", "color"}

	t.Run("parses fenced json", func(t *testing.T) {
		llm := &fakeLLM{content: "```json\n{\"entities\":[{\"label\":\"make\",\"text\":\"Ford\",\"confidence\":0.9},{\"label\":\"engine\",\"text\":\"V8\"}]}\n```"}
		e := NewLLMExtractorWithModel(llm, labels, 0.5, logger)

		got, err := e.Extract(context.Background(), "blue Ford with a V8")

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"make": "Ford"}, got)
		assert.True(t, llm.opts.JSONMode)
	})

	t.Run("malformed response", func(t *testing.T) {
		e := NewLLMExtractorWithModel(&fakeLLM{content: "sorry"}, labels, 0, logger)
		_, err := e.Extract(context.Background(), "x")
		assert.ErrorIs(t, err, ErrExtraction)
	})

	t.Run("provider failure", func(t *testing.T) {
		e := NewLLMExtractorWithModel(&fakeLLM{err: errors.New("429")}, labels, 0, logger)
		_, err := e.Extract(context.Background(), "x")
		assert.ErrorIs(t, err, ErrExtraction)
	})
}

type scriptedExtractor struct {
	errs  []error
	calls int
}

func (s *scriptedExtractor) Extract(ctx context.Context, text string) (map[string]string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return map[string]string{"make": "Kia"}, nil
}

func TestInstrumented(t *testing.T) {
	policy := resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("retries transient failures", func(t *testing.T) {
		inner := &scriptedExtractor{errs: []error{errors.New("timeout")}}
		ex := NewInstrumented(inner, "llm", policy, nil, zap.NewNop())

		got, err := ex.Extract(context.Background(), "kia")

		require.NoError(t, err)
		assert.Equal(t, "Kia", got["make"])
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("model acquisition failures are not retried", func(t *testing.T) {
		inner := &scriptedExtractor{errs: []error{ErrModelUnavailable, ErrModelUnavailable}}
		ex := NewInstrumented(inner, "gliner", policy, nil, zap.NewNop())

		_, err := ex.Extract(context.Background(), "kia")

		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("exhausted retries are extraction errors", func(t *testing.T) {
		boom := errors.New("boom")
		inner := &scriptedExtractor{errs: []error{boom, boom, boom}}
		ex := NewInstrumented(inner, "llm", policy, nil, zap.NewNop())

		_, err := ex.Extract(context.Background(), "kia")

		assert.ErrorIs(t, err, ErrExtraction)
		assert.ErrorIs(t, err, boom)
	})
}

func TestNew(t *testing.T) {
	res := config.ResilienceConfig{RetryMaxAttempts: 1}

	ex, closeFn, err := New(config.EntitiesConfig{Provider: "none"}, res, zap.NewNop())
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, Noop{}, ex)

	_, _, err = New(config.EntitiesConfig{Provider: "spacy"}, res, zap.NewNop())
	assert.Error(t, err)

}

func TestNew_GlinerWarmsModel(t *testing.T) {
	res := config.ResilienceConfig{RetryMaxAttempts: 1}
	cfg := config.EntitiesConfig{Provider: "gliner", RecognitionModel: "m", Labels: []string{"make"}}

	t.Run("model is acquired at construction", func(t *testing.T) {
		var loads atomic.Int32
		model := &fakeSpanModel{}
		loader := func(string) (SpanModel, error) {
			loads.Add(1)
			return model, nil
		}

		ex, closeFn, err := newExtractor(cfg, res, loader, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &Instrumented{}, ex)
		assert.Equal(t, int32(1), loads.Load())

		_, err = ex.Extract(context.Background(), "2022 Toyota")
		require.NoError(t, err)
		assert.Equal(t, int32(1), loads.Load())

		closeFn()
		assert.True(t, model.closed)
	})

	t.Run("unavailable model fails without fallback", func(t *testing.T) {
		loader := func(string) (SpanModel, error) { return nil, errors.New("no such model") }

		_, _, err := newExtractor(cfg, res, loader, zap.NewNop())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("unavailable model is retried on first request with fallback", func(t *testing.T) {
		var loads atomic.Int32
		loader := func(string) (SpanModel, error) {
			if loads.Add(1) == 1 {
				return nil, errors.New("hub unreachable")
			}
			return &fakeSpanModel{}, nil
		}
		withFallback := cfg
		withFallback.Fallback = true

		ex, closeFn, err := newExtractor(withFallback, res, loader, zap.NewNop())
		require.NoError(t, err)
		defer closeFn()

		_, err = ex.Extract(context.Background(), "2022 Toyota")
		require.NoError(t, err)
		assert.Equal(t, int32(2), loads.Load())
	})
}
