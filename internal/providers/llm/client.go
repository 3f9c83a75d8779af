package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nlweb-orchestrator/internal/common/config"
	commonhttp "nlweb-orchestrator/internal/common/http"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

const systemPrompt = "You answer with a single JSON object and nothing else."

// Client talks to an OpenAI-compatible chat completions and embeddings API.
// It satisfies prompt.Completer and the embedding function the vector
// backends take.
type Client struct {
	http    *commonhttp.Client
	baseURL string
	models  config.ModelConfig
	embed   string

	temperature float64
	maxTokens   int
	maxRetries  int
	backoff     time.Duration

	logger logger.Logger
}

type Option func(*Client)

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func New(cfg config.LLMConfig, log logger.Logger, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("llm endpoint is required")
	}
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	h := commonhttp.NewClient(timeout)
	if cfg.APIKey != "" {
		h = h.WithHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	c := &Client{
		http:        h,
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		models:      cfg.Models,
		embed:       cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		backoff:     500 * time.Millisecond,
		logger:      logger.ForComponent(log, "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ModelFor maps a prompt level to the configured model name.
func (c *Client) ModelFor(level models.ModelLevel) string {
	if level == models.LevelHigh {
		return c.models.High
	}
	return c.models.Low
}

// Complete sends one prompt and returns the raw content of the first choice.
// The schema is included in the system message and JSON output is requested.
func (c *Client) Complete(ctx context.Context, prompt string, schema map[string]interface{}, level models.ModelLevel) (string, error) {
	system := systemPrompt
	if len(schema) > 0 {
		raw, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("encode schema: %w", err)
		}
		system += " The object must match this JSON schema: " + string(raw)
	}

	req := chatRequest{
		Model: c.ModelFor(level),
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var resp chatResponse
	if err := c.withRetry(ctx, "chat", func(ctx context.Context) error {
		return c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/chat/completions", req, &resp)
	}); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding of one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingResponse
	req := embeddingRequest{Model: c.embed, Input: texts}
	if err := c.withRetry(ctx, "embeddings", func(ctx context.Context) error {
		return c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/embeddings", req, &resp)
	}); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// withRetry repeats call on transport errors, 429 and 5xx, never past ctx.
func (c *Client) withRetry(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
			}
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		c.logger.Debug("retrying model request", map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func retryable(err error) bool {
	var se *commonhttp.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
