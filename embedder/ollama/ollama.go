// Package ollama embeds text with a self-hosted Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ineyio/creditgate"
)

// Embedder implements creditgate.Embedder over POST /api/embeddings.
type Embedder struct {
	baseURL    string
	model      string
	httpClient *http.Client

	mu  sync.Mutex
	dim int
}

var _ creditgate.Embedder = (*Embedder)(nil)

// Option configures the embedder.
type Option func(*Embedder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) { e.httpClient = c }
}

// WithDimension fixes the expected vector length. Without it the length of
// the first embedding returned is adopted.
func WithDimension(d int) Option {
	return func(e *Embedder) { e.dim = d }
}

// New creates an embedder for model at baseURL.
func New(baseURL, model string, opts ...Option) *Embedder {
	e := &Embedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the unit-length embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", creditgate.ErrMalformedRequest)
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("creditgate/ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creditgate/ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, creditgate.TransportError(ctx, "ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &creditgate.ProviderError{
			Provider: "ollama",
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(msg)),
		}
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &creditgate.ProviderError{
			Provider: "ollama",
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%w: decode: %v", creditgate.ErrMalformedResponse, err),
		}
	}
	if len(out.Embedding) == 0 {
		return nil, &creditgate.ProviderError{
			Provider: "ollama",
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%w: empty embedding", creditgate.ErrMalformedResponse),
		}
	}

	if err := e.checkDimension(len(out.Embedding)); err != nil {
		return nil, err
	}
	if !creditgate.Normalize(out.Embedding) {
		return nil, fmt.Errorf("creditgate/ollama: zero embedding vector")
	}
	return out.Embedding, nil
}

func (e *Embedder) checkDimension(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = n
		return nil
	}
	if n != e.dim {
		return fmt.Errorf("creditgate/ollama: embedding has %d dimensions, expected %d", n, e.dim)
	}
	return nil
}

// Dimension returns the embedding dimension, or 0 before the first
// embedding when none was configured.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}
