// Package openai embeds text with the OpenAI embeddings API through
// github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ineyio/creditgate"
)

const DefaultModel = "text-embedding-3-small"

// Embedder implements creditgate.Embedder.
type Embedder struct {
	client *goopenai.Client
	model  string
	dim    int
}

var _ creditgate.Embedder = (*Embedder)(nil)

type options struct {
	model      string
	baseURL    string
	dim        int
	httpClient *http.Client
}

// Option configures the embedder.
type Option func(*options)

// WithModel sets the embedding model (default text-embedding-3-small).
func WithModel(m string) Option {
	return func(o *options) { o.model = m }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithDimension overrides the expected vector length.
func WithDimension(d int) Option {
	return func(o *options) { o.dim = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates an embedder authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("creditgate/openai: api key is required")
	}
	o := options{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dim == 0 {
		o.dim = dimensionFor(o.model)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &Embedder{
		client: goopenai.NewClientWithConfig(cfg),
		model:  o.model,
		dim:    o.dim,
	}, nil
}

func dimensionFor(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// Embed returns the unit-length embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", creditgate.ErrMalformedRequest)
	}

	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, &creditgate.ProviderError{Provider: "openai", Status: apiErr.HTTPStatusCode, Err: err}
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) {
			return nil, &creditgate.ProviderError{Provider: "openai", Status: reqErr.HTTPStatusCode, Err: err}
		}
		return nil, creditgate.TransportError(ctx, "openai", err)
	}
	if len(resp.Data) == 0 {
		return nil, &creditgate.ProviderError{
			Provider: "openai",
			Err:      fmt.Errorf("%w: no embedding data returned", creditgate.ErrMalformedResponse),
		}
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dim {
		return nil, fmt.Errorf("creditgate/openai: embedding has %d dimensions, expected %d", len(raw), e.dim)
	}
	v := make([]float32, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}
	if !creditgate.Normalize(v) {
		return nil, fmt.Errorf("creditgate/openai: zero embedding vector")
	}
	return v, nil
}

// Dimension returns the embedding dimension.
func (e *Embedder) Dimension() int { return e.dim }
