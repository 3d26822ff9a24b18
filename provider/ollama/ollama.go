// Package ollama is the self-hosted provider adapter for Ollama-compatible
// servers. Targets carry their own base URL; the model list is probed live
// on every validation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/ineyio/creditgate"
)

const maxErrorBody = 1024

// Provider implements creditgate.Provider over the Ollama HTTP API.
type Provider struct {
	name        string
	httpClient  *http.Client
	temperature float64
}

var _ creditgate.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTemperature sets the sampling temperature passed in options.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// New creates a self-hosted provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:        "ollama",
		httpClient:  http.DefaultClient,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Kind() creditgate.Kind { return creditgate.KindSelfHosted }

// tagsResponse is the /api/tags payload. Older servers return bare model
// names instead of objects, so entries are decoded lazily.
type tagsResponse struct {
	Models []json.RawMessage `json:"models"`
}

// Models returns the model names the server at baseURL reports.
func (p *Provider) Models(ctx context.Context, baseURL string) ([]string, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creditgate/ollama: create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, creditgate.TransportError(ctx, p.name, err)
	}
	defer resp.Body.Close()

	if err := p.mapHTTPError(resp); err != nil {
		return nil, err
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &creditgate.ProviderError{
			Provider: p.name,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%w: decode tags: %v", creditgate.ErrMalformedResponse, err),
		}
	}

	names := make([]string, 0, len(tags.Models))
	for _, raw := range tags.Models {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			if name != "" {
				names = append(names, name)
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
			names = append(names, obj.Name)
		}
	}
	return names, nil
}

// Validate probes the live model list and fails closed: an unreachable server
// or an empty list rejects the target.
func (p *Provider) Validate(ctx context.Context, target creditgate.ModelTarget) error {
	names, err := p.Models(ctx, target.BaseURL)
	if err != nil {
		return &creditgate.ProviderValidationError{Provider: p.name, Model: target.Model, Err: err}
	}
	if len(names) == 0 {
		return &creditgate.ProviderValidationError{
			Provider: p.name,
			Model:    target.Model,
			Err:      fmt.Errorf("server reports no models"),
		}
	}
	if !slices.Contains(names, target.Model) {
		return &creditgate.ProviderValidationError{Provider: p.name, Model: target.Model, Available: names}
	}
	return nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
	EvalCount       int64       `json:"eval_count"`
}

func (p *Provider) Complete(ctx context.Context, target creditgate.ModelTarget, messages []creditgate.Message) (creditgate.Completion, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(chatRequest{
		Model:    target.Model,
		Messages: msgs,
		Stream:   false,
		Options:  chatOptions{Temperature: p.temperature},
	})
	if err != nil {
		return creditgate.Completion{}, fmt.Errorf("creditgate/ollama: marshal request: %w", err)
	}

	url := strings.TrimRight(target.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return creditgate.Completion{}, fmt.Errorf("creditgate/ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return creditgate.Completion{}, creditgate.TransportError(ctx, p.name, err)
	}
	defer httpResp.Body.Close()

	if err := p.mapHTTPError(httpResp); err != nil {
		return creditgate.Completion{}, err
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return creditgate.Completion{}, &creditgate.ProviderError{
			Provider: p.name,
			Status:   httpResp.StatusCode,
			Err:      fmt.Errorf("%w: decode: %v", creditgate.ErrMalformedResponse, err),
		}
	}
	if resp.Message.Content == "" {
		return creditgate.Completion{}, &creditgate.ProviderError{
			Provider: p.name,
			Status:   httpResp.StatusCode,
			Err:      fmt.Errorf("%w: empty message", creditgate.ErrMalformedResponse),
		}
	}

	model := resp.Model
	if model == "" {
		model = target.Model
	}
	return creditgate.Completion{
		Content: resp.Message.Content,
		Model:   model,
		Usage: creditgate.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

func (p *Provider) mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &creditgate.ProviderError{
		Provider: p.name,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}
