// Package openaicompat is the hosted-provider adapter for OpenAI-compatible
// chat completion APIs (OpenAI, Grok/xAI, Cerebras, Together and others).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ineyio/creditgate"
)

const defaultBaseURL = "https://api.openai.com/v1"

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 1024

// Provider is a universal OpenAI-compatible API adapter.
type Provider struct {
	name        string
	baseURL     string
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

// WithTemperature sets the sampling temperature sent with every request.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithName sets the provider identifier used in errors.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// New creates a hosted provider. baseURL is used when a target does not set
// its own; an empty baseURL means the OpenAI API.
func New(baseURL string, opts ...Option) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{
		name:        "openai",
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Kind() creditgate.Kind { return creditgate.KindHosted }

// Validate is a no-op: hosted targets are validated by the call itself.
func (p *Provider) Validate(context.Context, creditgate.ModelTarget) error { return nil }

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message apiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) Complete(ctx context.Context, target creditgate.ModelTarget, messages []creditgate.Message) (creditgate.Completion, error) {
	msgs := make([]apiMessage, len(messages))
	for i, m := range messages {
		msgs[i] = apiMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(apiRequest{
		Model:       target.Model,
		Messages:    msgs,
		Temperature: p.temperature,
	})
	if err != nil {
		return creditgate.Completion{}, fmt.Errorf("creditgate: marshal request: %w", err)
	}

	url := p.endpoint(target) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return creditgate.Completion{}, fmt.Errorf("creditgate: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+target.APIKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return creditgate.Completion{}, creditgate.TransportError(ctx, p.name, err)
	}
	defer httpResp.Body.Close()

	if err := p.mapHTTPError(httpResp); err != nil {
		return creditgate.Completion{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return creditgate.Completion{}, &creditgate.ProviderError{
			Provider: p.name,
			Status:   httpResp.StatusCode,
			Err:      fmt.Errorf("%w: decode: %v", creditgate.ErrMalformedResponse, err),
		}
	}
	if len(resp.Choices) == 0 {
		return creditgate.Completion{}, &creditgate.ProviderError{
			Provider: p.name,
			Status:   httpResp.StatusCode,
			Err:      fmt.Errorf("%w: empty choices", creditgate.ErrMalformedResponse),
		}
	}

	model := resp.Model
	if model == "" {
		model = target.Model
	}
	return creditgate.Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage: creditgate.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *Provider) endpoint(target creditgate.ModelTarget) string {
	if target.BaseURL != "" {
		return strings.TrimRight(target.BaseURL, "/")
	}
	return p.baseURL
}

func (p *Provider) mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &creditgate.ProviderError{
		Provider: p.name,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}
