// Package mock is an in-memory Provider for tests and local runs.
package mock

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/creditgate"
)

// Provider is a mock LLM provider for testing.
type Provider struct {
	name         string
	kind         creditgate.Kind
	models       []string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	validateErr  error
	usage        creditgate.Usage
	answer       string
	responseFunc func([]creditgate.Message) (creditgate.Completion, error)

	mu   sync.Mutex
	last []creditgate.Message
}

var _ creditgate.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a hosted mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:   "mock",
		kind:   creditgate.KindHosted,
		answer: "Hello from mock provider",
		usage: creditgate.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithKind sets the provider kind.
func WithKind(k creditgate.Kind) Option {
	return func(p *Provider) { p.kind = k }
}

// WithModels restricts Validate to the given models. No models means any
// model is accepted.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = models }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes Complete always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithValidateError makes Validate always return this error.
func WithValidateError(err error) Option {
	return func(p *Provider) { p.validateErr = err }
}

// WithUsage sets the usage returned by the mock.
func WithUsage(u creditgate.Usage) Option {
	return func(p *Provider) { p.usage = u }
}

// WithAnswer sets the completion text.
func WithAnswer(s string) Option {
	return func(p *Provider) { p.answer = s }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func([]creditgate.Message) (creditgate.Completion, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Kind() creditgate.Kind { return p.kind }

func (p *Provider) Validate(_ context.Context, target creditgate.ModelTarget) error {
	if p.validateErr != nil {
		return p.validateErr
	}
	if len(p.models) == 0 || slices.Contains(p.models, target.Model) {
		return nil
	}
	return &creditgate.ProviderValidationError{
		Provider:  p.name,
		Model:     target.Model,
		Available: slices.Clone(p.models),
	}
}

func (p *Provider) Complete(ctx context.Context, target creditgate.ModelTarget, messages []creditgate.Message) (creditgate.Completion, error) {
	p.mu.Lock()
	p.last = slices.Clone(messages)
	p.mu.Unlock()

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return creditgate.Completion{}, creditgate.TransportError(ctx, p.name, ctx.Err())
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return creditgate.Completion{}, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return creditgate.Completion{}, &creditgate.ProviderError{Provider: p.name, Status: 503}
	}

	if p.responseFunc != nil {
		return p.responseFunc(messages)
	}

	return creditgate.Completion{
		Content: p.answer,
		Model:   target.Model,
		Usage:   p.usage,
	}, nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// LastMessages returns the messages of the most recent Complete call.
func (p *Provider) LastMessages() []creditgate.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.last)
}
