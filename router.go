package creditgate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultProviderTimeout = 60 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
)

// ProviderRouter validates model targets and dispatches completions to the
// provider registered for the target's kind. It never retries: one outbound
// call per request, failures are reported upward.
type ProviderRouter struct {
	providers    map[Kind]Provider
	timeout      time.Duration
	probeTimeout time.Duration
}

// RouterOption configures a ProviderRouter.
type RouterOption func(*ProviderRouter)

// WithTimeout bounds every completion call.
func WithTimeout(d time.Duration) RouterOption {
	return func(r *ProviderRouter) { r.timeout = d }
}

// WithProbeTimeout bounds every validation probe.
func WithProbeTimeout(d time.Duration) RouterOption {
	return func(r *ProviderRouter) { r.probeTimeout = d }
}

// NewProviderRouter creates a router over the given providers. At most one
// provider may be registered per kind.
func NewProviderRouter(providers []Provider, opts ...RouterOption) (*ProviderRouter, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("creditgate: at least one provider is required")
	}

	r := &ProviderRouter{
		providers:    make(map[Kind]Provider, len(providers)),
		timeout:      DefaultProviderTimeout,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, p := range providers {
		if _, dup := r.providers[p.Kind()]; dup {
			return nil, fmt.Errorf("creditgate: duplicate provider for kind %q", p.Kind())
		}
		r.providers[p.Kind()] = p
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.timeout <= 0 {
		r.timeout = DefaultProviderTimeout
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = DefaultProbeTimeout
	}
	return r, nil
}

// Validate checks the target's shape and then asks its provider whether the
// model is servable. Self-hosted providers probe the live model list.
func (r *ProviderRouter) Validate(ctx context.Context, target ModelTarget) error {
	p, err := r.route(target)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	if err := p.Validate(ctx, target); err != nil {
		if errors.Is(err, ErrProviderValidation) || errors.Is(err, ErrMalformedRequest) {
			return err
		}
		return &ProviderValidationError{Provider: p.Name(), Model: target.Model, Err: err}
	}
	return nil
}

// Complete dispatches one chat completion under the router's timeout and
// normalizes every failure into a *ProviderError.
func (r *ProviderRouter) Complete(ctx context.Context, target ModelTarget, messages []Message) (Completion, error) {
	p, err := r.route(target)
	if err != nil {
		return Completion{}, err
	}
	if len(messages) == 0 {
		return Completion{}, malformed("at least one message is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	c, err := p.Complete(ctx, target, messages)
	if err != nil {
		return Completion{}, normalizeProviderError(ctx, p.Name(), err)
	}
	return c, nil
}

// route picks the provider for the target. It is a pure function of
// target.Kind once the target is structurally valid.
func (r *ProviderRouter) route(target ModelTarget) (Provider, error) {
	if err := checkTarget(target); err != nil {
		return nil, err
	}
	p, ok := r.providers[target.Kind]
	if !ok {
		return nil, malformed("no provider registered for kind %q", target.Kind)
	}
	return p, nil
}

func checkTarget(t ModelTarget) error {
	if t.Model == "" {
		return malformed("model_target.model is required")
	}
	switch t.Kind {
	case KindHosted:
		if t.APIKey == "" {
			return malformed("model_target.api_key is required for hosted targets")
		}
		if t.BaseURL != "" {
			if err := checkURL(t.BaseURL); err != nil {
				return err
			}
		}
	case KindSelfHosted:
		if t.BaseURL == "" {
			return malformed("model_target.base_url is required for self-hosted targets")
		}
		if err := checkURL(t.BaseURL); err != nil {
			return err
		}
	case "":
		return malformed("model_target.kind is required")
	default:
		return malformed("unknown model_target.kind %q", t.Kind)
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return malformed("model_target.base_url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return malformed("model_target.base_url %q must be an absolute http(s) URL", raw)
	}
	return nil
}

// TransportError converts a failed outbound call into a *ProviderError.
// Deadline expiry is tagged with ErrProviderTimeout.
func TransportError(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Err: fmt.Errorf("%w: %w", ErrProviderTimeout, err)}
	}
	return &ProviderError{Provider: provider, Err: err}
}

func normalizeProviderError(ctx context.Context, provider string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return TransportError(ctx, provider, err)
}
