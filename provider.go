package creditgate

import "context"

// Provider is the interface that chat backend adapters must implement.
type Provider interface {
	// Name returns the provider identifier used in errors and events.
	Name() string

	// Kind returns the target kind this provider serves.
	Kind() Kind

	// Validate checks that the provider can serve the target's model.
	// Implementations that cannot check ahead of time return nil.
	Validate(ctx context.Context, target ModelTarget) error

	// Complete performs one synchronous chat completion.
	Complete(ctx context.Context, target ModelTarget, messages []Message) (Completion, error)
}
