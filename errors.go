package creditgate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors.
var (
	ErrInsufficientCredit = errors.New("creditgate: insufficient credit")
	ErrProviderValidation = errors.New("creditgate: provider validation failed")
	ErrProvider           = errors.New("creditgate: provider error")
	ErrProviderTimeout    = errors.New("creditgate: provider timeout")
	ErrMalformedResponse  = errors.New("creditgate: malformed provider response")
	ErrDocumentNotFound   = errors.New("creditgate: document not found")
	ErrMalformedRequest   = errors.New("creditgate: malformed request")
	ErrAccountNotFound    = errors.New("creditgate: account not found")
)

// InsufficientCreditError reports a denied reservation.
type InsufficientCreditError struct {
	AccountID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("creditgate: insufficient credit: account=%s requested=%s available=%s",
		e.AccountID, e.Requested, e.Available)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// ProviderValidationError reports a model target the provider cannot serve.
// Available lists the models the provider reported, if the probe succeeded.
type ProviderValidationError struct {
	Provider  string
	Model     string
	Available []string
	Err       error
}

func (e *ProviderValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("creditgate: provider=%s model=%s: validation failed: %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("creditgate: provider=%s: model %q not available, available models: %s",
		e.Provider, e.Model, strings.Join(e.Available, ", "))
}

func (e *ProviderValidationError) Is(target error) bool { return target == ErrProviderValidation }

func (e *ProviderValidationError) Unwrap() error { return e.Err }

// ProviderError wraps a failed provider call. Status is zero when no HTTP
// response was received.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "creditgate: provider=%s", e.Provider)
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " body=%q", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Err }

// DocumentNotFoundError reports retrieval against a document with no indexed chunks.
type DocumentNotFoundError struct {
	DocumentID string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("creditgate: document %q not found or has no indexed chunks", e.DocumentID)
}

func (e *DocumentNotFoundError) Unwrap() error { return ErrDocumentNotFound }

// malformed builds an ErrMalformedRequest with a field-level reason.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}

// IsClientError returns true if the error was caused by the caller's input or
// balance. These errors are never retried and never charge credit.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientCredit) ||
		errors.Is(err, ErrProviderValidation) ||
		errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsDependencyError returns true if a backend failed. Credit is always
// restored for these errors.
func IsDependencyError(err error) bool {
	return errors.Is(err, ErrProvider)
}
