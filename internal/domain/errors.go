package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest indicates a request rejected before any work was done.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrModelNotSupported indicates that no registered provider serves the model.
	ErrModelNotSupported = errors.New("model not supported")

	// ErrCacheMiss indicates no cached entry was found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoUserMessage indicates a conversation without any user turn.
	ErrNoUserMessage = errors.New("no user message to key on")

	// ErrZeroVector indicates an embedding with a near-zero norm.
	ErrZeroVector = errors.New("embedding has zero norm")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrPricingNotFound indicates a model without registered pricing.
	ErrPricingNotFound = errors.New("pricing not found")

	// ErrStreamIncomplete indicates a provider stream that ended without
	// signalling completion.
	ErrStreamIncomplete = errors.New("provider stream ended before completion")
)

// ProviderError is the only error that makes a pipeline run fail.
type ProviderError struct {
	Provider string
	// StatusCode is the upstream HTTP status when known, 0 otherwise.
	StatusCode int
	Err        error
}

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Err:        err,
	}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Overloaded reports whether the provider signalled back-pressure.
func (e *ProviderError) Overloaded() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// Timeout reports whether the call ran out of time.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// HTTPStatus maps a pipeline error to the status reported to API clients.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrModelNotSupported) {
		return http.StatusBadRequest
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		switch {
		case providerErr.Overloaded():
			return http.StatusTooManyRequests
		case providerErr.Timeout():
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}

	return http.StatusInternalServerError
}
