package weather

import (
	"errors"

	"github.com/i474232898/agroweather/internal/ratelimit"
)

var (
	// ErrQuotaExceeded means the provider's allowance is used up; skip it, never retry.
	ErrQuotaExceeded = ratelimit.ErrQuotaExceeded
	// ErrTransientNetwork covers timeouts, connection failures and 5xx; retried with backoff.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrMalformedResponse covers undecodable bodies and rejected requests; skip the provider.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrCircuitOpen is returned while a provider's breaker is open; skip the provider.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrAllProvidersExhausted is only logged; the historical generator always resolves it.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	// ErrInvalidInput is the only error the orchestrator returns to callers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRecordNotFound is returned by record stores for unknown keys.
	ErrRecordNotFound = errors.New("no forecast record for location")
)

// outcomeFor maps a provider error onto the attempt trace vocabulary.
func outcomeFor(err error) string {
	if errors.Is(err, ErrQuotaExceeded) {
		return OutcomeQuotaExceeded
	}
	return OutcomeError
}
