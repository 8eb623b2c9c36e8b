package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/agroweather/internal/weather"
)

const maxBodyBytes = 4 << 20

// statusError carries a non-2xx response so adapters can inspect provider
// error bodies before the orchestrator sees the classified sentinel.
type statusError struct {
	Code int
	Body string
	kind error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: status %d", e.kind, e.Code)
}

func (e *statusError) Unwrap() error { return e.kind }

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes a single HTTP attempt through the circuit breaker and
// classifies the outcome into the weather error taxonomy. Retrying is the
// orchestrator's job.
func doRequest(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, req *http.Request) ([]byte, error) {
	if client == nil {
		return nil, errors.New("http client not configured")
	}
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrTransientNetwork, execErr)
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return nil, fmt.Errorf("%w: reading body: %v", weather.ErrTransientNetwork, readErr)
		}

		// Handle rate limiting and server errors explicitly.
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &statusError{Code: resp.StatusCode, Body: string(body), kind: weather.ErrQuotaExceeded}
		case resp.StatusCode >= 500:
			return nil, &statusError{Code: resp.StatusCode, Body: string(body), kind: weather.ErrTransientNetwork}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &statusError{Code: resp.StatusCode, Body: string(body), kind: weather.ErrMalformedResponse}
		}
		return body, nil
	})
	if err != nil {
		// If circuit is open, skip the provider without retrying.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", weather.ErrCircuitOpen, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", weather.ErrMalformedResponse)
	}
	return body, nil
}

func newGet(url, userAgent string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func malformed(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", weather.ErrMalformedResponse, provider, err)
}

func fahrenheit(celsius float64) float64 { return celsius*9/5 + 32 }

func mmToInches(mm float64) float64 { return mm / 25.4 }

func ptr(v float64) *float64 { return &v }
