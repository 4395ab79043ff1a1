package providers

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// breakerTransport wraps an http.RoundTripper with a per-provider circuit
// breaker, grounded on infra/breakers/breakers.go: trip after 3
// consecutive failures, or >5% failure rate once request volume is
// meaningful. While open, requests fail immediately instead of burning
// the adapter's per-cycle timeout budget on a provider that is down.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerTransport builds a circuit-breaking http.RoundTripper for
// the named provider.
func NewBreakerTransport(name string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &breakerTransport{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (any, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if resp == nil {
		return nil, err
	}
	r := resp.(*http.Response)
	if err == errServerStatus {
		return r, nil
	}
	return r, err
}

var errServerStatus = httpServerError{}

type httpServerError struct{}

func (httpServerError) Error() string { return "upstream returned 5xx" }
