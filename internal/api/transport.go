package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultRetryAttempts = 3

// defaultBackoff yields 1s, 2s, 4s for attempts 1, 2, 3.
func defaultBackoff(attempt int) time.Duration {
	return time.Second << (attempt - 1)
}

// retryTransport retries network failures and 5xx responses with exponential
// backoff. It sits beneath the auth transport, so a 401 is never retried
// here; that belongs to the refresh flow.
type retryTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  func(attempt int) time.Duration
	log      zerolog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		r := req
		if attempt > 1 {
			r, err = rewindRequest(req)
			if err != nil {
				return resp, err
			}
		}
		resp, err = t.base.RoundTrip(r)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if attempt == t.attempts {
			break
		}
		if resp != nil {
			drainAndClose(resp)
		}
		wait := t.backoff(attempt)
		t.log.Warn().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("retrying request")
		select {
		case <-time.After(wait):
		case <-req.Context().Done():
			if resp != nil {
				drainAndClose(resp)
			}
			return nil, req.Context().Err()
		}
	}
	return resp, err
}

// rewindRequest clones a request with a fresh body for re-sending. Requests
// built by this package always carry GetBody (bytes-backed readers).
func rewindRequest(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}
