package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/pkg/shared/redact"
)

// ErrLoginRequired surfaces when no usable credentials remain: there was no
// refresh token, or the refresh itself was rejected. Stored tokens are
// cleared before this is returned.
var ErrLoginRequired = errors.New("authentication required, please log in again")

// refreshFunc exchanges a refresh token for a rotated token pair.
type refreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// authTransport attaches the bearer token to every request and handles 401s
// with a single-flight refresh: one refresh call in flight at a time, with
// concurrent requests queued as waiters and notified of the outcome. The
// original request is then retried exactly once with the new token.
type authTransport struct {
	base    http.RoundTripper
	tokens  TokenStore
	refresh refreshFunc
	log     zerolog.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []chan error
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}
	r := req
	if tok.AccessToken != "" {
		r = req.Clone(req.Context())
		r.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	t.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("authorization", redact.Bearer(r.Header.Get("Authorization"))).
		Msg("request")

	resp, err := t.base.RoundTrip(r)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drainAndClose(resp)

	if err := t.refreshTokens(req.Context()); err != nil {
		return nil, err
	}
	tok, err = t.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}
	retry, err := rewindRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return t.base.RoundTrip(retry)
}

// refreshTokens runs at most one refresh at a time. Followers block until
// the in-flight refresh settles and share its result.
func (t *authTransport) refreshTokens(ctx context.Context) error {
	t.mu.Lock()
	if t.refreshing {
		ch := make(chan error, 1)
		t.waiters = append(t.waiters, ch)
		t.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.refreshing = true
	t.mu.Unlock()

	err := t.doRefresh(ctx)

	t.mu.Lock()
	t.refreshing = false
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	for _, ch := range waiters {
		ch <- err
	}
	return err
}

func (t *authTransport) doRefresh(ctx context.Context) error {
	tok, err := t.tokens.Load()
	if err != nil {
		return fmt.Errorf("loading tokens: %w", err)
	}
	if tok.RefreshToken == "" {
		_ = t.tokens.Clear()
		return ErrLoginRequired
	}
	rotated, err := t.refresh(ctx, tok.RefreshToken)
	if err != nil {
		t.log.Warn().Err(err).Msg("token refresh failed")
		_ = t.tokens.Clear()
		return fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}
	if err := t.tokens.Save(rotated); err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	t.log.Debug().Msg("access token refreshed")
	return nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
