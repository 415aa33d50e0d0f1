// Package api is the Go client for the knowledge-shadows REST facade. It
// layers a retry/backoff transport beneath a bearer-auth transport with
// single-flight token refresh, and exposes the shadow capture operations the
// agent needs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/domain"
	"github.com/totcainc/knowledge-shadows/pkg/shared/redact"
)

// APIError carries the backend's error payload (`{"detail": ...}`).
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Detail)
}

type Options struct {
	BaseURL string
	Tokens  TokenStore
	Logger  zerolog.Logger

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
	// RetryAttempts defaults to 3, Backoff to 1s/2s/4s.
	RetryAttempts int
	Backoff       func(attempt int) time.Duration
}

type Client struct {
	baseURL string
	tokens  TokenStore
	log     zerolog.Logger

	// authed carries bearer auth + refresh-and-retry; plain skips the auth
	// layer for login/refresh calls where a 401 means bad credentials, not
	// an expired token.
	authed *http.Client
	plain  *http.Client
}

func New(opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore(Tokens{})
	}
	log := opts.Logger.With().Str("component", "api").Logger()

	retry := &retryTransport{base: base, attempts: attempts, backoff: backoff, log: log}
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  tokens,
		log:     log,
		plain:   &http.Client{Transport: retry},
	}
	c.authed = &http.Client{Transport: &authTransport{
		base:    retry,
		tokens:  tokens,
		refresh: c.refreshTokens,
		log:     log,
	}}
	return c
}

// StartShadow creates the remote capture record. It must succeed before
// recording starts so the id is available for upload/end.
func (c *Client) StartShadow(ctx context.Context, title, userNotes string, tags []string) (domain.Shadow, error) {
	body := map[string]any{"title": title}
	if userNotes != "" {
		body["user_notes"] = userNotes
	}
	if len(tags) > 0 {
		body["tags"] = tags
	}
	var out domain.Shadow
	err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/shadows/start", body, &out)
	return out, err
}

// UploadVideo sends the assembled recording as multipart field `file`.
// Not idempotent: a retry after a partial failure may duplicate or be
// rejected; callers decide whether to re-send.
func (c *Client) UploadVideo(ctx context.Context, shadowID string, blob []byte) (domain.Shadow, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s.webm"`, shadowID))
	h.Set("Content-Type", "video/webm")
	part, err := w.CreatePart(h)
	if err != nil {
		return domain.Shadow{}, err
	}
	if _, err := part.Write(blob); err != nil {
		return domain.Shadow{}, err
	}
	if err := w.Close(); err != nil {
		return domain.Shadow{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/"+shadowID+"/video", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return domain.Shadow{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out domain.Shadow
	err = c.send(c.authed, req, &out)
	return out, err
}

// EndShadow signals the backend that capture is done and asynchronous
// processing should begin.
func (c *Client) EndShadow(ctx context.Context, shadowID string) (domain.Shadow, error) {
	var out domain.Shadow
	err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/shadows/"+shadowID+"/end", nil, &out)
	return out, err
}

// RetryProcessing re-triggers processing for a failed shadow without a new
// upload.
func (c *Client) RetryProcessing(ctx context.Context, shadowID string) (domain.Shadow, error) {
	var out domain.Shadow
	err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/shadows/"+shadowID+"/retry", nil, &out)
	return out, err
}

func (c *Client) ListShadows(ctx context.Context, skip, limit int) ([]domain.Shadow, error) {
	var out []domain.Shadow
	path := fmt.Sprintf("/api/shadows/?skip=%d&limit=%d", skip, limit)
	err := c.doJSON(ctx, c.authed, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetShadow(ctx context.Context, shadowID string) (domain.Shadow, error) {
	var out domain.Shadow
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/shadows/"+shadowID, nil, &out)
	return out, err
}

func (c *Client) UpdateShadow(ctx context.Context, shadowID string, patch map[string]any) (domain.Shadow, error) {
	var out domain.Shadow
	err := c.doJSON(ctx, c.authed, http.MethodPatch, "/api/shadows/"+shadowID, patch, &out)
	return out, err
}

func (c *Client) DeleteShadow(ctx context.Context, shadowID string) error {
	return c.doJSON(ctx, c.authed, http.MethodDelete, "/api/shadows/"+shadowID, nil, nil)
}

func (c *Client) ListChapters(ctx context.Context, shadowID string) ([]domain.Chapter, error) {
	var out []domain.Chapter
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/shadows/"+shadowID+"/chapters", nil, &out)
	return out, err
}

func (c *Client) ListDecisionPoints(ctx context.Context, shadowID string) ([]domain.DecisionPoint, error) {
	var out []domain.DecisionPoint
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/shadows/"+shadowID+"/decision-points", nil, &out)
	return out, err
}

// Login exchanges credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out Tokens
	if err := c.send(c.plain, req, &out); err != nil {
		return err
	}
	return c.tokens.Save(out)
}

// Logout clears local credentials and best-effort invalidates the refresh
// token server-side.
func (c *Client) Logout(ctx context.Context) error {
	_ = c.doJSON(ctx, c.authed, http.MethodPost, "/api/auth/logout", nil, nil)
	return c.tokens.Clear()
}

// refreshTokens backs the auth transport's single-flight refresh.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	err := c.doJSON(ctx, c.plain, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refreshToken}, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, client *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		c.log.Debug().Str("path", path).Str("body", redact.RedactJSON(string(b))).Msg("request body")
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(client, req, out)
}

func (c *Client) send(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var body struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(b))
	if err := json.Unmarshal(b, &body); err == nil && body.Detail != "" {
		detail = body.Detail
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}
