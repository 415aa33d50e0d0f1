package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

func noBackoff(int) time.Duration { return 0 }

func newTestClient(t *testing.T, srv *httptest.Server, tokens TokenStore) *Client {
	t.Helper()
	return New(Options{
		BaseURL: srv.URL,
		Tokens:  tokens,
		Logger:  zerolog.Nop(),
		Backoff: noBackoff,
	})
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"detail":"flaky"}`, http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Shadow{ID: "s1", Status: domain.StatusCapturing})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "tok"}))
	shadow, err := c.StartShadow(context.Background(), "t", "", nil)
	if err != nil {
		t.Fatalf("StartShadow: %v", err)
	}
	if shadow.ID != "s1" {
		t.Fatalf("unexpected shadow: %+v", shadow)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"down"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "tok"}))
	_, err := c.GetShadow(context.Background(), "s1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if apiErr.Detail != "down" {
		t.Fatalf("expected detail from error envelope, got %q", apiErr.Detail)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestRetryResendsBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n < 2 {
			http.Error(w, "oops", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Shadow{ID: "s1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "tok"}))
	if _, err := c.StartShadow(context.Background(), "replayed", "", nil); err != nil {
		t.Fatalf("StartShadow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[0] == "" {
		t.Fatalf("body not replayed identically across attempts: %q", bodies)
	}
}

func TestNo4xxRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"can only retry failed shadows"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "tok"}))
	_, err := c.RetryProcessing(context.Background(), "s1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", got)
	}
}

func TestRefreshAndRetryOn401(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "refresh-1" {
			http.Error(w, `{"detail":"Invalid refresh token"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(Tokens{AccessToken: "access-2", RefreshToken: "refresh-2"})
	})
	mux.HandleFunc("/api/shadows/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			http.Error(w, `{"detail":"Could not validate credentials"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Shadow{ID: "s1", Status: domain.StatusReadyForReview})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryTokenStore(Tokens{AccessToken: "stale", RefreshToken: "refresh-1"})
	c := newTestClient(t, srv, store)

	shadow, err := c.GetShadow(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetShadow: %v", err)
	}
	if shadow.Status != domain.StatusReadyForReview {
		t.Fatalf("unexpected shadow: %+v", shadow)
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected one refresh, got %d", got)
	}
	tok, _ := store.Load()
	if tok.AccessToken != "access-2" || tok.RefreshToken != "refresh-2" {
		t.Fatalf("rotated pair not stored: %+v", tok)
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const n = 8
	var refreshes, unauthorized atomic.Int32
	release := make(chan struct{})
	allDenied := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		<-release // hold the refresh so every request piles up behind it
		_ = json.NewEncoder(w).Encode(Tokens{AccessToken: "fresh", RefreshToken: "r2"})
	})
	mux.HandleFunc("/api/shadows/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			if unauthorized.Add(1) == n {
				close(allDenied)
			}
			http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Shadow{ID: "s1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "stale", RefreshToken: "r1"}))

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.GetShadow(context.Background(), "s1")
			errs <- err
		}()
	}
	// every request must observe the 401 before the refresh settles,
	// otherwise they would not contend for it
	select {
	case <-allDenied:
	case <-time.After(5 * time.Second):
		t.Fatal("requests never reached the server")
	}
	close(release)

	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected a single shared refresh, got %d", got)
	}
}

func TestRefreshFailureClearsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid refresh token"}`, http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/shadows/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryTokenStore(Tokens{AccessToken: "stale", RefreshToken: "bad"})
	c := newTestClient(t, srv, store)

	_, err := c.GetShadow(context.Background(), "s1")
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	tok, _ := store.Load()
	if tok.AccessToken != "" || tok.RefreshToken != "" {
		t.Fatalf("tokens not cleared after failed refresh: %+v", tok)
	}
}

func TestNoRefreshTokenMeansLoginRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "stale"}))
	_, err := c.GetShadow(context.Background(), "s1")
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
}

func TestLoginFailureIsNotRetriedAsRefresh(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Incorrect email or password"}`, http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{}))
	err := c.Login(context.Background(), "x@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if refreshes.Load() != 0 {
		t.Fatal("a login 401 must never trigger a token refresh")
	}
}

func TestUploadVideoMultipart(t *testing.T) {
	payload := []byte("webm-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/s1/video" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "video/webm" {
			t.Errorf("part content type = %q", ct)
		}
		if header.Filename != "s1.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		b, _ := io.ReadAll(file)
		if string(b) != string(payload) {
			t.Errorf("payload mismatch: %q", b)
		}
		_ = json.NewEncoder(w).Encode(domain.Shadow{ID: "s1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "tok"}))
	if _, err := c.UploadVideo(context.Background(), "s1", payload); err != nil {
		t.Fatalf("UploadVideo: %v", err)
	}
}

func TestWaitWhileProcessing(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := domain.StatusProcessing
		if calls.Add(1) >= 3 {
			status = domain.StatusReadyForReview
		}
		_ = json.NewEncoder(w).Encode(domain.Shadow{ID: "s1", Status: status})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, NewMemoryTokenStore(Tokens{AccessToken: "tok"}))
	var observed []domain.Status
	shadow, err := c.WaitWhileProcessing(context.Background(), "s1", time.Millisecond, func(s domain.Shadow) {
		observed = append(observed, s.Status)
	})
	if err != nil {
		t.Fatalf("WaitWhileProcessing: %v", err)
	}
	if shadow.Status != domain.StatusReadyForReview {
		t.Fatalf("expected terminal shadow, got %+v", shadow)
	}
	if len(observed) != 3 {
		t.Fatalf("expected 3 polls, got %d", len(observed))
	}
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := t.TempDir() + "/nested/tokens.json"
	s := NewFileTokenStore(path)

	if tok, err := s.Load(); err != nil || tok.AccessToken != "" {
		t.Fatalf("missing file should load empty tokens, got %+v %v", tok, err)
	}
	want := Tokens{AccessToken: "a", RefreshToken: "r"}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil || got != want {
		t.Fatalf("Load after Save: %+v %v", got, err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if tok, _ := s.Load(); tok != (Tokens{}) {
		t.Fatalf("tokens survive Clear: %+v", tok)
	}
}
