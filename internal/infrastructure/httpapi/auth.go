package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

// authStore issues and validates dev tokens in memory. Access tokens expire
// after a TTL; refresh tokens rotate on every refresh, matching the real
// backend's rotation behavior.
type authStore struct {
	mu             sync.Mutex
	email          string
	password       string
	accessTTL      time.Duration
	accessExpires  map[string]time.Time
	refreshCurrent string
}

func newAuthStore(email, password string, accessTTL time.Duration) *authStore {
	return &authStore{
		email:         email,
		password:      password,
		accessTTL:     accessTTL,
		accessExpires: map[string]time.Time{},
	}
}

func randomToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (a *authStore) issue() (access, refresh string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	access = randomToken()
	a.accessExpires[access] = time.Now().Add(a.accessTTL)
	a.refreshCurrent = randomToken()
	return access, a.refreshCurrent
}

func (a *authStore) validateAccess(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	exp, ok := a.accessExpires[token]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(a.accessExpires, token)
		return false
	}
	return true
}

// rotate validates the refresh token and issues a new pair. A stale or
// unknown refresh token invalidates the current one, forcing a new login.
func (a *authStore) rotate(refreshToken string) (access, refresh string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if refreshToken == "" || refreshToken != a.refreshCurrent {
		a.refreshCurrent = ""
		return "", "", false
	}
	access = randomToken()
	a.accessExpires[access] = time.Now().Add(a.accessTTL)
	a.refreshCurrent = randomToken()
	return access, a.refreshCurrent, true
}

func (a *authStore) revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCurrent = ""
}

// ExpireAccessTokens invalidates all outstanding access tokens. Exposed for
// tests that exercise the client's refresh-and-retry flow.
func (d *Deps) ExpireAccessTokens() {
	d.Auth.mu.Lock()
	defer d.Auth.mu.Unlock()
	d.Auth.accessExpires = map[string]time.Time{}
}

func (d *Deps) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username != d.Auth.email || password != d.Auth.password {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	access, refresh := d.Auth.issue()
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

func (d *Deps) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	access, refresh, ok := d.Auth.rotate(body.RefreshToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

func (d *Deps) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	d.Auth.revoke()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

// requireAuth guards a handler behind bearer-token validation.
func (d *Deps) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || !d.Auth.validateAccess(token) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r)
	}
}
