package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flowhook/backend/internal/config"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

func fakeJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	headerData := map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"kid": "test-key",
	}
	headerBytes, _ := json.Marshal(headerData)
	payload, _ := json.Marshal(claims)
	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func TestRequireAuth_BearerToken_ExtractsEmail(t *testing.T) {
	issuer := "https://test-issuer.com"
	clientID := "test-client"

	fakeToken := fakeJWT(t, map[string]interface{}{
		"iss":   issuer,
		"aud":   clientID,
		"sub":   "test-user",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": "user@acme.com",
	})

	verifier := oidc.NewVerifier(issuer, &MockKeySet{}, &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: true, // Matches logic in auth.go for apiVerifier
	})

	a := &Auth{apiVerifier: verifier}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user@acme.com", UserEmail(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_BearerToken_RejectsExpired(t *testing.T) {
	issuer := "https://test-issuer.com"

	fakeToken := fakeJWT(t, map[string]interface{}{
		"iss":   issuer,
		"aud":   "test-client",
		"sub":   "test-user",
		"exp":   time.Now().Add(-time.Hour).Unix(),
		"iat":   time.Now().Add(-2 * time.Hour).Unix(),
		"email": "user@acme.com",
	})

	verifier := oidc.NewVerifier(issuer, &MockKeySet{}, &oidc.Config{
		SkipClientIDCheck: true,
	})

	a := &Auth{apiVerifier: verifier}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run for expired tokens")
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_BypassMode(t *testing.T) {
	cfg := &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev@localhost", UserEmail(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_MissingCookieRedirectsToLogin(t *testing.T) {
	verifier := oidc.NewVerifier("https://test-issuer.com", &MockKeySet{}, &oidc.Config{
		SkipClientIDCheck: true,
	})
	a := &Auth{verifier: verifier, apiVerifier: verifier}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run without a session")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLogoutClearsSessionCookie(t *testing.T) {
	a := &Auth{}

	req := httptest.NewRequest("GET", "/logout", nil)
	rec := httptest.NewRecorder()

	a.LogoutHandler(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == "id_token" {
			found = true
			assert.Empty(t, c.Value)
			assert.Negative(t, c.MaxAge)
		}
	}
	assert.True(t, found, "id_token cookie should be cleared")
}
