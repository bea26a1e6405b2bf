package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/score/post-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAPIKey(t *testing.T) {
	srv := newAuthServer(t, nil)

	rec := srv.doAuth(http.MethodGet, "/api/v1/score/post-1", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errors.CodeUnauthorized, decodeError(t, rec).Error.Code)

	rec = srv.doAuth(http.MethodGet, "/api/v1/score/post-1", map[string]string{constants.HeaderAPIKey: "wrong-key-123"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid API key", decodeError(t, rec).Error.Message)

	rec = srv.doAuth(http.MethodGet, "/api/v1/score/post-1", map[string]string{constants.HeaderAPIKey: "ops-key-0001"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.doAuth(http.MethodPost, "/api/v1/batch/score", map[string]string{constants.HeaderAPIKey: "ops-key-0001"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthPublicEndpoints(t *testing.T) {
	srv := newAuthServer(t, nil)

	for _, path := range []string{"/health/live", "/version", "/metrics"} {
		rec := srv.doAuth(http.MethodGet, path, nil)
		assert.NotEqual(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAuthBearerToken(t *testing.T) {
	srv := newAuthServer(t, nil)

	readOnly, err := IssueToken(&srv.config.Auth, "dashboard", []string{ScopeRead}, now)
	require.NoError(t, err)
	bearer := map[string]string{constants.HeaderAuthorization: "Bearer " + readOnly}

	rec := srv.doAuth(http.MethodGet, "/api/v1/insights/post-1", bearer)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.doAuth(http.MethodPost, "/api/v1/batch/score", bearer)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errors.CodeForbidden, decodeError(t, rec).Error.Code)

	writer, err := IssueToken(&srv.config.Auth, "scheduler", []string{ScopeRead, ScopeWrite}, now)
	require.NoError(t, err)
	rec = srv.doAuth(http.MethodPost, "/api/v1/batch/score", map[string]string{constants.HeaderAuthorization: "Bearer " + writer})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsBadTokens(t *testing.T) {
	srv := newAuthServer(t, nil)

	expired, err := IssueToken(&srv.config.Auth, "dashboard", []string{ScopeRead}, now.Add(-48*time.Hour))
	require.NoError(t, err)

	other := srv.config.Auth
	other.JWTSecret = "another-secret-0123456789"
	forged, err := IssueToken(&other, "dashboard", []string{ScopeRead, ScopeWrite}, now)
	require.NoError(t, err)

	other = srv.config.Auth
	other.JWTIssuer = "someone-else"
	foreign, err := IssueToken(&other, "dashboard", []string{ScopeRead}, now)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"expired": "Bearer " + expired,
		"forged":  "Bearer " + forged,
		"issuer":  "Bearer " + foreign,
		"garbage": "Bearer not-a-token",
		"basic":   "Basic dXNlcjpwYXNz",
	} {
		rec := srv.doAuth(http.MethodGet, "/api/v1/score/post-1", map[string]string{constants.HeaderAuthorization: header})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestAuthAnonymousReadOnly(t *testing.T) {
	srv := newAuthServer(t, func(c *AuthConfig) { c.AllowAnonymous = true })

	rec := srv.doAuth(http.MethodGet, "/api/v1/content", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.doAuth(http.MethodPost, "/api/v1/batch/score", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIssueTokenValidation(t *testing.T) {
	cfg := &AuthConfig{JWTSecret: testSecret}

	_, err := IssueToken(&AuthConfig{}, "ops", []string{ScopeRead}, now)
	assert.Error(t, err)

	_, err = IssueToken(cfg, "", []string{ScopeRead}, now)
	assert.Error(t, err)

	_, err = IssueToken(cfg, "ops", []string{"admin"}, now)
	assert.Error(t, err)

	token, err := IssueToken(cfg, "ops", []string{ScopeRead}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestAuthConfigValidate(t *testing.T) {
	config := DefaultConfig()
	config.Auth.Enabled = true
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server configuration")

	config.Auth.JWTSecret = "short"
	config.Auth.APIKeys = []string{"abc"}
	assert.Error(t, config.Validate())

	config.Auth.JWTSecret = testSecret
	config.Auth.APIKeys = []string{"ops-key-0001"}
	assert.NoError(t, config.Validate())
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "ops-****", maskKey("ops-key-0001"))
	assert.Equal(t, "****", maskKey("abc"))
}

// Helper functions

func newAuthServer(t *testing.T, customize func(*AuthConfig)) *testServer {
	t.Helper()
	srv := newTestServer(t, func(_ *Dependencies, c *Config) {
		c.RateLimit.Enabled = false
		c.Auth.Enabled = true
		c.Auth.APIKeys = []string{"ops-key-0001"}
		c.Auth.JWTSecret = testSecret
		if customize != nil {
			customize(&c.Auth)
		}
	})
	require.NotNil(t, srv.auth)
	srv.auth.now = func() time.Time { return now }
	return srv
}

func (s *testServer) doAuth(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
