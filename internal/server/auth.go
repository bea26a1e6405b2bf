package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

// Access scopes. Reads need ScopeRead, batch runs and ad hoc scoring need
// ScopeWrite.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

const principalKey contextKey = "principal"

// AuthConfig contains API authentication settings. Only routes under the
// API prefix are protected.
type AuthConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	APIKeys        []string      `json:"api_keys" yaml:"api_keys" mapstructure:"api_keys"`
	JWTSecret      string        `json:"jwt_secret" yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTIssuer      string        `json:"jwt_issuer" yaml:"jwt_issuer" mapstructure:"jwt_issuer"`
	JWTExpiration  time.Duration `json:"jwt_expiration" yaml:"jwt_expiration" mapstructure:"jwt_expiration"`
	AllowAnonymous bool          `json:"allow_anonymous" yaml:"allow_anonymous" mapstructure:"allow_anonymous"`
}

// TokenLifetime is the configured JWT expiration, 24h when unset
func (c *AuthConfig) TokenLifetime() time.Duration {
	if c.JWTExpiration <= 0 {
		return 24 * time.Hour
	}
	return c.JWTExpiration
}

// Principal is the caller a request was authenticated as
type Principal struct {
	Subject string   `json:"subject"`
	Method  string   `json:"method"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the principal was granted scope
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Claims are the JWT claims accepted by the API
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject with the given scopes
func IssueToken(cfg *AuthConfig, subject string, scopes []string, now time.Time) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.NewConfigurationError(errors.CodeMissingField, "JWT secret not configured")
	}
	if subject == "" {
		return "", errors.NewValidationError(errors.CodeMissingField, "token subject is required")
	}
	for _, s := range scopes {
		if s != ScopeRead && s != ScopeWrite {
			return "", errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("unknown scope %q", s))
		}
	}

	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenLifetime())),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to sign token")
	}
	return signed, nil
}

// PrincipalFromContext returns the principal stored by the auth middleware
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

type authenticator struct {
	config *AuthConfig
	logger *logrus.Logger
	now    func() time.Time
}

func newAuthenticator(config *AuthConfig, logger *logrus.Logger) *authenticator {
	return &authenticator{config: config, logger: logger, now: time.Now}
}

// authenticate tries a bearer token, then an API key, then anonymous access
func (a *authenticator) authenticate(r *http.Request) (*Principal, error) {
	if header := r.Header.Get(constants.HeaderAuthorization); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || a.config.JWTSecret == "" {
			return nil, unauthorized("unsupported authorization scheme")
		}
		return a.parseToken(strings.TrimSpace(raw))
	}

	if key := r.Header.Get(constants.HeaderAPIKey); key != "" {
		if !a.validAPIKey(key) {
			return nil, unauthorized("invalid API key")
		}
		return &Principal{
			Subject: "apikey:" + maskKey(key),
			Method:  "api_key",
			Scopes:  []string{ScopeRead, ScopeWrite},
		}, nil
	}

	if a.config.AllowAnonymous {
		return &Principal{Subject: "anonymous", Method: "anonymous", Scopes: []string{ScopeRead}}, nil
	}
	return nil, unauthorized("authentication required")
}

func (a *authenticator) parseToken(raw string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.config.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.JWTIssuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(a.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, unauthorized("invalid token").WithCause(err)
	}
	if claims.Subject == "" {
		return nil, unauthorized("token has no subject")
	}
	return &Principal{Subject: claims.Subject, Method: "jwt", Scopes: claims.Scopes}, nil
}

func (a *authenticator) validAPIKey(key string) bool {
	for _, valid := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// requiredScope maps the request method to the scope it needs
func requiredScope(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeRead
	default:
		return ScopeWrite
	}
}

// authMiddleware authenticates API requests and checks their scope. Health,
// version and metrics endpoints stay public.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || r.Method == http.MethodOptions || !strings.HasPrefix(r.URL.Path, constants.APIPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.auth.authenticate(r)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"path":       r.URL.Path,
				"method":     r.Method,
				"client_ip":  getClientIP(r),
				"request_id": getRequestID(r),
			}).WithError(err).Warn("Authentication failed")
			writeError(w, r, err)
			return
		}

		scope := requiredScope(r.Method)
		if !principal.HasScope(scope) {
			s.logger.WithFields(logrus.Fields{
				"subject":    principal.Subject,
				"scope":      scope,
				"path":       r.URL.Path,
				"request_id": getRequestID(r),
			}).Warn("Insufficient scope")
			err := errors.NewValidationError(errors.CodeForbidden, fmt.Sprintf("%s scope required", scope))
			err.HTTPStatus = http.StatusForbidden
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(message string) *errors.AppError {
	err := errors.NewValidationError(errors.CodeUnauthorized, message)
	err.HTTPStatus = http.StatusUnauthorized
	return err
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
