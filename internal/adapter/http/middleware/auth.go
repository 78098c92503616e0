package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/auth"
	"github.com/iho/gobank/internal/infrastructure/logger"
	"github.com/iho/gobank/internal/infrastructure/metrics"
	"github.com/iho/gobank/internal/usecase"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Session describes the token a request was authenticated with.
type Session struct {
	TokenID   string
	ExpiresAt time.Time
}

type sessionKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session of the current request.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Authenticator resolves bearer tokens into users.
type Authenticator struct {
	verifier TokenVerifier
	revoked  usecase.TokenStore
	metrics  *metrics.Metrics
}

// NewAuthenticator creates an Authenticator. revoked and m may be nil.
func NewAuthenticator(verifier TokenVerifier, revoked usecase.TokenStore, m *metrics.Metrics) *Authenticator {
	return &Authenticator{verifier: verifier, revoked: revoked, metrics: m}
}

// Require rejects requests without a valid, unrevoked bearer token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.reject(w, "missing or malformed authorization header")
			return
		}

		claims, err := a.verifier.Verify(token)
		if err != nil {
			a.reject(w, err.Error())
			return
		}

		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(r.Context(), claims.TokenID())
			if err != nil {
				logger.FromContext(r.Context()).Error().Err(err).Msg("token revocation check failed")
				writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "cannot verify session")
				return
			}
			if revoked {
				a.reject(w, "token has been revoked")
				return
			}
		}

		user := &domain.User{
			ID:       claims.UserID,
			Username: claims.Username,
			Role:     claims.Role,
			Active:   true,
		}

		ctx := domain.WithUser(r.Context(), user)
		ctx = WithSession(ctx, Session{TokenID: claims.TokenID(), ExpiresAt: claims.Expiry()})
		ctx = logger.WithFields(ctx, map[string]string{"user_id": user.ID})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, message string) {
	if a.metrics != nil {
		a.metrics.AuthAttempts.WithLabelValues("rejected").Inc()
	}
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", message)
}

// RequireRole admits only users holding role.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := domain.UserFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", domain.ErrUnauthorized.Error())
				return
			}

			if user.Role != role {
				writeJSONError(w, http.StatusForbidden, "forbidden", domain.ErrInsufficientRole.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: code, Message: message})
}
