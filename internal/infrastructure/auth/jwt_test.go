package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/auth"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestJWTManagerGenerateAndVerify(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager(secret, time.Minute)

	user := &domain.User{
		ID:       "user-123",
		Username: "asha",
		Role:     domain.RoleAdmin,
	}

	token, expiresAt, err := manager.Generate(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if d := time.Until(expiresAt); d <= 0 || d > time.Minute {
		t.Fatalf("expected expiry within a minute, got %v", d)
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}

	if claims.UserID != user.ID || claims.Username != user.Username || claims.Role != user.Role {
		t.Fatalf("expected claims to match user, got %+v", claims)
	}

	if claims.TokenID() == "" {
		t.Fatalf("expected a token id")
	}

	if !claims.Expiry().Equal(expiresAt.Truncate(time.Second)) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, claims.Expiry())
	}
}

func TestJWTManagerUniqueTokenIDs(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager(secret, time.Minute)
	user := &domain.User{ID: "user-1", Role: domain.RoleCustomer}

	seen := make(map[string]bool)
	for range 5 {
		token, _, err := manager.Generate(user)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		claims, err := manager.Verify(token)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if seen[claims.TokenID()] {
			t.Fatalf("duplicate token id %s", claims.TokenID())
		}
		seen[claims.TokenID()] = true
	}
}

func sign(t *testing.T, key string, method jwt.SigningMethod, claims auth.Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestJWTManagerVerifyErrors(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager(secret, time.Minute)
	now := time.Now()

	valid := func() auth.Claims {
		return auth.Claims{
			UserID: "user-1",
			Role:   domain.RoleCustomer,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti-1",
				Issuer:    "gobank",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	expired.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Minute))

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"

	noID := valid()
	noID.ID = ""

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", sign(t, secret, jwt.SigningMethodHS256, expired), domain.ErrExpiredToken},
		{"wrong secret", sign(t, "another-secret-another-secret-xx", jwt.SigningMethodHS256, valid()), domain.ErrInvalidToken},
		{"no expiry", sign(t, secret, jwt.SigningMethodHS256, noExpiry), domain.ErrInvalidToken},
		{"wrong issuer", sign(t, secret, jwt.SigningMethodHS256, wrongIssuer), domain.ErrInvalidToken},
		{"missing jti", sign(t, secret, jwt.SigningMethodHS256, noID), domain.ErrInvalidToken},
		{"malformed", "not-a-token", domain.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := manager.Verify(sign(t, secret, jwt.SigningMethodHS256, valid())); err != nil {
		t.Fatalf("expected hand-signed valid token to verify, got %v", err)
	}
}
