package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore implements usecase.TokenStore. A revoked token id is kept until
// the token would have expired on its own.
type TokenStore struct {
	client redis.Cmdable
	prefix string
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(client redis.Cmdable) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: "gobank:revoked:",
	}
}

// Revoke marks tokenID as revoked for ttl.
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.prefix+tokenID, 1, ttl).Err()
}

// IsRevoked reports whether tokenID was revoked.
func (s *TokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
