package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedTokenPrefix = "auth:revoked:%s"

// RevokedTokenKey returns the Redis key marking a token id as revoked.
func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(revokedTokenPrefix, jti)
}

// TokenRevocations stores logged-out token ids until they would have expired.
type TokenRevocations struct {
	rdb *redis.Client
}

// NewTokenRevocations creates a revocation store. A nil client makes every
// operation a no-op.
func NewTokenRevocations(rdb *redis.Client) *TokenRevocations {
	return &TokenRevocations{rdb: rdb}
}

// Revoke marks jti as revoked until expiresAt.
func (r *TokenRevocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if r == nil || r.rdb == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, RevokedTokenKey(jti), "1", ttl).Err()
}

// IsRevoked reports whether jti was revoked.
func (r *TokenRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r == nil || r.rdb == nil {
		return false, nil
	}
	err := r.rdb.Get(ctx, RevokedTokenKey(jti)).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
