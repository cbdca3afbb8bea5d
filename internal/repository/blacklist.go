package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "bl:"

// TokenBlacklist remembers access tokens that were logged out before they
// expired.  Keys are "bl:<jti>" and live exactly as long as the token.
// A nil client turns every call into a no-op.
type TokenBlacklist struct {
	rdb *redis.Client
}

func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (b *TokenBlacklist) Enabled() bool { return b != nil && b.rdb != nil }

// Add blacklists jti for ttl.  Tokens that are already expired are skipped.
func (b *TokenBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if !b.Enabled() || jti == "" || ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, blacklistPrefix+jti, 1, ttl).Err()
}

// Contains reports whether jti has been blacklisted.
func (b *TokenBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	if !b.Enabled() || jti == "" {
		return false, nil
	}
	err := b.rdb.Get(ctx, blacklistPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
