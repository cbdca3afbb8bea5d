package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCodecRoundTrip(t *testing.T) {
	c := NewTokenCodec("access-secret", "refresh-secret")

	issued, err := c.Issue(42, KindAccess, "USER", 15*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Claims.ID)

	claims, err := c.Decode(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, "USER", claims.Role)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.WithinDuration(t, issued.Exp(), claims.Expiry(), time.Second)
}

func TestTokenCodecRejectsWrongKind(t *testing.T) {
	c := NewTokenCodec("access-secret", "refresh-secret")

	refresh, err := c.Issue(7, KindRefresh, "", 24*time.Hour)
	require.NoError(t, err)

	_, err = c.DecodeKind(refresh.Token, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := c.DecodeKind(refresh.Token, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
}

func TestTokenCodecDetectsTampering(t *testing.T) {
	c := NewTokenCodec("access-secret", "")
	issued, err := c.Issue(1, KindAccess, "ADMIN", time.Minute)
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenCodec("another-secret", "")
	_, err = other.Decode(issued.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.Decode("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodecExpiry(t *testing.T) {
	c := NewTokenCodec("access-secret", "")
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	issued, err := c.Issue(3, KindAccess, "USER", time.Minute)
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = c.Decode(issued.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestOpaqueTokenHashing(t *testing.T) {
	a, err := NewOpaqueToken()
	require.NoError(t, err)
	b, err := NewOpaqueToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, a, HashToken(a))
	assert.Len(t, HashToken(a), 64)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("S3cret!pass", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "S3cret!pass"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}
