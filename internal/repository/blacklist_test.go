package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlacklist(t *testing.T) (*TokenBlacklist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenBlacklist(rdb), mr
}

func TestTokenBlacklist_AddContains(t *testing.T) {
	bl, mr := newTestBlacklist(t)
	ctx := context.Background()

	ok, err := bl.Contains(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "abc", time.Minute))
	ok, err = bl.Contains(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("bl:abc"))
	assert.Equal(t, time.Minute, mr.TTL("bl:abc"))

	mr.FastForward(2 * time.Minute)
	ok, err = bl.Contains(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBlacklist_SkipsExpired(t *testing.T) {
	bl, mr := newTestBlacklist(t)
	require.NoError(t, bl.Add(context.Background(), "gone", 0))
	assert.False(t, mr.Exists("bl:gone"))
}

func TestTokenBlacklist_NilClient(t *testing.T) {
	bl := NewTokenBlacklist(nil)
	assert.False(t, bl.Enabled())
	require.NoError(t, bl.Add(context.Background(), "x", time.Minute))
	ok, err := bl.Contains(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
	assert.Equal(t, []any{uint64(1), uint64(2)}, idArgs([]uint64{1, 2}))
}

func TestValidMovieSort(t *testing.T) {
	assert.True(t, ValidMovieSort(""))
	assert.True(t, ValidMovieSort("-price"))
	assert.False(t, ValidMovieSort("price; DROP TABLE movies"))
}
