package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "dashboard:today", []byte("a"), time.Minute))
	got, ok, err := m.Get(ctx, "dashboard:today")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), got)

	now = now.Add(time.Minute)
	_, ok, err = m.Get(ctx, "dashboard:today")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires after ttl")

	require.NoError(t, m.Set(ctx, "never", []byte("b"), 0))
	_, ok, _ = m.Get(ctx, "never")
	assert.False(t, ok, "zero ttl disables caching")
}

func TestMemoryDeletePrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "dashboard:a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "dashboard:b", []byte("2"), time.Minute))
	require.NoError(t, m.Set(ctx, "report:a", []byte("3"), time.Minute))

	require.NoError(t, m.DeletePrefix(ctx, "dashboard:"))

	_, ok, _ := m.Get(ctx, "dashboard:a")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "report:a")
	assert.True(t, ok)
}

type payload struct {
	Total int `json:"total"`
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	calls := 0
	load := func() (payload, error) {
		calls++
		return payload{Total: 42}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Remember(ctx, m, zap.NewNop(), "k", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 42, v.Total)
	}
	assert.Equal(t, 1, calls)

	_, err := Remember(ctx, m, zap.NewNop(), "failing", time.Minute, func() (payload, error) {
		return payload{}, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
	_, ok, _ := m.Get(ctx, "failing")
	assert.False(t, ok, "errors are not cached")
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("unreachable")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("unreachable")
}
func (brokenCache) DeletePrefix(context.Context, string) error { return nil }

func TestRememberSurvivesCacheOutage(t *testing.T) {
	v, err := Remember(context.Background(), brokenCache{}, zap.NewNop(), "k", time.Minute, func() (payload, error) {
		return payload{Total: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v.Total)
}

func TestNewRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
