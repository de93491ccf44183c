package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
)

func TestNewLimiterStore_Redis(t *testing.T) {
	_, client := newTestRedis(t)

	store, err := NewLimiterStore(client, "test-otp")
	require.NoError(t, err)

	l := limiter.New(store, limiter.Rate{Period: time.Minute, Limit: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Get(ctx, "a@nova.io")
		require.NoError(t, err)
		assert.False(t, res.Reached)
	}

	res, err := l.Get(ctx, "a@nova.io")
	require.NoError(t, err)
	assert.True(t, res.Reached)

	res, err = l.Get(ctx, "b@nova.io")
	require.NoError(t, err)
	assert.False(t, res.Reached, "счётчики разных ключей независимы")
}
