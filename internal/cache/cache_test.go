package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, time.Minute), mr
}

func TestRedis_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	_, found, err := c.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)

	want := &domain.Metrics{
		MRR: 139.9, ActiveSubscribers: 2, ARPU: 69.95,
		PlanMix: []domain.PlanMixEntry{{Plan: "Gold", Subscribers: 2}},
	}
	require.NoError(t, c.Set(ctx, "t1", want))
	assert.True(t, mr.Exists("billing:metrics:t1"))

	got, found, err := c.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedis_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "t1", domain.EmptyMetrics()))
	require.NoError(t, c.Invalidate(ctx, "t1"))

	_, found, err := c.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedis_EmptyPlanMixStaysNonNil(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "t1", domain.EmptyMetrics()))
	got, found, err := c.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, got.PlanMix)
	assert.Empty(t, got.PlanMix)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Dial(context.Background(), "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = Dial(context.Background(), "not a url", time.Minute)
	assert.Error(t, err)
}
