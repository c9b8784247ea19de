package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedotovn/placeorder/internal/cart/domain"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return NewRedisCache(client), mr, cleanup
}

func TestGet_Hit(t *testing.T) {
	sut, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cart := domain.NewCart("user-1", "USD").AddLine("p1", "Widget", 10.0, 2)
	cart.Version = 3
	cartJSON, _ := json.Marshal(cart)
	require.NoError(t, mr.Set(cacheKey("user-1"), string(cartJSON)))

	got, err := sut.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 2, got.QuantityOf("p1"))
}

func TestGet_Miss(t *testing.T) {
	sut, _, cleanup := setupTestRedis(t)
	defer cleanup()

	_, err := sut.Get(context.Background(), "user-1")

	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_CorruptEntry(t *testing.T) {
	sut, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set(cacheKey("user-1"), "not json"))

	_, err := sut.Get(context.Background(), "user-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_RoundTripsAndExpires(t *testing.T) {
	sut, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cart := domain.NewCart("user-1", "USD").AddLine("p1", "Widget", 10.0, 1)
	require.NoError(t, sut.Set(context.Background(), "user-1", cart))

	got, err := sut.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.QuantityOf("p1"))

	ttl := mr.TTL(cacheKey("user-1"))
	assert.GreaterOrEqual(t, ttl, sut.baseTTL)
}

func TestDelete(t *testing.T) {
	sut, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cart := domain.NewCart("user-1", "USD")
	require.NoError(t, sut.Set(context.Background(), "user-1", cart))
	require.NoError(t, sut.Delete(context.Background(), "user-1"))

	_, err := sut.Get(context.Background(), "user-1")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestDelete_AbsentKeyIsNoOp(t *testing.T) {
	sut, _, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, sut.Delete(context.Background(), "user-1"))
}
