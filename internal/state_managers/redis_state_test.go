package state_managers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, prefix string) (*RedisStateManager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)

	sm, err := NewRedisStateManager(context.Background(), RedisOptions{Addr: srv.Addr(), KeyPrefix: prefix}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return sm, srv
}

func TestRedisStateManager_GetMissing(t *testing.T) {
	sm, _ := newTestRedis(t, "geofence")

	_, ok, err := sm.Get(context.Background(), "latitude")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStateManager_SetUsesPrefix(t *testing.T) {
	ctx := context.Background()
	sm, srv := newTestRedis(t, "geofence")

	require.NoError(t, sm.Set(ctx, "radius_of_geofence", "250"))

	raw, err := srv.Get("geofence:radius_of_geofence")
	require.NoError(t, err)
	assert.Equal(t, "250", raw)

	v, ok, err := sm.Get(ctx, "radius_of_geofence")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "250", v)
}

func TestRedisStateManager_SetAll(t *testing.T) {
	ctx := context.Background()
	sm, srv := newTestRedis(t, "")

	require.NoError(t, sm.SetAll(ctx, map[string]string{
		"latitude":              "1.5",
		"longitude":             "2.5",
		"is_location_available": "true",
	}))
	require.NoError(t, sm.SetAll(ctx, nil))

	srv.CheckGet(t, "latitude", "1.5")
	srv.CheckGet(t, "longitude", "2.5")
	srv.CheckGet(t, "is_location_available", "true")
	assert.NoError(t, sm.Ping(ctx))
}

func TestNewRedisStateManager_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewRedisStateManager(context.Background(), RedisOptions{Addr: addr}, zerolog.Nop())
	assert.Error(t, err)
}
