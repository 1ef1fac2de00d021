package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStore_UpsertCreatesWithDefaults(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	online := StatusOnline

	r, err := store.Upsert(ctx, Update{DriverID: "d1", Status: &online, At: at, Touch: true})
	require.NoError(t, err)

	assert.Equal(t, types.ID("d1"), r.DriverID)
	assert.Equal(t, types.ID("d1"), r.AccountID)
	assert.Equal(t, StatusOnline, r.Status)
	assert.Nil(t, r.Location)
	assert.Equal(t, []types.RideType{types.RideTypeUberX}, r.Capabilities)
	assert.True(t, r.LastSeenAt.Equal(at))
	assert.True(t, r.CreatedAt.Equal(at))

	assert.True(t, mr.Exists("presence:driver:d1"))
	assert.False(t, mr.Exists(driverGeoKey), "unlocated drivers stay out of the geo set")
}

func TestRedisStore_UpsertUpdatesInPlace(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	loc := types.Point{Lat: 40.01, Lng: -73.0}
	online := StatusOnline

	_, err := store.Upsert(ctx, Update{DriverID: "d1", Status: &online, Location: &loc, At: t0, Touch: true})
	require.NoError(t, err)

	token := "device-token"
	t1 := t0.Add(30 * time.Second)
	r, err := store.Upsert(ctx, Update{
		DriverID:     "d1",
		AccountID:    "acct-1",
		Capabilities: []types.RideType{types.RideTypeXL, types.RideTypeComfort},
		DeviceToken:  &token,
		At:           t1,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ID("acct-1"), r.AccountID)
	assert.Equal(t, StatusOnline, r.Status, "status kept when not supplied")
	require.NotNil(t, r.Location)
	assert.Equal(t, loc, *r.Location)
	assert.Equal(t, []types.RideType{types.RideTypeXL, types.RideTypeComfort}, r.Capabilities)
	assert.Equal(t, "device-token", r.DeviceToken)
	assert.True(t, r.LastSeenAt.Equal(t0), "lastSeenAt only moves on touch")
	assert.True(t, r.CreatedAt.Equal(t0))

	got, err := store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, store := setupMiniredis(t)
	_, err := store.Get(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrDriverNotFound))
}

func TestRedisStore_Candidates(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()
	at := time.Now().UTC()
	online := StatusOnline

	for id, loc := range map[types.ID]types.Point{
		"A": {Lat: 40.01, Lng: -73.0},
		"B": {Lat: 40.5, Lng: -73.0},
		"C": {Lat: 40.03, Lng: -73.0},
	} {
		loc := loc
		_, err := store.Upsert(ctx, Update{DriverID: id, Status: &online, Location: &loc, At: at, Touch: true})
		require.NoError(t, err)
	}

	got, err := store.Candidates(ctx, types.Point{Lat: 40.0, Lng: -73.0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ID("A"), got[0].DriverID)
	assert.Equal(t, types.ID("C"), got[1].DriverID)
	require.NotNil(t, got[0].Location)
	assert.Equal(t, 40.01, got[0].Location.Lat, "coordinates come from the hash, not the geo index")
}

func TestRedisStore_ServiceAgreesWithMemory(t *testing.T) {
	_, redisStore := setupMiniredis(t)
	ctx := context.Background()

	for _, store := range []Store{NewMemoryStore(), redisStore} {
		svc, now := newTestService(store, nil)
		start := *now
		near := types.Point{Lat: 40.001, Lng: -73.0}

		mustReport(t, svc, "fresh", StatusOnline, &near)
		*now = start.Add(-150 * time.Second)
		mustReport(t, svc, "stale", StatusOnline, &near)
		*now = start

		got, err := svc.FindReachable(ctx, Query{Near: pickup, RadiusKm: 5, RideType: types.RideTypeUberX})
		require.NoError(t, err)
		assert.Equal(t, []types.ID{"fresh"}, driverIDs(got))
	}
}

func TestRedisStore_PolarReportRejectedLikeMemory(t *testing.T) {
	mr, redisStore := setupMiniredis(t)
	ctx := context.Background()
	polar := types.Point{Lat: 87, Lng: 10}

	for _, store := range []Store{NewMemoryStore(), redisStore} {
		svc, _ := newTestService(store, nil)

		_, err := svc.ReportPresence(ctx, ReportCommand{DriverID: "polar", Status: StatusOnline, Location: &polar})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidLocation))
		assert.True(t, errors.Is(err, apperr.ErrValidation))
		assert.False(t, errors.Is(err, apperr.ErrStore))

		_, err = svc.Get(ctx, "polar")
		assert.True(t, errors.Is(err, ErrDriverNotFound), "a rejected report leaves no record")
	}
	assert.False(t, mr.Exists("presence:driver:polar"))
	assert.False(t, mr.Exists(driverGeoKey))

	edge := types.Point{Lat: MaxLatitude, Lng: 10}
	svc, _ := newTestService(redisStore, nil)
	r := mustReport(t, svc, "edge", StatusOnline, &edge)
	assert.Equal(t, StatusOnline, r.Status)
	assert.True(t, mr.Exists(driverGeoKey))
}

func TestRedisStore_FaultIsStoreError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)
	mr.Close()

	_, err = store.Get(context.Background(), "d1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStore))
	assert.False(t, errors.Is(err, ErrDriverNotFound))
}
