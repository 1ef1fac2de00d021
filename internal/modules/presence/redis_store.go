// README: Presence store backed by Redis hashes plus a GEO set of located drivers.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

const (
	driverKeyPrefix = "presence:driver:%s"
	driverGeoKey    = "presence:geo"

	fieldAccountID   = "account_id"
	fieldStatus      = "status"
	fieldLat         = "lat"
	fieldLng         = "lng"
	fieldCaps        = "caps"
	fieldDeviceToken = "device_token"
	fieldLastSeen    = "last_seen"
	fieldCreatedAt   = "created_at"
)

// Redis GEO uses a slightly different earth radius and quantises positions,
// so the radius query is padded and the exact cut happens in the service.
const (
	geoPadRatio = 1.01
	geoPadKm    = 0.05
)

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) Upsert(ctx context.Context, u Update) (*Record, error) {
	key := driverKey(u.DriverID)
	at := strconv.FormatInt(u.At.UnixNano(), 10)

	var all *redis.MapStringStringCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Defaults for a record seen for the first time.
		pipe.HSetNX(ctx, key, fieldAccountID, string(u.DriverID))
		pipe.HSetNX(ctx, key, fieldStatus, string(StatusOffline))
		pipe.HSetNX(ctx, key, fieldCaps, joinCaps(DefaultCapabilities))
		pipe.HSetNX(ctx, key, fieldCreatedAt, at)
		pipe.HSetNX(ctx, key, fieldLastSeen, at)

		fields := map[string]interface{}{}
		if u.AccountID != "" {
			fields[fieldAccountID] = string(u.AccountID)
		}
		if u.Status != nil {
			fields[fieldStatus] = string(*u.Status)
		}
		if u.Location != nil {
			fields[fieldLat] = formatFloat(u.Location.Lat)
			fields[fieldLng] = formatFloat(u.Location.Lng)
		}
		if len(u.Capabilities) > 0 {
			fields[fieldCaps] = joinCaps(u.Capabilities)
		}
		if u.DeviceToken != nil {
			fields[fieldDeviceToken] = *u.DeviceToken
		}
		if u.Touch {
			fields[fieldLastSeen] = at
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		if u.Location != nil {
			pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
				Name:      string(u.DriverID),
				Longitude: u.Location.Lng,
				Latitude:  u.Location.Lat,
			})
		}
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, apperr.Store("presence.upsert", err)
	}
	r, err := decodeRecord(u.DriverID, all.Val())
	if err != nil {
		return nil, apperr.Store("presence.upsert", err)
	}
	return r, nil
}

func (s *RedisStore) Get(ctx context.Context, driverID types.ID) (*Record, error) {
	vals, err := s.redis.HGetAll(ctx, driverKey(driverID)).Result()
	if err != nil {
		return nil, apperr.Store("presence.get", err)
	}
	if len(vals) == 0 {
		return nil, ErrDriverNotFound
	}
	r, err := decodeRecord(driverID, vals)
	if err != nil {
		return nil, apperr.Store("presence.get", err)
	}
	return r, nil
}

func (s *RedisStore) Candidates(ctx context.Context, near types.Point, radiusKm float64) ([]Record, error) {
	locs, err := s.redis.GeoRadius(ctx, driverGeoKey, near.Lng, near.Lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm*geoPadRatio + geoPadKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, apperr.Store("presence.candidates", err)
	}
	if len(locs) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(locs))
	for i, l := range locs {
		cmds[i] = pipe.HGetAll(ctx, driverKey(types.ID(l.Name)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Store("presence.candidates", err)
	}

	out := make([]Record, 0, len(locs))
	for i, l := range locs {
		vals := cmds[i].Val()
		if len(vals) == 0 {
			continue
		}
		r, err := decodeRecord(types.ID(l.Name), vals)
		if err != nil {
			return nil, apperr.Store("presence.candidates", err)
		}
		out = append(out, *r)
	}
	return out, nil
}

func decodeRecord(driverID types.ID, vals map[string]string) (*Record, error) {
	r := &Record{
		DriverID:    driverID,
		AccountID:   types.ID(vals[fieldAccountID]),
		Status:      Status(vals[fieldStatus]),
		DeviceToken: vals[fieldDeviceToken],
	}
	if caps := vals[fieldCaps]; caps != "" {
		for _, c := range strings.Split(caps, ",") {
			r.Capabilities = append(r.Capabilities, types.RideType(c))
		}
	}
	var err error
	if r.LastSeenAt, err = parseNanos(vals[fieldLastSeen]); err != nil {
		return nil, fmt.Errorf("driver %s last_seen: %w", driverID, err)
	}
	if r.CreatedAt, err = parseNanos(vals[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("driver %s created_at: %w", driverID, err)
	}
	latStr, lngStr := vals[fieldLat], vals[fieldLng]
	if latStr != "" && lngStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("driver %s lat: %w", driverID, err)
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			return nil, fmt.Errorf("driver %s lng: %w", driverID, err)
		}
		r.Location = &types.Point{Lat: lat, Lng: lng}
	}
	return r, nil
}

func driverKey(id types.ID) string {
	return fmt.Sprintf(driverKeyPrefix, string(id))
}

func joinCaps(caps []types.RideType) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseNanos(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}
