// README: Driver presence record, reachability rules and store update shape.
package presence

import (
	"math"
	"slices"
	"time"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

type Status string

const (
	StatusOffline Status = "OFFLINE"
	StatusOnline  Status = "ONLINE"
)

func (s Status) Valid() bool {
	return s == StatusOffline || s == StatusOnline
}

const (
	// FreshnessWindow is how old a heartbeat may be for the driver to stay reachable.
	FreshnessWindow = 2 * time.Minute
	DefaultRadiusKm = 5.0

	// MaxLatitude is the widest latitude a geo index will store.
	MaxLatitude = 85.05112878
)

var DefaultCapabilities = []types.RideType{types.RideTypeUberX}

var (
	ErrDriverNotFound  = apperr.NotFound("DRIVER_NOT_FOUND", "driver not found")
	ErrInvalidRideType = apperr.Validation("INVALID_RIDE_TYPE", "unknown ride type")
	ErrInvalidLocation = apperr.Validation("INVALID_LOCATION", "invalid coordinates")
	ErrInvalidStatus   = apperr.Validation("INVALID_STATUS", "status must be ONLINE or OFFLINE")
	ErrMissingDriver   = apperr.Validation("MISSING_DRIVER_ID", "driver id is required")
)

// validLocation rejects points a geo index cannot hold, so every store
// accepts the same inputs.
func validLocation(p types.Point) error {
	if p.Validate() != nil || math.Abs(p.Lat) > MaxLatitude {
		return ErrInvalidLocation
	}
	return nil
}

type Record struct {
	DriverID     types.ID         `json:"driverId"`
	AccountID    types.ID         `json:"accountId"`
	Status       Status           `json:"status"`
	Location     *types.Point     `json:"location,omitempty"`
	Capabilities []types.RideType `json:"capabilities"`
	DeviceToken  string           `json:"-"`
	LastSeenAt   time.Time        `json:"lastSeenAt"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func (r Record) Serves(t types.RideType) bool {
	return slices.Contains(r.Capabilities, t)
}

// ReachableSince reports whether the driver can be offered a ride of type t,
// given that heartbeats older than cutoff no longer count.
func (r Record) ReachableSince(cutoff time.Time, t types.RideType) bool {
	return r.Status == StatusOnline &&
		r.Location != nil &&
		!r.LastSeenAt.Before(cutoff) &&
		r.Serves(t)
}

func (r Record) clone() Record {
	out := r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	out.Capabilities = slices.Clone(r.Capabilities)
	return out
}

// Update is applied create-if-absent, else update. Nil fields keep the
// stored value; a new record starts OFFLINE with DefaultCapabilities.
type Update struct {
	DriverID     types.ID
	AccountID    types.ID
	Status       *Status
	Location     *types.Point
	Capabilities []types.RideType
	DeviceToken  *string
	At           time.Time
	// Touch refreshes LastSeenAt. Heartbeats and status toggles set it.
	Touch bool
}

func (u Update) apply(r *Record, created bool) {
	if created {
		r.DriverID = u.DriverID
		r.AccountID = u.DriverID
		r.Status = StatusOffline
		r.Capabilities = slices.Clone(DefaultCapabilities)
		r.CreatedAt = u.At
		r.LastSeenAt = u.At
	}
	if u.AccountID != "" {
		r.AccountID = u.AccountID
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Location != nil {
		loc := *u.Location
		r.Location = &loc
	}
	if len(u.Capabilities) > 0 {
		r.Capabilities = slices.Clone(u.Capabilities)
	}
	if u.DeviceToken != nil {
		r.DeviceToken = *u.DeviceToken
	}
	if u.Touch {
		r.LastSeenAt = u.At
	}
}

type Query struct {
	Near     types.Point
	RadiusKm float64
	RideType types.RideType
	// Now is the reference time for the freshness check; zero means the service clock.
	Now time.Time
}

type Reachable struct {
	DriverID   types.ID    `json:"driverId"`
	Location   types.Point `json:"location"`
	DistanceKm float64     `json:"distanceKm"`
}
