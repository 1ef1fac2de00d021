// README: Ride aggregate, status definitions and the conditional transition shape.
package ride

import (
	"time"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

type Status string

const (
	StatusNone           Status = ""
	StatusRequested      Status = "REQUESTED"
	StatusDriverAssigned Status = "DRIVER_ASSIGNED"
	StatusAccepted       Status = "ACCEPTED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// IncomingLimit caps the driver's incoming-offer list.
const IncomingLimit = 20

var (
	ErrNotFound         = apperr.NotFound("RIDE_NOT_FOUND", "ride not found")
	ErrRideNotAvailable = apperr.Conflict("RIDE_NOT_AVAILABLE", "ride is not available")
	ErrInvalidState     = apperr.Conflict("INVALID_STATE", "invalid state transition")
	ErrInvalidRideType  = apperr.Validation("INVALID_RIDE_TYPE", "unknown ride type")
	ErrInvalidLocation  = apperr.Validation("INVALID_LOCATION", "invalid pickup or dropoff coordinates")
	ErrBadRequest       = apperr.Validation("BAD_REQUEST", "bad request")
)

type Place struct {
	Point   types.Point `json:"point"`
	Address string      `json:"address"`
}

type Ride struct {
	ID               types.ID       `json:"id"`
	RiderID          types.ID       `json:"riderId"`
	RideType         types.RideType `json:"rideType"`
	Pickup           Place          `json:"pickup"`
	Dropoff          Place          `json:"dropoff"`
	DistanceKm       float64        `json:"distanceKm"`
	EstimatedFare    types.Money    `json:"estimatedFare"`
	Status           Status         `json:"status"`
	StatusVersion    int            `json:"statusVersion"`
	AssignedDriverID *types.ID      `json:"assignedDriverId"`
	CreatedAt        time.Time      `json:"createdAt"`
	AssignedAt       *time.Time     `json:"assignedAt,omitempty"`
	AcceptedAt       *time.Time     `json:"acceptedAt,omitempty"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	CancelledAt      *time.Time     `json:"cancelledAt,omitempty"`
}

func (r *Ride) clone() *Ride {
	out := *r
	out.AssignedDriverID = clonePtr(r.AssignedDriverID)
	out.AssignedAt = clonePtr(r.AssignedAt)
	out.AcceptedAt = clonePtr(r.AcceptedAt)
	out.CompletedAt = clonePtr(r.CompletedAt)
	out.CancelledAt = clonePtr(r.CancelledAt)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"rideId"`
	FromStatus Status    `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	ActorType  string    `json:"actorType"`
	ActorID    *types.ID `json:"actorId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:      {StatusDriverAssigned, StatusCancelled},
	StatusDriverAssigned: {StatusAccepted, StatusRequested, StatusCancelled},
	StatusAccepted:       {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// DriverMatch is the assignedDriverId half of a transition precondition.
type DriverMatch struct {
	any    bool
	driver *types.ID
}

// AnyDriver skips the driver check.
func AnyDriver() DriverMatch { return DriverMatch{any: true} }

// NoDriver requires that no driver is assigned.
func NoDriver() DriverMatch { return DriverMatch{} }

// Driver requires that id is the assigned driver.
func Driver(id types.ID) DriverMatch { return DriverMatch{driver: id.Ptr()} }

func (m DriverMatch) IsAny() bool { return m.any }

// Expected returns the required driver, nil meaning none. Meaningless when IsAny.
func (m DriverMatch) Expected() *types.ID { return m.driver }

func (m DriverMatch) Matches(current *types.ID) bool {
	return m.any || types.SameID(m.driver, current)
}

// Patch holds the extra fields a transition writes along with the status.
// At is stamped into the timestamp that belongs to the target status.
type Patch struct {
	AssignDriver *types.ID
	ClearDriver  bool
	At           time.Time
}

// Transition is a compare-and-swap over (status, assignedDriverId).
type Transition struct {
	RideID types.ID
	From   Status
	Driver DriverMatch
	To     Status
	Patch  Patch
}

// Holds reports whether r satisfies the transition's precondition.
func (t Transition) Holds(r *Ride) bool {
	return r.Status == t.From && t.Driver.Matches(r.AssignedDriverID)
}

// Apply writes the target status and patch into r.
func (t Transition) Apply(r *Ride) {
	r.Status = t.To
	r.StatusVersion++
	switch {
	case t.Patch.ClearDriver:
		r.AssignedDriverID = nil
		r.AssignedAt = nil
	case t.Patch.AssignDriver != nil:
		r.AssignedDriverID = t.Patch.AssignDriver.Ptr()
	}
	at := t.Patch.At
	switch t.To {
	case StatusDriverAssigned:
		r.AssignedAt = &at
	case StatusAccepted:
		r.AcceptedAt = &at
	case StatusCompleted:
		r.CompletedAt = &at
	case StatusCancelled:
		r.CancelledAt = &at
	}
}
