// README: Assignment result and matching errors.
package matching

import (
	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

type Assignment struct {
	RideID     types.ID `json:"rideId"`
	DriverID   types.ID `json:"driverId"`
	DistanceKm float64  `json:"distanceKm"`
}

var (
	ErrAlreadyAssigned    = apperr.Conflict("ALREADY_ASSIGNED", "ride already has a driver")
	ErrRideNotAssignable  = apperr.Conflict("RIDE_NOT_ASSIGNABLE", "ride is closed and cannot be assigned")
	ErrNoDriversAvailable = apperr.Unavailable("NO_DRIVERS_AVAILABLE", "no drivers available nearby")
)

// outcome labels for observability.AssignmentsTotal.
const (
	outcomeAssigned        = "assigned"
	outcomeAlreadyAssigned = "already_assigned"
	outcomeNoDrivers       = "no_drivers"
	outcomeNotAssignable   = "not_assignable"
	outcomeError           = "error"
)
