// README: Pricing rate definition for each ride type.
package pricing

import (
	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

// Rate is a linear fare: BaseFare + PerKm * distance, both in cents.
type Rate struct {
	RideType types.RideType
	BaseFare int64
	PerKm    int64
	Currency string
}

// MinimumFareCents is the floor applied to every estimate.
const MinimumFareCents = 500

var (
	ErrInvalidDistance = apperr.Validation("INVALID_DISTANCE", "distance must be a non-negative number")
	ErrUnknownRideType = apperr.Validation("INVALID_RIDE_TYPE", "unknown ride type")
)

type Estimate struct {
	RideType   types.RideType `json:"rideType"`
	DistanceKm float64        `json:"distanceKm"`
	Fare       types.Money    `json:"fare"`
	Display    string         `json:"display"`
}
