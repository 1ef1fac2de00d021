// README: Rate sources; the default is the built-in table.
package pricing

import (
	"context"

	"ridehail/internal/types"
)

type RateSource interface {
	GetRate(ctx context.Context, rideType types.RideType) (Rate, bool)
}

// StaticRates is an in-process rate table keyed by ride type.
type StaticRates map[types.RideType]Rate

func (s StaticRates) GetRate(_ context.Context, rideType types.RideType) (Rate, bool) {
	r, ok := s[rideType]
	return r, ok
}

func DefaultRates() StaticRates {
	return StaticRates{
		types.RideTypeUberX:   {RideType: types.RideTypeUberX, BaseFare: 250, PerKm: 120, Currency: types.DefaultCurrency},
		types.RideTypeXL:      {RideType: types.RideTypeXL, BaseFare: 350, PerKm: 170, Currency: types.DefaultCurrency},
		types.RideTypeComfort: {RideType: types.RideTypeComfort, BaseFare: 300, PerKm: 150, Currency: types.DefaultCurrency},
	}
}
