// README: Pricing service computes fare estimates.
package pricing

import (
	"context"
	"fmt"
	"math"

	"ridehail/internal/types"
)

type Service struct {
	rates RateSource
}

func NewService(rates RateSource) *Service {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Service{rates: rates}
}

// Estimate prices a trip of distanceKm, rounded to the nearest cent and
// never below MinimumFareCents.
func (s *Service) Estimate(ctx context.Context, distanceKm float64, rideType types.RideType) (types.Money, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return types.Money{}, ErrInvalidDistance
	}
	rate, ok := s.rates.GetRate(ctx, rideType)
	if !ok {
		return types.Money{}, ErrUnknownRideType
	}

	total := int64(math.Floor(float64(rate.BaseFare) + distanceKm*float64(rate.PerKm) + 0.5))
	if total < MinimumFareCents {
		total = MinimumFareCents
	}
	currency := rate.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return types.Money{Amount: total, Currency: currency}, nil
}

// Quote is Estimate plus the display string shown to riders.
func (s *Service) Quote(ctx context.Context, distanceKm float64, rideType types.RideType) (*Estimate, error) {
	fare, err := s.Estimate(ctx, distanceKm, rideType)
	if err != nil {
		return nil, err
	}
	return &Estimate{RideType: rideType, DistanceKm: distanceKm, Fare: fare, Display: FormatFare(fare)}, nil
}

// FormatFare renders cents as a dollar amount, e.g. 1208 -> "$12.08".
func FormatFare(m types.Money) string {
	return fmt.Sprintf("$%d.%02d", m.Amount/100, m.Amount%100)
}
