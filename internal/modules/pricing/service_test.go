package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"ridehail/internal/types"
)

func TestService_Estimate(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		name     string
		distance float64
		rideType types.RideType
		wantFare int64
	}{
		{name: "minimum applies at zero distance", distance: 0, rideType: types.RideTypeUberX, wantFare: 500},
		{name: "minimum applies to short trips", distance: 2, rideType: types.RideTypeUberX, wantFare: 500},
		{name: "uberx linear", distance: 5.9, rideType: types.RideTypeUberX, wantFare: 958},
		{name: "xl linear", distance: 10, rideType: types.RideTypeXL, wantFare: 2050},
		{name: "comfort linear", distance: 2.5, rideType: types.RideTypeComfort, wantFare: 675},
		{name: "half cent rounds up", distance: 2.25, rideType: types.RideTypeXL, wantFare: 733},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Estimate(context.Background(), tt.distance, tt.rideType)
			if err != nil {
				t.Fatalf("estimate: %v", err)
			}
			if got.Amount != tt.wantFare {
				t.Errorf("Estimate(%v, %s) = %d, want %d", tt.distance, tt.rideType, got.Amount, tt.wantFare)
			}
			if got.Currency != types.DefaultCurrency {
				t.Errorf("unexpected currency %q", got.Currency)
			}
		})
	}
}

func TestService_EstimateRejectsBadInput(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	for _, d := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := svc.Estimate(ctx, d, types.RideTypeUberX); !errors.Is(err, ErrInvalidDistance) {
			t.Errorf("distance %v: expected ErrInvalidDistance, got %v", d, err)
		}
	}
	if _, err := svc.Estimate(ctx, 3, "BIKE"); !errors.Is(err, ErrUnknownRideType) {
		t.Errorf("expected ErrUnknownRideType, got %v", err)
	}
}

func TestService_CustomRates(t *testing.T) {
	svc := NewService(StaticRates{
		types.RideTypeXL: {RideType: types.RideTypeXL, BaseFare: 1000, PerKm: 200},
	})
	got, err := svc.Estimate(context.Background(), 1, types.RideTypeXL)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got.Amount != 1200 || got.Currency != types.DefaultCurrency {
		t.Fatalf("unexpected fare %+v", got)
	}
	if _, err := svc.Estimate(context.Background(), 1, types.RideTypeUberX); !errors.Is(err, ErrUnknownRideType) {
		t.Fatalf("expected missing rate to fail, got %v", err)
	}
}

func TestQuoteAndFormatFare(t *testing.T) {
	q, err := NewService(nil).Quote(context.Background(), 5.9, types.RideTypeUberX)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Display != "$9.58" {
		t.Fatalf("unexpected display %q", q.Display)
	}
	if got := FormatFare(types.Cents(1208)); got != "$12.08" {
		t.Fatalf("unexpected format %q", got)
	}
}
