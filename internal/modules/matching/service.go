// README: Matching engine; picks the nearest reachable driver and claims the ride with a CAS.
package matching

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/ride"
	"ridehail/internal/notify"
	"ridehail/internal/observability"
	"ridehail/internal/types"
)

type RideStore interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	Transition(ctx context.Context, t ride.Transition, actor ride.Actor) (bool, error)
}

type DriverFinder interface {
	FindReachable(ctx context.Context, q presence.Query) ([]presence.Reachable, error)
}

type Service struct {
	rides    RideStore
	drivers  DriverFinder
	notifier notify.Notifier
	radiusKm float64
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(rides RideStore, drivers DriverFinder, notifier notify.Notifier, radiusKm float64, log logrus.FieldLogger) *Service {
	if radiusKm <= 0 {
		radiusKm = presence.DefaultRadiusKm
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		rides:    rides,
		drivers:  drivers,
		notifier: notifier,
		radiusKm: radiusKm,
		log:      log,
		now:      time.Now,
	}
}

// Assign binds the nearest reachable driver to a REQUESTED ride. It makes a
// single attempt: losing the race to another assigner is ErrAlreadyAssigned.
func (s *Service) Assign(ctx context.Context, rideID types.ID) (*Assignment, error) {
	start := time.Now()
	a, err := s.assign(ctx, rideID)
	observability.AssignLatency.Observe(time.Since(start).Seconds())
	observability.AssignmentsTotal.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":     a.RideID,
		"driver_id":   a.DriverID,
		"distance_km": a.DistanceKm,
	}).Info("ride assigned")
	s.notifyDriver(ctx, a)
	return a, nil
}

func (s *Service) assign(ctx context.Context, rideID types.ID) (*Assignment, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.AssignedDriverID != nil {
		return nil, ErrAlreadyAssigned
	}
	if r.Status != ride.StatusRequested {
		return nil, ErrRideNotAssignable
	}

	candidates, err := s.drivers.FindReachable(ctx, presence.Query{
		Near:     r.Pickup.Point,
		RadiusKm: s.radiusKm,
		RideType: r.RideType,
	})
	if err != nil {
		return nil, err
	}
	best, ok := nearest(candidates)
	if !ok {
		return nil, ErrNoDriversAvailable
	}

	won, err := s.rides.Transition(ctx, ride.Transition{
		RideID: r.ID,
		From:   ride.StatusRequested,
		Driver: ride.NoDriver(),
		To:     ride.StatusDriverAssigned,
		Patch:  ride.Patch{AssignDriver: best.DriverID.Ptr(), At: s.now()},
	}, ride.SystemActor)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrAlreadyAssigned
	}
	return &Assignment{RideID: r.ID, DriverID: best.DriverID, DistanceKm: best.DistanceKm}, nil
}

// nearest returns the candidate with the smallest distance; the first one
// seen wins a tie.
func nearest(cs []presence.Reachable) (presence.Reachable, bool) {
	if len(cs) == 0 {
		return presence.Reachable{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.DistanceKm < best.DistanceKm {
			best = c
		}
	}
	return best, true
}

func (s *Service) notifyDriver(ctx context.Context, a *Assignment) {
	err := s.notifier.Notify(ctx, notify.Notification{
		Type:     notify.TypeRideOffer,
		DriverID: a.DriverID,
		RideID:   a.RideID,
		Title:    "New ride request",
		Body:     "A rider nearby is waiting for you",
		Data: map[string]string{
			"distanceKm": strconv.FormatFloat(a.DistanceKm, 'f', 2, 64),
		},
	})
	if err != nil && !errors.Is(err, notify.ErrNoSession) {
		s.log.WithError(err).WithField("driver_id", a.DriverID).Warn("notify assigned driver")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeAssigned
	case errors.Is(err, ErrAlreadyAssigned):
		return outcomeAlreadyAssigned
	case errors.Is(err, ErrNoDriversAvailable):
		return outcomeNoDrivers
	case errors.Is(err, ErrRideNotAssignable):
		return outcomeNotAssignable
	}
	return outcomeError
}
