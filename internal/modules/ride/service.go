// README: Ride service; request intake, read projections and CAS-guarded state transitions.
package ride

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ridehail/internal/apperr"
	"ridehail/internal/observability"
	"ridehail/internal/types"
)

// Publisher receives ride lifecycle events; see internal/events.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// LifecycleEvent is published after every successful transition on the
// topic "ride.<status>", e.g. "ride.driver_assigned".
type LifecycleEvent struct {
	RideID    types.ID  `json:"rideId"`
	RiderID   types.ID  `json:"riderId,omitempty"`
	DriverID  *types.ID `json:"driverId,omitempty"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorType string    `json:"actorType"`
	At        time.Time `json:"at"`
}

func Topic(s Status) string {
	return "ride." + strings.ToLower(string(s))
}

type Actor struct {
	Type string
	ID   *types.ID
}

func RiderActor(id types.ID) Actor  { return Actor{Type: "rider", ID: id.Ptr()} }
func DriverActor(id types.ID) Actor { return Actor{Type: "driver", ID: id.Ptr()} }

var SystemActor = Actor{Type: "system"}

type Service struct {
	store  Store
	events Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(store Store, events Publisher, log logrus.FieldLogger) *Service {
	return &Service{store: store, events: events, log: log, now: time.Now}
}

type RequestCommand struct {
	RiderID    types.ID
	RideType   types.RideType
	Pickup     Place
	Dropoff    Place
	DistanceKm float64
	FareCents  int64
}

// RequestRide stores a new ride in REQUESTED with no driver. Distance and
// fare are taken as given.
func (s *Service) RequestRide(ctx context.Context, cmd RequestCommand) (*Ride, error) {
	if cmd.RiderID == "" {
		return nil, apperr.Invalid("rider id is required")
	}
	if !cmd.RideType.Valid() {
		return nil, ErrInvalidRideType
	}
	if cmd.Pickup.Point.Validate() != nil || cmd.Dropoff.Point.Validate() != nil {
		return nil, ErrInvalidLocation
	}
	if math.IsNaN(cmd.DistanceKm) || math.IsInf(cmd.DistanceKm, 0) || cmd.DistanceKm < 0 {
		return nil, apperr.Invalid("distance must be a non-negative number")
	}
	if cmd.FareCents < 0 {
		return nil, apperr.Invalid("fare must not be negative")
	}

	now := s.now()
	r := &Ride{
		ID:            types.NewID(),
		RiderID:       cmd.RiderID,
		RideType:      cmd.RideType,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		DistanceKm:    cmd.DistanceKm,
		EstimatedFare: types.Cents(cmd.FareCents),
		Status:        StatusRequested,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.record(ctx, LifecycleEvent{RideID: r.ID, RiderID: r.RiderID, From: StatusNone, To: StatusRequested, At: now}, RiderActor(cmd.RiderID))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ListForRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	return s.store.ListByRider(ctx, riderID)
}

// ListIncoming returns the rides currently offered to the driver
// (DRIVER_ASSIGNED to them), newest first.
func (s *Service) ListIncoming(ctx context.Context, driverID types.ID) ([]*Ride, error) {
	return s.store.ListAssignedTo(ctx, driverID, StatusDriverAssigned, IncomingLimit)
}

// Transition runs a conditional transition and, when it wins, records the
// event. A stale precondition is reported as (false, nil).
func (s *Service) Transition(ctx context.Context, t Transition, actor Actor) (bool, error) {
	if !CanTransition(t.From, t.To) {
		return false, ErrInvalidState
	}
	if t.Patch.At.IsZero() {
		t.Patch.At = s.now()
	}
	ok, err := s.store.Transition(ctx, t)
	if err != nil || !ok {
		return ok, err
	}

	ev := LifecycleEvent{RideID: t.RideID, From: t.From, To: t.To, At: t.Patch.At}
	switch {
	case t.Patch.ClearDriver:
	case t.Patch.AssignDriver != nil:
		ev.DriverID = t.Patch.AssignDriver
	case !t.Driver.IsAny():
		ev.DriverID = t.Driver.Expected()
	}
	if r, err := s.store.Get(ctx, t.RideID); err == nil {
		ev.RiderID = r.RiderID
	}
	s.record(ctx, ev, actor)
	return true, nil
}

// Accept commits the ride to driverID if it is currently offered to them.
// Any other state yields ErrRideNotAvailable.
func (s *Service) Accept(ctx context.Context, rideID, driverID types.ID) error {
	ok, err := s.Transition(ctx, Transition{
		RideID: rideID,
		From:   StatusDriverAssigned,
		Driver: Driver(driverID),
		To:     StatusAccepted,
	}, DriverActor(driverID))
	switch {
	case err != nil:
		observability.AcceptsTotal.WithLabelValues("error").Inc()
		return err
	case !ok:
		observability.AcceptsTotal.WithLabelValues("not_available").Inc()
		return ErrRideNotAvailable
	}
	observability.AcceptsTotal.WithLabelValues("accepted").Inc()
	return nil
}

// Release hands an offered ride back to REQUESTED and clears the driver.
// Drivers use it to decline; a timeout sweep can use it the same way.
func (s *Service) Release(ctx context.Context, rideID, driverID types.ID, actor Actor) error {
	ok, err := s.Transition(ctx, Transition{
		RideID: rideID,
		From:   StatusDriverAssigned,
		Driver: Driver(driverID),
		To:     StatusRequested,
		Patch:  Patch{ClearDriver: true},
	}, actor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideNotAvailable
	}
	return nil
}

func (s *Service) Complete(ctx context.Context, rideID, driverID types.ID) error {
	ok, err := s.Transition(ctx, Transition{
		RideID: rideID,
		From:   StatusAccepted,
		Driver: Driver(driverID),
		To:     StatusCompleted,
	}, DriverActor(driverID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideNotAvailable
	}
	return nil
}

// Cancel closes a ride that has not been accepted yet.
func (s *Service) Cancel(ctx context.Context, rideID types.ID, actor Actor) error {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return ErrRideNotAvailable
	}
	match := NoDriver()
	if r.AssignedDriverID != nil {
		match = Driver(*r.AssignedDriverID)
	}
	ok, err := s.Transition(ctx, Transition{
		RideID: rideID,
		From:   r.Status,
		Driver: match,
		To:     StatusCancelled,
	}, actor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideNotAvailable
	}
	return nil
}

func (s *Service) record(ctx context.Context, ev LifecycleEvent, actor Actor) {
	ev.ActorType = actor.Type
	if err := s.store.AppendEvent(ctx, &Event{
		RideID:     ev.RideID,
		FromStatus: ev.From,
		ToStatus:   ev.To,
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		CreatedAt:  ev.At,
	}); err != nil {
		s.log.WithError(err).WithField("ride_id", ev.RideID).Warn("append ride event")
	}

	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, Topic(ev.To), string(ev.RideID), ev); err != nil {
		s.log.WithError(err).WithField("ride_id", ev.RideID).Warn("publish ride event")
	}
}
