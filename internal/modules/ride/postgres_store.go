// README: Ride store backed by PostgreSQL; transitions are a single conditional UPDATE.
package ride

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const rideColumns = `
	id, rider_id, ride_type,
	pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	distance_km, estimated_fare_cents, currency,
	status, status_version, assigned_driver_id,
	created_at, assigned_at, accepted_at, completed_at, cancelled_at`

func (s *PostgresStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20
		)`,
		string(r.ID), string(r.RiderID), string(r.RideType),
		r.Pickup.Point.Lat, r.Pickup.Point.Lng, r.Pickup.Address,
		r.Dropoff.Point.Lat, r.Dropoff.Point.Lng, r.Dropoff.Address,
		r.DistanceKm, r.EstimatedFare.Amount, r.EstimatedFare.Currency,
		string(r.Status), r.StatusVersion, toStringPtr(r.AssignedDriverID),
		r.CreatedAt, r.AssignedAt, r.AcceptedAt, r.CompletedAt, r.CancelledAt,
	)
	return apperr.Store("ride.create", err)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("ride.get", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE rider_id = $1
		ORDER BY created_at DESC, id DESC`, string(riderID))
	if err != nil {
		return nil, apperr.Store("ride.list_by_rider", err)
	}
	return collectRides(rows, "ride.list_by_rider")
}

func (s *PostgresStore) ListAssignedTo(ctx context.Context, driverID types.ID, status Status, limit int) ([]*Ride, error) {
	if limit <= 0 {
		limit = IncomingLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE assigned_driver_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, string(driverID), string(status), limit)
	if err != nil {
		return nil, apperr.Store("ride.list_assigned", err)
	}
	return collectRides(rows, "ride.list_assigned")
}

func (s *PostgresStore) Transition(ctx context.Context, t Transition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1::text,
		    status_version = status_version + 1,
		    assigned_driver_id = CASE WHEN $2::boolean THEN NULL ELSE COALESCE($3::text, assigned_driver_id) END,
		    assigned_at = CASE WHEN $2::boolean THEN NULL WHEN $1 = 'DRIVER_ASSIGNED' THEN $4::timestamptz ELSE assigned_at END,
		    accepted_at = CASE WHEN $1 = 'ACCEPTED' THEN $4::timestamptz ELSE accepted_at END,
		    completed_at = CASE WHEN $1 = 'COMPLETED' THEN $4::timestamptz ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'CANCELLED' THEN $4::timestamptz ELSE cancelled_at END
		WHERE id = $5
		  AND status = $6
		  AND ($7::boolean OR assigned_driver_id IS NOT DISTINCT FROM $8::text)`,
		string(t.To),
		t.Patch.ClearDriver,
		toStringPtr(t.Patch.AssignDriver),
		t.Patch.At,
		string(t.RideID),
		string(t.From),
		t.Driver.IsAny(),
		toStringPtr(t.Driver.Expected()),
	)
	if err != nil {
		return false, apperr.Store("ride.transition", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, string(t.RideID)).Scan(&exists); err != nil {
		return false, apperr.Store("ride.transition", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_events (
			ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return apperr.Store("ride.append_event", err)
}

// ListEvents returns the event log of a ride in append order.
func (s *PostgresStore) ListEvents(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY id`, string(rideID))
	if err != nil {
		return nil, apperr.Store("ride.list_events", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, apperr.Store("ride.list_events", err)
		}
		e.ActorID = toIDPtr(actorID)
		out = append(out, e)
	}
	return out, apperr.Store("ride.list_events", rows.Err())
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID *string
	err := row.Scan(
		&r.ID, &r.RiderID, &r.RideType,
		&r.Pickup.Point.Lat, &r.Pickup.Point.Lng, &r.Pickup.Address,
		&r.Dropoff.Point.Lat, &r.Dropoff.Point.Lng, &r.Dropoff.Address,
		&r.DistanceKm, &r.EstimatedFare.Amount, &r.EstimatedFare.Currency,
		&r.Status, &r.StatusVersion, &driverID,
		&r.CreatedAt, &r.AssignedAt, &r.AcceptedAt, &r.CompletedAt, &r.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	r.AssignedDriverID = toIDPtr(driverID)
	return &r, nil
}

func collectRides(rows pgx.Rows, op string) ([]*Ride, error) {
	defer rows.Close()
	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, apperr.Store(op, err)
		}
		out = append(out, r)
	}
	return out, apperr.Store(op, rows.Err())
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
