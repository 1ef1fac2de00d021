// README: Ride store backed by MongoDB; transitions are a filtered UpdateOne.
package ride

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

const (
	ridesCollection  = "rides"
	eventsCollection = "ride_events"
)

type MongoStore struct {
	rides  *mongo.Collection
	events *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		rides:  db.Collection(ridesCollection),
		events: db.Collection(eventsCollection),
	}
}

type placeDoc struct {
	Lat     float64 `bson:"lat"`
	Lng     float64 `bson:"lng"`
	Address string  `bson:"address"`
}

type rideDoc struct {
	ID               string     `bson:"_id"`
	RiderID          string     `bson:"rider_id"`
	RideType         string     `bson:"ride_type"`
	Pickup           placeDoc   `bson:"pickup"`
	Dropoff          placeDoc   `bson:"dropoff"`
	DistanceKm       float64    `bson:"distance_km"`
	FareCents        int64      `bson:"estimated_fare_cents"`
	Currency         string     `bson:"currency"`
	Status           string     `bson:"status"`
	StatusVersion    int        `bson:"status_version"`
	AssignedDriverID *string    `bson:"assigned_driver_id"`
	CreatedAt        time.Time  `bson:"created_at"`
	AssignedAt       *time.Time `bson:"assigned_at"`
	AcceptedAt       *time.Time `bson:"accepted_at"`
	CompletedAt      *time.Time `bson:"completed_at"`
	CancelledAt      *time.Time `bson:"cancelled_at"`
}

type eventDoc struct {
	RideID     string    `bson:"ride_id"`
	FromStatus string    `bson:"from_status"`
	ToStatus   string    `bson:"to_status"`
	ActorType  string    `bson:"actor_type"`
	ActorID    *string   `bson:"actor_id"`
	CreatedAt  time.Time `bson:"created_at"`
}

// EnsureIndexes creates the indexes the list queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.rides.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "rider_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "assigned_driver_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return apperr.Store("ride.ensure_indexes", err)
	}
	_, err = s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return apperr.Store("ride.ensure_indexes", err)
}

func (s *MongoStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.rides.InsertOne(ctx, toDoc(r))
	return apperr.Store("ride.create", err)
}

func (s *MongoStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	var doc rideDoc
	err := s.rides.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("ride.get", err)
	}
	return fromDoc(&doc), nil
}

func (s *MongoStore) ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	return s.find(ctx, "ride.list_by_rider", bson.M{"rider_id": string(riderID)}, 0)
}

func (s *MongoStore) ListAssignedTo(ctx context.Context, driverID types.ID, status Status, limit int) ([]*Ride, error) {
	if limit <= 0 {
		limit = IncomingLimit
	}
	filter := bson.M{"assigned_driver_id": string(driverID), "status": string(status)}
	return s.find(ctx, "ride.list_assigned", filter, int64(limit))
}

func (s *MongoStore) Transition(ctx context.Context, t Transition) (bool, error) {
	filter := bson.M{"_id": string(t.RideID), "status": string(t.From)}
	if !t.Driver.IsAny() {
		if exp := t.Driver.Expected(); exp != nil {
			filter["assigned_driver_id"] = string(*exp)
		} else {
			filter["assigned_driver_id"] = nil
		}
	}

	set := bson.M{"status": string(t.To)}
	switch {
	case t.Patch.ClearDriver:
		set["assigned_driver_id"] = nil
		set["assigned_at"] = nil
	case t.Patch.AssignDriver != nil:
		set["assigned_driver_id"] = string(*t.Patch.AssignDriver)
	}
	switch t.To {
	case StatusDriverAssigned:
		set["assigned_at"] = t.Patch.At
	case StatusAccepted:
		set["accepted_at"] = t.Patch.At
	case StatusCompleted:
		set["completed_at"] = t.Patch.At
	case StatusCancelled:
		set["cancelled_at"] = t.Patch.At
	}

	res, err := s.rides.UpdateOne(ctx, filter, bson.M{
		"$set": set,
		"$inc": bson.M{"status_version": 1},
	})
	if err != nil {
		return false, apperr.Store("ride.transition", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.rides.CountDocuments(ctx, bson.M{"_id": string(t.RideID)})
	if err != nil {
		return false, apperr.Store("ride.transition", err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *MongoStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.events.InsertOne(ctx, eventDoc{
		RideID:     string(e.RideID),
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		ActorType:  e.ActorType,
		ActorID:    toStringPtr(e.ActorID),
		CreatedAt:  e.CreatedAt,
	})
	return apperr.Store("ride.append_event", err)
}

func (s *MongoStore) find(ctx context.Context, op string, filter bson.M, limit int64) ([]*Ride, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.rides.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	defer cur.Close(ctx)

	var docs []rideDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Store(op, err)
	}
	out := make([]*Ride, len(docs))
	for i := range docs {
		out[i] = fromDoc(&docs[i])
	}
	return out, nil
}

func toDoc(r *Ride) rideDoc {
	return rideDoc{
		ID:               string(r.ID),
		RiderID:          string(r.RiderID),
		RideType:         string(r.RideType),
		Pickup:           placeDoc{Lat: r.Pickup.Point.Lat, Lng: r.Pickup.Point.Lng, Address: r.Pickup.Address},
		Dropoff:          placeDoc{Lat: r.Dropoff.Point.Lat, Lng: r.Dropoff.Point.Lng, Address: r.Dropoff.Address},
		DistanceKm:       r.DistanceKm,
		FareCents:        r.EstimatedFare.Amount,
		Currency:         r.EstimatedFare.Currency,
		Status:           string(r.Status),
		StatusVersion:    r.StatusVersion,
		AssignedDriverID: toStringPtr(r.AssignedDriverID),
		CreatedAt:        r.CreatedAt,
		AssignedAt:       r.AssignedAt,
		AcceptedAt:       r.AcceptedAt,
		CompletedAt:      r.CompletedAt,
		CancelledAt:      r.CancelledAt,
	}
}

func fromDoc(d *rideDoc) *Ride {
	return &Ride{
		ID:               types.ID(d.ID),
		RiderID:          types.ID(d.RiderID),
		RideType:         types.RideType(d.RideType),
		Pickup:           Place{Point: types.Point{Lat: d.Pickup.Lat, Lng: d.Pickup.Lng}, Address: d.Pickup.Address},
		Dropoff:          Place{Point: types.Point{Lat: d.Dropoff.Lat, Lng: d.Dropoff.Lng}, Address: d.Dropoff.Address},
		DistanceKm:       d.DistanceKm,
		EstimatedFare:    types.Money{Amount: d.FareCents, Currency: d.Currency},
		Status:           Status(d.Status),
		StatusVersion:    d.StatusVersion,
		AssignedDriverID: toIDPtr(d.AssignedDriverID),
		CreatedAt:        d.CreatedAt,
		AssignedAt:       d.AssignedAt,
		AcceptedAt:       d.AcceptedAt,
		CompletedAt:      d.CompletedAt,
		CancelledAt:      d.CancelledAt,
	}
}
