package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		r := newRide("rider-1", time.Now())
		mustCreate(t, store, r)

		got, err := store.Get(context.Background(), r.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != StatusRequested || got.AssignedDriverID != nil {
			t.Fatalf("unexpected initial state: %+v", got)
		}
		if got.RideType != types.RideTypeUberX || got.EstimatedFare.Amount != 1234 || got.Pickup.Address != "Pickup St" {
			t.Fatalf("fields not persisted: %+v", got)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TransitionUnknownIsNotFound", func(t *testing.T) {
		store := newStore(t)
		ok, err := store.Transition(context.Background(), assignTo("missing", "d1"))
		if ok || !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected (false, ErrNotFound), got (%v, %v)", ok, err)
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not-found kind, got %v", err)
		}
	})

	t.Run("AssignAcceptAndMismatch", func(t *testing.T) {
		store := newStore(t)
		r := newRide("rider-1", time.Now())
		mustCreate(t, store, r)

		if ok := mustTransition(t, store, assignTo(r.ID, "A")); !ok {
			t.Fatal("expected assignment to win")
		}
		// A second assignment sees a stale precondition.
		if ok := mustTransition(t, store, assignTo(r.ID, "B")); ok {
			t.Fatal("expected second assignment to lose")
		}
		got := mustGet(t, store, r.ID)
		if got.Status != StatusDriverAssigned || got.AssignedDriverID == nil || *got.AssignedDriverID != "A" || got.AssignedAt == nil {
			t.Fatalf("unexpected state after assign: %+v", got)
		}

		if ok := mustTransition(t, store, acceptBy(r.ID, "B")); ok {
			t.Fatal("accept by another driver must fail")
		}
		if ok := mustTransition(t, store, acceptBy(r.ID, "A")); !ok {
			t.Fatal("accept by assigned driver must win")
		}
		if ok := mustTransition(t, store, acceptBy(r.ID, "A")); ok {
			t.Fatal("second accept must fail")
		}
		got = mustGet(t, store, r.ID)
		if got.Status != StatusAccepted || *got.AssignedDriverID != "A" || got.AcceptedAt == nil {
			t.Fatalf("unexpected state after accept: %+v", got)
		}
		if got.StatusVersion != 2 {
			t.Fatalf("expected status version 2, got %d", got.StatusVersion)
		}
	})

	t.Run("ResetClearsDriver", func(t *testing.T) {
		store := newStore(t)
		r := newRide("rider-1", time.Now())
		mustCreate(t, store, r)
		mustTransition(t, store, assignTo(r.ID, "A"))

		reset := Transition{
			RideID: r.ID,
			From:   StatusDriverAssigned,
			Driver: Driver("A"),
			To:     StatusRequested,
			Patch:  Patch{ClearDriver: true, At: time.Now()},
		}
		if ok := mustTransition(t, store, reset); !ok {
			t.Fatal("expected reset to win")
		}
		got := mustGet(t, store, r.ID)
		if got.Status != StatusRequested || got.AssignedDriverID != nil || got.AssignedAt != nil {
			t.Fatalf("unexpected state after reset: %+v", got)
		}
		// The ride can be assigned again.
		if ok := mustTransition(t, store, assignTo(r.ID, "B")); !ok {
			t.Fatal("expected re-assignment to win")
		}
	})

	t.Run("AnyDriver", func(t *testing.T) {
		store := newStore(t)
		r := newRide("rider-1", time.Now())
		mustCreate(t, store, r)
		mustTransition(t, store, assignTo(r.ID, "A"))

		cancel := Transition{RideID: r.ID, From: StatusDriverAssigned, Driver: AnyDriver(), To: StatusCancelled, Patch: Patch{At: time.Now()}}
		if ok := mustTransition(t, store, cancel); !ok {
			t.Fatal("expected wildcard driver match to win")
		}
		got := mustGet(t, store, r.ID)
		if got.Status != StatusCancelled || got.CancelledAt == nil {
			t.Fatalf("unexpected state: %+v", got)
		}
	})

	t.Run("ConcurrentAssignExactlyOneWinner", func(t *testing.T) {
		store := newStore(t)
		r := newRide("rider-1", time.Now())
		mustCreate(t, store, r)

		drivers := []types.ID{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8"}
		results := make(chan types.ID, len(drivers))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, d := range drivers {
			wg.Add(1)
			go func(d types.ID) {
				defer wg.Done()
				<-start
				ok, err := store.Transition(context.Background(), assignTo(r.ID, d))
				if err != nil {
					t.Errorf("transition: %v", err)
					return
				}
				if ok {
					results <- d
				}
			}(d)
		}
		close(start)
		wg.Wait()
		close(results)

		var winners []types.ID
		for d := range results {
			winners = append(winners, d)
		}
		if len(winners) != 1 {
			t.Fatalf("expected exactly 1 success, got %d", len(winners))
		}
		got := mustGet(t, store, r.ID)
		if *got.AssignedDriverID != winners[0] {
			t.Fatalf("stored driver %s does not match winner %s", *got.AssignedDriverID, winners[0])
		}
	})

	t.Run("ListsNewestFirst", func(t *testing.T) {
		store := newStore(t)
		base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
		old := newRide("rider-1", base)
		mid := newRide("rider-1", base.Add(time.Minute))
		recent := newRide("rider-1", base.Add(2*time.Minute))
		other := newRide("rider-2", base.Add(3*time.Minute))
		for _, r := range []*Ride{mid, old, other, recent} {
			mustCreate(t, store, r)
		}

		mine, err := store.ListByRider(context.Background(), "rider-1")
		if err != nil {
			t.Fatalf("list by rider: %v", err)
		}
		assertIDs(t, mine, recent.ID, mid.ID, old.ID)

		mustTransition(t, store, assignTo(old.ID, "d1"))
		mustTransition(t, store, assignTo(recent.ID, "d1"))
		mustTransition(t, store, assignTo(mid.ID, "d2"))

		incoming, err := store.ListAssignedTo(context.Background(), "d1", StatusDriverAssigned, IncomingLimit)
		if err != nil {
			t.Fatalf("list assigned: %v", err)
		}
		assertIDs(t, incoming, recent.ID, old.ID)

		limited, err := store.ListAssignedTo(context.Background(), "d1", StatusDriverAssigned, 1)
		if err != nil {
			t.Fatalf("list assigned: %v", err)
		}
		assertIDs(t, limited, recent.ID)

		mustTransition(t, store, acceptBy(recent.ID, "d1"))
		incoming, err = store.ListAssignedTo(context.Background(), "d1", StatusDriverAssigned, IncomingLimit)
		if err != nil {
			t.Fatalf("list assigned: %v", err)
		}
		assertIDs(t, incoming, old.ID)
	})

	t.Run("AppendEvent", func(t *testing.T) {
		store := newStore(t)
		r := newRide("rider-1", time.Now())
		mustCreate(t, store, r)
		err := store.AppendEvent(context.Background(), &Event{
			RideID:     r.ID,
			FromStatus: StatusNone,
			ToStatus:   StatusRequested,
			ActorType:  "rider",
			ActorID:    r.RiderID.Ptr(),
			CreatedAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
	})
}

func newRide(riderID types.ID, createdAt time.Time) *Ride {
	return &Ride{
		ID:            types.NewID(),
		RiderID:       riderID,
		RideType:      types.RideTypeUberX,
		Pickup:        Place{Point: types.Point{Lat: 40.0, Lng: -73.0}, Address: "Pickup St"},
		Dropoff:       Place{Point: types.Point{Lat: 40.05, Lng: -73.02}, Address: "Dropoff Ave"},
		DistanceKm:    5.9,
		EstimatedFare: types.Cents(1234),
		Status:        StatusRequested,
		CreatedAt:     createdAt.UTC(),
	}
}

func assignTo(id, driver types.ID) Transition {
	return Transition{
		RideID: id,
		From:   StatusRequested,
		Driver: NoDriver(),
		To:     StatusDriverAssigned,
		Patch:  Patch{AssignDriver: driver.Ptr(), At: time.Now()},
	}
}

func acceptBy(id, driver types.ID) Transition {
	return Transition{
		RideID: id,
		From:   StatusDriverAssigned,
		Driver: Driver(driver),
		To:     StatusAccepted,
		Patch:  Patch{At: time.Now()},
	}
}

func mustCreate(t *testing.T, store Store, r *Ride) {
	t.Helper()
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatalf("create ride: %v", err)
	}
}

func mustGet(t *testing.T, store Store, id types.ID) *Ride {
	t.Helper()
	r, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	return r
}

func mustTransition(t *testing.T, store Store, tr Transition) bool {
	t.Helper()
	ok, err := store.Transition(context.Background(), tr)
	if err != nil {
		t.Fatalf("transition %s->%s: %v", tr.From, tr.To, err)
	}
	return ok
}

func assertIDs(t *testing.T, rides []*Ride, want ...types.ID) {
	t.Helper()
	if len(rides) != len(want) {
		t.Fatalf("expected %d rides, got %d", len(want), len(rides))
	}
	for i := range want {
		if rides[i].ID != want[i] {
			t.Fatalf("ride %d: expected %s, got %s", i, want[i], rides[i].ID)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}
