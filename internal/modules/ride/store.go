// README: Ride store contract and the lock-free in-process implementation.
package ride

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"ridehail/internal/types"
)

type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	// ListByRider returns the rider's rides, newest first.
	ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error)
	// ListAssignedTo returns rides in status assigned to driverID, newest first.
	ListAssignedTo(ctx context.Context, driverID types.ID, status Status, limit int) ([]*Ride, error)
	// Transition applies t atomically if its precondition holds. A failed
	// precondition is (false, nil); an unknown ride is ErrNotFound.
	Transition(ctx context.Context, t Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// MemoryStore keeps each ride behind an atomic pointer to an immutable
// snapshot; transitions swap in a modified copy.
type MemoryStore struct {
	rides sync.Map // types.ID -> *atomic.Pointer[Ride]

	mu     sync.Mutex
	events []Event
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	p := &atomic.Pointer[Ride]{}
	p.Store(r.clone())
	if _, loaded := s.rides.LoadOrStore(r.ID, p); loaded {
		return ErrBadRequest
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	p, ok := s.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return p.Load().clone(), nil
}

func (s *MemoryStore) ListByRider(_ context.Context, riderID types.ID) ([]*Ride, error) {
	out := s.collect(func(r *Ride) bool { return r.RiderID == riderID })
	return out, nil
}

func (s *MemoryStore) ListAssignedTo(_ context.Context, driverID types.ID, status Status, limit int) ([]*Ride, error) {
	out := s.collect(func(r *Ride) bool {
		return r.Status == status && r.AssignedDriverID != nil && *r.AssignedDriverID == driverID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Transition(_ context.Context, t Transition) (bool, error) {
	p, ok := s.load(t.RideID)
	if !ok {
		return false, ErrNotFound
	}
	for {
		cur := p.Load()
		if !t.Holds(cur) {
			return false, nil
		}
		next := cur.clone()
		t.Apply(next)
		if p.CompareAndSwap(cur, next) {
			return true, nil
		}
	}
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev := *e
	ev.ID = s.nextID
	s.events = append(s.events, ev)
	return nil
}

// Events returns the event log of a ride in append order.
func (s *MemoryStore) Events(rideID types.ID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.RideID == rideID {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) load(id types.ID) (*atomic.Pointer[Ride], bool) {
	v, ok := s.rides.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*atomic.Pointer[Ride]), true
}

func (s *MemoryStore) collect(keep func(*Ride) bool) []*Ride {
	var out []*Ride
	s.rides.Range(func(_, v any) bool {
		r := v.(*atomic.Pointer[Ride]).Load()
		if keep(r) {
			out = append(out, r.clone())
		}
		return true
	})
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(rides []*Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		if rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].ID > rides[j].ID
		}
		return rides[i].CreatedAt.After(rides[j].CreatedAt)
	})
}
