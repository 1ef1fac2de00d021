// README: Presence service; validates driver reports and answers reachability queries.
package presence

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ridehail/internal/apperr"
	"ridehail/internal/geo"
	"ridehail/internal/observability"
	"ridehail/internal/types"
)

// Publisher receives presence changes; see internal/events.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Event is emitted after every successful presence upsert.
type Event struct {
	DriverID types.ID     `json:"driverId"`
	Status   Status       `json:"status"`
	Location *types.Point `json:"location,omitempty"`
	Cell     string       `json:"cell,omitempty"`
	At       time.Time    `json:"at"`
}

type Service struct {
	store  Store
	events Publisher
	topic  string
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(store Store, events Publisher, topic string, log logrus.FieldLogger) *Service {
	return &Service{store: store, events: events, topic: topic, log: log, now: time.Now}
}

type RegisterCommand struct {
	DriverID     types.ID
	AccountID    types.ID
	Capabilities []string
	DeviceToken  string
}

type ReportCommand struct {
	DriverID types.ID
	Status   Status
	Location *types.Point
}

// Register creates the driver's presence record if it does not exist yet and
// sets its capability set (UBERX when none is given). Status and location of
// an existing record are left alone.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Record, error) {
	if cmd.DriverID == "" {
		return nil, ErrMissingDriver
	}
	caps, err := parseCapabilities(cmd.Capabilities)
	if err != nil {
		return nil, err
	}
	u := Update{
		DriverID:     cmd.DriverID,
		AccountID:    cmd.AccountID,
		Capabilities: caps,
		At:           s.now(),
	}
	if cmd.DeviceToken != "" {
		u.DeviceToken = &cmd.DeviceToken
	}
	return s.store.Upsert(ctx, u)
}

// ReportPresence upserts status and, when given, location, and always
// refreshes LastSeenAt. Reports are applied last-write-wins.
func (s *Service) ReportPresence(ctx context.Context, cmd ReportCommand) (*Record, error) {
	if cmd.DriverID == "" {
		return nil, ErrMissingDriver
	}
	if !cmd.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	status := cmd.Status
	return s.upsert(ctx, Update{DriverID: cmd.DriverID, Status: &status, Location: cmd.Location})
}

func (s *Service) SetOnlineStatus(ctx context.Context, driverID types.ID, online bool) (*Record, error) {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return s.ReportPresence(ctx, ReportCommand{DriverID: driverID, Status: status})
}

// UpdateLocation is the periodic heartbeat: it moves the driver and keeps
// the current status.
func (s *Service) UpdateLocation(ctx context.Context, driverID types.ID, loc types.Point) (*Record, error) {
	if driverID == "" {
		return nil, ErrMissingDriver
	}
	return s.upsert(ctx, Update{DriverID: driverID, Location: &loc})
}

func (s *Service) Get(ctx context.Context, driverID types.ID) (*Record, error) {
	if driverID == "" {
		return nil, ErrMissingDriver
	}
	return s.store.Get(ctx, driverID)
}

// DeviceToken returns the push token registered for the driver, if any.
func (s *Service) DeviceToken(ctx context.Context, driverID types.ID) (string, error) {
	r, err := s.store.Get(ctx, driverID)
	if err != nil {
		return "", err
	}
	return r.DeviceToken, nil
}

// FindReachable lists drivers that are online, located, fresh, able to serve
// q.RideType and within q.RadiusKm (inclusive) of q.Near. Nearest first,
// equal distances ordered by driver id.
func (s *Service) FindReachable(ctx context.Context, q Query) ([]Reachable, error) {
	if err := validLocation(q.Near); err != nil {
		return nil, err
	}
	if !q.RideType.Valid() {
		return nil, ErrInvalidRideType
	}
	if math.IsNaN(q.RadiusKm) || q.RadiusKm <= 0 {
		return nil, apperr.Invalid("radius must be positive")
	}
	if q.Now.IsZero() {
		q.Now = s.now()
	}

	records, err := s.store.Candidates(ctx, q.Near, q.RadiusKm)
	if err != nil {
		return nil, err
	}

	cutoff := q.Now.Add(-FreshnessWindow)
	out := make([]Reachable, 0, len(records))
	for _, r := range records {
		if !r.ReachableSince(cutoff, q.RideType) {
			continue
		}
		d := geo.Between(q.Near, *r.Location)
		if d > q.RadiusKm {
			continue
		}
		out = append(out, Reachable{DriverID: r.DriverID, Location: *r.Location, DistanceKm: d})
	}
	sortByDistance(out)

	observability.ReachableCandidates.Observe(float64(len(out)))
	return out, nil
}

func (s *Service) upsert(ctx context.Context, u Update) (*Record, error) {
	if u.Location != nil {
		if err := validLocation(*u.Location); err != nil {
			return nil, err
		}
	}
	u.At = s.now()
	u.Touch = true

	r, err := s.store.Upsert(ctx, u)
	if err != nil {
		return nil, err
	}
	observability.PresenceReportsTotal.WithLabelValues(string(r.Status)).Inc()
	s.publish(ctx, r)
	return r, nil
}

func (s *Service) publish(ctx context.Context, r *Record) {
	if s.events == nil {
		return
	}
	ev := Event{DriverID: r.DriverID, Status: r.Status, Location: r.Location, At: r.LastSeenAt}
	key := string(r.DriverID)
	if r.Location != nil {
		ev.Cell = geo.Cell(*r.Location)
		key = ev.Cell
	}
	if err := s.events.Publish(ctx, s.topic, key, ev); err != nil {
		s.log.WithError(err).WithField("driver_id", r.DriverID).Warn("publish presence event")
	}
}

func parseCapabilities(in []string) ([]types.RideType, error) {
	out := make([]types.RideType, 0, len(in))
	for _, c := range in {
		t, ok := types.ParseRideType(c)
		if !ok {
			return nil, apperr.Validation(ErrInvalidRideType.Code, "unknown capability "+strings.TrimSpace(c))
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return slices.Clone(DefaultCapabilities), nil
	}
	return out, nil
}

func sortByDistance(items []Reachable) {
	slices.SortStableFunc(items, func(a, b Reachable) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return strings.Compare(string(a.DriverID), string(b.DriverID))
	})
}
