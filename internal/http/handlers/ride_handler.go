// README: Rider-facing ride handlers: estimate, request, read, assign and cancel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/apperr"
	"ridehail/internal/geo"
	"ridehail/internal/http/middleware"
	"ridehail/internal/modules/matching"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/ride"
	"ridehail/internal/types"
)

var errNotRideParty = apperr.Forbidden("FORBIDDEN", "not allowed to access this ride")

type RideHandler struct {
	rides    *ride.Service
	matching *matching.Service
	pricing  *pricing.Service
}

func NewRideHandler(rideSvc *ride.Service, matchingSvc *matching.Service, pricingSvc *pricing.Service) *RideHandler {
	return &RideHandler{rides: rideSvc, matching: matchingSvc, pricing: pricingSvc}
}

type placeRequest struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address"`
}

func (p placeRequest) place() (ride.Place, error) {
	if p.Lat == nil || p.Lng == nil {
		return ride.Place{}, ride.ErrInvalidLocation
	}
	pt := types.Point{Lat: *p.Lat, Lng: *p.Lng}
	if pt.Validate() != nil {
		return ride.Place{}, ride.ErrInvalidLocation
	}
	return ride.Place{Point: pt, Address: p.Address}, nil
}

type tripRequest struct {
	RideType string       `json:"rideType"`
	Pickup   placeRequest `json:"pickup"`
	Dropoff  placeRequest `json:"dropoff"`
}

type trip struct {
	rideType types.RideType
	pickup   ride.Place
	dropoff  ride.Place
	distance float64
}

// parse validates the request and computes the straight-line trip distance.
// The ride type is required.
func (r tripRequest) parse() (*trip, error) {
	rt, ok := types.ParseRideType(r.RideType)
	if !ok {
		return nil, ride.ErrInvalidRideType
	}
	t := &trip{rideType: rt}
	var err error
	if t.pickup, err = r.Pickup.place(); err != nil {
		return nil, err
	}
	if t.dropoff, err = r.Dropoff.place(); err != nil {
		return nil, err
	}
	t.distance = geo.Between(t.pickup.Point, t.dropoff.Point)
	return t, nil
}

type estimateResponse struct {
	RideType      types.RideType `json:"rideType"`
	DistanceKm    float64        `json:"distanceKm"`
	FareCents     int64          `json:"fareCents"`
	Currency      string         `json:"currency"`
	FareFormatted string         `json:"fareFormatted"`
}

func (h *RideHandler) Estimate(c *gin.Context) {
	var req tripRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := req.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	q, err := h.pricing.Quote(c.Request.Context(), t.distance, t.rideType)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, estimateResponse{
		RideType:      q.RideType,
		DistanceKm:    q.DistanceKm,
		FareCents:     q.Fare.Amount,
		Currency:      q.Fare.Currency,
		FareFormatted: q.Display,
	})
}

// Create requests a ride. Distance and fare are always computed here; any
// client-supplied values are ignored.
func (h *RideHandler) Create(c *gin.Context) {
	var req tripRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := req.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	fare, err := h.pricing.Estimate(c.Request.Context(), t.distance, t.rideType)
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := h.rides.RequestRide(c.Request.Context(), ride.RequestCommand{
		RiderID:    callerID(c),
		RideType:   t.rideType,
		Pickup:     t.pickup,
		Dropoff:    t.dropoff,
		DistanceKm: t.distance,
		FareCents:  fare.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Mine(c *gin.Context) {
	rides, err := h.rides.ListForRider(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *RideHandler) Get(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	uid := callerID(c)
	if r.RiderID != uid && !types.SameID(r.AssignedDriverID, &uid) && !isAdmin(c) {
		writeError(c, errNotRideParty)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type assignResponse struct {
	Ride             *ride.Ride `json:"ride"`
	AssignedDriverID types.ID   `json:"assignedDriverId"`
	DistanceKm       float64    `json:"distanceKm"`
}

// Assign runs the matching engine for a ride owned by the caller.
func (h *RideHandler) Assign(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	if r.RiderID != callerID(c) && !isAdmin(c) {
		writeError(c, errNotRideParty)
		return
	}
	a, err := h.matching.Assign(c.Request.Context(), r.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	updated, err := h.rides.Get(c.Request.Context(), r.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, assignResponse{Ride: updated, AssignedDriverID: a.DriverID, DistanceKm: a.DistanceKm})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	uid := callerID(c)
	if r.RiderID != uid {
		writeError(c, errNotRideParty)
		return
	}
	if err := h.rides.Cancel(c.Request.Context(), r.ID, ride.RiderActor(uid)); err != nil {
		writeError(c, err)
		return
	}
	updated, err := h.rides.Get(c.Request.Context(), r.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, updated)
}

func (h *RideHandler) load(c *gin.Context) (*ride.Ride, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return r, true
}

func isAdmin(c *gin.Context) bool {
	return middleware.CallerRole(c) == middleware.RoleAdmin
}
