// README: Driver handlers for presence, incoming offers, accept/release/complete and the live feed.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ridehail/internal/apperr"
	"ridehail/internal/http/middleware"
	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/ride"
	"ridehail/internal/types"
)

// FeedServer upgrades a driver's connection to the notification feed.
type FeedServer interface {
	Serve(w http.ResponseWriter, r *http.Request, driverID types.ID) error
}

type DriverHandler struct {
	presence *presence.Service
	rides    *ride.Service
	feed     FeedServer
	radiusKm float64
	log      logrus.FieldLogger
}

func NewDriverHandler(presenceSvc *presence.Service, rideSvc *ride.Service, feed FeedServer, radiusKm float64, log logrus.FieldLogger) *DriverHandler {
	if radiusKm <= 0 {
		radiusKm = presence.DefaultRadiusKm
	}
	return &DriverHandler{presence: presenceSvc, rides: rideSvc, feed: feed, radiusKm: radiusKm, log: log}
}

type registerRequest struct {
	Capabilities []string `json:"capabilities"`
	DeviceToken  string   `json:"deviceToken"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	uid := callerID(c)
	rec, err := h.presence.Register(c.Request.Context(), presence.RegisterCommand{
		DriverID:     uid,
		AccountID:    uid,
		Capabilities: req.Capabilities,
		DeviceToken:  req.DeviceToken,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

type statusRequest struct {
	Online *bool `json:"online"`
}

func (h *DriverHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Online == nil {
		writeError(c, apperr.Invalid("online is required"))
		return
	}
	rec, err := h.presence.SetOnlineStatus(c.Request.Context(), callerID(c), *req.Online)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

type locationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req locationRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, presence.ErrInvalidLocation)
		return
	}
	rec, err := h.presence.UpdateLocation(c.Request.Context(), callerID(c), types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

type presenceRequest struct {
	Status   string       `json:"status"`
	Location *types.Point `json:"location"`
}

func (h *DriverHandler) ReportPresence(c *gin.Context) {
	var req presenceRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.presence.ReportPresence(c.Request.Context(), presence.ReportCommand{
		DriverID: callerID(c),
		Status:   presence.Status(req.Status),
		Location: req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (h *DriverHandler) Me(c *gin.Context) {
	rec, err := h.presence.Get(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (h *DriverHandler) Incoming(c *gin.Context) {
	rides, err := h.rides.ListIncoming(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	h.act(c, func(id, driver types.ID) error {
		return h.rides.Accept(c.Request.Context(), id, driver)
	})
}

func (h *DriverHandler) Release(c *gin.Context) {
	h.act(c, func(id, driver types.ID) error {
		return h.rides.Release(c.Request.Context(), id, driver, ride.DriverActor(driver))
	})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	h.act(c, func(id, driver types.ID) error {
		return h.rides.Complete(c.Request.Context(), id, driver)
	})
}

// act runs a driver-side ride transition and answers with the ride as stored
// afterwards.
func (h *DriverHandler) act(c *gin.Context, fn func(id, driver types.ID) error) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := fn(id, callerID(c)); err != nil {
		writeError(c, err)
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Available lists reachable drivers around a point for riders and admins.
func (h *DriverHandler) Available(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, presence.ErrInvalidLocation)
		return
	}
	rideType, ok := types.ParseRideType(c.Query("rideType"))
	if !ok {
		writeError(c, presence.ErrInvalidRideType)
		return
	}
	radius := h.radiusKm
	if v := c.Query("radiusKm"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, apperr.Invalid("radiusKm must be a number"))
			return
		}
		radius = r
	}

	drivers, err := h.presence.FindReachable(c.Request.Context(), presence.Query{
		Near:     types.Point{Lat: lat, Lng: lng},
		RadiusKm: radius,
		RideType: rideType,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}

// Feed upgrades to the websocket offer feed and blocks until it closes.
func (h *DriverHandler) Feed(c *gin.Context) {
	if h.feed == nil {
		writeStatus(c, http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "live feed is disabled")
		return
	}
	driverID := callerID(c)
	if err := h.feed.Serve(c.Writer, c.Request, driverID); err != nil {
		// The upgrader has already answered the client.
		h.log.WithError(err).WithField("driver_id", driverID).Warn("websocket upgrade failed")
	}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}
