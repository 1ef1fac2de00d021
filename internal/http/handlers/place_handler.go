// README: Places autocomplete proxy handler.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ridehail/internal/maps"
	"ridehail/internal/types"
)

type PlaceSearcher interface {
	Autocomplete(ctx context.Context, query string, proximity *types.Point) ([]maps.Suggestion, error)
}

type PlaceHandler struct {
	places PlaceSearcher
	log    logrus.FieldLogger
}

// NewPlaceHandler accepts a nil searcher; the endpoint then answers 503.
func NewPlaceHandler(places PlaceSearcher, log logrus.FieldLogger) *PlaceHandler {
	return &PlaceHandler{places: places, log: log}
}

// Autocomplete expects q and an optional proximity given as "lng,lat".
func (h *PlaceHandler) Autocomplete(c *gin.Context) {
	if h.places == nil {
		writeStatus(c, http.StatusServiceUnavailable, "PLACES_UNAVAILABLE", "places lookup is not configured")
		return
	}
	var proximity *types.Point
	if v := c.Query("proximity"); v != "" {
		p, ok := parseLngLat(v)
		if !ok {
			writeStatus(c, http.StatusBadRequest, "INVALID_LOCATION", "proximity must be lng,lat")
			return
		}
		proximity = p
	}

	suggestions, err := h.places.Autocomplete(c.Request.Context(), c.Query("q"), proximity)
	if err != nil {
		h.log.WithError(err).Warn("places lookup failed")
		writeStatus(c, http.StatusBadGateway, "PLACES_UPSTREAM", "places lookup failed")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"suggestions": suggestions})
}

func parseLngLat(v string) (*types.Point, bool) {
	lngStr, latStr, ok := strings.Cut(v, ",")
	if !ok {
		return nil, false
	}
	lng, err1 := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if p.Validate() != nil {
		return nil, false
	}
	return &p, true
}
