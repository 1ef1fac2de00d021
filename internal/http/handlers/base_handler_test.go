package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ridehail/internal/apperr"
	"ridehail/internal/modules/matching"
	"ridehail/internal/modules/ride"
)

func TestWriteErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", ride.ErrInvalidLocation, http.StatusBadRequest, "INVALID_LOCATION"},
		{"generic validation", apperr.Invalid("bad %s", "input"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", ride.ErrNotFound, http.StatusNotFound, "RIDE_NOT_FOUND"},
		{"forbidden", errNotRideParty, http.StatusForbidden, "FORBIDDEN"},
		{"conflict", matching.ErrAlreadyAssigned, http.StatusConflict, "ALREADY_ASSIGNED"},
		{"unavailable", matching.ErrNoDriversAvailable, http.StatusServiceUnavailable, "NO_DRIVERS_AVAILABLE"},
		{"store fault", apperr.Store("ride.get", errors.New("dial tcp: refused")), http.StatusInternalServerError, "INTERNAL"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeError(c, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"`+tc.wantCode+`"`)
			if tc.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "5", w.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, apperr.Store("ride.create", errors.New("password authentication failed")))
	assert.NotContains(t, w.Body.String(), "password")
	assert.Len(t, c.Errors, 1)
}

func TestIsValidID(t *testing.T) {
	assert.True(t, isValidID("0b4e7c1e-5b0a-4c39-9a53-1b8f2d1c9e77"))
	assert.True(t, isValidID("driver_42"))
	assert.False(t, isValidID(""))
	assert.False(t, isValidID("../etc"))
	assert.False(t, isValidID("a b"))
}

func TestParseLngLat(t *testing.T) {
	p, ok := parseLngLat("-73.98, 40.75")
	assert.True(t, ok)
	assert.Equal(t, 40.75, p.Lat)
	assert.Equal(t, -73.98, p.Lng)

	for _, bad := range []string{"", "40.75", "x,y", "-73.98,95"} {
		_, ok := parseLngLat(bad)
		assert.False(t, ok, bad)
	}
}
