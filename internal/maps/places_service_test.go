package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"ridehail/internal/types"
)

const textSearchResponse = `{
  "status": "OK",
  "results": [
    {"name": "12 Main St", "formatted_address": "12 Main St, Springfield", "place_id": "a1",
     "types": ["street_address"], "geometry": {"location": {"lat": 40.01, "lng": -73.01}}},
    {"name": "Main Street Cafe", "formatted_address": "10 Main St, Springfield", "place_id": "p1",
     "types": ["cafe", "point_of_interest", "establishment"], "geometry": {"location": {"lat": 40.02, "lng": -73.02}}},
    {"name": "Broken", "formatted_address": "nowhere", "place_id": "x",
     "types": ["establishment"], "geometry": {"location": {"lat": 123, "lng": 0}}},
    {"name": "Main Library", "formatted_address": "1 Main St", "place_id": "p2",
     "types": ["library", "establishment"], "geometry": {"location": {"lat": 40.03, "lng": -73.03}}},
    {"name": "Main Park", "formatted_address": "Main Park", "place_id": "p3",
     "types": ["park", "point_of_interest"], "geometry": {"location": {"lat": 40.04, "lng": -73.04}}},
    {"name": "Main Mall", "formatted_address": "Main Mall", "place_id": "p4",
     "types": ["shopping_mall", "point_of_interest"], "geometry": {"location": {"lat": 40.05, "lng": -73.05}}},
    {"name": "Main Gym", "formatted_address": "Main Gym", "place_id": "p5",
     "types": ["gym", "point_of_interest"], "geometry": {"location": {"lat": 40.06, "lng": -73.06}}}
  ]
}`

func newTestPlaces(t *testing.T, handler http.HandlerFunc) *PlacesService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewPlacesService("test-key", maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return svc
}

func TestAutocomplete(t *testing.T) {
	var gotQuery, gotLocation, gotRadius string
	svc := newTestPlaces(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotLocation = r.URL.Query().Get("location")
		gotRadius = r.URL.Query().Get("radius")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(textSearchResponse))
	})

	got, err := svc.Autocomplete(context.Background(), "  main  ", &types.Point{Lat: 40, Lng: -73})
	require.NoError(t, err)

	assert.Equal(t, "main", gotQuery)
	assert.NotEmpty(t, gotLocation)
	assert.Equal(t, "40000", gotRadius)

	require.Len(t, got, MaxSuggestions)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.PlaceID
	}
	// POIs first in API order; the street address and the invalid result drop out.
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, ids)
	assert.Equal(t, "Main Street Cafe", got[0].PlaceName)
	assert.Equal(t, "10 Main St, Springfield", got[0].Address)
	assert.Equal(t, "poi", got[0].Type)
	assert.InDelta(t, 40.02, got[0].Lat, 1e-9)
}

func TestAutocompleteEmptyQuery(t *testing.T) {
	called := false
	svc := newTestPlaces(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	got, err := svc.Autocomplete(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, called)
}

func TestAutocompleteUpstreamError(t *testing.T) {
	svc := newTestPlaces(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "bad key"}`))
	})

	_, err := svc.Autocomplete(context.Background(), "main", nil)
	assert.ErrorContains(t, err, "places api error")
}
