// Package maps proxies place lookups to the Google Maps Places API.
package maps

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"googlemaps.github.io/maps"

	"ridehail/internal/types"
)

const (
	// MaxSuggestions caps an autocomplete response.
	MaxSuggestions = 5
	// biasRadiusMeters keeps results local to the proximity point.
	biasRadiusMeters = 40000
)

// Suggestion is a single autocomplete hit.
type Suggestion struct {
	PlaceName string  `json:"placeName"`
	Address   string  `json:"address"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Type      string  `json:"type"`
	PlaceID   string  `json:"placeId"`
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey string, opts ...maps.ClientOption) (*PlacesService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client}, nil
}

// Autocomplete returns up to MaxSuggestions places matching query, points of
// interest first. proximity, when set, biases results around it. An empty
// query yields no suggestions.
func (s *PlacesService) Autocomplete(ctx context.Context, query string, proximity *types.Point) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Suggestion{}, nil
	}

	r := &maps.TextSearchRequest{Query: query, Language: "en"}
	if proximity != nil {
		r.Location = &maps.LatLng{Lat: proximity.Lat, Lng: proximity.Lng}
		r.Radius = biasRadiusMeters
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	out := make([]Suggestion, 0, len(resp.Results))
	for _, res := range resp.Results {
		loc := types.Point{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng}
		if loc.Validate() != nil {
			continue
		}
		out = append(out, Suggestion{
			PlaceName: firstNonEmpty(res.Name, res.FormattedAddress),
			Address:   firstNonEmpty(res.FormattedAddress, res.Name),
			Lat:       loc.Lat,
			Lng:       loc.Lng,
			Type:      placeType(res.Types),
			PlaceID:   res.PlaceID,
		})
	}

	// Stable so the API's relevance order survives within each group.
	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return poiRank(a.Type) - poiRank(b.Type)
	})
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out, nil
}

func placeType(ts []string) string {
	if slices.Contains(ts, "point_of_interest") || slices.Contains(ts, "establishment") {
		return "poi"
	}
	if slices.Contains(ts, "street_address") || slices.Contains(ts, "premise") {
		return "address"
	}
	if len(ts) > 0 {
		return ts[0]
	}
	return "unknown"
}

func poiRank(t string) int {
	if t == "poi" {
		return 0
	}
	return 1
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
