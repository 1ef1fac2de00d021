package geo

import (
	"github.com/mmcloughlin/geohash"

	"ridehail/internal/types"
)

// CellPrecision gives cells of roughly 1.2 km x 0.6 km.
const CellPrecision = 6

// Cell returns the geohash cell containing p.
func Cell(p types.Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, CellPrecision)
}
