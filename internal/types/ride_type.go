// README: Service tiers a ride can be requested for and a driver can serve.
package types

import "strings"

type RideType string

const (
	RideTypeUberX   RideType = "UBERX"
	RideTypeXL      RideType = "XL"
	RideTypeComfort RideType = "COMFORT"
)

var RideTypes = []RideType{RideTypeUberX, RideTypeXL, RideTypeComfort}

func (t RideType) Valid() bool {
	switch t {
	case RideTypeUberX, RideTypeXL, RideTypeComfort:
		return true
	}
	return false
}

// ParseRideType accepts any letter case and surrounding whitespace.
func ParseRideType(s string) (RideType, bool) {
	t := RideType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}
