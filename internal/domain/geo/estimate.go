package geo

import (
	"errors"
	"math"
)

// DefaultSpeedKMH is the assumed average city driving speed for ETA estimates.
const DefaultSpeedKMH = 30.0

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// DistanceKM returns the great-circle distance between two points in kilometers
// using the haversine formula. NaN inputs propagate as NaN; callers validate
// coordinates before invocation.
func DistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0

	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// ETAMinutes estimates arrival time in whole minutes for a distance at the
// given average speed. The estimate is rounded and floored at 1 minute.
func ETAMinutes(distanceKM, speedKMH float64) int {
	if speedKMH <= 0 {
		speedKMH = DefaultSpeedKMH
	}
	minutes := int(math.Round(distanceKM / speedKMH * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// ValidateCoordinates range-checks a lat/lng pair, rejecting NaN.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}
