package geo

import (
	"math"
	"time"
)

// Sample is the last known provider location for a booking, together with the
// distance and ETA computed against the customer's stored coordinates. It is
// ephemeral state: held by the tracking channel, never persisted, and evicted
// by the expiry sweep.
type Sample struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	DistanceKM float64   `json:"distance"`
	ETAMinutes int       `json:"etaMinutes"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewSample computes a Sample from a provider position and the customer's
// coordinates, at the given average speed.
func NewSample(lat, lng, customerLat, customerLng, speedKMH float64, now time.Time) *Sample {
	distance := DistanceKM(lat, lng, customerLat, customerLng)
	return &Sample{
		Lat:        lat,
		Lng:        lng,
		DistanceKM: math.Round(distance*100) / 100,
		ETAMinutes: ETAMinutes(distance, speedKMH),
		Timestamp:  now.UTC(),
	}
}

// Expired reports whether the sample is older than ttl at the given instant.
func (s *Sample) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.Timestamp) > ttl
}
