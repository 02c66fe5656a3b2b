package geo

import (
	"math"
	"testing"
	"time"
)

func TestDistanceKM(t *testing.T) {
	// two points in Vijayawada roughly 2.5 km apart
	d := DistanceKM(16.5062, 80.6480, 16.5180, 80.6278)
	if d <= 0 {
		t.Fatalf("expected positive distance, got %v", d)
	}
	if d < 2.0 || d > 3.0 {
		t.Fatalf("distance out of expected range: %v km", d)
	}

	if d := DistanceKM(16.5062, 80.6480, 16.5062, 80.6480); d != 0 {
		t.Fatalf("same-point distance should be 0, got %v", d)
	}

	// NaN propagates; validation is the caller's job
	if d := DistanceKM(math.NaN(), 80.6480, 16.5180, 80.6278); !math.IsNaN(d) {
		t.Fatalf("expected NaN to propagate, got %v", d)
	}
}

func TestETAMinutes(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		speed    float64
		want     int
	}{
		{"city trip", 2.5, 30, 5},
		{"zero distance floors at one", 0, 30, 1},
		{"sub-minute floors at one", 0.1, 30, 1},
		{"bad speed falls back to default", 15, 0, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ETAMinutes(tc.distance, tc.speed); got != tc.want {
				t.Fatalf("ETAMinutes(%v, %v) = %d, want %d", tc.distance, tc.speed, got, tc.want)
			}
		})
	}
}

func TestNewSample(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSample(16.5062, 80.6480, 16.5180, 80.6278, 30, now)

	if s.DistanceKM <= 0 {
		t.Fatalf("expected positive distance, got %v", s.DistanceKM)
	}
	if s.ETAMinutes < 1 {
		t.Fatalf("ETA must be >= 1, got %d", s.ETAMinutes)
	}
	if !s.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", s.Timestamp, now)
	}
	// distance is rounded to two decimals for the wire
	if s.DistanceKM != math.Round(s.DistanceKM*100)/100 {
		t.Fatalf("distance not rounded: %v", s.DistanceKM)
	}

	if s.Expired(now.Add(29*time.Minute), 30*time.Minute) {
		t.Fatal("sample should not be expired before the TTL")
	}
	if !s.Expired(now.Add(31*time.Minute), 30*time.Minute) {
		t.Fatal("sample should be expired after the TTL")
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(16.5, 80.6); err != nil {
		t.Fatalf("valid coordinates rejected: %v", err)
	}
	if err := ValidateCoordinates(91, 0); err == nil {
		t.Fatal("latitude out of range accepted")
	}
	if err := ValidateCoordinates(0, -181); err == nil {
		t.Fatal("longitude out of range accepted")
	}
	if err := ValidateCoordinates(math.NaN(), 0); err == nil {
		t.Fatal("NaN latitude accepted")
	}
}
