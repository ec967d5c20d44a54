package database

import (
	"time"
)

// Location represents a measuring point position
type Location struct {
	LocationID int
	Latitude   float64
	Longitude  float64
}

// AggregatedMeasurement is one location's metrics at one observation time
type AggregatedMeasurement struct {
	LocationID          int
	ObservationTime     time.Time
	OccupancyRate       int
	AvailabilityRate    int
	TotalVehiclesPassed int
	AverageSpeed        *int
	MaxSpeed            *int
}

// VehicleClassMeasurement is a single per-class reading (legacy table)
type VehicleClassMeasurement struct {
	LocationID       int
	ObservationTime  time.Time
	VehicleClass     string
	TrafficIntensity int
	SpeedArithmetic  int
	SpeedHarmonic    int
}

// MeasurementView is an aggregated measurement joined to its location
type MeasurementView struct {
	LocationID          int
	ObservationTime     time.Time
	OccupancyRate       int
	AvailabilityRate    int
	TotalVehiclesPassed int
	AverageSpeed        *int
	MaxSpeed            *int
	Latitude            float64
	Longitude           float64
}

// NearQuery selects the most recent measurements around a point. When Lat
// or Lon is nil no spatial filter is applied.
type NearQuery struct {
	Lat    *float64
	Lon    *float64
	Radius float64
	Limit  int
}

// HasPoint reports whether the query carries a complete point.
func (q NearQuery) HasPoint() bool {
	return q.Lat != nil && q.Lon != nil
}
