package aggregation

import (
	"math"

	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/feed"
)

// Speed codes the feed reports instead of a measured speed
var sentinelSpeeds = map[int]struct{}{
	251: {},
	252: {},
	254: {},
}

// IsSentinelSpeed reports whether speed is a reserved "no valid reading" code
func IsSentinelSpeed(speed int) bool {
	_, ok := sentinelSpeeds[speed]
	return ok
}

// LocationIndex tells the aggregator which measuring points have a known
// location
type LocationIndex interface {
	Has(locationID int) bool
}

// Aggregate collapses a measuring point's per-class readings into a single
// measurement. Average and max speed ignore sentinel speeds and stay nil
// when no valid speed remains.
func Aggregate(p feed.MeasuringPoint) database.AggregatedMeasurement {
	m := database.AggregatedMeasurement{
		LocationID:       p.LocationID,
		ObservationTime:  p.ObservationTime.UTC(),
		OccupancyRate:    p.OccupancyRate,
		AvailabilityRate: p.AvailabilityRate,
	}

	sum, count, fastest := 0, 0, 0
	for _, r := range p.Readings {
		m.TotalVehiclesPassed += r.TrafficIntensity

		if IsSentinelSpeed(r.SpeedArithmetic) {
			continue
		}
		if count == 0 || r.SpeedArithmetic > fastest {
			fastest = r.SpeedArithmetic
		}
		sum += r.SpeedArithmetic
		count++
	}

	if count > 0 {
		avg := int(math.Round(float64(sum) / float64(count)))
		m.AverageSpeed = &avg
		m.MaxSpeed = &fastest
	}

	return m
}

// AggregateAll aggregates every point whose location is in index. Points
// without a known location are dropped and counted in skipped.
func AggregateAll(points []feed.MeasuringPoint, index LocationIndex) (measurements []database.AggregatedMeasurement, skipped int) {
	measurements = make([]database.AggregatedMeasurement, 0, len(points))
	for _, p := range points {
		if !index.Has(p.LocationID) {
			skipped++
			continue
		}
		measurements = append(measurements, Aggregate(p))
	}
	return measurements, skipped
}

// ClassReadings flattens points into per-class rows for the
// traffic_vehicle_measurements table. Only points known to index are kept.
func ClassReadings(points []feed.MeasuringPoint, index LocationIndex) []database.VehicleClassMeasurement {
	var out []database.VehicleClassMeasurement
	for _, p := range points {
		if !index.Has(p.LocationID) {
			continue
		}
		for _, r := range p.Readings {
			out = append(out, database.VehicleClassMeasurement{
				LocationID:       p.LocationID,
				ObservationTime:  p.ObservationTime.UTC(),
				VehicleClass:     r.VehicleClass.String(),
				TrafficIntensity: r.TrafficIntensity,
				SpeedArithmetic:  r.SpeedArithmetic,
				SpeedHarmonic:    r.SpeedHarmonic,
			})
		}
	}
	return out
}
