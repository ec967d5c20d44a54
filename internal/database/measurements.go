package database

import (
	"context"
	"database/sql"
	"fmt"
)

var locationsTable = Table{
	Name:            "locations",
	Columns:         []string{"location_id", "latitude", "longitude"},
	ConflictColumns: []string{"location_id"},
}

var measurementsTable = Table{
	Name: "traffic_measurements",
	Columns: []string{
		"location_id", "observation_time", "occupancy_rate", "availability_rate",
		"total_vehicles_passed", "average_speed", "max_speed",
	},
	ConflictColumns: []string{"location_id", "observation_time"},
}

var vehicleClassTable = Table{
	Name: "traffic_vehicle_measurements",
	Columns: []string{
		"location_id", "observation_time", "vehicle_class",
		"traffic_intensity", "vehicle_speed_arithmetic", "vehicle_speed_harmonic",
	},
	ConflictColumns: []string{"location_id", "observation_time", "vehicle_class"},
}

// InsertLocations adds locations whose id is not yet stored. Existing
// locations keep their coordinates.
func (db *DB) InsertLocations(ctx context.Context, locations []Location) (*BatchResult, error) {
	rows := make([][]any, 0, len(locations))
	for _, loc := range locations {
		rows = append(rows, []any{loc.LocationID, loc.Latitude, loc.Longitude})
	}
	return db.inserter.Insert(ctx, locationsTable, rows)
}

// InsertMeasurements adds aggregated measurements whose (location_id,
// observation_time) is not yet stored
func (db *DB) InsertMeasurements(ctx context.Context, measurements []AggregatedMeasurement) (*BatchResult, error) {
	rows := make([][]any, 0, len(measurements))
	for _, m := range measurements {
		rows = append(rows, []any{
			m.LocationID,
			m.ObservationTime.UTC(),
			m.OccupancyRate,
			m.AvailabilityRate,
			m.TotalVehiclesPassed,
			m.AverageSpeed,
			m.MaxSpeed,
		})
	}
	return db.inserter.Insert(ctx, measurementsTable, rows)
}

// InsertVehicleClassMeasurements writes per-class readings to the legacy
// traffic_vehicle_measurements table
func (db *DB) InsertVehicleClassMeasurements(ctx context.Context, readings []VehicleClassMeasurement) (*BatchResult, error) {
	rows := make([][]any, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, []any{
			r.LocationID,
			r.ObservationTime.UTC(),
			r.VehicleClass,
			r.TrafficIntensity,
			r.SpeedArithmetic,
			r.SpeedHarmonic,
		})
	}
	return db.inserter.Insert(ctx, vehicleClassTable, rows)
}

const measurementViewColumns = `
	t.location_id,
	t.observation_time,
	t.occupancy_rate,
	t.availability_rate,
	t.total_vehicles_passed,
	t.average_speed,
	t.max_speed,
	l.latitude,
	l.longitude
`

// FindNear returns the most recent measurements whose location lies within
// q.Radius of (q.Lat, q.Lon). The distance is evaluated on SRID 4326
// geometry, so the radius is in degrees. Without a point every location
// matches.
func (db *DB) FindNear(ctx context.Context, q NearQuery) ([]MeasurementView, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if q.HasPoint() {
		query := `
			SELECT ` + measurementViewColumns + `
			FROM traffic_measurements t
			JOIN locations l ON l.location_id = t.location_id
			WHERE ST_DWithin(
				ST_SetSRID(ST_MakePoint(l.longitude, l.latitude), 4326),
				ST_SetSRID(ST_MakePoint($1::double precision, $2::double precision), 4326),
				$3::double precision
			)
			ORDER BY t.observation_time DESC, t.location_id ASC
			LIMIT $4
		`
		rows, err = db.QueryContext(ctx, query, *q.Lon, *q.Lat, q.Radius, q.Limit)
	} else {
		query := `
			SELECT ` + measurementViewColumns + `
			FROM traffic_measurements t
			JOIN locations l ON l.location_id = t.location_id
			ORDER BY t.observation_time DESC, t.location_id ASC
			LIMIT $1
		`
		rows, err = db.QueryContext(ctx, query, q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("find measurements near point: %w", err)
	}
	defer rows.Close()

	return scanMeasurementViews(rows)
}

// FindByLocation returns the most recent measurements for one location
func (db *DB) FindByLocation(ctx context.Context, locationID, limit int) ([]MeasurementView, error) {
	query := `
		SELECT ` + measurementViewColumns + `
		FROM traffic_measurements t
		JOIN locations l ON l.location_id = t.location_id
		WHERE t.location_id = $1
		ORDER BY t.observation_time DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("find measurements by location: %w", err)
	}
	defer rows.Close()

	return scanMeasurementViews(rows)
}

// GetLocation retrieves a location by id. Returns nil when it does not exist.
func (db *DB) GetLocation(ctx context.Context, locationID int) (*Location, error) {
	query := `
		SELECT location_id, latitude, longitude
		FROM locations
		WHERE location_id = $1
	`

	var loc Location
	err := db.QueryRowContext(ctx, query, locationID).Scan(
		&loc.LocationID,
		&loc.Latitude,
		&loc.Longitude,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

func scanMeasurementViews(rows *sql.Rows) ([]MeasurementView, error) {
	views := make([]MeasurementView, 0)
	for rows.Next() {
		var v MeasurementView
		if err := rows.Scan(
			&v.LocationID,
			&v.ObservationTime,
			&v.OccupancyRate,
			&v.AvailabilityRate,
			&v.TotalVehiclesPassed,
			&v.AverageSpeed,
			&v.MaxSpeed,
			&v.Latitude,
			&v.Longitude,
		); err != nil {
			return nil, err
		}
		v.ObservationTime = v.ObservationTime.UTC()
		views = append(views, v)
	}

	return views, rows.Err()
}
