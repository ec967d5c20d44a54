package protocol

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/traffic-server/internal/database"
)

// MeasurementMessage is the Kafka message announcing one stored measurement
type MeasurementMessage struct {
	RunID               string    `json:"run_id"`
	LocationID          int       `json:"location_id"`
	ObservationTime     time.Time `json:"observation_time"`
	OccupancyRate       int       `json:"occupancy_rate"`
	AvailabilityRate    int       `json:"availability_rate"`
	TotalVehiclesPassed int       `json:"total_vehicles_passed"`
	AverageSpeed        *int      `json:"average_speed"`
	MaxSpeed            *int      `json:"max_speed"`
	PublishedAt         time.Time `json:"published_at"`
}

// NewMeasurementMessage builds the message for a measurement written by run
func NewMeasurementMessage(runID uuid.UUID, m database.AggregatedMeasurement, publishedAt time.Time) *MeasurementMessage {
	return &MeasurementMessage{
		RunID:               runID.String(),
		LocationID:          m.LocationID,
		ObservationTime:     m.ObservationTime.UTC(),
		OccupancyRate:       m.OccupancyRate,
		AvailabilityRate:    m.AvailabilityRate,
		TotalVehiclesPassed: m.TotalVehiclesPassed,
		AverageSpeed:        m.AverageSpeed,
		MaxSpeed:            m.MaxSpeed,
		PublishedAt:         publishedAt.UTC(),
	}
}

// Key returns the partition key. Messages of one location share a partition.
func (m *MeasurementMessage) Key() string {
	return strconv.Itoa(m.LocationID)
}

// EncodeMeasurementMessage encodes a MeasurementMessage to JSON
func EncodeMeasurementMessage(msg *MeasurementMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMeasurementMessage decodes JSON to MeasurementMessage
func DecodeMeasurementMessage(data []byte) (*MeasurementMessage, error) {
	var msg MeasurementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
