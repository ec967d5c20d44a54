package feed

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

// VehicleClass is the category a reading is attributed to.
type VehicleClass int

const (
	VehicleClassUnknown VehicleClass = iota
	VehicleClassMotorBikes
	VehicleClassCars
	VehicleClassVans
	VehicleClassRigidTrucks
	VehicleClassArticulatedTrucks
)

// ClassFromCode maps the feed's klasse_id code to a VehicleClass.
// Codes outside 1-5 map to VehicleClassUnknown.
func ClassFromCode(code int) VehicleClass {
	switch code {
	case 1:
		return VehicleClassMotorBikes
	case 2:
		return VehicleClassCars
	case 3:
		return VehicleClassVans
	case 4:
		return VehicleClassRigidTrucks
	case 5:
		return VehicleClassArticulatedTrucks
	default:
		return VehicleClassUnknown
	}
}

// String returns the label used by the vehicle_class Postgres enum.
func (c VehicleClass) String() string {
	switch c {
	case VehicleClassMotorBikes:
		return "MOTOR_BIKES"
	case VehicleClassCars:
		return "CARS"
	case VehicleClassVans:
		return "VANS"
	case VehicleClassRigidTrucks:
		return "RIGID_TRUCKS"
	case VehicleClassArticulatedTrucks:
		return "ARTICULATED_TRUCKS"
	default:
		return "UNKNOWN"
	}
}

// UnmarshalXMLAttr decodes the klasse_id attribute. It never fails: an
// unparsable code degrades to VehicleClassUnknown.
func (c *VehicleClass) UnmarshalXMLAttr(attr xml.Attr) error {
	code, err := strconv.Atoi(strings.TrimSpace(attr.Value))
	if err != nil {
		*c = VehicleClassUnknown
		return nil
	}
	*c = ClassFromCode(code)
	return nil
}

// VehicleClassReading is one per-class row of a measuring point.
type VehicleClassReading struct {
	VehicleClass     VehicleClass
	TrafficIntensity int
	SpeedArithmetic  int
	SpeedHarmonic    int
}

// MeasuringPoint is the snapshot of one sensor at one observation time.
type MeasuringPoint struct {
	LocationID       int
	DescriptiveID    string
	EquipmentNumber  int
	ObservationTime  time.Time
	LastModifiedTime time.Time
	Available        int
	Faulty           int
	Valid            int
	Readings         []VehicleClassReading
	OccupancyRate    int
	AvailabilityRate int
	Instability      int
}

// MeasurementSnapshot is the decoded live measurement document.
type MeasurementSnapshot struct {
	PublicationTime  time.Time
	LastConfigChange time.Time
	Points           []MeasuringPoint
}

// PointLocation is a measuring point's position from the configuration feed.
type PointLocation struct {
	UniqueID  int
	Latitude  float64
	Longitude float64
}

// LocationSnapshot is the decoded configuration document.
type LocationSnapshot struct {
	LastConfigChange time.Time
	Points           []PointLocation
}
