package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	documentMeasurements = "measurement"
	documentLocations    = "location"
)

// Raw document shapes. Element names follow the MIV feed.

type rawMeasurementDocument struct {
	XMLName          xml.Name            `xml:"miv"`
	PublicationTime  time.Time           `xml:"tijd_publicatie"`
	LastConfigChange time.Time           `xml:"tijd_laatste_config_wijziging"`
	Points           []rawMeasuringPoint `xml:"meetpunt"`
}

type rawMeasuringPoint struct {
	DescriptiveID      string           `xml:"beschrijvende_id,attr"`
	UniqueID           int              `xml:"unieke_id,attr"`
	EquipmentNumber    int              `xml:"lve_nr"`
	ObservationTime    time.Time        `xml:"tijd_waarneming"`
	LastModifiedTime   time.Time        `xml:"tijd_laatst_gewijzigd"`
	CurrentPublication int              `xml:"actueel_publicatie"`
	Available          int              `xml:"beschikbaar"`
	Faulty             int              `xml:"defect"`
	Valid              int              `xml:"geldig"`
	MeasurementData    []rawMeasurement `xml:"meetdata"`
	CalculatedData     rawCalculated    `xml:"rekendata"`
}

type rawMeasurement struct {
	VehicleClass     VehicleClass `xml:"klasse_id,attr"`
	TrafficIntensity int          `xml:"verkeersintensiteit"`
	SpeedArithmetic  int          `xml:"voertuigsnelheid_rekenkundig"`
	SpeedHarmonic    int          `xml:"voertuigsnelheid_harmonisch"`
}

type rawCalculated struct {
	OccupancyRate    int `xml:"bezettingsgraad"`
	AvailabilityRate int `xml:"beschikbaarheidsgraad"`
	Instability      int `xml:"onrustigheid"`
}

type rawLocationDocument struct {
	XMLName          xml.Name           `xml:"mivconfig"`
	LastConfigChange time.Time          `xml:"tijd_laatste_config_wijziging"`
	Points           []rawPointLocation `xml:"meetpunt"`
}

type rawPointLocation struct {
	UniqueID  int          `xml:"unieke_id,attr"`
	Latitude  commaDecimal `xml:"breedtegraad_EPSG_4326"`
	Longitude commaDecimal `xml:"lengtegraad_EPSG_4326"`
}

// commaDecimal is a float written with a comma as decimal separator.
type commaDecimal float64

func (c *commaDecimal) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	v, err := ParseCommaDecimal(s)
	if err != nil {
		return &ParseError{Field: start.Name.Local, Value: s, Err: err}
	}
	*c = commaDecimal(v)
	return nil
}

// ParseCommaDecimal parses a number that uses ',' as decimal separator.
func ParseCommaDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

// ParseMeasurements decodes the live measurement document.
func ParseMeasurements(data []byte) (*MeasurementSnapshot, error) {
	var doc rawMeasurementDocument
	if err := decode(data, documentMeasurements, &doc); err != nil {
		return nil, err
	}

	snapshot := &MeasurementSnapshot{
		PublicationTime:  doc.PublicationTime.UTC(),
		LastConfigChange: doc.LastConfigChange.UTC(),
		Points:           make([]MeasuringPoint, 0, len(doc.Points)),
	}

	for _, p := range doc.Points {
		readings := make([]VehicleClassReading, 0, len(p.MeasurementData))
		for _, m := range p.MeasurementData {
			readings = append(readings, VehicleClassReading{
				VehicleClass:     m.VehicleClass,
				TrafficIntensity: m.TrafficIntensity,
				SpeedArithmetic:  m.SpeedArithmetic,
				SpeedHarmonic:    m.SpeedHarmonic,
			})
		}

		snapshot.Points = append(snapshot.Points, MeasuringPoint{
			LocationID:       p.UniqueID,
			DescriptiveID:    p.DescriptiveID,
			EquipmentNumber:  p.EquipmentNumber,
			ObservationTime:  p.ObservationTime.UTC(),
			LastModifiedTime: p.LastModifiedTime.UTC(),
			Available:        p.Available,
			Faulty:           p.Faulty,
			Valid:            p.Valid,
			Readings:         readings,
			OccupancyRate:    p.CalculatedData.OccupancyRate,
			AvailabilityRate: p.CalculatedData.AvailabilityRate,
			Instability:      p.CalculatedData.Instability,
		})
	}

	return snapshot, nil
}

// ParseLocations decodes the location/configuration document.
func ParseLocations(data []byte) (*LocationSnapshot, error) {
	var doc rawLocationDocument
	if err := decode(data, documentLocations, &doc); err != nil {
		return nil, err
	}

	snapshot := &LocationSnapshot{
		LastConfigChange: doc.LastConfigChange.UTC(),
		Points:           make([]PointLocation, 0, len(doc.Points)),
	}
	for _, p := range doc.Points {
		snapshot.Points = append(snapshot.Points, PointLocation{
			UniqueID:  p.UniqueID,
			Latitude:  float64(p.Latitude),
			Longitude: float64(p.Longitude),
		})
	}

	return snapshot, nil
}

func decode(data []byte, document string, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	if err := dec.Decode(v); err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return parseErr
		}
		return &DecodeError{Document: document, Err: err}
	}
	return nil
}

// charsetReader handles the single-byte encodings the feed has been served in.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}
