package feed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestParseMeasurements_Fixture(t *testing.T) {
	snapshot, err := ParseMeasurements(readFixture(t, "verkeersdata.xml"))
	require.NoError(t, err)

	require.Len(t, snapshot.Points, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 23, 27, 458000000, time.UTC), snapshot.PublicationTime)

	p := snapshot.Points[0]
	assert.Equal(t, 29, p.LocationID)
	assert.Equal(t, "H101L10", p.DescriptiveID)
	assert.Equal(t, 101, p.EquipmentNumber)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 22, 0, 0, time.UTC), p.ObservationTime)
	assert.Equal(t, time.UTC, p.ObservationTime.Location())
	assert.Equal(t, 12, p.OccupancyRate)
	assert.Equal(t, 100, p.AvailabilityRate)
	assert.Equal(t, 3, p.Instability)

	require.Len(t, p.Readings, 3)
	assert.Equal(t, VehicleClassMotorBikes, p.Readings[0].VehicleClass)
	assert.Equal(t, 10, p.Readings[0].TrafficIntensity)
	assert.Equal(t, 60, p.Readings[0].SpeedArithmetic)
	assert.Equal(t, 58, p.Readings[0].SpeedHarmonic)
	assert.Equal(t, VehicleClassCars, p.Readings[1].VehicleClass)
	// klasse_id 7 is outside the known range
	assert.Equal(t, VehicleClassUnknown, p.Readings[2].VehicleClass)
}

func TestParseLocations_CommaDecimals(t *testing.T) {
	snapshot, err := ParseLocations(readFixture(t, "configuratie.xml"))
	require.NoError(t, err)

	require.Len(t, snapshot.Points, 2)
	assert.Equal(t, 29, snapshot.Points[0].UniqueID)
	assert.InDelta(t, 51.0455, snapshot.Points[0].Latitude, 1e-9)
	assert.InDelta(t, 3.7301, snapshot.Points[0].Longitude, 1e-9)
	assert.InDelta(t, 4.4025, snapshot.Points[1].Longitude, 1e-9)
}

func TestParseLocations_NonNumericCoordinate(t *testing.T) {
	doc := []byte(`<mivconfig>
  <tijd_laatste_config_wijziging>2024-02-28T08:00:00+01:00</tijd_laatste_config_wijziging>
  <meetpunt unieke_id="1">
    <breedtegraad_EPSG_4326>north</breedtegraad_EPSG_4326>
    <lengtegraad_EPSG_4326>3,7</lengtegraad_EPSG_4326>
  </meetpunt>
</mivconfig>`)

	snapshot, err := ParseLocations(doc)
	assert.Nil(t, snapshot)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
	assert.Equal(t, "breedtegraad_EPSG_4326", parseErr.Field)
	assert.Equal(t, "north", parseErr.Value)
}

func TestParseMeasurements_MalformedDocument(t *testing.T) {
	cases := map[string]string{
		"truncated":   `<miv><meetpunt unieke_id="1"><lve_nr>1</lve_nr>`,
		"wrong root":  `<mivconfig></mivconfig>`,
		"bad integer": `<miv><meetpunt unieke_id="x"></meetpunt></miv>`,
		"bad time":    `<miv><tijd_publicatie>yesterday</tijd_publicatie></miv>`,
		"not xml":     `{"miv": []}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			snapshot, err := ParseMeasurements([]byte(doc))
			assert.Nil(t, snapshot)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Equal(t, documentMeasurements, decodeErr.Document)
		})
	}
}

func TestParseMeasurements_UnparsableClassCodeIsUnknown(t *testing.T) {
	doc := []byte(`<miv>
  <meetpunt unieke_id="5">
    <tijd_waarneming>2024-03-01T10:22:00Z</tijd_waarneming>
    <meetdata klasse_id="abc"><verkeersintensiteit>4</verkeersintensiteit></meetdata>
  </meetpunt>
</miv>`)

	snapshot, err := ParseMeasurements(doc)
	require.NoError(t, err)
	require.Len(t, snapshot.Points[0].Readings, 1)
	assert.Equal(t, VehicleClassUnknown, snapshot.Points[0].Readings[0].VehicleClass)
	assert.Equal(t, 4, snapshot.Points[0].Readings[0].TrafficIntensity)
}

func TestParseMeasurements_Latin1Charset(t *testing.T) {
	doc := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<miv><meetpunt beschrijvende_id=\"Caf\xe9\" unieke_id=\"9\"></meetpunt></miv>")

	snapshot, err := ParseMeasurements(doc)
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 1)
	assert.Equal(t, "Café", snapshot.Points[0].DescriptiveID)
}

func TestClassFromCode(t *testing.T) {
	cases := map[int]VehicleClass{
		0:  VehicleClassUnknown,
		1:  VehicleClassMotorBikes,
		2:  VehicleClassCars,
		3:  VehicleClassVans,
		4:  VehicleClassRigidTrucks,
		5:  VehicleClassArticulatedTrucks,
		6:  VehicleClassUnknown,
		-1: VehicleClassUnknown,
	}
	for code, want := range cases {
		assert.Equal(t, want, ClassFromCode(code), "code %d", code)
	}
	assert.Equal(t, "ARTICULATED_TRUCKS", VehicleClassArticulatedTrucks.String())
	assert.Equal(t, "UNKNOWN", VehicleClassUnknown.String())
}

func TestParseCommaDecimal(t *testing.T) {
	v, err := ParseCommaDecimal(" 50,8503 ")
	require.NoError(t, err)
	assert.InDelta(t, 50.8503, v, 1e-9)

	v, err = ParseCommaDecimal("4.35")
	require.NoError(t, err)
	assert.InDelta(t, 4.35, v, 1e-9)

	_, err = ParseCommaDecimal("")
	assert.Error(t, err)
}
