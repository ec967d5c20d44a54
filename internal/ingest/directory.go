package ingest

import (
	"sort"

	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/feed"
)

// Coordinates is a WGS84 position
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Directory maps location ids to coordinates for one run
type Directory struct {
	coords map[int]Coordinates
}

// NewDirectory builds a directory from the configuration feed. When an id
// appears more than once the first occurrence wins, matching the
// insert-if-absent rule of the locations table.
func NewDirectory(points []feed.PointLocation) *Directory {
	d := &Directory{coords: make(map[int]Coordinates, len(points))}
	for _, p := range points {
		if _, exists := d.coords[p.UniqueID]; exists {
			continue
		}
		d.coords[p.UniqueID] = Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return d
}

// Lookup returns the coordinates of a location
func (d *Directory) Lookup(locationID int) (Coordinates, bool) {
	c, ok := d.coords[locationID]
	return c, ok
}

// Has reports whether the location is known
func (d *Directory) Has(locationID int) bool {
	_, ok := d.coords[locationID]
	return ok
}

// Len returns the number of distinct locations
func (d *Directory) Len() int {
	return len(d.coords)
}

// Locations returns every location sorted by id
func (d *Directory) Locations() []database.Location {
	out := make([]database.Location, 0, len(d.coords))
	for id, c := range d.coords {
		out = append(out, database.Location{
			LocationID: id,
			Latitude:   c.Latitude,
			Longitude:  c.Longitude,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out
}
