package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smukkama/traffic-server/internal/apperr"
	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/query"
)

// MeasurementQuerier answers the read endpoints
type MeasurementQuerier interface {
	FindNear(ctx context.Context, p query.NearParams) ([]database.MeasurementView, error)
	FindByLocation(ctx context.Context, rawID string, limit *int) ([]database.MeasurementView, error)
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// MeasurementDTO is the JSON form of a measurement
type MeasurementDTO struct {
	LocationID          int       `json:"locationId"`
	ObservationTime     time.Time `json:"observationTime"`
	OccupancyRate       int       `json:"occupancyRate"`
	AvailabilityRate    int       `json:"availabilityRate"`
	TotalVehiclesPassed int       `json:"totalVehiclesPassed"`
	AverageSpeed        *int      `json:"averageSpeed"`
	MaxSpeed            *int      `json:"maxSpeed"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
}

func toDTOs(views []database.MeasurementView) []MeasurementDTO {
	out := make([]MeasurementDTO, 0, len(views))
	for _, v := range views {
		out = append(out, MeasurementDTO{
			LocationID:          v.LocationID,
			ObservationTime:     v.ObservationTime.UTC(),
			OccupancyRate:       v.OccupancyRate,
			AvailabilityRate:    v.AvailabilityRate,
			TotalVehiclesPassed: v.TotalVehiclesPassed,
			AverageSpeed:        v.AverageSpeed,
			MaxSpeed:            v.MaxSpeed,
			Latitude:            v.Latitude,
			Longitude:           v.Longitude,
		})
	}
	return out
}

type handlers struct {
	querier MeasurementQuerier
	health  HealthChecker
	logger  *log.Logger
}

// GET /measurements?lat&lon&radius&limit
func (h *handlers) listMeasurements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := query.NearParams{
		Lat:    floatParam(q.Get("lat")),
		Lon:    floatParam(q.Get("lon")),
		Radius: floatParam(q.Get("radius")),
		Limit:  intParam(q.Get("limit")),
	}

	views, err := h.querier.FindNear(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(views))
}

// GET /locations/{locationId}/measurements?limit
func (h *handlers) locationMeasurements(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationId")
	limit := intParam(r.URL.Query().Get("limit"))

	views, err := h.querier.FindByLocation(r.Context(), locationID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(views))
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.writeError(w, apperr.Internal("healthz", apperr.CodeDatabase, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, apperr.NotFound("router", "no route for "+r.Method+" "+r.URL.Path))
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	if appErr.Status() >= http.StatusInternalServerError {
		h.logger.Printf("Request failed: %v", err)
	}
	writeJSON(w, appErr.Status(), appErr.Payload())
}

// writeJSON outputs v as the response body with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// floatParam returns nil for a missing or unparsable value
func floatParam(raw string) *float64 {
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// intParam returns nil for a missing or unparsable value
func intParam(raw string) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
