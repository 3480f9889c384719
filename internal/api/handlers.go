package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/alert"
	"github.com/yegors/planetracker/internal/feeder"
	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/internal/poller"
	"github.com/yegors/planetracker/internal/stats"
	"github.com/yegors/planetracker/pkg/logger"
)

// Scheduler is the poller surface used by the API
type Scheduler interface {
	RunAlertCycle(ctx context.Context) (*alert.Summary, error)
	LastAlert() *alert.Summary
	LastStats() *stats.DashboardStats
	Dashboard(ctx context.Context, day string) (*stats.DashboardStats, error)
	DayRecords(ctx context.Context, day string) ([]adsb.Record, error)
	Flag() poller.FlagView
	SetFlag(ctx context.Context, value bool)
	Status() poller.Status
}

// Location is the user position surface used by the API
type Location interface {
	Effective() adsb.UserPosition
	HasOverride() bool
	SetOverride(c geo.Coordinate) error
	ClearOverride()
}

// Ingester stores observations
type Ingester interface {
	Ingest(ctx context.Context, rec adsb.Record) error
	Counters() feeder.Counters
}

// Handler contains the API handlers
type Handler struct {
	scheduler Scheduler
	location  Location
	ingester  Ingester
	clients   func() int
	clock     func() time.Time
	logger    *logger.Logger
}

// NewHandler creates a new API handler. clients reports the number of connected
// websocket clients and may be nil.
func NewHandler(scheduler Scheduler, location Location, ingester Ingester, clients func() int, log *logger.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		location:  location,
		ingester:  ingester,
		clients:   clients,
		clock:     time.Now,
		logger:    log.Named("api-handler"),
	}
}

// GetHealth returns the cycle statuses
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.scheduler.Status()

	response := map[string]interface{}{
		"status":     status.Alert.OK || status.Alert.Runs == 0,
		"alert":      status.Alert,
		"stats":      status.Stats,
		"flag":       status.Flag,
		"flag_state": status.FlagState,
		"enabled":    status.Enabled,
	}
	if h.ingester != nil {
		response["feeder"] = h.ingester.Counters()
	}
	if h.clients != nil {
		response["websocket_clients"] = h.clients()
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetLatestAlert returns the most recent alert summary
func (h *Handler) GetLatestAlert(w http.ResponseWriter, r *http.Request) {
	summary := h.scheduler.LastAlert()
	if summary == nil {
		writeError(w, http.StatusNotFound, "no alert cycle has completed yet")
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// RunAlertCycle triggers an alert cycle now
func (h *Handler) RunAlertCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.RunAlertCycle(r.Context())
	switch {
	case errors.Is(err, poller.ErrCycleInFlight):
		writeError(w, http.StatusConflict, "an alert cycle is already running")
		return
	case errors.Is(err, poller.ErrDisabled):
		writeError(w, http.StatusConflict, "alerting is disabled")
		return
	case err != nil:
		h.logger.Error("Manual alert cycle failed", logger.Error(err))
		var fetchErr *poller.FetchError
		if errors.As(err, &fetchErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// GetStats returns dashboard statistics for ?date=YYYY-MM-DD, defaulting to today
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	dash, err := h.scheduler.Dashboard(r.Context(), day)
	if err != nil {
		h.logger.Error("Failed to compute stats",
			logger.String("date", day),
			logger.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, dash)
}

// ListObservations returns the day's aircraft with their location history
func (h *Handler) ListObservations(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	records, err := h.scheduler.DayRecords(r.Context(), day)
	if err != nil {
		h.logger.Error("Failed to list observations",
			logger.String("date", day),
			logger.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if records == nil {
		records = []adsb.Record{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"date":         day,
		"count":        len(records),
		"observations": records,
	})
}

// dayParam reads ?date=YYYY-MM-DD, defaulting to today
func (h *Handler) dayParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	day := r.URL.Query().Get("date")
	if day == "" {
		day = adsb.DayKey(h.clock()).Day
	}
	if _, err := time.Parse(adsb.DayLayout, day); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return day, true
}

// GetFlag returns the displayed enabled flag
func (h *Handler) GetFlag(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.scheduler.Flag())
}

// SetFlag applies a user edit of the enabled flag. The write completes in the
// background; the response carries the displayed state.
func (h *Handler) SetFlag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	h.scheduler.SetFlag(context.WithoutCancel(r.Context()), *req.Enabled)
	h.logger.Info("Enabled flag set via API", logger.Bool("enabled", *req.Enabled))

	WriteJSON(w, http.StatusAccepted, h.scheduler.Flag())
}

type locationResponse struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Valid          bool      `json:"valid"`
	AsOf           time.Time `json:"as_of"`
	OverrideActive bool      `json:"override_active"`
}

func (h *Handler) locationView() locationResponse {
	pos := h.location.Effective()
	return locationResponse{
		Latitude:       pos.Coordinate.Lat,
		Longitude:      pos.Coordinate.Lon,
		Valid:          pos.Valid(),
		AsOf:           pos.AsOf,
		OverrideActive: h.location.HasOverride(),
	}
}

// GetLocation returns the effective user position
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.locationView())
}

// SetLocation sets or clears the position override. Null coordinates clear it.
func (h *Handler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  *float64 `json:"latitude"`  // nil to clear override
		Longitude *float64 `json:"longitude"` // nil to clear override
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to parse location request", logger.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Latitude == nil || req.Longitude == nil {
		h.location.ClearOverride()
		WriteJSON(w, http.StatusOK, h.locationView())
		return
	}

	c := geo.Coordinate{Lat: *req.Latitude, Lon: *req.Longitude}
	if !c.Valid() {
		writeError(w, http.StatusBadRequest, "latitude must be within [-90, 90] and longitude within [-180, 180]")
		return
	}
	if err := h.location.SetOverride(c); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.locationView())
}

// PostObservation ingests one observation, given in the store's raw field layout,
// into the current bucket
func (h *Handler) PostObservation(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	raw := adsb.RawRecord{Fields: fields}
	if !raw.Field(adsb.FieldICAO).Present() {
		writeError(w, http.StatusBadRequest, "icao is required")
		return
	}

	rec := adsb.Decode(raw)
	if rec.SpottedAt == "" || rec.SpottedAt == adsb.NotAvailable {
		rec = rec.WithObservedAt(h.clock().Format(adsb.SpottedAtLayout))
	}

	if err := h.ingester.Ingest(r.Context(), rec); err != nil {
		h.logger.Error("Failed to ingest observation",
			logger.String("icao", rec.ICAO),
			logger.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"icao":       rec.ICAO,
		"spotted_at": rec.SpottedAt,
	})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
