package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/deeplearn-app/deeplearn/internal/metrics"
	"github.com/deeplearn-app/deeplearn/internal/model"
)

// maxEventBytes caps the size of one posted event.
const maxEventBytes = 64 << 10

// EventStore persists received events.
type EventStore interface {
	InsertEvent(ctx context.Context, ev model.TelemetryEvent) (bool, error)
	ListEvents(ctx context.Context, userID string) ([]model.TelemetryEvent, error)
	ExportUsers(ctx context.Context) ([]model.UserResults, error)
}

// Collector receives telemetry events from assessment clients.
type Collector struct {
	store   EventStore
	limiter *RateLimiter
	now     func() time.Time
}

// New creates a Collector. A nil limiter disables throttling.
func New(st EventStore, limiter *RateLimiter) *Collector {
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}
	return &Collector{store: st, limiter: limiter, now: time.Now}
}

// Routes registers the collector endpoints.
func (c *Collector) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(c.limiter.Middleware).Post("/api/detective", c.handleIngest)
	r.Get("/api/events", c.handleList)
	r.Get("/api/export", c.handleExport)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ingestResponse struct {
	EventID   string `json:"eventId"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (c *Collector) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBytes)
	var ev model.TelemetryEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		metrics.Ingested.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error(), Code: "INVALID_EVENT"})
		return
	}
	if err := c.normalize(&ev); err != nil {
		metrics.Ingested.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "INVALID_EVENT"})
		return
	}

	inserted, err := c.store.InsertEvent(r.Context(), ev)
	if err != nil {
		slog.Error("failed to store event", "event_id", ev.EventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "STORE_FAILED"})
		return
	}
	if !inserted {
		metrics.Ingested.WithLabelValues("duplicate").Inc()
		slog.Debug("duplicate event ignored", "event_id", ev.EventID)
		writeJSON(w, http.StatusOK, ingestResponse{EventID: ev.EventID, Duplicate: true})
		return
	}
	metrics.Ingested.WithLabelValues("stored").Inc()
	slog.Info("event received",
		"event_id", ev.EventID, "user_id", ev.UserID, "tag", ev.SessionTag,
		"group_index", ev.GroupIndex, "correct", ev.Correct)
	writeJSON(w, http.StatusCreated, ingestResponse{EventID: ev.EventID})
}

var errMissingUser = errors.New("userId is required")

// normalize validates ev and fills what older clients leave out: an event id and
// a timestamp.
func (c *Collector) normalize(ev *model.TelemetryEvent) error {
	if ev.UserID == "" {
		return errMissingUser
	}
	if _, err := model.ParseSessionTag(string(ev.SessionTag)); err != nil {
		return err
	}
	if ev.GroupIndex < 0 {
		return fmt.Errorf("groupIndex %d is negative", ev.GroupIndex)
	}
	if ev.Confidence != 0 && (ev.Confidence < model.MinConfidence || ev.Confidence > model.MaxConfidence) {
		return fmt.Errorf("confidence %d outside %d..%d", ev.Confidence, model.MinConfidence, model.MaxConfidence)
	}
	if len(ev.ViewOrder) > 0 && !ev.ViewOrder.Valid(len(ev.ViewOrder)) {
		return fmt.Errorf("viewOrder %v is not a permutation", ev.ViewOrder)
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now().UTC()
	}
	return nil
}

func (c *Collector) handleList(w http.ResponseWriter, r *http.Request) {
	events, err := c.store.ListEvents(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		slog.Error("failed to list events", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "STORE_FAILED"})
		return
	}
	if events == nil {
		events = []model.TelemetryEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (c *Collector) handleExport(w http.ResponseWriter, r *http.Request) {
	users, err := c.store.ExportUsers(r.Context())
	if err != nil {
		slog.Error("failed to export events", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "STORE_FAILED"})
		return
	}
	if users == nil {
		users = []model.UserResults{}
	}
	export := model.EventExport{
		Collector:  r.Host,
		ExportedAt: c.now().UTC(),
		Users:      users,
	}
	for _, u := range users {
		for _, s := range u.Sessions {
			export.NumEvents += s.NumEvents
		}
	}
	writeJSON(w, http.StatusOK, export)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
