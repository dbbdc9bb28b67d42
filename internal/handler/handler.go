package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deeplearn-app/deeplearn/internal/catalog"
	"github.com/deeplearn-app/deeplearn/internal/i18n"
	"github.com/deeplearn-app/deeplearn/internal/metrics"
	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/policy"
	"github.com/deeplearn-app/deeplearn/internal/session"
)

// Config holds the catalogs and submission policies per session tag.
type Config struct {
	Catalogs map[model.SessionTag]model.Catalog
	Policies map[model.SessionTag]*policy.Policy
	// Options are applied to every controller after the handler's own.
	Options []session.Option
}

const (
	// completedSessionTTL is how long a finished session stays reachable for
	// reads and restarts after its last request.
	completedSessionTTL = 15 * time.Minute
	// idleSessionTTL drops abandoned sessions in any phase.
	idleSessionTTL = 2 * time.Hour
)

type liveSession struct {
	c        *session.Controller
	lastSeen time.Time
}

// Handler is the JSON boundary between the UI layer and session controllers.
type Handler struct {
	state     session.KV
	publisher session.Publisher
	policies  map[model.SessionTag]*policy.Policy
	options   []session.Option

	mu       sync.RWMutex
	now      func() time.Time
	catalogs map[model.SessionTag]model.Catalog
	sessions map[string]*liveSession
	lastGC   time.Time
}

// New creates a Handler. Every configured catalog must be non-empty.
func New(state session.KV, pub session.Publisher, cfg Config) (*Handler, error) {
	if len(cfg.Catalogs) == 0 {
		return nil, fmt.Errorf("no catalogs configured: %w", catalog.ErrEmpty)
	}
	catalogs := make(map[model.SessionTag]model.Catalog, len(cfg.Catalogs))
	for tag, c := range cfg.Catalogs {
		if c.Len() == 0 {
			return nil, fmt.Errorf("catalog for %s: %w", tag, catalog.ErrEmpty)
		}
		catalogs[tag] = c
	}
	return &Handler{
		state:     state,
		publisher: pub,
		policies:  cfg.Policies,
		options:   cfg.Options,
		now:       time.Now,
		catalogs:  catalogs,
		sessions:  make(map[string]*liveSession),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/identity", h.handleIdentity)
	r.Post("/identity/reset", h.handleResetIdentity)
	r.Post("/sessions", h.handleStart)
	r.Get("/sessions/{sessionID}", h.handleState)
	r.Post("/sessions/{sessionID}/intents", h.handleIntent)
	r.Delete("/sessions/{sessionID}", h.handleEnd)
	r.Post("/admin/catalogs/{tag}", h.handleUploadCatalog)
}

type startRequest struct {
	SessionTag model.SessionTag `json:"sessionTag"`
	UserID     string           `json:"userId,omitempty"`
}

type stateResponse struct {
	model.State
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error        string                      `json:"error"`
	Missing      []string                    `json:"missing,omitempty"`
	Requirements []policy.MissingRequirement `json:"requirements,omitempty"`
	State        *model.State                `json:"state,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := session.UserID(r.Context(), h.state)
	if err != nil {
		slog.Error("failed to load user id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id})
}

func (h *Handler) handleResetIdentity(w http.ResponseWriter, r *http.Request) {
	if err := session.ResetUserID(r.Context(), h.state); err != nil {
		slog.Error("failed to reset user id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: i18n.T(r.Context(), "InvalidRequest")})
		return
	}
	tag, err := model.ParseSessionTag(string(req.SessionTag))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	h.mu.RLock()
	cat, ok := h.catalogs[tag]
	h.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no catalog for %s", tag)})
		return
	}

	userID := req.UserID
	if userID == "" {
		if userID, err = session.UserID(r.Context(), h.state); err != nil {
			slog.Error("failed to load user id", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	opts := []session.Option{session.WithPublisher(h.publisher)}
	if p := h.policies[tag]; p != nil {
		opts = append(opts, session.WithPolicy(p))
	}
	opts = append(opts, h.options...)

	c, err := session.Start(cat, tag, userID, opts...)
	if err != nil {
		slog.Error("failed to start session", "tag", tag, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	now := h.now()
	h.evictIdle(now)
	h.sessions[c.ID()] = &liveSession{c: c, lastSeen: now}
	metrics.LiveSessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, stateResponse{State: c.State()})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	c := h.lookup(w, r)
	if c == nil {
		return
	}
	h.respondState(w, r, c.State())
}

func (h *Handler) handleIntent(w http.ResponseWriter, r *http.Request) {
	c := h.lookup(w, r)
	if c == nil {
		return
	}
	var in session.Intent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: i18n.T(r.Context(), "InvalidRequest")})
		return
	}

	st, err := c.Dispatch(in)
	var (
		invalid *session.InvalidIntentError
		already *session.AlreadySubmittedError
	)
	switch {
	case err == nil:
		h.respondState(w, r, st)
	case errors.As(err, &already):
		writeJSON(w, http.StatusConflict, errorResponse{Error: i18n.T(r.Context(), "AlreadySubmitted"), State: &st})
	case errors.As(err, &invalid) && len(invalid.Missing) > 0:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:        i18n.T(r.Context(), "NotReady"),
			Missing:      i18n.Missing(r.Context(), invalid.Missing),
			Requirements: invalid.Missing,
			State:        &st,
		})
	case errors.Is(err, session.ErrComplete):
		writeJSON(w, http.StatusConflict, errorResponse{Error: i18n.T(r.Context(), "SessionComplete"), State: &st})
	case errors.As(err, &invalid):
		slog.Debug("intent rejected", "session_id", c.ID(), "intent", in.Kind, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: i18n.T(r.Context(), "InvalidIntent"), State: &st})
	default:
		slog.Error("intent failed", "session_id", c.ID(), "intent", in.Kind, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	metrics.LiveSessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: i18n.T(r.Context(), "SessionNotFound")})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) *session.Controller {
	h.mu.Lock()
	ls, ok := h.sessions[chi.URLParam(r, "sessionID")]
	if ok {
		ls.lastSeen = h.now()
	}
	h.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: i18n.T(r.Context(), "SessionNotFound")})
		return nil
	}
	return ls.c
}

// evictIdle drops completed sessions idle longer than completedSessionTTL and
// any session idle longer than idleSessionTTL. It sweeps at most once per
// completedSessionTTL. Callers hold h.mu.
func (h *Handler) evictIdle(now time.Time) {
	if now.Sub(h.lastGC) < completedSessionTTL {
		return
	}
	h.lastGC = now
	for id, ls := range h.sessions {
		idle := now.Sub(ls.lastSeen)
		if idle > idleSessionTTL || (idle > completedSessionTTL && ls.c.State().Phase == model.PhaseComplete) {
			delete(h.sessions, id)
			slog.Debug("evicted idle session", "session_id", id, "idle", idle)
		}
	}
}

func (h *Handler) respondState(w http.ResponseWriter, r *http.Request, st model.State) {
	resp := stateResponse{State: st}
	if st.Phase == model.PhaseComplete {
		resp.Message = i18n.T(r.Context(), "SessionComplete") + " " + i18n.Tp(r.Context(), "CasesAnswered", st.Answered)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
