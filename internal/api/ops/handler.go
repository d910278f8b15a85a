package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/blue-kelp-bio/reactormon/internal/metrics"
	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/realtime"
	"github.com/blue-kelp-bio/reactormon/internal/retention"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

// Checker runs the monitoring evaluation for one reactor on demand.
type Checker interface {
	CheckReactor(ctx context.Context, reactorID string) (int, error)
}

// Retainer runs retention cleanups on demand and reports status.
type Retainer interface {
	CleanAll(ctx context.Context) (retention.Totals, error)
	CleanReactor(ctx context.Context, reactorID string) (retention.Totals, error)
	Stats(ctx context.Context) (*retention.Stats, error)
}

// Handler serves the operational API.
type Handler struct {
	store     storage.Storage
	telemetry storage.TelemetryStorage
	checker   Checker
	retainer  Retainer
	publisher realtime.Publisher
	ws        http.Handler
	ingest    *rate.Limiter
	logger    zerolog.Logger
}

// NewHandler creates an ops API handler. ws may be nil to disable the
// websocket endpoint; ingestPerSec caps accepted telemetry samples per
// second across all reactors (non-positive disables the cap).
func NewHandler(store storage.Storage, telemetry storage.TelemetryStorage, checker Checker, retainer Retainer, publisher realtime.Publisher, ws http.Handler, ingestPerSec float64, logger zerolog.Logger) *Handler {
	var limiter *rate.Limiter
	if ingestPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ingestPerSec), int(ingestPerSec)+1)
	}
	return &Handler{
		store:     store,
		telemetry: telemetry,
		checker:   checker,
		retainer:  retainer,
		publisher: publisher,
		ws:        ws,
		ingest:    limiter,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the chi router with all ops routes.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(h.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/reactors/{reactorID}", func(r chi.Router) {
			r.Post("/check", h.checkReactor)
			r.Get("/alerts", h.listAlerts)
			r.Post("/telemetry/{kind}", h.ingestTelemetry)
		})

		r.Post("/alerts/{alertID}/ack", h.acknowledgeAlert)

		r.Route("/retention", func(r chi.Router) {
			r.Post("/clean", h.cleanRetention)
			r.Get("/stats", h.retentionStats)
		})
	})

	if h.ws != nil {
		r.Get("/ws", h.ws.ServeHTTP)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		OK(w, map[string]string{"status": "ok"})
	})

	return r
}

// requestLogger logs each request at debug level.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// checkReactor triggers an immediate monitoring evaluation of one reactor.
func (h *Handler) checkReactor(w http.ResponseWriter, r *http.Request) {
	reactorID := chi.URLParam(r, "reactorID")

	alerts, err := h.checker.CheckReactor(r.Context(), reactorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrReactorNotFound)
			return
		}
		h.logger.Error().Err(err).Str("reactor_id", reactorID).Msg("manual check failed")
		JSONError(w, ErrInternalServer)
		return
	}

	OK(w, map[string]any{
		"reactor_id": reactorID,
		"alerts":     alerts,
	})
}

// listAlerts returns a reactor's newest alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	reactorID := chi.URLParam(r, "reactorID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			JSONError(w, NewBadRequest("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	if _, err := h.store.Reactors().GetByID(r.Context(), reactorID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrReactorNotFound)
			return
		}
		JSONError(w, ErrInternalServer)
		return
	}

	alerts, err := h.store.Alerts().ListByReactor(r.Context(), reactorID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("reactor_id", reactorID).Msg("list alerts")
		JSONError(w, ErrInternalServer)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	OK(w, alerts)
}

type ackRequest struct {
	UserID string `json:"user_id"`
}

// acknowledgeAlert marks an alert acknowledged by a user. Acknowledging
// an already-acknowledged alert is a conflict-free no-op at the storage
// layer, surfaced here as not found.
func (h *Handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		JSONError(w, NewBadRequest("user_id is required"))
		return
	}

	if err := h.store.Alerts().Acknowledge(r.Context(), alertID, req.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrAlertNotFound)
			return
		}
		h.logger.Error().Err(err).Str("alert_id", alertID).Msg("acknowledge alert")
		JSONError(w, ErrInternalServer)
		return
	}

	OK(w, map[string]string{"alert_id": alertID, "status": "acknowledged"})
}

type ingestRequest struct {
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
}

// ingestTelemetry accepts one telemetry sample for a reactor stream,
// stores it, and publishes it on the reactor's real-time topic.
func (h *Handler) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	if h.ingest != nil && !h.ingest.Allow() {
		JSONError(w, ErrRateLimited)
		return
	}

	reactorID := chi.URLParam(r, "reactorID")

	kind, err := models.ParseStreamKind(chi.URLParam(r, "kind"))
	if err != nil {
		JSONError(w, NewBadRequest(err.Error()))
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	if _, err := h.store.Reactors().GetByID(r.Context(), reactorID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrReactorNotFound)
			return
		}
		JSONError(w, ErrInternalServer)
		return
	}

	sample := &models.Sample{
		ReactorID: reactorID,
		Kind:      kind,
		Timestamp: req.Timestamp,
		Fields:    req.Fields,
	}
	if err := sample.Validate(); err != nil {
		JSONError(w, NewBadRequest(err.Error()))
		return
	}

	if err := h.telemetry.Insert(r.Context(), sample); err != nil {
		h.logger.Error().Err(err).
			Str("reactor_id", reactorID).
			Str("kind", string(kind)).
			Msg("insert sample")
		JSONError(w, ErrInternalServer)
		return
	}

	metrics.IngestSamples.WithLabelValues(string(kind)).Inc()
	if h.publisher != nil {
		h.publisher.Publish(realtime.ReactorTopic(reactorID), "data", sample)
	}

	Created(w, map[string]any{
		"reactor_id": reactorID,
		"kind":       kind,
		"timestamp":  sample.Timestamp,
	})
}

// cleanRetention runs a retention cleanup now, for one reactor when the
// reactor query parameter is set, otherwise for all.
func (h *Handler) cleanRetention(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var totals retention.Totals
	var err error
	if reactorID := r.URL.Query().Get("reactor"); reactorID != "" {
		totals, err = h.retainer.CleanReactor(ctx, reactorID)
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrReactorNotFound)
			return
		}
	} else {
		totals, err = h.retainer.CleanAll(ctx)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("manual cleanup failed")
		JSONError(w, ErrInternalServer)
		return
	}

	OK(w, totals)
}

// retentionStats reports the retention configuration and per-reactor
// cutoffs.
func (h *Handler) retentionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.retainer.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("retention stats")
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, stats)
}
