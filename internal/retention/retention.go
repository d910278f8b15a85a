// Package retention prunes aged telemetry and acknowledged alerts.
// Telemetry retention is configured per reactor with a global default;
// alert retention is a single global window and only acknowledged alerts
// are ever purged.
package retention

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/blue-kelp-bio/reactormon/internal/metrics"
	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

const (
	// DefaultInterval is how often the retention sweep runs.
	DefaultInterval = 24 * time.Hour

	// DefaultTelemetryDays applies to reactors without their own
	// retention window.
	DefaultTelemetryDays = 365

	// DefaultAlertDays is the retention window for acknowledged alerts.
	DefaultAlertDays = 90
)

// Totals aggregates the row counts removed by one cleanup run.
type Totals struct {
	// Telemetry maps each stream kind to the number of samples removed.
	Telemetry map[models.StreamKind]int64 `json:"telemetry"`

	// Alerts is the number of acknowledged alerts removed.
	Alerts int64 `json:"alerts"`
}

func newTotals() Totals {
	return Totals{Telemetry: make(map[models.StreamKind]int64)}
}

func (t *Totals) add(other Totals) {
	for kind, n := range other.Telemetry {
		t.Telemetry[kind] += n
	}
	t.Alerts += other.Alerts
}

// TelemetryRows returns the total samples removed across all stream kinds.
func (t Totals) TelemetryRows() int64 {
	var sum int64
	for _, n := range t.Telemetry {
		sum += n
	}
	return sum
}

// ReactorStats describes the retention posture of one reactor.
type ReactorStats struct {
	ReactorID     string    `json:"reactor_id"`
	ReactorName   string    `json:"reactor_name"`
	RetentionDays int       `json:"retention_days"`
	Cutoff        time.Time `json:"cutoff"`
}

// Stats is the retention status report served by the ops API.
type Stats struct {
	Interval    time.Duration  `json:"interval"`
	DefaultDays int            `json:"default_days"`
	AlertDays   int            `json:"alert_days"`
	NextRun     time.Time      `json:"next_run"`
	LastRun     time.Time      `json:"last_run,omitempty"`
	LastTotals  *Totals        `json:"last_totals,omitempty"`
	Reactors    []ReactorStats `json:"reactors"`
}

// Service runs scheduled and manual retention cleanups.
type Service struct {
	store       storage.Storage
	telemetry   storage.TelemetryStorage
	interval    time.Duration
	defaultDays int
	alertDays   int
	logger      zerolog.Logger

	cron    *cron.Cron
	running atomic.Bool
	runs    sync.WaitGroup

	lastRun    atomic.Pointer[time.Time]
	lastTotals atomic.Pointer[Totals]
}

// NewService creates a retention service. Non-positive parameters fall
// back to the defaults.
func NewService(store storage.Storage, telemetry storage.TelemetryStorage, interval time.Duration, defaultDays, alertDays int, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if defaultDays <= 0 {
		defaultDays = DefaultTelemetryDays
	}
	if alertDays <= 0 {
		alertDays = DefaultAlertDays
	}
	return &Service{
		store:       store,
		telemetry:   telemetry,
		interval:    interval,
		defaultDays: defaultDays,
		alertDays:   alertDays,
		logger:      logger.With().Str("component", "retention").Logger(),
	}
}

// Start runs one cleanup immediately, then schedules cleanups on the
// configured interval. A scheduled run that fires while a cleanup is in
// progress is skipped.
func (s *Service) Start(ctx context.Context) error {
	// Cleanups are detached from the caller's cancellation; shutdown
	// stops future runs via Stop and waits for the in-flight one.
	runCtx := context.WithoutCancel(ctx)

	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.runs.Add(1)
		defer s.runs.Done()
		s.runScheduled(runCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}

	s.logger.Info().
		Dur("interval", s.interval).
		Int("default_days", s.defaultDays).
		Int("alert_days", s.alertDays).
		Msg("retention started")

	// First cleanup runs right away so a long-stopped deployment catches
	// up without waiting a full interval.
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.runScheduled(runCtx)
	}()

	s.cron.Start()
	return nil
}

// Stop cancels future scheduled runs and waits for an in-flight run to
// finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.runs.Wait()
	s.logger.Info().Msg("retention stopped")
}

func (s *Service) runScheduled(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("previous cleanup still running, skipping")
		return
	}
	defer s.running.Store(false)

	totals, err := s.cleanAll(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled cleanup failed")
		return
	}

	now := time.Now()
	s.lastRun.Store(&now)
	s.lastTotals.Store(&totals)
	metrics.RetentionRuns.Inc()
}

// CleanAll removes aged telemetry for every active reactor and purges
// acknowledged alerts older than the global alert window. A failure on
// one reactor is logged and does not stop the others.
func (s *Service) CleanAll(ctx context.Context) (Totals, error) {
	return s.cleanAll(ctx, time.Now())
}

func (s *Service) cleanAll(ctx context.Context, now time.Time) (Totals, error) {
	start := time.Now()
	totals := newTotals()

	reactors, err := s.store.Reactors().ListActive(ctx)
	if err != nil {
		return totals, fmt.Errorf("list active reactors: %w", err)
	}

	for _, reactor := range reactors {
		t, err := s.cleanTelemetry(ctx, reactor, now)
		if err != nil {
			metrics.RetentionErrors.Inc()
			s.logger.Error().Err(err).
				Str("reactor_id", reactor.ID).
				Str("reactor", reactor.Name).
				Msg("reactor cleanup failed")
			continue
		}
		totals.add(t)
	}

	deleted, err := s.cleanAlerts(ctx, now)
	if err != nil {
		metrics.RetentionErrors.Inc()
		s.logger.Error().Err(err).Msg("alert cleanup failed")
	} else {
		totals.Alerts = deleted
	}

	s.logger.Info().
		Int("reactors", len(reactors)).
		Int64("telemetry_rows", totals.TelemetryRows()).
		Int64("alert_rows", totals.Alerts).
		Dur("elapsed", time.Since(start)).
		Msg("cleanup complete")

	return totals, nil
}

// CleanReactor removes aged telemetry for one reactor and also purges
// aged acknowledged alerts, so a manual cleanup leaves nothing stale.
func (s *Service) CleanReactor(ctx context.Context, reactorID string) (Totals, error) {
	now := time.Now()

	reactor, err := s.store.Reactors().GetByID(ctx, reactorID)
	if err != nil {
		return newTotals(), err
	}

	totals, err := s.cleanTelemetry(ctx, reactor, now)
	if err != nil {
		return totals, err
	}

	deleted, err := s.cleanAlerts(ctx, now)
	if err != nil {
		return totals, err
	}
	totals.Alerts = deleted
	return totals, nil
}

// cleanTelemetry prunes every stream of one reactor to its retention
// window.
func (s *Service) cleanTelemetry(ctx context.Context, reactor *models.Reactor, now time.Time) (Totals, error) {
	totals := newTotals()
	cutoff := now.AddDate(0, 0, -s.retentionDays(reactor))

	for _, kind := range models.StreamKinds() {
		deleted, err := s.telemetry.DeleteBefore(ctx, reactor.ID, kind, cutoff)
		if err != nil {
			return totals, fmt.Errorf("delete %s samples: %w", kind, err)
		}
		totals.Telemetry[kind] = deleted
		if deleted > 0 {
			metrics.RetentionRowsDeleted.WithLabelValues(string(kind)).Add(float64(deleted))
			s.logger.Debug().
				Str("reactor_id", reactor.ID).
				Str("kind", string(kind)).
				Int64("rows", deleted).
				Time("cutoff", cutoff).
				Msg("telemetry pruned")
		}
	}
	return totals, nil
}

// cleanAlerts purges acknowledged alerts older than the global alert
// window. Unacknowledged alerts are never touched regardless of age.
func (s *Service) cleanAlerts(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -s.alertDays)
	deleted, err := s.store.Alerts().DeleteAcknowledgedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete acknowledged alerts: %w", err)
	}
	if deleted > 0 {
		metrics.RetentionRowsDeleted.WithLabelValues("alerts").Add(float64(deleted))
		s.logger.Debug().
			Int64("rows", deleted).
			Time("cutoff", cutoff).
			Msg("acknowledged alerts purged")
	}
	return deleted, nil
}

// retentionDays returns the reactor's telemetry window in days, falling
// back to the global default when the reactor has none.
func (s *Service) retentionDays(reactor *models.Reactor) int {
	if reactor.RetentionDays > 0 {
		return reactor.RetentionDays
	}
	return s.defaultDays
}

// Stats reports the current retention configuration and the per-reactor
// cutoffs that the next run will apply.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	reactors, err := s.store.Reactors().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active reactors: %w", err)
	}

	now := time.Now()
	stats := &Stats{
		Interval:    s.interval,
		DefaultDays: s.defaultDays,
		AlertDays:   s.alertDays,
		Reactors:    make([]ReactorStats, 0, len(reactors)),
	}
	if s.cron != nil {
		if entries := s.cron.Entries(); len(entries) > 0 {
			stats.NextRun = entries[0].Next
		}
	}
	if last := s.lastRun.Load(); last != nil {
		stats.LastRun = *last
	}
	if totals := s.lastTotals.Load(); totals != nil {
		stats.LastTotals = totals
	}

	for _, reactor := range reactors {
		days := s.retentionDays(reactor)
		stats.Reactors = append(stats.Reactors, ReactorStats{
			ReactorID:     reactor.ID,
			ReactorName:   reactor.Name,
			RetentionDays: days,
			Cutoff:        now.AddDate(0, 0, -days),
		})
	}
	return stats, nil
}
