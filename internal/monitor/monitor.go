package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/blue-kelp-bio/reactormon/internal/metrics"
	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

// DefaultInterval is the default time between monitoring sweeps.
const DefaultInterval = 2 * time.Minute

// Service runs the periodic monitoring sweep over all active reactors.
type Service struct {
	store      storage.Storage
	telemetry  storage.TelemetryStorage
	classifier *Classifier
	sink       *Sink
	interval   time.Duration
	logger     zerolog.Logger

	running atomic.Bool
	sweeps  sync.WaitGroup
}

// NewService creates a monitoring service. A non-positive interval falls
// back to the default.
func NewService(store storage.Storage, telemetry storage.TelemetryStorage, classifier *Classifier, sink *Sink, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		store:      store,
		telemetry:  telemetry,
		classifier: classifier,
		sink:       sink,
		interval:   interval,
		logger:     logger.With().Str("component", "monitor").Logger(),
	}
}

// Run sweeps on the configured interval until ctx is cancelled. A tick
// that arrives while the previous sweep is still running is skipped, so
// a slow telemetry store never stacks sweeps. Cancellation stops future
// ticks only; a sweep already in flight runs to completion and Run
// returns after it finishes.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("monitor started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sweeps.Wait()
			s.logger.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				metrics.SweepsSkipped.Inc()
				s.logger.Warn().Msg("previous sweep still running, skipping tick")
				continue
			}
			// Detached from the tick loop's cancellation so shutdown
			// does not abandon the sweep halfway through a reactor.
			sweepCtx := context.WithoutCancel(ctx)
			s.sweeps.Add(1)
			go func() {
				defer s.sweeps.Done()
				defer s.running.Store(false)
				s.sweep(sweepCtx)
			}()
		}
	}
}

// sweep evaluates every active reactor once. A failure on one reactor is
// logged and does not stop the others.
func (s *Service) sweep(ctx context.Context) {
	start := time.Now()

	reactors, err := s.store.Reactors().ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list active reactors")
		return
	}

	var alerts int
	for _, reactor := range reactors {
		n, err := s.checkReactor(ctx, reactor)
		if err != nil {
			metrics.ReactorCheckErrors.Inc()
			s.logger.Error().Err(err).
				Str("reactor_id", reactor.ID).
				Str("reactor", reactor.Name).
				Msg("reactor check failed")
			continue
		}
		alerts += n
	}

	elapsed := time.Since(start)
	metrics.SweepsTotal.Inc()
	metrics.SweepDuration.Observe(elapsed.Seconds())
	s.logger.Info().
		Int("reactors", len(reactors)).
		Int("alerts", alerts).
		Dur("elapsed", elapsed).
		Msg("sweep complete")
}

// CheckReactor evaluates one reactor immediately, outside the sweep
// schedule. It returns the number of alerts raised.
func (s *Service) CheckReactor(ctx context.Context, reactorID string) (int, error) {
	reactor, err := s.store.Reactors().GetByID(ctx, reactorID)
	if err != nil {
		return 0, err
	}
	return s.checkReactor(ctx, reactor)
}

// checkReactor evaluates a reactor's active setpoints against its latest
// telemetry. The newest sample of each stream kind is fetched once and
// shared across that kind's setpoints. A setpoint whose stream has no
// sample yet, or whose field is absent from the sample, is skipped.
func (s *Service) checkReactor(ctx context.Context, reactor *models.Reactor) (int, error) {
	setpoints, err := s.store.Setpoints().ListActive(ctx, reactor.ID)
	if err != nil {
		return 0, fmt.Errorf("list setpoints: %w", err)
	}
	if len(setpoints) == 0 {
		return 0, nil
	}

	samples := make(map[models.StreamKind]*models.Sample)
	fetched := make(map[models.StreamKind]bool)

	var alerts int
	for _, sp := range setpoints {
		if !fetched[sp.Kind] {
			fetched[sp.Kind] = true
			sample, err := s.telemetry.LatestSample(ctx, reactor.ID, sp.Kind)
			if err != nil {
				// Leave the entry nil so the remaining setpoints of
				// this kind are skipped instead of refetching.
				s.logger.Error().Err(err).
					Str("reactor_id", reactor.ID).
					Str("kind", string(sp.Kind)).
					Msg("fetch latest sample")
				continue
			}
			samples[sp.Kind] = sample
		}

		sample := samples[sp.Kind]
		if sample == nil {
			s.logger.Debug().
				Str("reactor_id", reactor.ID).
				Str("kind", string(sp.Kind)).
				Msg("no telemetry for stream yet")
			continue
		}

		value, ok := sample.Value(sp.FieldName)
		if !ok {
			s.logger.Debug().
				Str("reactor_id", reactor.ID).
				Str("kind", string(sp.Kind)).
				Str("field", sp.FieldName).
				Msg("field missing from latest sample")
			continue
		}

		violation := s.classifier.Classify(sp, value)
		if violation == nil {
			continue
		}

		alert, err := s.sink.Raise(ctx, reactor, sp, violation)
		if err != nil {
			// One failed alert must not mute the rest of the reactor.
			s.logger.Error().Err(err).
				Str("reactor_id", reactor.ID).
				Str("field", sp.FieldName).
				Msg("raise alert")
			continue
		}
		if alert != nil {
			alerts++
		}
	}

	return alerts, nil
}
