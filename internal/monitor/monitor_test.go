package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func newTestService(store *fakeStorage, telemetry *fakeTelemetry) *Service {
	sink := NewSink(store.alerts, NewGuard(0, 0), nil, nil, testLogger())
	return NewService(store, telemetry, NewClassifier(0), sink, time.Minute, testLogger())
}

func seedReactor(store *fakeStorage, id string) *models.Reactor {
	r := &models.Reactor{ID: id, Name: "Reactor " + id, Active: true}
	store.reactors.Create(context.Background(), r)
	return r
}

func TestCheckReactorRaisesAlerts(t *testing.T) {
	store := newFakeStorage()
	seedReactor(store, "r1")
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp1", ReactorID: "r1", Kind: models.StreamGas,
		FieldName: "ph", Min: floatPtr(6), Max: floatPtr(8), Active: true,
	})
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp2", ReactorID: "r1", Kind: models.StreamGas,
		FieldName: "reactor_temp", Max: floatPtr(40), Active: true,
	})

	telemetry := &fakeTelemetry{
		samples: map[string]map[models.StreamKind]*models.Sample{
			"r1": {
				models.StreamGas: {
					ReactorID: "r1",
					Kind:      models.StreamGas,
					Timestamp: time.Now(),
					Fields:    map[string]float64{"ph": 5.2, "reactor_temp": 37},
				},
			},
		},
	}

	svc := newTestService(store, telemetry)
	n, err := svc.CheckReactor(context.Background(), "r1")
	if err != nil {
		t.Fatalf("CheckReactor: %v", err)
	}
	if n != 1 {
		t.Errorf("raised %d alerts, want 1 (ph low, temp in range)", n)
	}
	if store.alerts.count() != 1 {
		t.Errorf("persisted %d alerts, want 1", store.alerts.count())
	}
	if telemetry.fetches != 1 {
		t.Errorf("fetched %d samples, want 1 (shared across same-kind setpoints)", telemetry.fetches)
	}
}

func TestCheckReactorNoTelemetryYet(t *testing.T) {
	store := newFakeStorage()
	seedReactor(store, "r1")
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp1", ReactorID: "r1", Kind: models.StreamDilution,
		FieldName: "flowrate", Min: floatPtr(1), Active: true,
	})

	telemetry := &fakeTelemetry{samples: map[string]map[models.StreamKind]*models.Sample{}}

	svc := newTestService(store, telemetry)
	n, err := svc.CheckReactor(context.Background(), "r1")
	if err != nil {
		t.Fatalf("CheckReactor: %v", err)
	}
	if n != 0 {
		t.Errorf("raised %d alerts, want 0", n)
	}
}

func TestCheckReactorFieldMissingFromSample(t *testing.T) {
	store := newFakeStorage()
	seedReactor(store, "r1")
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp1", ReactorID: "r1", Kind: models.StreamGas,
		FieldName: "kla_1h", Min: floatPtr(10), Active: true,
	})

	telemetry := &fakeTelemetry{
		samples: map[string]map[models.StreamKind]*models.Sample{
			"r1": {
				models.StreamGas: {
					ReactorID: "r1",
					Kind:      models.StreamGas,
					Timestamp: time.Now(),
					Fields:    map[string]float64{"ph": 7},
				},
			},
		},
	}

	svc := newTestService(store, telemetry)
	n, err := svc.CheckReactor(context.Background(), "r1")
	if err != nil {
		t.Fatalf("CheckReactor: %v", err)
	}
	if n != 0 {
		t.Errorf("raised %d alerts, want 0 for an absent field", n)
	}
}

func TestCheckReactorTelemetryErrorSkipsKind(t *testing.T) {
	store := newFakeStorage()
	seedReactor(store, "r1")
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp1", ReactorID: "r1", Kind: models.StreamGas,
		FieldName: "ph", Min: floatPtr(6), Active: true,
	})
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp2", ReactorID: "r1", Kind: models.StreamLevelControl,
		FieldName: "pump_rpm", Max: floatPtr(100), Active: true,
	})

	telemetry := &fakeTelemetry{
		errs: map[models.StreamKind]error{models.StreamGas: errors.New("connection refused")},
		samples: map[string]map[models.StreamKind]*models.Sample{
			"r1": {
				models.StreamLevelControl: {
					ReactorID: "r1",
					Kind:      models.StreamLevelControl,
					Timestamp: time.Now(),
					Fields:    map[string]float64{"pump_rpm": 150},
				},
			},
		},
	}

	svc := newTestService(store, telemetry)
	n, err := svc.CheckReactor(context.Background(), "r1")
	if err != nil {
		t.Fatalf("CheckReactor should not fail on one stream's fetch error: %v", err)
	}
	if n != 1 {
		t.Errorf("raised %d alerts, want 1 from the healthy stream", n)
	}
}

func TestRunSweepsActiveReactors(t *testing.T) {
	store := newFakeStorage()
	seedReactor(store, "r1")
	inactive := &models.Reactor{ID: "r2", Name: "Reactor r2", Active: false}
	store.reactors.Create(context.Background(), inactive)

	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp1", ReactorID: "r1", Kind: models.StreamGas,
		FieldName: "ph", Min: floatPtr(6), Active: true,
	})
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp2", ReactorID: "r2", Kind: models.StreamGas,
		FieldName: "ph", Min: floatPtr(6), Active: true,
	})

	sample := &models.Sample{
		Kind:      models.StreamGas,
		Timestamp: time.Now(),
		Fields:    map[string]float64{"ph": 4},
	}
	telemetry := &fakeTelemetry{
		samples: map[string]map[models.StreamKind]*models.Sample{
			"r1": {models.StreamGas: sample},
			"r2": {models.StreamGas: sample},
		},
	}

	svc := newTestService(store, telemetry)
	svc.sweep(context.Background())

	alerts, _ := store.alerts.ListByReactor(context.Background(), "r1", 10)
	if len(alerts) != 1 {
		t.Errorf("active reactor got %d alerts, want 1", len(alerts))
	}
	alerts, _ = store.alerts.ListByReactor(context.Background(), "r2", 10)
	if len(alerts) != 0 {
		t.Errorf("inactive reactor got %d alerts, want 0", len(alerts))
	}
}

func TestCancelDoesNotInterruptInFlightSweep(t *testing.T) {
	store := newFakeStorage()
	seedReactor(store, "r1")
	store.setpoints.Upsert(context.Background(), &models.Setpoint{
		ID: "sp1", ReactorID: "r1", Kind: models.StreamGas,
		FieldName: "ph", Min: floatPtr(6), Active: true,
	})

	telemetry := newBlockingTelemetry()
	sink := NewSink(store.alerts, NewGuard(0, 0), nil, nil, testLogger())
	svc := NewService(store, telemetry, NewClassifier(0), sink, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	select {
	case <-telemetry.started:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never started")
	}
	cancel()

	// Run must not return while the sweep is parked in the store read.
	select {
	case <-done:
		t.Fatal("Run returned while a sweep was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(telemetry.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the in-flight sweep finished")
	}

	if err := <-telemetry.ctxErrs; err != nil {
		t.Errorf("in-flight store read saw %v, want no cancellation", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeStorage()
	telemetry := &fakeTelemetry{}
	svc := newTestService(store, telemetry)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
