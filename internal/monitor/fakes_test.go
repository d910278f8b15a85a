package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

// fakeAlertRepo is an in-memory AlertRepository.
type fakeAlertRepo struct {
	mu        sync.Mutex
	alerts    []*models.Alert
	createErr error
	listErr   error
}

func (f *fakeAlertRepo) Create(_ context.Context, a *models.Alert) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlertRepo) GetByID(_ context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeAlertRepo) ListByReactor(_ context.Context, reactorID string, limit int) ([]*models.Alert, error) {
	return f.list(reactorID, limit, false)
}

func (f *fakeAlertRepo) ListRecentUnacknowledged(_ context.Context, reactorID string, limit int) ([]*models.Alert, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list(reactorID, limit, true)
}

func (f *fakeAlertRepo) list(reactorID string, limit int, unackedOnly bool) ([]*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Alert
	// Newest first, matching the SQL ordering.
	for i := len(f.alerts) - 1; i >= 0; i-- {
		a := f.alerts[i]
		if a.ReactorID != reactorID {
			continue
		}
		if unackedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAlertRepo) Acknowledge(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.ID == id && !a.Acknowledged {
			now := time.Now()
			a.Acknowledged = true
			a.AcknowledgedBy = userID
			a.AcknowledgedAt = &now
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeAlertRepo) DeleteAcknowledgedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.Alert
	var deleted int64
	for _, a := range f.alerts {
		if a.Acknowledged && a.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	f.alerts = kept
	return deleted, nil
}

func (f *fakeAlertRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	topic string
	event string
}

func (f *fakePublisher) Publish(topic, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{topic: topic, event: event})
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.topic
	}
	return out
}

// fakeDispatcher records dispatched alerts.
type fakeDispatcher struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (f *fakeDispatcher) DispatchAlert(_ context.Context, _ *models.Reactor, a *models.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

// fakeTelemetry serves canned latest samples keyed by reactor and kind.
type fakeTelemetry struct {
	samples map[string]map[models.StreamKind]*models.Sample
	errs    map[models.StreamKind]error
	fetches int
}

func (f *fakeTelemetry) Open() error    { return nil }
func (f *fakeTelemetry) Close() error   { return nil }
func (f *fakeTelemetry) Migrate() error { return nil }

func (f *fakeTelemetry) Insert(_ context.Context, _ *models.Sample) error {
	return errors.New("not implemented")
}

func (f *fakeTelemetry) LatestSample(_ context.Context, reactorID string, kind models.StreamKind) (*models.Sample, error) {
	f.fetches++
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	byKind := f.samples[reactorID]
	if byKind == nil {
		return nil, nil
	}
	return byKind[kind], nil
}

func (f *fakeTelemetry) DeleteBefore(_ context.Context, _ string, _ models.StreamKind, _ time.Time) (int64, error) {
	return 0, nil
}

// blockingTelemetry parks inside LatestSample until released, recording
// the context error each read observed while blocked.
type blockingTelemetry struct {
	fakeTelemetry
	startedOnce sync.Once
	started     chan struct{}
	release     chan struct{}
	ctxErrs     chan error
}

func newBlockingTelemetry() *blockingTelemetry {
	return &blockingTelemetry{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErrs: make(chan error, 8),
	}
}

func (b *blockingTelemetry) LatestSample(ctx context.Context, reactorID string, kind models.StreamKind) (*models.Sample, error) {
	b.startedOnce.Do(func() { close(b.started) })
	<-b.release
	b.ctxErrs <- ctx.Err()
	return &models.Sample{
		ReactorID: reactorID,
		Kind:      kind,
		Timestamp: time.Now(),
		Fields:    map[string]float64{"ph": 7},
	}, nil
}

// fakeStorage wires fake repositories behind the Storage interface.
type fakeStorage struct {
	reactors  *fakeReactorRepo
	setpoints *fakeSetpointRepo
	alerts    *fakeAlertRepo
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		reactors:  &fakeReactorRepo{},
		setpoints: &fakeSetpointRepo{},
		alerts:    &fakeAlertRepo{},
	}
}

func (f *fakeStorage) Open() error    { return nil }
func (f *fakeStorage) Close() error   { return nil }
func (f *fakeStorage) Migrate() error { return nil }

func (f *fakeStorage) Reactors() storage.ReactorRepository   { return f.reactors }
func (f *fakeStorage) Users() storage.UserRepository         { return nil }
func (f *fakeStorage) Setpoints() storage.SetpointRepository { return f.setpoints }
func (f *fakeStorage) Alerts() storage.AlertRepository       { return f.alerts }
func (f *fakeStorage) Notifications() storage.NotificationRepository {
	return nil
}

type fakeReactorRepo struct {
	reactors []*models.Reactor
}

func (f *fakeReactorRepo) Create(_ context.Context, r *models.Reactor) error {
	f.reactors = append(f.reactors, r)
	return nil
}

func (f *fakeReactorRepo) GetByID(_ context.Context, id string) (*models.Reactor, error) {
	for _, r := range f.reactors {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeReactorRepo) ListActive(_ context.Context) ([]*models.Reactor, error) {
	var out []*models.Reactor
	for _, r := range f.reactors {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReactorRepo) Update(_ context.Context, _ *models.Reactor) error { return nil }

type fakeSetpointRepo struct {
	setpoints []*models.Setpoint
	listErr   error
}

func (f *fakeSetpointRepo) Upsert(_ context.Context, sp *models.Setpoint) error {
	f.setpoints = append(f.setpoints, sp)
	return nil
}

func (f *fakeSetpointRepo) GetByID(_ context.Context, id string) (*models.Setpoint, error) {
	for _, sp := range f.setpoints {
		if sp.ID == id {
			return sp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSetpointRepo) ListActive(_ context.Context, reactorID string) ([]*models.Setpoint, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Setpoint
	for _, sp := range f.setpoints {
		if sp.ReactorID == reactorID && sp.Active {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (f *fakeSetpointRepo) Deactivate(_ context.Context, _ string) error { return nil }
