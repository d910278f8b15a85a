package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/retention"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

type fakeChecker struct {
	alerts int
	err    error
}

func (f *fakeChecker) CheckReactor(_ context.Context, _ string) (int, error) {
	return f.alerts, f.err
}

type fakeRetainer struct {
	totals     retention.Totals
	reactorIDs []string
	cleanedAll bool
	err        error
}

func (f *fakeRetainer) CleanAll(_ context.Context) (retention.Totals, error) {
	f.cleanedAll = true
	return f.totals, f.err
}

func (f *fakeRetainer) CleanReactor(_ context.Context, reactorID string) (retention.Totals, error) {
	f.reactorIDs = append(f.reactorIDs, reactorID)
	return f.totals, f.err
}

func (f *fakeRetainer) Stats(_ context.Context) (*retention.Stats, error) {
	return &retention.Stats{DefaultDays: 365, AlertDays: 90}, f.err
}

type fakeReactorRepo struct {
	known map[string]bool
}

func (f *fakeReactorRepo) Create(_ context.Context, _ *models.Reactor) error { return nil }

func (f *fakeReactorRepo) GetByID(_ context.Context, id string) (*models.Reactor, error) {
	if f.known[id] {
		return &models.Reactor{ID: id, Name: "Reactor " + id, Active: true}, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeReactorRepo) ListActive(_ context.Context) ([]*models.Reactor, error) {
	return nil, nil
}

func (f *fakeReactorRepo) Update(_ context.Context, _ *models.Reactor) error { return nil }

type fakeAlertRepo struct {
	alerts []*models.Alert
	acked  []string
}

func (f *fakeAlertRepo) Create(_ context.Context, _ *models.Alert) error { return nil }
func (f *fakeAlertRepo) GetByID(_ context.Context, _ string) (*models.Alert, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeAlertRepo) ListByReactor(_ context.Context, reactorID string, limit int) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, a := range f.alerts {
		if a.ReactorID == reactorID {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAlertRepo) ListRecentUnacknowledged(_ context.Context, _ string, _ int) ([]*models.Alert, error) {
	return nil, nil
}

func (f *fakeAlertRepo) Acknowledge(_ context.Context, id, userID string) error {
	for _, a := range f.alerts {
		if a.ID == id && !a.Acknowledged {
			a.Acknowledged = true
			a.AcknowledgedBy = userID
			f.acked = append(f.acked, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeAlertRepo) DeleteAcknowledgedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeStore struct {
	reactors *fakeReactorRepo
	alerts   *fakeAlertRepo
}

func (f *fakeStore) Open() error    { return nil }
func (f *fakeStore) Close() error   { return nil }
func (f *fakeStore) Migrate() error { return nil }

func (f *fakeStore) Reactors() storage.ReactorRepository           { return f.reactors }
func (f *fakeStore) Users() storage.UserRepository                 { return nil }
func (f *fakeStore) Setpoints() storage.SetpointRepository         { return nil }
func (f *fakeStore) Alerts() storage.AlertRepository               { return f.alerts }
func (f *fakeStore) Notifications() storage.NotificationRepository { return nil }

type fakeTelemetry struct {
	inserted []*models.Sample
	err      error
}

func (f *fakeTelemetry) Open() error    { return nil }
func (f *fakeTelemetry) Close() error   { return nil }
func (f *fakeTelemetry) Migrate() error { return nil }

func (f *fakeTelemetry) Insert(_ context.Context, s *models.Sample) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeTelemetry) LatestSample(_ context.Context, _ string, _ models.StreamKind) (*models.Sample, error) {
	return nil, nil
}

func (f *fakeTelemetry) DeleteBefore(_ context.Context, _ string, _ models.StreamKind, _ time.Time) (int64, error) {
	return 0, nil
}

type fakePublisher struct {
	topics []string
}

func (f *fakePublisher) Publish(topic, _ string, _ any) {
	f.topics = append(f.topics, topic)
}

type testEnv struct {
	handler   *Handler
	store     *fakeStore
	telemetry *fakeTelemetry
	checker   *fakeChecker
	retainer  *fakeRetainer
	publisher *fakePublisher
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store: &fakeStore{
			reactors: &fakeReactorRepo{known: map[string]bool{"r1": true}},
			alerts:   &fakeAlertRepo{},
		},
		telemetry: &fakeTelemetry{},
		checker:   &fakeChecker{},
		retainer:  &fakeRetainer{totals: retention.Totals{Telemetry: map[models.StreamKind]int64{models.StreamGas: 3}, Alerts: 1}},
		publisher: &fakePublisher{},
	}
	env.handler = NewHandler(env.store, env.telemetry, env.checker, env.retainer, env.publisher, nil, 0, zerolog.Nop())
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.handler.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCheckReactor(t *testing.T) {
	env := newTestEnv()
	env.checker.alerts = 2

	rec := env.do(t, http.MethodPost, "/api/v1/reactors/r1/check", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data struct {
			Alerts int `json:"alerts"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Alerts != 2 {
		t.Errorf("alerts = %d, want 2", resp.Data.Alerts)
	}
}

func TestCheckReactorNotFound(t *testing.T) {
	env := newTestEnv()
	env.checker.err = storage.ErrNotFound

	rec := env.do(t, http.MethodPost, "/api/v1/reactors/nope/check", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestIngestTelemetry(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/reactors/r1/telemetry/gas", map[string]any{
		"fields": map[string]float64{"ph": 6.8, "do": 45},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	if len(env.telemetry.inserted) != 1 {
		t.Fatalf("inserted %d samples, want 1", len(env.telemetry.inserted))
	}
	sample := env.telemetry.inserted[0]
	if sample.ReactorID != "r1" || sample.Kind != models.StreamGas {
		t.Errorf("sample = %s/%s, want r1/gas", sample.ReactorID, sample.Kind)
	}
	if sample.Timestamp.IsZero() {
		t.Error("missing timestamp should default to now")
	}

	if len(env.publisher.topics) != 1 || env.publisher.topics[0] != "reactor:r1" {
		t.Errorf("published to %v, want [reactor:r1]", env.publisher.topics)
	}
}

func TestIngestTelemetryValidation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{
			name: "unknown kind",
			path: "/api/v1/reactors/r1/telemetry/plasma",
			body: map[string]any{"fields": map[string]float64{"ph": 7}},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown field",
			path: "/api/v1/reactors/r1/telemetry/gas",
			body: map[string]any{"fields": map[string]float64{"warp_factor": 9}},
			want: http.StatusBadRequest,
		},
		{
			name: "no fields",
			path: "/api/v1/reactors/r1/telemetry/gas",
			body: map[string]any{"fields": map[string]float64{}},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown reactor",
			path: "/api/v1/reactors/nope/telemetry/gas",
			body: map[string]any{"fields": map[string]float64{"ph": 7}},
			want: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if len(env.telemetry.inserted) != 0 {
		t.Errorf("inserted %d samples, want 0", len(env.telemetry.inserted))
	}
}

func TestIngestTelemetryRateLimited(t *testing.T) {
	env := newTestEnv()
	env.handler = NewHandler(env.store, env.telemetry, env.checker, env.retainer, env.publisher, nil, 1, zerolog.Nop())

	body := map[string]any{"fields": map[string]float64{"ph": 7}}
	var limited bool
	for i := 0; i < 10; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/reactors/r1/telemetry/gas", body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected at least one request to be rate limited")
	}
}

func TestListAlerts(t *testing.T) {
	env := newTestEnv()
	env.store.alerts.alerts = []*models.Alert{
		{ID: "a1", ReactorID: "r1", FieldName: "ph"},
		{ID: "a2", ReactorID: "r1", FieldName: "do"},
		{ID: "a3", ReactorID: "r2", FieldName: "ph"},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/reactors/r1/alerts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data []*models.Alert `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("got %d alerts, want 2", len(resp.Data))
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	env := newTestEnv()
	env.store.alerts.alerts = []*models.Alert{{ID: "a1", ReactorID: "r1"}}

	rec := env.do(t, http.MethodPost, "/api/v1/alerts/a1/ack", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(env.store.alerts.acked) != 1 {
		t.Errorf("acked %d alerts, want 1", len(env.store.alerts.acked))
	}

	// Acknowledging again finds no unacknowledged alert.
	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a1/ack", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("second ack status = %d, want 404", rec.Code)
	}
}

func TestAcknowledgeAlertRequiresUser(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/alerts/a1/ack", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCleanRetentionAll(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/retention/clean", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !env.retainer.cleanedAll {
		t.Error("CleanAll was not invoked")
	}
}

func TestCleanRetentionSingleReactor(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/retention/clean?reactor=r1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.retainer.cleanedAll {
		t.Error("CleanAll should not run for a single-reactor request")
	}
	if len(env.retainer.reactorIDs) != 1 || env.retainer.reactorIDs[0] != "r1" {
		t.Errorf("cleaned %v, want [r1]", env.retainer.reactorIDs)
	}
}

func TestCleanRetentionUnknownReactor(t *testing.T) {
	env := newTestEnv()
	env.retainer.err = storage.ErrNotFound

	rec := env.do(t, http.MethodPost, "/api/v1/retention/clean?reactor=nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRetentionStats(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/retention/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data retention.Stats `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.DefaultDays != 365 || resp.Data.AlertDays != 90 {
		t.Errorf("windows = %d/%d, want 365/90", resp.Data.DefaultDays, resp.Data.AlertDays)
	}
}

func TestRetentionCleanFailure(t *testing.T) {
	env := newTestEnv()
	env.retainer.err = errors.New("clickhouse unavailable")

	rec := env.do(t, http.MethodPost, "/api/v1/retention/clean", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
