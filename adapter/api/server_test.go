package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cosmiq-app/cosmiq/internal/billing/application"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/billing/infrastructure/persistence"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, service domain.EntitlementService, health *observability.HealthRegistry, metrics http.Handler) http.Handler {
	t.Helper()
	return NewRouter(RouterOptions{
		Entitlements: NewEntitlementHandler(service, nil),
		Health:       health,
		Metrics:      metrics,
	})
}

func do(t *testing.T, h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// stubService returns canned answers.
type stubService struct {
	snapshot domain.Entitlements
	decision domain.Decision
	consume  bool
	err      error
}

func (s stubService) GetEntitlements(ctx context.Context, userID, fingerprint string) (domain.Entitlements, error) {
	return s.snapshot, s.err
}

func (s stubService) CanUseFeature(ctx context.Context, req domain.FeatureRequest) (domain.Decision, error) {
	return s.decision, s.err
}

func (s stubService) ConsumeFeature(ctx context.Context, req domain.FeatureRequest) (bool, error) {
	return s.consume, s.err
}

func TestEntitlementsFlow(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := application.NewService(store, store, domain.DefaultLimits())
	h := newTestServer(t, svc, nil, nil)
	device := map[string]string{HeaderDeviceFingerprint: "fp-http"}

	rec := do(t, h, http.MethodGet, "/v1/entitlements", device)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))
	snapshot := decode[domain.Entitlements](t, rec)
	assert.Equal(t, domain.Quota(1), snapshot.FreeDetailLeft)

	rec = do(t, h, http.MethodPost, "/v1/features/detail/consume", device)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ConsumeResponse{Allowed: true, Feature: domain.FeatureDetail}, decode[ConsumeResponse](t, rec))

	rec = do(t, h, http.MethodGet, "/v1/features/detail/access", device)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Decision{Reason: domain.ReasonDetailExhausted}, decode[domain.Decision](t, rec))

	rec = do(t, h, http.MethodPost, "/v1/features/detail/consume", device)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ConsumeResponse{Feature: domain.FeatureDetail, Reason: domain.ReasonDetailExhausted}, decode[ConsumeResponse](t, rec))
}

func TestGetEntitlements_SubscriberRendersUnlimited(t *testing.T) {
	h := newTestServer(t, stubService{snapshot: domain.Entitlements{
		IsLoggedIn: true, IsSubscriber: true,
		FreeAskLeft: domain.Unlimited, FreeDetailLeft: domain.Unlimited, PurchasedReports: []string{},
	}}, nil, nil)

	rec := do(t, h, http.MethodGet, "/v1/entitlements", map[string]string{HeaderUserID: "user-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"free_ask_left":"unlimited"`)
}

func TestCheckFeature_ReportTypeFromQuery(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.RecordPurchase(context.Background(), &domain.Purchase{
		UserID: "user-1", ProductType: domain.ProductReport, ReportType: "natal", Quantity: 1, Status: domain.PurchaseCompleted,
	}))
	h := newTestServer(t, application.NewService(store, store, domain.DefaultLimits()), nil, nil)
	user := map[string]string{HeaderUserID: "user-1"}

	rec := do(t, h, http.MethodGet, "/v1/features/report/access?report_type=natal", user)
	assert.True(t, decode[domain.Decision](t, rec).Allowed)

	rec = do(t, h, http.MethodGet, "/v1/features/report/access", user)
	assert.Equal(t, domain.ReasonReportTypeRequired, decode[domain.Decision](t, rec).Reason)
}

func TestConsumeFeature_LostRaceIsConflict(t *testing.T) {
	h := newTestServer(t, stubService{consume: false, decision: domain.Decision{Allowed: true}}, nil, nil)

	rec := do(t, h, http.MethodPost, "/v1/features/ask/consume", map[string]string{
		HeaderUserID:            "user-1",
		HeaderDeviceFingerprint: "fp-race",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "consume_conflict", decode[APIError](t, rec).Code)
}

func TestConsumeFeature_AnonymousWithoutDeviceIsDenied(t *testing.T) {
	store := persistence.NewMemoryStore()
	h := newTestServer(t, application.NewService(store, store, domain.DefaultLimits()), nil, nil)

	rec := do(t, h, http.MethodPost, "/v1/features/ask/consume", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ConsumeResponse{Feature: domain.FeatureAsk, Reason: domain.ReasonDeviceRequired}, decode[ConsumeResponse](t, rec))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"invalid fingerprint", domain.ErrInvalidFingerprint, http.StatusBadRequest, "invalid_fingerprint"},
		{"breaker open", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
		{"storage error", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, stubService{err: tt.err}, nil, nil)

			for _, path := range []string{"/v1/entitlements", "/v1/features/ask/access"} {
				rec := do(t, h, http.MethodGet, path, nil)
				assert.Equal(t, tt.want, rec.Code, path)
				assert.Equal(t, tt.code, decode[APIError](t, rec).Code, path)
			}
			rec := do(t, h, http.MethodPost, "/v1/features/ask/consume", nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestConsumeFeature_RequiresPost(t *testing.T) {
	h := newTestServer(t, stubService{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/v1/features/ask/consume", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	health := observability.NewHealthRegistry()
	healthy := true
	health.Register("database", observability.PingHealthChecker("database", observability.HealthStatusUnhealthy, func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("refused")
	}))
	h := newTestServer(t, stubService{}, health, nil)

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")

	rec = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores dependencies")
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.NewPrometheusMetrics()
	store := persistence.NewMemoryStore()
	svc := application.NewService(store, store, domain.DefaultLimits(), application.WithMetrics(metrics))
	h := newTestServer(t, svc, nil, metrics.Handler())

	do(t, h, http.MethodGet, "/v1/features/ask/access", map[string]string{HeaderDeviceFingerprint: "fp-1"})
	rec := do(t, h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `cosmiq_entitlement_decisions_total{allowed="true",feature="ask"} 1`))
}

func TestCorrelationIDIsPropagated(t *testing.T) {
	h := newTestServer(t, stubService{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/healthz", map[string]string{HeaderCorrelationID: "corr-42"})

	assert.Equal(t, "corr-42", rec.Header().Get(HeaderCorrelationID))
}

func TestNewHTTPServer(t *testing.T) {
	h := newTestServer(t, stubService{}, nil, nil)
	srv := NewHTTPServer("127.0.0.1:0", h)

	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)
}

func TestReportTypeOnlyForReports(t *testing.T) {
	store := persistence.NewMemoryStore()
	h := newTestServer(t, application.NewService(store, store, domain.DefaultLimits()), nil, nil)
	device := map[string]string{HeaderDeviceFingerprint: "device-1"}

	rec := do(t, h, http.MethodGet, "/v1/features/ask/access?report_type=natal", device)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[APIError](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/v1/features/ask/consume?report_type=natal", device)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	usage, err := store.Get(context.Background(), "device-1")
	require.NoError(t, err)
	assert.Nil(t, usage, "a rejected request must not create free usage")
}
