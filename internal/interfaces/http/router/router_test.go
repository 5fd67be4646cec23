package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	requestapp "github.com/bloodchain/backend/internal/application/request"
	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLedger struct{}

func (stubLedger) Verify(context.Context) (ledger.VerifyReport, error) {
	return ledger.VerifyReport{OK: true, Total: 3, LastSequence: 3}, nil
}

type stubInventory struct{}

func (stubInventory) Provenance(_ context.Context, unitNumber string) (*inventoryapp.Provenance, error) {
	return &inventoryapp.Provenance{TrailHashesOK: true}, nil
}

func (stubInventory) Summary(context.Context) (*inventoryapp.StockSummary, error) {
	return &inventoryapp.StockSummary{}, nil
}

type stubRequests struct{}

func (stubRequests) ListPending(context.Context) ([]request.BloodRequest, error) {
	return nil, nil
}

func (stubRequests) Get(_ context.Context, number string) (*requestapp.RequestDetail, error) {
	return &requestapp.RequestDetail{Request: request.BloodRequest{RequestNumber: number}}, nil
}

type stubDonations struct{}

func (stubDonations) Get(_ context.Context, id uuid.UUID) (*donation.DonationRequest, error) {
	return &donation.DonationRequest{}, nil
}

func (stubDonations) ListByDonor(context.Context, string) ([]donation.DonationRequest, error) {
	return nil, nil
}

func (stubDonations) CheckEligibility(context.Context, string) (donation.Eligibility, error) {
	return donation.Eligibility{Eligible: true}, nil
}

func newTestEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()
	return NewOpsEngine(Deps{
		ServiceName: "bloodchain-test",
		Logger:      zap.New(core),
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Checks: map[string]handler.ReadinessCheck{
			"database": func(context.Context) error { return nil },
		},
		Ledger:    stubLedger{},
		Units:     stubInventory{},
		Inventory: stubInventory{},
		Requests:  stubRequests{},
		Donations: stubDonations{},
	}), logs
}

func TestNewOpsEngine_Routes(t *testing.T) {
	engine, logs := newTestEngine(t)

	for _, path := range []string{
		"/health",
		"/ready",
		"/api/v1/ledger/verify",
		"/api/v1/units/BU-2026-000001/provenance",
		"/api/v1/inventory/summary",
		"/api/v1/requests/pending",
		"/api/v1/requests/REQ-2026-000001",
		"/api/v1/donations/" + uuid.NewString(),
		"/api/v1/donors/donor-1/donations",
		"/api/v1/donors/donor-1/eligibility",
	} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/donors", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 11, logs.FilterMessage("HTTP request").Len())
}

func TestNewOpsEngine_MetricsEndpoint(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/verify", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `route="/api/v1/ledger/verify"`), body)
}

type recordingRegistrar struct{ paths []string }

func (r *recordingRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.paths = append(r.paths, rg.BasePath())
}

func TestRouter_APIVersion(t *testing.T) {
	engine := gin.New()
	reg := &recordingRegistrar{}
	NewRouter(engine, WithAPIVersion("v2")).Register(reg).Setup()

	assert.Equal(t, []string{"/api/v2"}, reg.paths)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
