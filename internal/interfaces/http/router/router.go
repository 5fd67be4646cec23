// Package router assembles the ops gin engine.
package router

import (
	"net/http"

	"github.com/bloodchain/backend/internal/infrastructure/logger"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/interfaces/http/handler"
	"github.com/bloodchain/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup mounts every registrar under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// Deps are the collaborators of the ops engine.
type Deps struct {
	ServiceName string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer  prometheus.Gatherer
	Checks    map[string]handler.ReadinessCheck
	Ledger    handler.LedgerVerifier
	Units     handler.ProvenanceReader
	Inventory handler.StockSummarizer
	Requests  handler.RequestReader
	Donations handler.DonationReader
}

// NewOpsEngine builds the ops server: health checks and /metrics at the root, the
// read-only ledger, inventory, request and donation API under /api/v1.
func NewOpsEngine(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	engine.Use(
		logger.Recovery(d.Logger),
		middleware.RequestID(),
		middleware.Tracing(d.ServiceName),
		middleware.SpanEnricher(),
		middleware.Metrics(d.Metrics),
		logger.GinMiddleware(d.Logger),
		middleware.Profiling(),
	)
	engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusNotFound)
	})

	system := handler.NewSystemHandler(d.Checks)
	engine.GET("/health", system.Health)
	engine.GET("/ready", system.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	r := NewRouter(engine).
		Register(handler.NewLedgerHandler(d.Ledger)).
		Register(handler.NewInventoryHandler(d.Units, d.Inventory))
	if d.Requests != nil {
		r.Register(handler.NewRequestHandler(d.Requests))
	}
	if d.Donations != nil {
		r.Register(handler.NewDonationHandler(d.Donations))
	}
	r.Setup()

	return engine
}
