package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/bloodchain/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// SystemHandler serves the liveness and readiness checks
type SystemHandler struct {
	BaseHandler
	startTime time.Time
	checks    map[string]ReadinessCheck
	timeout   time.Duration
}

// NewSystemHandler creates a SystemHandler. checks are run by /ready.
func NewSystemHandler(checks map[string]ReadinessCheck) *SystemHandler {
	return &SystemHandler{
		startTime: time.Now(),
		checks:    checks,
		timeout:   2 * time.Second,
	}
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ReadyResponse is the readiness payload
type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Health answers as long as the process serves HTTP.
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready runs every readiness check concurrently and answers 503 if any fails.
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	results := make([]error, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
		results = append(results, nil)
	}

	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			results[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadyResponse{Ready: true, Checks: make(map[string]string, len(names))}
	for i, name := range names {
		if results[i] != nil {
			resp.Ready = false
			resp.Checks[name] = results[i].Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	if !resp.Ready {
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    resp,
			Error:   &dto.ErrorInfo{Code: dto.ErrCodeUnavailable, Message: "Dependency check failed"},
		})
		return
	}
	h.Success(c, resp)
}
