// Health and service-info handlers.
//
//   - GET /                 (name, version and links)
//   - GET /health           (liveness)
//   - GET /health/detailed  (per-component status with a "degraded" rollup)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Component and overall health states.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// AppInfo identifies the running service in health and info responses.
type AppInfo struct {
	Name    string
	Version string
	// DocsPath is the Swagger UI path; empty when docs are disabled.
	DocsPath string
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// InfoResponse is returned by the root endpoint.
type InfoResponse struct {
	Name    string `json:"name" example:"Session Store"`
	Version string `json:"version" example:"0.1.0"`
	Docs    string `json:"docs,omitempty" example:"/swagger/index.html"`
	Health  string `json:"health" example:"/health"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version" example:"0.1.0"`
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status string `json:"status" example:"healthy"`
	Error  string `json:"error,omitempty"`
}

// DetailedHealthResponse adds per-component status to HealthResponse.
type DetailedHealthResponse struct {
	HealthResponse
	Components map[string]ComponentHealth `json:"components"`
}

// Info godoc
// @ID          info
// @Summary     Service information
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.InfoResponse
// @Router      / [get]
func (h *Handlers) Info(c *gin.Context) {
	ok(c, http.StatusOK, InfoResponse{
		Name:    h.info.Name,
		Version: h.info.Version,
		Docs:    h.info.DocsPath,
		Health:  "/health",
	})
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.info.Version,
	})
}

// HealthDetailed godoc
// @ID          healthDetailed
// @Summary     Dependency health
// @Description Runs every registered check. Any failing component turns the overall status to "degraded".
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.DetailedHealthResponse
// @Router      /health/detailed [get]
func (h *Handlers) HealthDetailed(c *gin.Context) {
	resp := DetailedHealthResponse{
		HealthResponse: HealthResponse{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   h.info.Version,
		},
		Components: make(map[string]ComponentHealth, len(h.checks)),
	}
	for _, chk := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := chk.Check(ctx)
		cancel()
		if err != nil {
			resp.Components[chk.Name] = ComponentHealth{Status: StatusUnhealthy, Error: err.Error()}
			resp.Status = StatusDegraded
			continue
		}
		resp.Components[chk.Name] = ComponentHealth{Status: StatusHealthy}
	}
	ok(c, http.StatusOK, resp)
}
