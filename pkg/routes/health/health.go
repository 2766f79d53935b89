package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Ping probes a dependency
type Ping func(ctx context.Context) error

type check struct {
	name     string
	ping     Ping
	critical bool
}

// Checker handles health check endpoints
type Checker struct {
	version   string
	policies  []string
	timeout   time.Duration
	startTime time.Time
	checks    []check
	ready     atomic.Bool
}

// NewChecker creates a new health checker
func NewChecker(version string, policies []string, timeout time.Duration) *Checker {
	return &Checker{
		version:   version,
		policies:  policies,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// AddCheck registers a dependency probe. A failing critical check makes the
// service unhealthy; any other failing check only degrades it.
func (c *Checker) AddCheck(name string, ping Ping, critical bool) {
	c.checks = append(c.checks, check{name: name, ping: ping, critical: critical})
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     Status                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Policies   []string                `json:"policies"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult represents an individual check result
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health returns the overall health status
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Policies:   c.policies,
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	for _, chk := range c.checks {
		result := c.run(ctx.Request().Context(), chk)
		status.Checks[chk.name] = result
		if result.Status == StatusHealthy {
			continue
		}
		if chk.critical {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}

	httpStatus := http.StatusOK
	if status.Status == StatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return ctx.JSON(httpStatus, status)
}

func (c *Checker) run(ctx context.Context, chk check) *CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := chk.ping(ctx); err != nil {
		if chk.critical {
			return &CheckResult{Status: StatusUnhealthy, Message: err.Error()}
		}
		return &CheckResult{Status: StatusDegraded, Message: err.Error()}
	}
	return &CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

// Live returns the liveness status (is the service running)
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns the readiness status (is the service ready to accept traffic)
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
