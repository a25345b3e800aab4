package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
	"github.com/lucasschonrock/spring-input-boolean/internal/override"
	"github.com/lucasschonrock/spring-input-boolean/internal/scheduler"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Scheduler abstracts the status operations the API depends on.
type Scheduler interface {
	Entities() []scheduler.EntityStatus
}

// Overrides abstracts the override channel writes the API performs.
type Overrides interface {
	Set(ctx context.Context, key string, delay time.Duration)
	Apply(ctx context.Context, raw string) (override.Action, bool)
}

// Server exposes the daemon's admin HTTP API: entity status, manual
// override writes and Prometheus metrics.
type Server struct {
	// engine is the configured gin router.
	engine *gin.Engine
	// scheduler provides entity status.
	scheduler Scheduler
	// overrides receives manual override writes.
	overrides Overrides
	// metrics exposes the Prometheus registry and counts overrides.
	metrics *metrics.Metrics
}

// overrideRequest is the body of POST /api/v1/override.
type overrideRequest struct {
	// EntityID is the target entity key.
	EntityID string `json:"entity_id" binding:"required"`
	// Seconds is the override delay; zero reverses immediately.
	Seconds int `json:"seconds"`
}

// actionRequest is the body of POST /api/v1/action.
type actionRequest struct {
	// Action is the raw action string, e.g. "OFF_10::input_boolean.x".
	Action string `json:"action" binding:"required"`
}

// NewServer wires the admin API over the provided collaborators.
func NewServer(sched Scheduler, overrides Overrides, m *metrics.Metrics, zl *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(zl, time.RFC3339, true),
		ginzap.RecoveryWithZap(zl, true),
	)

	s := &Server{
		engine:    engine,
		scheduler: sched,
		overrides: overrides,
		metrics:   m,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := engine.Group("/api/v1")
	v1.GET("/entities", s.handleEntities)
	v1.POST("/override", s.handleOverride)
	v1.POST("/action", s.handleAction)

	return s
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves the API until the context is canceled, then shuts the
// listener down gracefully.
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.engine,
		ReadHeaderTimeout: shutdownTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.InfoKV(ctx, "Admin API listening", "address", address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleEntities returns the status of all monitored entities.
func (s *Server) handleEntities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entities": s.scheduler.Entities()})
}

// handleOverride records a manual override delay for an entity.
func (s *Server) handleOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if req.Seconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must not be negative"})

		return
	}

	s.overrides.Set(c.Request.Context(), req.EntityID, time.Duration(req.Seconds)*time.Second)
	s.metrics.OverridesTotal.WithLabelValues("manual").Inc()

	c.JSON(http.StatusAccepted, gin.H{"entity_id": req.EntityID, "seconds": req.Seconds})
}

// handleAction applies a raw override action string.
func (s *Server) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	action, ok := s.overrides.Apply(c.Request.Context(), req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognised action"})

		return
	}

	s.metrics.OverridesTotal.WithLabelValues(string(action.Kind)).Inc()

	c.JSON(http.StatusAccepted, gin.H{"entity_id": action.Key, "kind": string(action.Kind)})
}
