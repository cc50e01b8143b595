// Package api exposes the generation pipelines over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socialads/notegen/internal/logger"
	"github.com/socialads/notegen/internal/pipeline"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceName          = "notegen"
	serviceVersion       = "1.0.0"
)

// Generator runs one generation pipeline end to end.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Deps holds the router's collaborators. Ping functions are optional; a nil
// ping reports the dependency as not configured rather than unhealthy.
type Deps struct {
	NoteGenerator     Generator
	TrendingGenerator Generator
	DBPing            func(context.Context) error
	RedisPing         func(context.Context) error
	Metrics           prometheus.Gatherer
	Logger            logger.Logger
}

// Config holds router behavior settings.
type Config struct {
	Debug       bool
	CORSOrigins []string
}

// Router wires the HTTP surface: the two generate endpoints, health, and
// metrics.
type Router struct {
	deps Deps
	cfg  Config
}

// NewRouter creates the API router.
func NewRouter(deps Deps, cfg Config) *Router {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.DefaultGatherer
	}
	return &Router{deps: deps, cfg: cfg}
}

// SetupRoutes builds the gin engine with middleware and all routes.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(r.cfg.CORSOrigins))
	router.Use(requestLogger(r.deps.Logger))

	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Metrics, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.POST("/generate", r.generate(r.deps.NoteGenerator, "note"))
	v1.POST("/generate/trending", r.generate(r.deps.TrendingGenerator, "trending"))

	return router
}

// healthCheck reports overall status plus per-dependency connectivity.
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	health := gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": serviceVersion,
	}

	health["database"] = r.checkDependency(ctx, health, r.deps.DBPing)
	health["redis"] = r.checkDependency(ctx, health, r.deps.RedisPing)

	c.JSON(http.StatusOK, health)
}

func (r *Router) checkDependency(ctx context.Context, health gin.H, ping func(context.Context) error) gin.H {
	if ping == nil {
		return gin.H{"connected": false, "error": "not configured"}
	}
	if err := ping(ctx); err != nil {
		health["status"] = healthStatusDegraded
		return gin.H{"connected": false, "error": err.Error()}
	}
	return gin.H{"connected": true}
}
