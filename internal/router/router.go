package router

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/rallyhq/reengage-api/internal/middleware"
	"github.com/rallyhq/reengage-api/pkg/logger"
)

// Handler registers its routes on a group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit rate.Limit
	RateBurst int
	CacheTTL  time.Duration
}

type Router struct {
	engine *gin.Engine
}

func NewRouter(log *logger.Logger, config Config, handlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	registerValidators()
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(log))
	engine.Use(middleware.Recovery(log))

	if config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "success", "data": gin.H{"status": "healthy"}})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	if config.CacheTTL > 0 {
		// Only cohort previews are cached; every other read must reflect
		// delivery state transitions immediately.
		cache := middleware.NewResponseCache(config.CacheTTL)
		api.Use(cache.Cache(func(path string) bool {
			return strings.HasSuffix(path, "/cohort")
		}))
	}
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
