// Package server exposes the protection protocol over HTTP: the
// protect endpoint, statistics, history, the real-time feed, and the
// owner's admin surface.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/config"
	"github.com/mevshield/mevshield/internal/feed"
	"github.com/mevshield/mevshield/internal/history"
	"github.com/mevshield/mevshield/internal/riskclient"
	"github.com/mevshield/mevshield/internal/shield"
	"github.com/mevshield/mevshield/pkg/errors"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("eth_addr", func(fl validator.FieldLevel) bool {
			return common.IsHexAddress(fl.Field().String())
		})
	}
}

// Server is the HTTP server for the protection service
type Server struct {
	logger  *zap.Logger
	cfg     *config.Config
	shield  *shield.Shield
	scorer  riskclient.Scorer
	store   *history.Store
	hub     *feed.Hub
	limiter *RateLimiter
}

// NewServer creates the HTTP server
func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	protocol *shield.Shield,
	scorer riskclient.Scorer,
	store *history.Store,
	hub *feed.Hub,
	redisClient *redis.Client,
) *Server {
	var limiter *RateLimiter
	if redisClient != nil {
		limiter = NewRateLimiter(redisClient, cfg.Redis.RatePerMinute, logger)
	}
	return &Server{
		logger:  logger.Named("server"),
		cfg:     cfg,
		shield:  protocol,
		scorer:  scorer,
		store:   store,
		hub:     hub,
		limiter: limiter,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.logger, true))

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = s.cfg.Server.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) { s.hub.Serve(c.Writer, c.Request) })

	api := r.Group("/api")
	{
		protect := api.Group("")
		if s.limiter != nil {
			protect.Use(s.limiter.Middleware())
		}
		protect.POST("/protect", s.protect)

		api.GET("/stats", s.stats)
		api.GET("/history", s.listHistory)

		api.POST("/orders/:id/execute", s.executeOrder)
		api.POST("/orders/:id/cancel", s.cancelOrder)

		api.POST("/bundles", s.submitBundle)
		api.POST("/bundles/:hash/included", s.markBundleIncluded)
		api.POST("/bundles/:hash/failed", s.markBundleFailed)

		api.POST("/scores", s.submitScore)

		admin := api.Group("/admin")
		admin.PUT("/threshold", s.setThreshold)
		admin.PUT("/fee", s.setFee)
		admin.PUT("/delay", s.setDelay)
		admin.POST("/pause", s.togglePause)
	}
	return r
}

// Run starts the server on the configured address
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.Router().Run(addr)
}

// writeError maps protocol error kinds to HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.KindOf(err) {
	case errors.KindInvalidArgument:
		status = http.StatusBadRequest
	case errors.KindUnauthorized:
		status = http.StatusForbidden
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindDuplicateRecord, errors.KindInvalidState, errors.KindReentrantCall:
		status = http.StatusConflict
	case errors.KindSlippageExceeded:
		status = http.StatusUnprocessableEntity
	case errors.KindTransferFailed:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(errors.KindOf(err))})
}
