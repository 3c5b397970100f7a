package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/testbedhq/balance/internal/balance"
	"github.com/testbedhq/balance/internal/clock"
	"github.com/testbedhq/balance/internal/config"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
	obsmetrics "github.com/testbedhq/balance/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	db             *gorm.DB
	clock          clock.Clock
	enforcementSvc enforcementdomain.Service
	balanceSvc     *balance.Service
}

type Params struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	DB             *gorm.DB
	Clock          clock.Clock
	EnforcementSvc enforcementdomain.Service
	BalanceSvc     *balance.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		db:             p.DB,
		clock:          p.Clock,
		enforcementSvc: p.EnforcementSvc,
		balanceSvc:     p.BalanceSvc,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1", s.ServiceTokenRequired())
	{
		usage := v1.Group("/usage")
		usage.POST("/check-create", s.CheckCreate)
		usage.POST("/check-update", s.CheckUpdate)
		usage.POST("/stop-charging", s.StopCharging)

		v1.GET("/projects/:chargeCode/balance", s.ProjectBalance)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
