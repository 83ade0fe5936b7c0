package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	authdomain "github.com/smallbiznis/inspira/internal/auth/domain"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/config"
	expirydomain "github.com/smallbiznis/inspira/internal/expiry/domain"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	"github.com/smallbiznis/inspira/internal/observability"
	obsmiddleware "github.com/smallbiznis/inspira/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/inspira/internal/observability/metrics"
	obstracing "github.com/smallbiznis/inspira/internal/observability/tracing"
	"github.com/smallbiznis/inspira/internal/ratelimit"
	votedomain "github.com/smallbiznis/inspira/internal/vote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	authsvc      authdomain.Service
	groupSvc     groupdomain.Service
	appSvc       appdomain.Service
	voteSvc      votedomain.Service
	sweeper      expirydomain.Sweeper
	clock        clock.Clock
	writeLimiter *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Authsvc      authdomain.Service
	GroupSvc     groupdomain.Service
	AppSvc       appdomain.Service
	VoteSvc      votedomain.Service
	Sweeper      expirydomain.Sweeper
	Clock        clock.Clock
	WriteLimiter *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		authsvc:      p.Authsvc,
		groupSvc:     p.GroupSvc,
		appSvc:       p.AppSvc,
		voteSvc:      p.VoteSvc,
		sweeper:      p.Sweeper,
		clock:        p.Clock,
		writeLimiter: p.WriteLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Admission --------
	api.POST("/apply-to-group", s.WriteRateLimit("apply"), s.ApplyToGroup)
	api.POST("/submit-vote", s.WriteRateLimit("vote"), s.SubmitVote)
	api.POST("/cleanup-expired-applications", s.WriteRateLimit("cleanup"), s.CleanupExpiredApplications)

	// -------- Groups --------
	api.POST("/groups", s.CreateGroup)
	api.GET("/groups/:id", s.GetGroup)
	api.POST("/groups/:id/join", s.JoinGroup)
	api.POST("/groups/:id/leave", s.LeaveGroup)
	api.GET("/groups/:id/applications", s.ListGroupApplications)

	// -------- Applications --------
	api.GET("/applications/:id", s.GetApplication)
}
