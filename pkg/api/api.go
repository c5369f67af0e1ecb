package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/metrics"
	"github.com/dbops/toolkit/pkg/ratelimit"
)

// APIController registers a group of routes under a base path.
type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

// Server is the HTTP surface of the toolkit: the /api/v1 controllers, the
// prometheus endpoint and a per-IP rate limit on the API group.
type Server struct {
	gin     *gin.Engine
	config  config.Config
	log     *zap.Logger
	limiter *ratelimit.IPRateLimiter
	httpSrv *http.Server
}

func NewServer(log *zap.Logger, cfg config.Config) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Warn("invalid trusted proxies, keeping gin defaults", zap.Error(err))
	}

	if cfg.Server.Debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5000"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	return &Server{
		gin:     engine,
		config:  cfg,
		log:     log,
		limiter: ratelimit.New(ratelimit.DefaultAPIConfig()),
	}
}

// RegisterAll mounts the controllers under /api/v1 behind the rate limiter.
func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api/v1", s.limiter.Middleware())
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// Handler exposes the underlying engine, used by tests.
func (s *Server) Handler() http.Handler { return s.gin }

// Listen serves until Shutdown is called. TLS is used when both cert and
// key are configured.
func (s *Server) Listen() error {
	s.httpSrv = &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", zap.String("address", s.config.Server.ListenAddress))

	var err error
	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		err = s.httpSrv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
