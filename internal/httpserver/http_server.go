// Package httpserver exposes the conversation service over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aixgo-dev/fincontext/internal/config"
	"github.com/aixgo-dev/fincontext/internal/httpserver/handlers"
	"github.com/aixgo-dev/fincontext/pkg/observability"
)

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New constructs the HTTP server with default middleware and routes.
func New(cfg *config.Config, log zerolog.Logger, service handlers.ConversationService, health *observability.HealthChecker) *HttpServer {
	if cfg.Log.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log = log.With().Str("component", "http").Logger()

	engine := gin.New()
	engine.MaxMultipartMemory = cfg.Upload.MaxBytes + (1 << 20)
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(cors(cfg.Server.CORSOrigins))

	registerPublicRoutes(engine, health)

	p := handlers.NewProvider(service, handlers.Limits{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		MaxRows:        cfg.Upload.MaxRows,
		DefaultHistory: cfg.History.DefaultLimit,
		MaxHistory:     cfg.History.MaxLimit,
	}, log)
	registerRoutes(engine, p)

	return &HttpServer{cfg: cfg, engine: engine, log: log}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *HttpServer) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP listener and handles graceful shutdown via context cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func registerPublicRoutes(engine *gin.Engine, health *observability.HealthChecker) {
	engine.GET("/healthz", gin.WrapF(health.HealthHandler()))
	engine.GET("/readyz", gin.WrapF(health.ReadinessHandler()))
	engine.GET("/livez", gin.WrapF(observability.LivenessHandler()))
	engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
}

func registerRoutes(engine *gin.Engine, p *handlers.Provider) {
	engine.POST("/upload", p.Upload.Upload)
	engine.POST("/chat", p.Chat.Chat)
	engine.GET("/financial-data/:identity", p.Session.Dataset)
	engine.GET("/history/:identity", p.Session.History)
}
