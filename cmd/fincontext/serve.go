package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/fincontext/internal/config"
	"github.com/aixgo-dev/fincontext/internal/conversation"
	"github.com/aixgo-dev/fincontext/internal/grounding"
	"github.com/aixgo-dev/fincontext/internal/httpserver"
	"github.com/aixgo-dev/fincontext/internal/llm/provider"
	"github.com/aixgo-dev/fincontext/internal/logger"
	tracing "github.com/aixgo-dev/fincontext/internal/observability"
	"github.com/aixgo-dev/fincontext/pkg/observability"
	"github.com/aixgo-dev/fincontext/pkg/session"
)

const sessionGaugeInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("version", Version).
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Msg("starting fincontext")

	if err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.Log.ServiceName,
		ExporterType: cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()
	observability.InitMetrics()

	svc, reg, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	health := observability.NewHealthChecker(Version)
	health.RegisterCheck(observability.ComponentCheck("conversations", true, reg.Ping))
	health.RegisterCheck(observability.ComponentCheck("llm_provider", false, func(context.Context) error {
		if svc.Provider() == nil {
			return fmt.Errorf("no provider configured")
		}
		return nil
	}))

	srv := httpserver.New(cfg, log, svc, health)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		trackSessions(gctx, svc, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("fincontext stopped")
	return nil
}

func buildService(cfg *config.Config, log zerolog.Logger) (*conversation.Service, *conversation.Registry, error) {
	estimator, err := grounding.NewEstimator(cfg.Grounding.Encoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", cfg.Grounding.Encoding).
			Msg("tokenizer unavailable, falling back to character estimate")
	}
	injector := grounding.NewInjector(grounding.Config{
		MaxDatasetTokens: cfg.Grounding.MaxDatasetTokens,
		PreviewRows:      cfg.Grounding.PreviewRows,
		Estimator:        estimator,
	})

	p, err := provider.New(provider.Config{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey(),
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Reply:      cfg.LLM.MockResponse,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create provider: %w", err)
	}

	reg := conversation.NewRegistry(session.NewMemoryBackend())
	svc := conversation.NewService(reg, injector, provider.NewInstrumentedProvider(p),
		conversation.WithModel(cfg.LLM.Model),
		conversation.WithTemperature(cfg.LLM.Temperature),
		conversation.WithMaxTokens(cfg.LLM.MaxTokens),
		conversation.WithAutoInit(cfg.Chat.AutoInit),
		conversation.WithLogger(log),
	)
	return svc, reg, nil
}

// trackSessions keeps the live session gauge current until ctx is done.
func trackSessions(ctx context.Context, svc *conversation.Service, log zerolog.Logger) {
	ticker := time.NewTicker(sessionGaugeInterval)
	defer ticker.Stop()
	for {
		n, err := svc.Sessions(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("count sessions")
		} else {
			observability.SetLiveSessions(n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
