package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"placement-quiz-service/internal/config"
	"placement-quiz-service/internal/infra/events"
	transport "placement-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server, the fold-retry worker and the stale-attempt sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := events.NewBus(events.Options{
		Driver:        cfg.Events.Driver,
		Brokers:       cfg.Events.Brokers,
		ConsumerGroup: cfg.Events.ConsumerGroup,
	}, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	rt, err := buildRuntime(ctx, cfg, logger, events.NewPublisher(bus.Publisher, logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	router, err := events.NewFoldRouter(bus, rt.attemptService, logger)
	if err != nil {
		return err
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: transport.NewRouter(transport.Services{
			Attempts:  rt.attemptService,
			Catalog:   rt.catalogService,
			Analytics: rt.analyticsService,
			Progress:  rt.progress,
			Health:    rt.Health,
			Logger:    logger,
		}),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting placement quiz service", slog.String("addr", server.Addr), slog.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return router.Run(gctx)
	})
	g.Go(func() error {
		runSweeper(gctx, rt, cfg, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
		defer cancel()
		if err := router.Close(); err != nil {
			logger.Warn("close event router", slog.Any("error", err))
		}
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runSweeper closes stale attempts on every tick until ctx is done.
func runSweeper(ctx context.Context, rt *runtime, cfg config.Config, logger *slog.Logger) {
	interval := config.TTLDuration(cfg.Sweeper.Interval, time.Minute)
	grace := config.TTLDuration(cfg.Sweeper.Grace, 2*time.Minute)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.attemptService.SweepStale(ctx, grace); err != nil && ctx.Err() == nil {
				logger.Error("sweep stale attempts", slog.Any("error", err))
			}
		}
	}
}
