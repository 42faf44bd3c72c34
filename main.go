package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mailmind_server/config"
	"mailmind_server/internal/bootstrap"
	"mailmind_server/pkg/logger"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize logger early
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "mailmind",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "mailmind-" + *mode,
		Console: cfg.IsDevelopment(),
	})

	switch *mode {
	case "api", "worker", "all":
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode); err != nil {
		logger.Error("Exited with error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string) error {
	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	g, ctx := errgroup.WithContext(ctx)

	if mode == "worker" || mode == "all" {
		w := bootstrap.NewWorker(deps)
		if err := w.Start(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Shutting down worker (timeout: %v)...", cfg.ShutdownWait)
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownWait)
			defer cancel()
			w.Stop(stopCtx)
			return nil
		})
	}

	if mode == "api" || mode == "all" {
		app := bootstrap.NewAPI(deps)
		addr := ":" + cfg.Port

		g.Go(func() error {
			logger.Info("Starting API server on %s", addr)
			return app.Listen(addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Shutting down API server (timeout: %v)...", cfg.ShutdownWait)
			return app.ShutdownWithTimeout(cfg.ShutdownWait)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shut down gracefully")
	return nil
}
