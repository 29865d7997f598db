package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"caixa/internal/amqp"
	"caixa/internal/backend"
	"caixa/internal/cache"
	"caixa/internal/cli"
	apphttp "caixa/internal/http"
	"caixa/internal/log"
	"caixa/internal/services"
	"caixa/internal/store"
	"caixa/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	remoteBackend, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create remote backend", log.FieldError, err.Error(), "backend", backendCfg.Type.String())
		os.Exit(1)
	}

	opts := []services.Option{services.WithLogger(logger)}

	journal := cli.OpenJournal(logger, cfg.JournalPath)
	if journal != nil {
		opts = append(opts, services.WithRecorder(journal))
		logger.Info("Sync journal enabled", "path", cfg.JournalPath)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		opts = append(opts, services.WithNotifier(amqpClient))
		logger.Info("AMQP change notifications enabled", "exchange", cfg.AMQPExchange, log.FieldOrigin, amqpClient.Origin())
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	svc := services.NewSyncService(remoteBackend.API, store.New(), opts...)

	srvOpts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithInitialBalance(cfg.InitialBalance),
		apphttp.WithChartCache(cache.NewChartCache(64, 5*time.Minute)),
	}
	if journal != nil {
		srvOpts = append(srvOpts, apphttp.WithHistory(journal))
	}
	srv := apphttp.NewServer(cfg.Addr(), svc, srvOpts...)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 35 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		_ = svc.Close()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if journal != nil {
			_ = journal.Close()
		}
		if remoteBackend.Cleanup != nil {
			_ = remoteBackend.Cleanup()
		}
	})

	// Initial load runs in the background; /readyz reports 503 until it lands.
	go func() {
		if _, err := svc.RefreshAll(ctx); err != nil {
			logger.Warn("Initial load failed", log.FieldError, err.Error())
		}
	}()

	if cfg.RefreshInterval > 0 {
		if err := svc.Start(ctx, cfg.RefreshInterval); err != nil {
			logger.Error("Failed to start refresh loop", log.FieldError, err.Error())
		}
	}

	if amqpClient != nil {
		listener := worker.NewChangeListener(svc, amqpClient.Origin())
		go func() {
			if err := listener.Run(ctx, amqpClient); err != nil {
				logger.Error("Change listener stopped", log.FieldComponent, log.ComponentWorker, log.FieldError, err.Error())
			}
		}()
	}

	logger.Info("Starting caixa server",
		"addr", cfg.Addr(),
		"backend", backendCfg.Type.String(),
		"refresh_interval", cfg.RefreshInterval.String())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err.Error(), "addr", cfg.Addr())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
