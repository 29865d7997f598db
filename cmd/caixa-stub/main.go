package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"caixa/internal/apistub"
	"caixa/internal/cli"
	"caixa/internal/log"
	"caixa/internal/remote/memory"
)

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	seed, err := memory.NewFromFiles(cfg.SeedDir)
	if err != nil {
		logger.Error("Failed to load seed data", log.FieldError, err.Error(), "dir", cfg.SeedDir)
		os.Exit(1)
	}

	stub := apistub.New(seed, logger)
	srv := &http.Server{
		Addr:              cfg.StubAddr(),
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Stub shutdown error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting caixa stub API", "addr", cfg.StubAddr(), "seed_dir", cfg.SeedDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Stub server error", log.FieldError, err.Error())
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
