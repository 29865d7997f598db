package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"caixa/internal/backend"
	"caixa/internal/cli"
	"caixa/internal/config"
	"caixa/internal/export"
	"caixa/internal/log"
	"caixa/internal/services"
	gsheet "caixa/internal/sheets/google"
	"caixa/internal/store"
)

// formatSheets sends rows to a Google Sheet instead of a file.
const formatSheets = "sheets"

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentExport)

	if err := run(cfg, logger); err != nil {
		logger.Error("Export failed", log.FieldOperation, log.OpExport, log.FieldError, err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	remoteBackend, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	if remoteBackend.Cleanup != nil {
		defer remoteBackend.Cleanup()
	}

	opts := []services.Option{services.WithLogger(logger)}
	if j := cli.OpenJournal(logger, cfg.JournalPath); j != nil {
		defer j.Close()
		opts = append(opts, services.WithRecorder(j))
	}

	st := store.New()
	svc := services.NewSyncService(remoteBackend.API, st, opts...)
	defer svc.Close()

	results, refreshErr := svc.RefreshAll(ctx)
	fmt.Println(cli.RenderSummary(cfg.InitialBalance, st.Snapshot(), results))
	if refreshErr != nil {
		return fmt.Errorf("refresh: %w", refreshErr)
	}

	sink, target, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}
	n, err := export.Snapshot(ctx, st, sink)
	if err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	logger.Info("Export complete",
		log.FieldOperation, log.OpExport,
		log.FieldCount, n,
		"format", cfg.ExportFormat,
		"target", target)
	return nil
}

func newSink(ctx context.Context, cfg *config.Config) (export.Sink, string, error) {
	if strings.EqualFold(cfg.ExportFormat, formatSheets) {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			return nil, "", fmt.Errorf("google sheets: %w", err)
		}
		return client, "sheet " + cfg.GoogleSheetName, nil
	}

	enc, err := export.EncoderFor(cfg.ExportFormat)
	if err != nil {
		return nil, "", err
	}
	return export.FileSink{Path: cfg.ExportPath, Encoder: enc}, cfg.ExportPath, nil
}
