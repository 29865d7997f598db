package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"caixa/internal/config"
	"caixa/internal/core"
	"caixa/internal/remote/httpapi"
	"caixa/internal/remote/memory"
)

func quietFactory() Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	app := &config.Config{RemoteBackend: "memory", SeedDir: "seeds", APIBaseURL: "http://x", APITimeout: time.Second}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != MemoryBackend || cfg.DataDirectory != "seeds" || cfg.Timeout != time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}

	app.RemoteBackend = "sheets"
	if _, err := FromAppConfig(app); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestCreateHTTPBackend(t *testing.T) {
	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: HTTPBackend, BaseURL: "http://localhost:5500"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, ok := res.API.(*httpapi.Client); !ok {
		t.Fatalf("expected *httpapi.Client, got %T", res.API)
	}

	if _, err := quietFactory().CreateBackend(context.Background(), Config{Type: HTTPBackend}); err == nil {
		t.Fatal("expected error without base url")
	}
	if _, err := quietFactory().CreateBackend(context.Background(), Config{Type: HTTPBackend, BaseURL: "ftp://x"}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed_gastos.json"), []byte(`[{"id":1,"tipo":"Insumos","valor":"50","data":"01/01/2024"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	store, ok := res.API.(*memory.Store)
	if !ok {
		t.Fatalf("expected *memory.Store, got %T", res.API)
	}
	if store.Len(core.Expenses) != 1 {
		t.Fatalf("seed not loaded")
	}
}

func TestCreateBackendInvalidType(t *testing.T) {
	if _, err := quietFactory().CreateBackend(context.Background(), Config{Type: "sqlite"}); err == nil {
		t.Fatal("expected error for invalid type")
	}
}
