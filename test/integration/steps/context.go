//go:build integration

// Package steps holds the godog step definitions for the sync features.
package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/cucumber/godog"
	"github.com/gin-gonic/gin"

	"caixa/internal/apistub"
	"caixa/internal/core"
	apphttp "caixa/internal/http"
	"caixa/internal/remote/httpapi"
	"caixa/internal/remote/memory"
	"caixa/internal/services"
	"caixa/internal/store"
)

type contextKey string

const testContextKey contextKey = "testContext"

// TestContext carries one scenario's servers and the last response.
type TestContext struct {
	seeds  map[core.Kind][]core.Transaction
	nextID int

	remote     *memory.Store
	stub       *apistub.Server
	stubServer *httptest.Server

	svc       *services.SyncService
	dashboard *apphttp.Server
	appServer *httptest.Server
	client    *http.Client

	response     *http.Response
	responseBody []byte
}

// GetTestContext returns the scenario's TestContext.
func GetTestContext(ctx context.Context) *TestContext {
	if tc, ok := ctx.Value(testContextKey).(*TestContext); ok {
		return tc
	}
	return nil
}

// SetTestContext stores tc in ctx.
func SetTestContext(ctx context.Context, tc *TestContext) context.Context {
	return context.WithValue(ctx, testContextKey, tc)
}

// InitializeTestSuite runs once before any scenario.
func InitializeTestSuite(ctx *godog.TestSuiteContext) {
	ctx.BeforeSuite(func() {
		gin.SetMode(gin.TestMode)
	})
}

// InitializeScenario registers hooks and steps for each scenario.
func InitializeScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc := &TestContext{
			seeds: map[core.Kind][]core.Transaction{},
			client: &http.Client{
				Timeout: 10 * time.Second,
				CheckRedirect: func(*http.Request, []*http.Request) error {
					return http.ErrUseLastResponse
				},
			},
		}
		return SetTestContext(ctx, tc), nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc := GetTestContext(ctx); tc != nil {
			tc.close()
		}
		return ctx, nil
	})

	registerSteps(ctx)
}

// start brings up the stub API and the dashboard in front of it, then loads
// both collections once.
func (tc *TestContext) start(initial float64) error {
	tc.remote = memory.New(tc.seeds[core.Expenses], tc.seeds[core.Profits])
	tc.stub = apistub.New(tc.remote, nil)
	tc.stubServer = httptest.NewServer(tc.stub.Handler())

	api, err := httpapi.New(tc.stubServer.URL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}
	tc.svc = services.NewSyncService(api, store.New())
	tc.dashboard = apphttp.NewServer("", tc.svc, apphttp.WithInitialBalance(initial))
	tc.appServer = httptest.NewServer(tc.dashboard.Handler)

	if _, err := tc.svc.RefreshAll(context.Background()); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	return nil
}

func (tc *TestContext) close() {
	if tc.appServer != nil {
		tc.appServer.Close()
	}
	if tc.dashboard != nil {
		_ = tc.dashboard.Shutdown(context.Background())
	}
	if tc.svc != nil {
		_ = tc.svc.Close()
	}
	if tc.stubServer != nil {
		tc.stubServer.Close()
	}
}

func (tc *TestContext) seed(kind core.Kind, d core.Draft) {
	tc.nextID++
	tc.seeds[kind] = append(tc.seeds[kind], core.Transaction{
		ID:    core.ID(strconv.Itoa(tc.nextID)),
		Tipo:  d.Tipo,
		Valor: d.Valor,
		Data:  d.Data,
	})
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	tc.response = resp
	tc.responseBody = body
	return nil
}
