package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"caixa/internal/core"
	"caixa/internal/journal"
	"caixa/internal/log"
	"caixa/internal/remote"
	"caixa/internal/remote/memory"
	"caixa/internal/services"
	"caixa/internal/store"
)

func tx(id, tipo, valor, data string) core.Transaction {
	return core.Transaction{ID: core.ID(id), Tipo: tipo, Valor: core.Valor(valor), Data: data}
}

type testEnv struct {
	srv    *Server
	svc    *services.SyncService
	remote *memory.Store
}

func newTestEnv(t *testing.T, api remote.API, load bool, opts ...Option) *testEnv {
	t.Helper()
	svc := services.NewSyncService(api, store.New(), services.WithLogger(log.Discard()))
	if load {
		if _, err := svc.RefreshAll(context.Background()); err != nil {
			t.Fatalf("initial load: %v", err)
		}
	}
	srv := NewServer(":0", svc, append([]Option{WithLogger(log.Discard())}, opts...)...)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close()
	})
	env := &testEnv{srv: srv, svc: svc}
	if m, ok := api.(*memory.Store); ok {
		env.remote = m
	}
	return env
}

func seededMemory() *memory.Store {
	return memory.New(
		[]core.Transaction{tx("1", core.TipoInsumos, "10", "01/02/2024"), tx("2", core.TipoTransporte, "20", "02/02/2024")},
		[]core.Transaction{tx("3", core.TipoVendas, "50", "03/02/2024")},
	)
}

func (e *testEnv) do(method, target string, body url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestSummaryPage(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true, WithInitialBalance(100))

	rr := env.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Saldo atual", "$120.00", `class="num positive"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	rr = env.do(http.MethodGet, "/?saldo_inicial=-500", nil)
	if !strings.Contains(rr.Body.String(), "-$480.00") || !strings.Contains(rr.Body.String(), "negative") {
		t.Errorf("override not applied: %s", rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/?saldo_inicial=abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid saldo_inicial status = %d, want 400", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodGet, "/", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "X-Request-ID"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
	if id := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("request id = %q", id)
	}
}

func TestAPISummaryWritesNaNAsNull(t *testing.T) {
	api := memory.New([]core.Transaction{tx("1", "Outro", "abc", "01/01/2024")}, nil)
	env := newTestEnv(t, api, true)

	rr := env.do(http.MethodGet, "/api/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got map[string]any
	decode(t, rr, &got)
	if got["saldo_atual"] != nil {
		t.Errorf("saldo_atual = %v, want null", got["saldo_atual"])
	}
	if got["saldo_atual_formatado"] != core.NotANumber {
		t.Errorf("formatted = %v", got["saldo_atual_formatado"])
	}
	if got["positivo"] != false {
		t.Errorf("positivo = %v, want false", got["positivo"])
	}
}

func TestChartsNoData(t *testing.T) {
	api := memory.New([]core.Transaction{tx("1", "Outro", "5", "01/01/2024")}, nil)
	env := newTestEnv(t, api, true)

	rr := env.do(http.MethodGet, "/charts", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), core.NoDataMessage) {
		t.Fatalf("charts page: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/api/charts", nil)
	var got chartsDTO
	decode(t, rr, &got)
	if !got.NoData || got.Message != core.NoDataMessage {
		t.Errorf("api charts = %+v", got)
	}
}

func TestChartsWithData(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodGet, "/charts", nil)
	body := rr.Body.String()
	for _, want := range []string{"Gastos acumulados", "Lucros por tipo", "<meter", core.TipoTransporte} {
		if !strings.Contains(body, want) {
			t.Errorf("charts page missing %q", want)
		}
	}

	rr = env.do(http.MethodGet, "/api/charts", nil)
	var got chartsDTO
	decode(t, rr, &got)
	if got.NoData || got.ExpensesCumulative == nil {
		t.Fatalf("api charts = %+v", got)
	}
	if len(got.ExpensesCumulative.Values) != 2 || *got.ExpensesCumulative.Values[1] != 30 {
		t.Errorf("expenses cumulative = %+v", got.ExpensesCumulative)
	}
	if labels := got.ExpensesByTipo.Labels; len(labels) != 2 || labels[0] != core.TipoInsumos {
		t.Errorf("expenses by tipo labels = %v", labels)
	}
}

func TestRecordsCreate(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodPost, "/records", url.Values{
		"kind":  {"lucros"},
		"tipo":  {core.TipoVendas},
		"valor": {"25.5"},
		"data":  {"2024-03-05"},
	})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/records?kind=lucros" {
		t.Errorf("Location = %q", loc)
	}

	profits := env.svc.Store().Profits()
	if len(profits) != 2 {
		t.Fatalf("store profits = %d, want 2", len(profits))
	}
	if last := profits[1]; last.Data != "05/03/2024" || last.Valor != "25.5" {
		t.Errorf("created entry = %+v", last)
	}
}

func TestRecordsValidation(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"comma decimal", url.Values{"kind": {"gastos"}, "tipo": {"Outro"}, "valor": {"12,50"}, "data": {"01/01/2024"}}, "Valor inválido"},
		{"missing tipo", url.Values{"kind": {"gastos"}, "valor": {"1"}, "data": {"01/01/2024"}}, "Escolha um tipo"},
		{"bad date", url.Values{"kind": {"gastos"}, "tipo": {"Outro"}, "valor": {"1"}, "data": {"2024/01/01"}}, "Data inválida"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/records", tt.form)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}

	if n := env.remote.Len(core.Expenses); n != 2 {
		t.Errorf("remote expenses = %d, want 2", n)
	}
}

func TestRecordsUnknownKind(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	if rr := env.do(http.MethodGet, "/records?kind=despesas", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("GET status = %d, want 400", rr.Code)
	}
	rr := env.do(http.MethodPost, "/records", url.Values{"kind": {"despesas"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST status = %d, want 400", rr.Code)
	}
}

func TestRecordsEditAndUpdate(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodGet, "/records?kind=gastos&edit=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("edit status = %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `name="id" value="2"`) || !strings.Contains(body, "Atualizar") {
		t.Errorf("edit form not prefilled: %s", body)
	}

	rr = env.do(http.MethodPost, "/records", url.Values{
		"kind": {"gastos"}, "id": {"2"}, "tipo": {core.TipoOutro}, "valor": {"99"}, "data": {"09/09/2024"},
	})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("update status = %d body=%s", rr.Code, rr.Body.String())
	}
	got := env.svc.Store().Expenses()[1]
	if got.ID != "2" || got.Tipo != core.TipoOutro || got.Valor != "99" {
		t.Errorf("updated entry = %+v", got)
	}

	if rr := env.do(http.MethodGet, "/records?kind=gastos&edit=404", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown edit id status = %d, want 404", rr.Code)
	}
}

func TestRecordsUpdateUnknownIDShowsError(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodPost, "/records", url.Values{
		"kind": {"gastos"}, "id": {"77"}, "tipo": {core.TipoOutro}, "valor": {"1"}, "data": {"01/01/2024"},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `class="error"`) {
		t.Errorf("missing error banner")
	}
}

func TestRecordsDelete(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodGet, "/records/delete?kind=gastos&id=1", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Tem certeza") {
		t.Fatalf("confirm page: status=%d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/records/delete", url.Values{"kind": {"gastos"}, "id": {"1"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("delete status = %d body=%s", rr.Code, rr.Body.String())
	}
	expenses := env.svc.Store().Expenses()
	if len(expenses) != 1 || expenses[0].ID != "2" {
		t.Errorf("store expenses after delete = %+v", expenses)
	}

	if rr := env.do(http.MethodPost, "/records/delete", url.Values{"kind": {"gastos"}}); rr.Code != http.StatusBadRequest {
		t.Errorf("delete without id status = %d, want 400", rr.Code)
	}
}

type failingCreate struct {
	*memory.Store
}

func (failingCreate) Create(context.Context, core.Kind, core.Draft) (core.Transaction, error) {
	return core.Transaction{}, &remote.StatusError{Kind: core.Expenses, Method: http.MethodPost, StatusCode: 500, Body: "boom"}
}

func TestRecordsRemoteFailureKeepsForm(t *testing.T) {
	env := newTestEnv(t, failingCreate{seededMemory()}, true)

	rr := env.do(http.MethodPost, "/records", url.Values{
		"kind": {"gastos"}, "tipo": {core.TipoInsumos}, "valor": {"7.25"}, "data": {"01/01/2024"},
	})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "status 500") || !strings.Contains(body, `value="7.25"`) {
		t.Errorf("body should show the error and keep input: %s", body)
	}
	if n := len(env.svc.Store().Expenses()); n != 2 {
		t.Errorf("store expenses = %d, want 2", n)
	}
}

func TestAPITransactions(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	rr := env.do(http.MethodGet, "/api/transactions/gastos", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got struct {
		Kind    string           `json:"kind"`
		Version uint64           `json:"version"`
		Items   []transactionDTO `json:"items"`
	}
	decode(t, rr, &got)
	if got.Kind != "gastos" || got.Version != 1 || len(got.Items) != 2 {
		t.Errorf("response = %+v", got)
	}
	if got.Items[0].Amount == nil || *got.Items[0].Amount != 10 {
		t.Errorf("first amount = %v", got.Items[0].Amount)
	}

	if rr := env.do(http.MethodGet, "/api/transactions/despesas", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", rr.Code)
	}
}

func TestAPITransactionsKeepsNonCanonicalIDsAsStrings(t *testing.T) {
	api := memory.New([]core.Transaction{
		tx("007", core.TipoInsumos, "1", "01/01/2024"),
		tx("+5", core.TipoOutro, "2", "02/01/2024"),
	}, nil)
	env := newTestEnv(t, api, true)

	rr := env.do(http.MethodGet, "/api/transactions/gastos", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Items []struct {
			ID any `json:"id"`
		} `json:"items"`
	}
	decode(t, rr, &got)
	if len(got.Items) != 2 || got.Items[0].ID != "007" || got.Items[1].ID != "+5" {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if !strings.HasPrefix(body["error"], "encode response") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestAPIRefreshAndReadiness(t *testing.T) {
	env := newTestEnv(t, seededMemory(), false)

	if rr := env.do(http.MethodGet, "/readyz", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before load = %d, want 503", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/healthz", nil); rr.Code != http.StatusOK {
		t.Errorf("healthz = %d", rr.Code)
	}

	rr := env.do(http.MethodPost, "/api/refresh", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rr.Code, rr.Body.String())
	}
	var got struct {
		Results []resultDTO `json:"results"`
	}
	decode(t, rr, &got)
	if len(got.Results) != 2 || got.Results[0].Count != 2 || got.Results[1].Count != 1 {
		t.Errorf("results = %+v", got.Results)
	}

	if rr := env.do(http.MethodGet, "/readyz", nil); rr.Code != http.StatusOK {
		t.Errorf("readyz after load = %d, want 200", rr.Code)
	}
}

type failingList struct {
	*memory.Store
}

func (failingList) List(context.Context, core.Kind) ([]core.Transaction, error) {
	return nil, remote.ErrTransport
}

func TestAPIRefreshFailure(t *testing.T) {
	env := newTestEnv(t, failingList{seededMemory()}, false)

	rr := env.do(http.MethodPost, "/api/refresh", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var got struct {
		Results []resultDTO `json:"results"`
	}
	decode(t, rr, &got)
	for _, r := range got.Results {
		if r.OK || r.Error == "" {
			t.Errorf("result = %+v, want failure", r)
		}
	}
}

func TestSyncHistory(t *testing.T) {
	disabled := newTestEnv(t, seededMemory(), true)
	if rr := disabled.do(http.MethodGet, "/sync/history", nil); rr.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d, want 404", rr.Code)
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	svc := services.NewSyncService(seededMemory(), store.New(), services.WithLogger(log.Discard()), services.WithRecorder(j))
	t.Cleanup(func() { _ = svc.Close() })
	if _, err := svc.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	srv := NewServer(":0", svc, WithLogger(log.Discard()), WithHistory(j))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	env := &testEnv{srv: srv, svc: svc}

	rr := env.do(http.MethodGet, "/sync/history?limit=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got struct {
		Entries  []historyDTO `json:"entries"`
		Failures int64        `json:"failures"`
	}
	decode(t, rr, &got)
	if len(got.Entries) != 1 || got.Entries[0].Op != "fetch" || !got.Entries[0].Success {
		t.Errorf("entries = %+v", got.Entries)
	}
	if got.Failures != 0 {
		t.Errorf("failures = %d, want 0", got.Failures)
	}

	failed := services.Result{Kind: core.Profits, Op: services.OpCreate, Err: remote.ErrTransport}
	if err := j.Record(context.Background(), failed); err != nil {
		t.Fatalf("record: %v", err)
	}
	rr = env.do(http.MethodGet, "/sync/history", nil)
	decode(t, rr, &got)
	if got.Failures != 1 || len(got.Entries) != 3 {
		t.Errorf("after failure: failures = %d, entries = %d", got.Failures, len(got.Entries))
	}

	if rr := env.do(http.MethodGet, "/sync/history?limit=zero", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestRateLimitOnPost(t *testing.T) {
	env := newTestEnv(t, seededMemory(), true)

	var last int
	for i := 0; i < defaultRateLimit+1; i++ {
		last = env.do(http.MethodPost, "/api/refresh", nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after %d posts = %d, want 429", defaultRateLimit+1, last)
	}
	if rr := env.do(http.MethodGet, "/", nil); rr.Code != http.StatusOK {
		t.Errorf("GET limited too: %d", rr.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.9:5000", "", "203.0.113.9"},
		{"untrusted peer ignores xff", "203.0.113.9:5000", "198.51.100.1", "203.0.113.9"},
		{"trusted proxy uses xff", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"invalid xff falls back", "127.0.0.1:5000", "nonsense", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	m := &securityMetrics{}
	if detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/records?kind=gastos", nil), m) {
		t.Error("plain request flagged")
	}
	if !detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/.env", nil), m) {
		t.Error(".env request not flagged")
	}
	if got := m.snapshot()["suspicious_requests"]; got != 1 {
		t.Errorf("suspicious_requests = %d, want 1", got)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		v, max float64
		want   string
	}{
		{50, 100, "50.0"},
		{150, 100, "100.0"},
		{-5, 100, "0"},
		{5, 0, "0"},
	}
	for _, tt := range tests {
		if got := percent(tt.v, tt.max); got != tt.want {
			t.Errorf("percent(%v, %v) = %q, want %q", tt.v, tt.max, got, tt.want)
		}
	}
}
