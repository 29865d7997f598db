package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"caixa/internal/core"
	"caixa/internal/journal"
	"caixa/internal/remote"
	"caixa/internal/services"
)

// refreshTimeout bounds POST /api/refresh.
const refreshTimeout = 30 * time.Second

// statusFor maps a sync error onto the status the dashboard answers with.
func statusFor(err error) int {
	var se *remote.StatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrInvalidKind):
		return http.StatusNotFound
	case errors.Is(err, services.ErrMissingID):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	initial, err := s.initialBalanceFrom(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.svc.Store().Snapshot()
	sum := core.Summarize(initial, snap.Expenses, snap.Profits)
	writeJSON(w, http.StatusOK, toSummaryDTO(sum, len(snap.Expenses), len(snap.Profits)))
}

// handleAPICharts answers 200 with no_data set when there is nothing to chart.
func (s *Server) handleAPICharts(w http.ResponseWriter, r *http.Request) {
	charts, err := s.charts.Charts(s.svc.Store().Snapshot())
	switch {
	case errors.Is(err, core.ErrNoData):
		writeJSON(w, http.StatusOK, chartsDTO{NoData: true, Message: core.NoDataMessage})
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, toChartsDTO(charts))
	}
}

func (s *Server) handleAPITransactions(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	st := s.svc.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":    kind,
		"version": st.Version(kind),
		"items":   toTransactionDTOs(st.Get(kind)),
	})
}

// handleAPIRefresh re-fetches both collections. A partial failure answers 502
// with every result so the caller sees which kind failed.
func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	results, err := s.svc.RefreshAll(ctx)
	out := make([]resultDTO, len(results))
	status := http.StatusOK
	for i, res := range results {
		out[i] = resultDTO{
			Kind:       res.Kind,
			Op:         string(res.Op),
			RequestID:  res.RequestID.String(),
			OK:         res.OK(),
			Count:      res.Count,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			if st := statusFor(res.Err); st > status {
				status = st
			}
		}
	}
	if err != nil && status == http.StatusOK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"results": out})
}

// handleSyncHistory lists recent journal entries, newest first, with the
// total number of failed operations on record.
func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "sync journal disabled")
		return
	}
	limit := journal.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failures, err := s.history.FailureCount(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  toHistoryDTOs(entries),
		"failures": failures,
	})
}

// handleHealth performs a basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady answers 503 until both collections have loaded once.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.svc.Loaded() {
		checks["collections"] = "ok"
	} else {
		checks["collections"] = "loading"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	snap := s.svc.Store().Snapshot()
	checks["store"] = map[string]any{
		"gastos_version": snap.ExpensesVersion,
		"lucros_version": snap.ProfitsVersion,
	}
	checks["cache"] = map[string]any{"chart_entries": s.charts.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}
	checks["security"] = s.metrics.snapshot()

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}
