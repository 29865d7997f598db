package http

import (
	"math"
	"time"

	"caixa/internal/core"
	"caixa/internal/journal"
)

// JSON has no NaN, so amounts go out as pointers and a non-numeric value is
// written as null next to its formatted form.

type transactionDTO struct {
	ID     core.ID  `json:"id"`
	Tipo   string   `json:"tipo"`
	Valor  string   `json:"valor"`
	Amount *float64 `json:"amount"`
	Data   string   `json:"data"`
}

type summaryDTO struct {
	InitialBalance *float64 `json:"saldo_inicial"`
	TotalExpenses  *float64 `json:"total_gastos"`
	TotalProfits   *float64 `json:"total_lucros"`
	Balance        *float64 `json:"saldo_atual"`
	Formatted      string   `json:"saldo_atual_formatado"`
	Positive       bool     `json:"positivo"`
	ExpensesCount  int      `json:"gastos"`
	ProfitsCount   int      `json:"lucros"`
}

type seriesDTO struct {
	Labels []string   `json:"labels"`
	Values []*float64 `json:"values"`
}

type chartsDTO struct {
	NoData             bool       `json:"no_data"`
	Message            string     `json:"message,omitempty"`
	ExpensesCumulative *seriesDTO `json:"gastos_acumulados,omitempty"`
	ProfitsCumulative  *seriesDTO `json:"lucros_acumulados,omitempty"`
	ExpensesByTipo     *seriesDTO `json:"gastos_por_tipo,omitempty"`
	ProfitsByTipo      *seriesDTO `json:"lucros_por_tipo,omitempty"`
}

type resultDTO struct {
	Kind       core.Kind `json:"kind"`
	Op         string    `json:"op"`
	RequestID  string    `json:"request_id"`
	OK         bool      `json:"ok"`
	Count      int       `json:"count"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

type historyDTO struct {
	RequestID     string    `json:"request_id"`
	Kind          string    `json:"kind"`
	Op            string    `json:"op"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ErrorType     string    `json:"error_type,omitempty"`
	Count         int       `json:"count"`
	DurationMs    int64     `json:"duration_ms"`
	RecordedAt    time.Time `json:"recorded_at"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func toTransactionDTOs(txs []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, len(txs))
	for i, t := range txs {
		out[i] = transactionDTO{
			ID:     t.ID,
			Tipo:   t.Tipo,
			Valor:  t.Valor.String(),
			Amount: nullable(t.Valor.Float()),
			Data:   t.Data,
		}
	}
	return out
}

func toSummaryDTO(s core.Summary, expenses, profits int) summaryDTO {
	return summaryDTO{
		InitialBalance: nullable(s.InitialBalance),
		TotalExpenses:  nullable(s.TotalExpenses),
		TotalProfits:   nullable(s.TotalProfits),
		Balance:        nullable(s.Balance),
		Formatted:      core.FormatMoney(s.Balance),
		Positive:       s.Positive(),
		ExpensesCount:  expenses,
		ProfitsCount:   profits,
	}
}

func toSeriesDTO(s core.Series) *seriesDTO {
	out := &seriesDTO{
		Labels: append([]string{}, s.Labels...),
		Values: make([]*float64, len(s.Values)),
	}
	for i, v := range s.Values {
		out.Values[i] = nullable(v)
	}
	return out
}

func toChartsDTO(c core.ChartData) chartsDTO {
	return chartsDTO{
		ExpensesCumulative: toSeriesDTO(c.ExpensesCumulative),
		ProfitsCumulative:  toSeriesDTO(c.ProfitsCumulative),
		ExpensesByTipo:     toSeriesDTO(c.ExpensesByTipo),
		ProfitsByTipo:      toSeriesDTO(c.ProfitsByTipo),
	}
}

func toHistoryDTOs(entries []journal.Entry) []historyDTO {
	out := make([]historyDTO, len(entries))
	for i, e := range entries {
		out[i] = historyDTO{
			RequestID:     e.RequestID,
			Kind:          e.Kind,
			Op:            e.Operation,
			TransactionID: e.TransactionID,
			Success:       e.Success,
			Error:         e.Error,
			ErrorType:     e.ErrorType,
			Count:         e.Count,
			DurationMs:    e.DurationMs,
			RecordedAt:    e.RecordedAt,
		}
	}
	return out
}
