package core

import (
	"errors"
	"math"
)

// NoDataMessage is the notice shown instead of empty charts.
const NoDataMessage = "Nenhum dado disponível."

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("no data available")

// CategoryTotal is the sum of valor for one tipo.
type CategoryTotal struct {
	Tipo  string
	Total float64
}

// Series is a labelled sequence of values, ready for a line or bar chart.
type Series struct {
	Labels []string
	Values []float64
}

// ChartData feeds the charts screen.
type ChartData struct {
	ExpensesCumulative Series
	ProfitsCumulative  Series
	ExpensesByTipo     Series
	ProfitsByTipo      Series
}

// Summary feeds the balance table.
type Summary struct {
	InitialBalance float64
	TotalExpenses  float64
	TotalProfits   float64
	Balance        float64
}

func (s Summary) Positive() bool {
	return IsPositive(s.Balance)
}

func (s Series) Len() int {
	return len(s.Values)
}

// Max returns the largest finite value, or 0 when there is none above zero.
func (s Series) Max() float64 {
	var max float64
	for _, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max
}
