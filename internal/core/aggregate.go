package core

// Total sums valor over txs. A single non-numeric valor makes the result NaN.
func Total(txs []Transaction) float64 {
	var sum float64
	for _, t := range txs {
		sum += t.Valor.Float()
	}
	return sum
}

// Cumulative returns the prefix sums of valor in collection order.
func Cumulative(txs []Transaction) []float64 {
	out := make([]float64, len(txs))
	var acc float64
	for i, t := range txs {
		acc += t.Valor.Float()
		out[i] = acc
	}
	return out
}

// CumulativeSeries pairs the prefix sums with each entry's date.
func CumulativeSeries(txs []Transaction) Series {
	labels := make([]string, len(txs))
	for i, t := range txs {
		labels[i] = t.Data
	}
	return Series{Labels: labels, Values: Cumulative(txs)}
}

// ByTipo groups txs by tipo, in first-seen order, summing valor per group.
func ByTipo(txs []Transaction) []CategoryTotal {
	index := make(map[string]int)
	var out []CategoryTotal
	for _, t := range txs {
		i, ok := index[t.Tipo]
		if !ok {
			i = len(out)
			index[t.Tipo] = i
			out = append(out, CategoryTotal{Tipo: t.Tipo})
		}
		out[i].Total += t.Valor.Float()
	}
	return out
}

// CategorySeries is ByTipo shaped for a bar chart.
func CategorySeries(txs []Transaction) Series {
	groups := ByTipo(txs)
	s := Series{
		Labels: make([]string, len(groups)),
		Values: make([]float64, len(groups)),
	}
	for i, g := range groups {
		s.Labels[i] = g.Tipo
		s.Values[i] = g.Total
	}
	return s
}

// Balance is initial - Σ expenses + Σ profits.
func Balance(initial float64, expenses, profits []Transaction) float64 {
	return initial - Total(expenses) + Total(profits)
}

func Summarize(initial float64, expenses, profits []Transaction) Summary {
	te, tp := Total(expenses), Total(profits)
	return Summary{
		InitialBalance: initial,
		TotalExpenses:  te,
		TotalProfits:   tp,
		Balance:        initial - te + tp,
	}
}

// BuildCharts derives every chart series. It returns ErrNoData when either
// collection is empty, so callers show a notice instead of blank charts.
func BuildCharts(expenses, profits []Transaction) (ChartData, error) {
	if len(expenses) == 0 || len(profits) == 0 {
		return ChartData{}, ErrNoData
	}
	return ChartData{
		ExpensesCumulative: CumulativeSeries(expenses),
		ProfitsCumulative:  CumulativeSeries(profits),
		ExpensesByTipo:     CategorySeries(expenses),
		ProfitsByTipo:      CategorySeries(profits),
	}, nil
}
