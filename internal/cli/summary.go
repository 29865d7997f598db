package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"caixa/internal/core"
	"caixa/internal/services"
	"caixa/internal/store"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	positiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a6e3a1"))
	negativeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f38ba8"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// RenderSummary draws the balance table for a snapshot, followed by one line
// per failed fetch.
func RenderSummary(initial float64, snap store.Snapshot, results []services.Result) string {
	sum := core.Summarize(initial, snap.Expenses, snap.Profits)

	balance := core.FormatMoney(sum.Balance)
	if sum.Positive() {
		balance = positiveStyle.Render(balance)
	} else {
		balance = negativeStyle.Render(balance)
	}

	lines := []string{
		titleStyle.Render("Caixa"),
		fmt.Sprintf("%-16s %12s", "Saldo inicial", core.FormatMoney(sum.InitialBalance)),
		fmt.Sprintf("%-16s %12s", fmt.Sprintf("Gastos (%d)", len(snap.Expenses)), core.FormatMoney(sum.TotalExpenses)),
		fmt.Sprintf("%-16s %12s", fmt.Sprintf("Lucros (%d)", len(snap.Profits)), core.FormatMoney(sum.TotalProfits)),
		fmt.Sprintf("%-16s %12s", "Saldo atual", balance),
	}
	for _, r := range results {
		if r.Err != nil {
			lines = append(lines, negativeStyle.Render(fmt.Sprintf("%s: %v", r.Kind, r.Err)))
		}
	}
	if len(snap.Expenses) == 0 || len(snap.Profits) == 0 {
		lines = append(lines, mutedStyle.Render(core.NoDataMessage))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
