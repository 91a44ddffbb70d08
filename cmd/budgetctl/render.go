package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
)

var (
	colorBorder = lipgloss.Color("#282726")
	colorText   = lipgloss.Color("#FFFCF0")
	colorMuted  = lipgloss.Color("#6F6E69")
	colorAccent = lipgloss.Color("#3AA99F")
	colorOrange = lipgloss.Color("#DA702C")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorText).Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(colorText).Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle   = lipgloss.NewStyle().Foreground(colorOrange)
)

func renderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(60).
		Align(lipgloss.Center).
		Render(titleStyle.Render(title))
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func renderKV(rows [][]string) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(r[0]))
		b.WriteString(valueStyle.Render(r[1]))
		b.WriteString("\n")
	}
	return b.String()
}

// renderScenarios prints one row per period for each scenario
func renderScenarios(scenarios ...*domain.BudgetScenario) string {
	headers := []string{"Period"}
	for _, s := range scenarios {
		name := strings.ToUpper(string(s.ScenarioType))
		headers = append(headers, name+" income", name+" expense")
	}

	periods := []string{"Total", "H1", "H2", "Q1", "Q2", "Q3", "Q4"}
	for _, m := range []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"} {
		periods = append(periods, m)
	}

	rows := make([][]string, len(periods))
	for i, p := range periods {
		rows[i] = []string{p}
		for _, s := range scenarios {
			amount := periodAt(s, i)
			rows[i] = append(rows[i], amount.Income.StringFixed(2), amount.Expense.StringFixed(2))
		}
	}
	return renderTable(headers, rows)
}

// periodAt indexes Total, halves, quarters, then months
func periodAt(s *domain.BudgetScenario, i int) domain.PeriodAmount {
	switch {
	case i == 0:
		return s.Total
	case i <= 2:
		return s.Halves[i-1]
	case i <= 6:
		return s.Quarters[i-3]
	default:
		return s.Months[i-7]
	}
}
