package main

import (
	"fmt"
	"strconv"

	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/spf13/cobra"
)

var (
	flagTake   int
	flagCursor int
	flagFrom   int
	flagTo     int
	flagSearch string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the annual Top/Bot/Act summary",
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().IntVar(&flagTake, "take", 0, "Years per page (default 10, max 50)")
	summaryCmd.Flags().IntVar(&flagCursor, "cursor", 0, "Only years before this one")
	summaryCmd.Flags().IntVar(&flagFrom, "from", 0, "Earliest fiscal year")
	summaryCmd.Flags().IntVar(&flagTo, "to", 0, "Latest fiscal year")
	summaryCmd.Flags().StringVar(&flagSearch, "search", "", "Exact fiscal year")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	if err := requireWorkspace(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	q := service.SummaryQuery{Take: flagTake, Currency: a.currency, Search: flagSearch}
	if cmd.Flags().Changed("cursor") {
		q.Cursor = &flagCursor
	}
	if cmd.Flags().Changed("from") {
		q.Filters.FromYear = &flagFrom
	}
	if cmd.Flags().Changed("to") {
		q.Filters.ToYear = &flagTo
	}

	page, err := a.summaries.ListAnnualSummary(ctx, flagWorkspace, q)
	if err != nil {
		return err
	}

	fmt.Println(renderTitle(fmt.Sprintf("ANNUAL SUMMARY  %s", service.NormalizeCurrency(a.currency))))
	if len(page.Data) == 0 {
		fmt.Println(mutedStyle.Render("  No budget years found."))
		return nil
	}

	rows := make([][]string, len(page.Data))
	for i, s := range page.Data {
		rows[i] = []string{
			strconv.Itoa(s.Year),
			s.TopIncome.StringFixed(2), s.TopExpense.StringFixed(2),
			s.BotIncome.StringFixed(2), s.BotExpense.StringFixed(2),
			s.ActIncome.StringFixed(2), s.ActExpense.StringFixed(2),
		}
	}
	fmt.Println(renderTable(
		[]string{"Year", "Top income", "Top expense", "Bot income", "Bot expense", "Act income", "Act expense"},
		rows,
	))
	if page.NextCursor != nil {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("  more: --cursor %d", *page.NextCursor)))
	}
	return nil
}
