package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/spf13/cobra"
)

var flagRefreshYear int

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute Act scenarios from the transaction ledger",
	Long:  "With --year, refreshes (or creates) that year's Act scenario. Without it, refreshes every year that already has one.",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().IntVar(&flagRefreshYear, "year", 0, "Fiscal year (all years when omitted)")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	if err := requireWorkspace(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if flagRefreshYear != 0 {
		act, err := a.refresher.RefreshYear(ctx, flagWorkspace, flagRefreshYear, a.currency, domain.SystemActor)
		if err != nil {
			return err
		}
		fmt.Println(renderScenarios(act))
		return nil
	}

	result, err := a.refresher.RefreshAll(ctx, flagWorkspace, domain.SystemActor)
	if err != nil {
		return err
	}
	fmt.Println(renderKV([][]string{
		{"Refreshed", joinYears(result.Refreshed)},
		{"Skipped", joinYears(result.Skipped)},
	}))
	return nil
}

func joinYears(years []int) string {
	if len(years) == 0 {
		return "-"
	}
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
