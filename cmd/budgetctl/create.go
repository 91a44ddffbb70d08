package main

import (
	"fmt"

	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagCreateYear  int
	flagExpense     string
	flagIncome      string
	flagDescription string
	flagIcon        string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the Top, Bot and Act scenarios for a fiscal year",
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().IntVar(&flagCreateYear, "year", 0, "Fiscal year")
	createCmd.Flags().StringVar(&flagExpense, "expense", "0", "Estimated total expense")
	createCmd.Flags().StringVar(&flagIncome, "income", "0", "Estimated total income")
	createCmd.Flags().StringVar(&flagDescription, "description", "", "Budget description")
	createCmd.Flags().StringVar(&flagIcon, "icon", "", "Icon object key")
	_ = createCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, _ []string) error {
	if err := requireWorkspace(); err != nil {
		return err
	}
	expense, err := decimal.NewFromString(flagExpense)
	if err != nil {
		return fmt.Errorf("invalid --expense: %w", err)
	}
	income, err := decimal.NewFromString(flagIncome)
	if err != nil {
		return fmt.Errorf("invalid --income: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	triad, err := a.budgets.CreateBudget(ctx, flagWorkspace, service.CreateBudgetInput{
		FiscalYear:            flagCreateYear,
		EstimatedTotalExpense: expense,
		EstimatedTotalIncome:  income,
		Description:           flagDescription,
		Icon:                  flagIcon,
		Currency:              a.currency,
		IsSystemGenerated:     true,
	})
	if err != nil {
		return err
	}

	fmt.Println(renderTitle(fmt.Sprintf("BUDGET %d  %s", flagCreateYear, triad.Top.Currency)))
	fmt.Println(renderScenarios(triad.Top, triad.Bot, triad.Act))
	return nil
}
