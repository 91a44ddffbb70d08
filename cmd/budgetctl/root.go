package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dafibh/fortuna/fortuna-budget/internal/config"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/postgres"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagWorkspace int32
	flagCurrency  string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:              "budgetctl",
	Short:            "Operate annual budget scenarios",
	Long:             "Run migrations, create budgets, refresh actuals and print summaries without going through the API.",
	SilenceUsage:     true,
	PersistentPreRun: setupLogging,
}

func setupLogging(_ *cobra.Command, _ []string) {
	level := zerolog.WarnLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}

func init() {
	rootCmd.PersistentFlags().Int32VarP(&flagWorkspace, "workspace", "w", 0, "Workspace ID")
	rootCmd.PersistentFlags().StringVarP(&flagCurrency, "currency", "c", "", "Currency code (defaults to DEFAULT_CURRENCY)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
}

// app bundles the services a command needs
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	budgets   *service.BudgetService
	summaries *service.SummaryService
	refresher *service.ActualsRefresher
	currency  string
}

func (a *app) Close() {
	a.pool.Close()
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	rates, err := config.LoadRates(cfg.RatesFile)
	if err != nil {
		return nil, err
	}
	converter, err := service.NewRateTableConverter(rates.Base, rates.Rates)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	scenarioRepo := postgres.NewScenarioRepository(pool)
	ledger := postgres.NewTransactionLedger(pool)
	aggregator := service.NewActualsAggregator(ledger, converter)
	budgets := service.NewBudgetService(scenarioRepo, aggregator, converter, nil)

	currency := flagCurrency
	if currency == "" {
		currency = cfg.DefaultCurrency
	}

	return &app{
		cfg:       cfg,
		pool:      pool,
		budgets:   budgets,
		summaries: service.NewSummaryService(scenarioRepo, budgets, aggregator, converter),
		refresher: service.NewActualsRefresher(scenarioRepo, ledger, aggregator, nil, service.DefaultRefreshConcurrency),
		currency:  currency,
	}, nil
}

func requireWorkspace() error {
	if flagWorkspace <= 0 {
		return fmt.Errorf("--workspace is required")
	}
	return nil
}
