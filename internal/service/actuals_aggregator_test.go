package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock(s string) Clock {
	now := date(s).Add(10 * time.Hour)
	return func() time.Time { return now }
}

func setupAggregator(t *testing.T, now string) (*ActualsAggregator, *testutil.MockTransactionLedger) {
	t.Helper()
	ledger := testutil.NewMockTransactionLedger()
	aggregator := NewActualsAggregator(ledger, newTestConverter(t))
	aggregator.SetClock(fixedClock(now))
	return aggregator, ledger
}

func TestLockedWindow(t *testing.T) {
	tests := []struct {
		name       string
		fiscalYear int
		now        string
		ok         bool
		start, end string
	}{
		{"future year", 2026, "2025-06-01", false, "", ""},
		{"current year january", 2025, "2025-01-15", false, "", ""},
		{"current year february", 2025, "2025-02-28", false, "", ""},
		{"current year march", 2025, "2025-03-15", true, "2025-01-01", "2025-01-31"},
		{"settlement delay clips month end", 2025, "2025-03-01", true, "2025-01-01", "2025-01-30"},
		{"current year december", 2025, "2025-12-20", true, "2025-01-01", "2025-10-31"},
		{"past year fully locked", 2024, "2025-06-01", true, "2024-01-01", "2024-12-31"},
		{"past year in early january", 2024, "2025-01-10", true, "2024-01-01", "2024-12-11"},
		{"old year", 2019, "2025-06-01", true, "2019-01-01", "2019-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, ok := LockedWindow(tt.fiscalYear, fixedClock(tt.now)())

			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, date(tt.start), window.Start)
				assert.Equal(t, date(tt.end), window.End)
			}
		})
	}
}

func TestTentativeWindow(t *testing.T) {
	window := TentativeWindow(fixedClock("2025-03-15")())
	assert.Equal(t, date("2025-02-01"), window.Start)
	assert.Equal(t, date("2025-03-15"), window.End)

	window = TentativeWindow(fixedClock("2025-01-10")())
	assert.Equal(t, date("2024-12-01"), window.Start)
	assert.Equal(t, date("2025-01-10"), window.End)
}

func TestLockedAndTentativeWindows_OverlapInEarlyJanuary(t *testing.T) {
	now := fixedClock("2025-01-10")()

	locked, ok := LockedWindow(2024, now)
	require.True(t, ok)
	tentative := TentativeWindow(now)

	// December 1st to 11th is both locked into 2024 and still tentative
	assert.True(t, tentative.Start.Before(locked.End))
	assert.True(t, locked.Contains(date("2024-12-05")))
	assert.True(t, tentative.Contains(date("2024-12-05")))
}

func TestAggregate_CurrentYearInJanuaryIsZero(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-01-15")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "500", "USD", "2025-01-02")

	alloc, err := aggregator.Aggregate(context.Background(), 1, 2025, "USD")

	require.NoError(t, err)
	assert.True(t, alloc.Total.Expense.IsZero())
	assert.True(t, alloc.Total.Income.IsZero())
	for _, m := range alloc.Months {
		assert.True(t, m.Expense.IsZero())
	}
	assert.Empty(t, ledger.Queries, "ledger is not read when nothing is locked")
}

func TestAggregate_PastYear(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-06-01")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "100", "USD", "2024-03-01")
	ledger.AddTransaction(1, domain.TransactionTypeIncome, "50", "USD", "2024-03-15")

	alloc, err := aggregator.Aggregate(context.Background(), 1, 2024, "USD")

	require.NoError(t, err)
	assertDecimal(t, "100", alloc.Months[2].Expense)
	assertDecimal(t, "50", alloc.Months[2].Income)
	assertDecimal(t, "100", alloc.Quarters[0].Expense)
	assertDecimal(t, "100", alloc.Halves[0].Expense)
	assertDecimal(t, "100", alloc.Total.Expense)
	assertDecimal(t, "50", alloc.Total.Income)
	assert.True(t, alloc.Months[3].Expense.IsZero())
}

func TestAggregate_ConvertsAndFilters(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-06-01")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "10", "EUR", "2024-05-05")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "16000", "IDR", "2024-05-06")
	ledger.AddTransaction(1, domain.TransactionTypeTransfer, "999", "USD", "2024-05-07")
	ledger.AddTransaction(2, domain.TransactionTypeExpense, "999", "USD", "2024-05-07")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "999", "USD", "2023-12-31")
	deleted := ledger.AddTransaction(1, domain.TransactionTypeExpense, "999", "USD", "2024-05-08")
	ledger.SoftDelete(deleted.ID)

	alloc, err := aggregator.Aggregate(context.Background(), 1, 2024, "usd")

	require.NoError(t, err)
	// 10 EUR = 20 USD, 16000 IDR = 1 USD
	assertDecimal(t, "21", alloc.Months[4].Expense)
	assertDecimal(t, "21", alloc.Total.Expense)
}

func TestAggregate_SettlementDelayExcludesRecentActivity(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-01-10")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "40", "USD", "2024-12-11")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "60", "USD", "2024-12-20")

	alloc, err := aggregator.Aggregate(context.Background(), 1, 2024, "USD")

	require.NoError(t, err)
	assertDecimal(t, "40", alloc.Months[11].Expense)
}

func TestAggregate_UnsupportedCurrency(t *testing.T) {
	aggregator, _ := setupAggregator(t, "2025-06-01")

	_, err := aggregator.Aggregate(context.Background(), 1, 2024, "JPY")

	assert.True(t, errors.Is(err, domain.ErrUnsupportedCurrency))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestAggregate_LedgerFailure(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-06-01")
	ledger.FindManyErr = errors.New("connection reset")

	_, err := aggregator.Aggregate(context.Background(), 1, 2024, "USD")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestTentativeTotals(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-03-15")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "30", "USD", "2025-02-10")
	ledger.AddTransaction(1, domain.TransactionTypeIncome, "20", "EUR", "2025-03-01")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "1000", "USD", "2025-01-31")

	totals, err := aggregator.TentativeTotals(context.Background(), 1, "USD")

	require.NoError(t, err)
	require.Contains(t, totals, 2025)
	assertDecimal(t, "30", totals[2025].Expense)
	assertDecimal(t, "40", totals[2025].Income)

	zero := tentativeFor(totals, 2024)
	assert.True(t, zero.Expense.IsZero())
}

func TestAggregate_SmallForeignAmountsRoundOncePerMonth(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-06-01")
	// 100 IDR is 0.00625 USD; rounding each row would book 0.01 apiece
	for i := 0; i < 1000; i++ {
		ledger.AddTransaction(1, domain.TransactionTypeExpense, "100", "IDR", "2024-04-12")
	}

	alloc, err := aggregator.Aggregate(context.Background(), 1, 2024, "usd")

	require.NoError(t, err)
	assertDecimal(t, "6.25", alloc.Months[3].Expense)
	assertDecimal(t, "6.25", alloc.Quarters[1].Expense)
	assertDecimal(t, "6.25", alloc.Total.Expense)
}

func TestTentativeMonths(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-03-15")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "30", "USD", "2025-02-10")
	ledger.AddTransaction(1, domain.TransactionTypeIncome, "20", "EUR", "2025-03-01")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "1000", "USD", "2025-01-31")
	ledger.AddTransaction(2, domain.TransactionTypeExpense, "99", "USD", "2025-02-11")

	months, err := aggregator.TentativeMonths(context.Background(), 1, 2025, "USD")

	require.NoError(t, err)
	assert.True(t, months[0].Expense.IsZero(), "january is outside the tentative window")
	assertDecimal(t, "30", months[1].Expense)
	assertDecimal(t, "40", months[2].Income)
	for i := 3; i < 12; i++ {
		assert.True(t, months[i].Expense.IsZero() && months[i].Income.IsZero(), "month %d", i+1)
	}
}

func TestTentativeMonths_OtherYearIsEmpty(t *testing.T) {
	aggregator, ledger := setupAggregator(t, "2025-01-10")
	ledger.AddTransaction(1, domain.TransactionTypeExpense, "15", "USD", "2024-12-20")

	months, err := aggregator.TentativeMonths(context.Background(), 1, 2025, "USD")
	require.NoError(t, err)
	for i := range months {
		assert.True(t, months[i].Expense.IsZero())
	}

	previous, err := aggregator.TentativeMonths(context.Background(), 1, 2024, "USD")
	require.NoError(t, err)
	assertDecimal(t, "15", previous[11].Expense)
}

func TestTentativeMonths_UnsupportedCurrency(t *testing.T) {
	aggregator, _ := setupAggregator(t, "2025-03-15")

	_, err := aggregator.TentativeMonths(context.Background(), 1, 2025, "XYZ")

	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
}
