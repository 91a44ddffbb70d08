package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
)

// LockingDays is how old a transaction must be before it counts as actual
const LockingDays = 30

// ActualsAggregator derives real income/expense figures for a fiscal year from the ledger
type ActualsAggregator struct {
	ledger    domain.TransactionLedger
	converter domain.CurrencyConverter
	now       Clock
}

// NewActualsAggregator creates a new ActualsAggregator
func NewActualsAggregator(ledger domain.TransactionLedger, converter domain.CurrencyConverter) *ActualsAggregator {
	return &ActualsAggregator{
		ledger:    ledger,
		converter: converter,
		now:       time.Now,
	}
}

// SetClock overrides the time source
func (a *ActualsAggregator) SetClock(now Clock) {
	a.now = now
}

// LockedWindow returns the date range whose transactions count as actual for
// fiscalYear at the given instant. ok is false when nothing is locked yet:
// a future year, the first two months of the current year, or a range pushed
// before January 1st by the 30-day settlement delay.
func LockedWindow(fiscalYear int, now time.Time) (r domain.DateRange, ok bool) {
	today := domain.DateOf(now)
	start := time.Date(fiscalYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	empty := domain.DateRange{Start: start, End: start}

	var candidateEnd time.Time
	switch {
	case fiscalYear > today.Year():
		return empty, false
	case fiscalYear == today.Year():
		targetMonth := int(today.Month()) - 2
		if targetMonth < 1 {
			return empty, false
		}
		// day 0 of the following month is the last day of targetMonth
		candidateEnd = time.Date(fiscalYear, time.Month(targetMonth+1), 0, 0, 0, 0, 0, time.UTC)
	default:
		candidateEnd = time.Date(fiscalYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	}

	end := candidateEnd
	if settled := today.AddDate(0, 0, -LockingDays); settled.Before(end) {
		end = settled
	}
	if end.Before(start) {
		return empty, false
	}
	return domain.DateRange{Start: start, End: end}, true
}

// TentativeWindow is the range of recent activity not yet folded into the
// locked Act scenario: the first day of the previous calendar month up to today.
func TentativeWindow(now time.Time) domain.DateRange {
	today := domain.DateOf(now)
	start := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	return domain.DateRange{Start: start, End: today}
}

// Aggregate computes the Act allocation for a fiscal year in the given currency.
// An empty locked window yields an all-zero allocation; that is a business rule, not an error.
func (a *ActualsAggregator) Aggregate(ctx context.Context, workspaceID int32, fiscalYear int, currency string) (domain.Allocation, error) {
	currency = NormalizeCurrency(currency)
	if !a.converter.Supports(currency) {
		return domain.Allocation{}, domain.ErrUnsupportedCurrency
	}

	window, ok := LockedWindow(fiscalYear, a.now())
	if !ok {
		return AllocateFromMonths(emptyMonths()), nil
	}
	months, err := a.monthBuckets(ctx, workspaceID, window, fiscalYear, currency)
	if err != nil {
		return domain.Allocation{}, fmt.Errorf("load ledger for %d: %w", fiscalYear, err)
	}
	return AllocateFromMonths(months), nil
}

// TentativeMonths buckets the tentative window's activity for fiscalYear by
// month. Amounts are unrounded; AllocateFromMonths rounds them.
func (a *ActualsAggregator) TentativeMonths(ctx context.Context, workspaceID int32, fiscalYear int, currency string) ([12]domain.PeriodAmount, error) {
	currency = NormalizeCurrency(currency)
	if !a.converter.Supports(currency) {
		return [12]domain.PeriodAmount{}, domain.ErrUnsupportedCurrency
	}
	months, err := a.monthBuckets(ctx, workspaceID, TentativeWindow(a.now()), fiscalYear, currency)
	if err != nil {
		return [12]domain.PeriodAmount{}, fmt.Errorf("load tentative activity for %d: %w", fiscalYear, err)
	}
	return months, nil
}

// monthBuckets sums live budgeted records of fiscalYear inside window per month
func (a *ActualsAggregator) monthBuckets(ctx context.Context, workspaceID int32, window domain.DateRange, fiscalYear int, currency string) ([12]domain.PeriodAmount, error) {
	months := emptyMonths()
	records, err := a.ledger.FindMany(ctx, workspaceID, window, domain.BudgetedTypes)
	if err != nil {
		return months, err
	}

	for _, rec := range records {
		if rec.DeletedAt != nil || !window.Contains(rec.TransactionDate) || rec.TransactionDate.Year() != fiscalYear {
			continue
		}
		amount, err := a.converter.ConvertExact(rec.Amount, rec.Currency, currency)
		if err != nil {
			return months, err
		}
		idx := int(rec.TransactionDate.Month()) - 1
		switch rec.Type {
		case domain.TransactionTypeIncome:
			months[idx].Income = months[idx].Income.Add(amount)
		case domain.TransactionTypeExpense:
			months[idx].Expense = months[idx].Expense.Add(amount)
		}
	}
	return months, nil
}

// TentativeTotals sums recent, not yet locked activity per fiscal year, converted to currency
func (a *ActualsAggregator) TentativeTotals(ctx context.Context, workspaceID int32, currency string) (map[int]domain.PeriodAmount, error) {
	currency = NormalizeCurrency(currency)
	rows, err := a.ledger.SumByYearAndCurrency(ctx, workspaceID, TentativeWindow(a.now()))
	if err != nil {
		return nil, fmt.Errorf("sum tentative activity: %w", err)
	}

	totals := make(map[int]domain.PeriodAmount)
	for _, row := range rows {
		income, err := a.converter.ConvertExact(row.Income, row.Currency, currency)
		if err != nil {
			return nil, err
		}
		expense, err := a.converter.ConvertExact(row.Expense, row.Currency, currency)
		if err != nil {
			return nil, err
		}
		current, ok := totals[row.Year]
		if !ok {
			current = zeroAmount()
		}
		totals[row.Year] = current.Add(domain.PeriodAmount{Expense: expense, Income: income})
	}
	for year, total := range totals {
		totals[year] = roundAmount(total)
	}
	return totals, nil
}

// tentativeFor returns the tentative amount for a year, zero when absent
func tentativeFor(totals map[int]domain.PeriodAmount, year int) domain.PeriodAmount {
	if t, ok := totals[year]; ok {
		return t
	}
	return zeroAmount()
}
