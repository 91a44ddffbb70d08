package service

import (
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/shopspring/decimal"
)

// Clock returns the current time. Services default to time.Now and tests pin it.
type Clock func() time.Time

var (
	twelve = decimal.NewFromInt(12)
	three  = decimal.NewFromInt(3)
	six    = decimal.NewFromInt(6)
)

// moneyPlaces is the number of decimal places stored for every amount
const moneyPlaces = 2

// AllocateEvenly spreads annual totals across months, quarters and halves.
// Every month gets total/12 rounded to cents, quarters are 3x and halves 6x the
// rounded monthly value, so quarters and halves always equal the sum of their
// months. Twelve rounded months may drift from the total by at most 0.06.
func AllocateEvenly(totalExpense, totalIncome decimal.Decimal) domain.Allocation {
	monthly := domain.PeriodAmount{
		Expense: totalExpense.Div(twelve).Round(moneyPlaces),
		Income:  totalIncome.Div(twelve).Round(moneyPlaces),
	}
	quarter := domain.PeriodAmount{
		Expense: monthly.Expense.Mul(three).Round(moneyPlaces),
		Income:  monthly.Income.Mul(three).Round(moneyPlaces),
	}
	half := domain.PeriodAmount{
		Expense: monthly.Expense.Mul(six).Round(moneyPlaces),
		Income:  monthly.Income.Mul(six).Round(moneyPlaces),
	}

	alloc := domain.Allocation{
		Total: domain.PeriodAmount{
			Expense: totalExpense.Round(moneyPlaces),
			Income:  totalIncome.Round(moneyPlaces),
		},
	}
	for i := range alloc.Months {
		alloc.Months[i] = monthly
	}
	for i := range alloc.Quarters {
		alloc.Quarters[i] = quarter
	}
	for i := range alloc.Halves {
		alloc.Halves[i] = half
	}
	return alloc
}

// AllocateFromMonths builds an allocation from real per-month buckets, summing
// upward so quarters, halves and the total reflect the actual distribution.
func AllocateFromMonths(months [12]domain.PeriodAmount) domain.Allocation {
	var alloc domain.Allocation
	alloc.Total = zeroAmount()
	for i := range alloc.Halves {
		alloc.Halves[i] = zeroAmount()
	}
	for i := range alloc.Quarters {
		alloc.Quarters[i] = zeroAmount()
	}

	for i, m := range months {
		m = roundAmount(m)
		alloc.Months[i] = m
		alloc.Quarters[i/3] = alloc.Quarters[i/3].Add(m)
		alloc.Halves[i/6] = alloc.Halves[i/6].Add(m)
		alloc.Total = alloc.Total.Add(m)
	}
	return alloc
}

func roundAmount(p domain.PeriodAmount) domain.PeriodAmount {
	return domain.PeriodAmount{Expense: p.Expense.Round(moneyPlaces), Income: p.Income.Round(moneyPlaces)}
}

func zeroAmount() domain.PeriodAmount {
	return domain.PeriodAmount{Expense: decimal.Zero, Income: decimal.Zero}
}

// emptyMonths returns twelve zeroed buckets
func emptyMonths() [12]domain.PeriodAmount {
	var months [12]domain.PeriodAmount
	for i := range months {
		months[i] = zeroAmount()
	}
	return months
}
