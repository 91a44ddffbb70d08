package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

// BudgetedTypes are the transaction types that count towards a budget
var BudgetedTypes = []TransactionType{TransactionTypeIncome, TransactionTypeExpense}

// TransactionRecord is a read-only view of a ledger transaction
type TransactionRecord struct {
	ID              int32           `json:"id"`
	WorkspaceID     int32           `json:"workspaceId"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionDate time.Time       `json:"transactionDate"`
	DeletedAt       *time.Time      `json:"deletedAt,omitempty"`
}

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks the range is well formed
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return ErrInvalidDateRange
	}
	return nil
}

// Contains reports whether t falls on a date inside the range
func (r DateRange) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(DateOf(r.Start)) && !d.After(DateOf(r.End))
}

// DateOf truncates t to midnight UTC of its calendar date
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// YearCurrencyTotal is a ledger sum grouped by year and original currency
type YearCurrencyTotal struct {
	Year     int
	Currency string
	Income   decimal.Decimal
	Expense  decimal.Decimal
}

// TransactionLedger gives read access to non-deleted transactions
type TransactionLedger interface {
	FindMany(ctx context.Context, workspaceID int32, r DateRange, types []TransactionType) ([]*TransactionRecord, error)
	SumByYearAndCurrency(ctx context.Context, workspaceID int32, r DateRange) ([]*YearCurrencyTotal, error)
	DistinctYears(ctx context.Context, workspaceID int32) ([]int, error)
}
