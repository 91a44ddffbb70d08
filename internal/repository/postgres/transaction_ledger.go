package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionLedger implements domain.TransactionLedger using PostgreSQL.
// Soft-deleted transactions are never returned.
type TransactionLedger struct {
	pool *pgxpool.Pool
}

// NewTransactionLedger creates a new TransactionLedger
func NewTransactionLedger(pool *pgxpool.Pool) *TransactionLedger {
	return &TransactionLedger{pool: pool}
}

// FindMany retrieves transactions of the given types dated inside r
func (l *TransactionLedger) FindMany(ctx context.Context, workspaceID int32, r domain.DateRange, types []domain.TransactionType) ([]*domain.TransactionRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, workspace_id, type, amount, currency, transaction_date
		FROM transactions
		WHERE workspace_id = $1
			AND deleted_at IS NULL
			AND transaction_date BETWEEN $2 AND $3
			AND type = ANY($4)
		ORDER BY transaction_date, id`,
		workspaceID, dateParam(r.Start), dateParam(r.End), typeNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.TransactionRecord
	for rows.Next() {
		var (
			rec      domain.TransactionRecord
			txType   string
			amount   pgtype.Numeric
			currency string
			date     pgtype.Date
		)
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &txType, &amount, &currency, &date); err != nil {
			return nil, err
		}
		rec.Type = domain.TransactionType(txType)
		rec.Amount = pgNumericToDecimal(amount)
		rec.Currency = strings.TrimSpace(currency)
		rec.TransactionDate = date.Time
		result = append(result, &rec)
	}
	return result, rows.Err()
}

// SumByYearAndCurrency sums income and expense inside r grouped by year and original currency
func (l *TransactionLedger) SumByYearAndCurrency(ctx context.Context, workspaceID int32, r domain.DateRange) ([]*domain.YearCurrencyTotal, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rows, err := l.pool.Query(ctx,
		`SELECT
			EXTRACT(YEAR FROM transaction_date)::int AS year,
			currency,
			COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0) AS income,
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0) AS expense
		FROM transactions
		WHERE workspace_id = $1
			AND deleted_at IS NULL
			AND transaction_date BETWEEN $2 AND $3
			AND type IN ('income', 'expense')
		GROUP BY year, currency
		ORDER BY year, currency`,
		workspaceID, dateParam(r.Start), dateParam(r.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.YearCurrencyTotal
	for rows.Next() {
		var (
			year     int32
			currency string
			income   pgtype.Numeric
			expense  pgtype.Numeric
		)
		if err := rows.Scan(&year, &currency, &income, &expense); err != nil {
			return nil, err
		}
		result = append(result, &domain.YearCurrencyTotal{
			Year:     int(year),
			Currency: strings.TrimSpace(currency),
			Income:   pgNumericToDecimal(income),
			Expense:  pgNumericToDecimal(expense),
		})
	}
	return result, rows.Err()
}

// DistinctYears lists every calendar year that has at least one transaction
func (l *TransactionLedger) DistinctYears(ctx context.Context, workspaceID int32) ([]int, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT DISTINCT EXTRACT(YEAR FROM transaction_date)::int AS year
		FROM transactions
		WHERE workspace_id = $1 AND deleted_at IS NULL
		ORDER BY year`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var year int32
		if err := rows.Scan(&year); err != nil {
			return nil, err
		}
		years = append(years, int(year))
	}
	return years, rows.Err()
}

func dateParam(t time.Time) pgtype.Date {
	return pgtype.Date{Time: domain.DateOf(t), Valid: true}
}
