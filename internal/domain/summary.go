package domain

import "github.com/shopspring/decimal"

// Pagination limits for the annual summary
const (
	DefaultSummaryTake = 10
	MaxSummaryTake     = 50
)

// AnnualBudgetSummary is the per-year rollup shown on dashboards
type AnnualBudgetSummary struct {
	Year       int             `json:"year"`
	TopIncome  decimal.Decimal `json:"topIncome"`
	TopExpense decimal.Decimal `json:"topExpense"`
	BotIncome  decimal.Decimal `json:"botIncome"`
	BotExpense decimal.Decimal `json:"botExpense"`
	ActIncome  decimal.Decimal `json:"actIncome"`
	ActExpense decimal.Decimal `json:"actExpense"`
}

// SummaryFilters narrows the set of fiscal years listed
type SummaryFilters struct {
	FromYear *int
	ToYear   *int
}

// SummaryPage is one keyset page of annual summaries
type SummaryPage struct {
	Data       []*AnnualBudgetSummary `json:"data"`
	NextCursor *int                   `json:"nextCursor"`
}

// CurrencyConverter converts amounts between currency codes.
// Convert rounds to cents; ConvertExact keeps full precision for sums.
type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
	ConvertExact(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
	Supports(code string) bool
}
