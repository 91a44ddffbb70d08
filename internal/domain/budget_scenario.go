package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ScenarioType identifies one of the three parallel budgets kept per fiscal year
type ScenarioType string

const (
	ScenarioTop ScenarioType = "top"
	ScenarioBot ScenarioType = "bot"
	ScenarioAct ScenarioType = "act"
)

// ScenarioTypes lists every scenario type in creation order
var ScenarioTypes = []ScenarioType{ScenarioTop, ScenarioBot, ScenarioAct}

// ParseScenarioType parses a scenario type, case-insensitively
func ParseScenarioType(s string) (ScenarioType, error) {
	switch ScenarioType(strings.ToLower(strings.TrimSpace(s))) {
	case ScenarioTop:
		return ScenarioTop, nil
	case ScenarioBot:
		return ScenarioBot, nil
	case ScenarioAct:
		return ScenarioAct, nil
	}
	return "", ErrInvalidScenarioType
}

// TransactionKind is the kind of a budget detail row
type TransactionKind string

const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

// SystemActor is recorded as creator of system generated scenarios
const SystemActor = "system"

// PeriodAmount is an expense/income pair for one period
type PeriodAmount struct {
	Expense decimal.Decimal `json:"expense"`
	Income  decimal.Decimal `json:"income"`
}

// Add returns the element-wise sum of two amounts
func (p PeriodAmount) Add(o PeriodAmount) PeriodAmount {
	return PeriodAmount{Expense: p.Expense.Add(o.Expense), Income: p.Income.Add(o.Income)}
}

// Equal reports whether both amounts carry the same values
func (p PeriodAmount) Equal(o PeriodAmount) bool {
	return p.Expense.Equal(o.Expense) && p.Income.Equal(o.Income)
}

// Allocation is a fiscal year broken down into year/half/quarter/month granularity
type Allocation struct {
	Total    PeriodAmount     `json:"total"`
	Halves   [2]PeriodAmount  `json:"halves"`
	Quarters [4]PeriodAmount  `json:"quarters"`
	Months   [12]PeriodAmount `json:"months"`
}

// BudgetScenario is one (workspace, fiscal year, scenario type) row
type BudgetScenario struct {
	ID           int32        `json:"id"`
	WorkspaceID  int32        `json:"workspaceId"`
	FiscalYear   int          `json:"fiscalYear"`
	ScenarioType ScenarioType `json:"scenarioType"`
	Allocation
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	CreatedBy   string    `json:"createdBy"`
	UpdatedBy   string    `json:"updatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BudgetDetailEntry mirrors one monthly field of a scenario
type BudgetDetailEntry struct {
	ID         int32           `json:"id"`
	ScenarioID int32           `json:"scenarioId"`
	Kind       TransactionKind `json:"kind"`
	Month      int             `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// DetailEntriesFor builds the 24 detail rows (12 months x 2 kinds) for a scenario
func DetailEntriesFor(s *BudgetScenario) []*BudgetDetailEntry {
	entries := make([]*BudgetDetailEntry, 0, 24)
	for i, m := range s.Months {
		entries = append(entries,
			&BudgetDetailEntry{ScenarioID: s.ID, Kind: KindExpense, Month: i + 1, Amount: m.Expense},
			&BudgetDetailEntry{ScenarioID: s.ID, Kind: KindIncome, Month: i + 1, Amount: m.Income},
		)
	}
	return entries
}

// BudgetTriad is the Top/Bot/Act set created for a fiscal year
type BudgetTriad struct {
	Top *BudgetScenario `json:"top"`
	Bot *BudgetScenario `json:"bot"`
	Act *BudgetScenario `json:"act"`
}

// YearQuery selects distinct fiscal years for keyset pagination
type YearQuery struct {
	Cursor    *int // exclusive upper bound
	Take      int
	MaxYear   int // inclusive upper bound
	FromYear  *int
	ToYear    *int
	ExactYear *int // overrides FromYear/ToYear
}

// ScenarioReader is the read side of scenario storage
type ScenarioReader interface {
	GetScenario(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType ScenarioType) (*BudgetScenario, error)
	GetScenariosByYears(ctx context.Context, workspaceID int32, years []int) ([]*BudgetScenario, error)
	GetDetails(ctx context.Context, scenarioID int32) ([]*BudgetDetailEntry, error)
	CountByYear(ctx context.Context, workspaceID int32, fiscalYear int) (int, error)
	GetLatestBefore(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType ScenarioType) (*BudgetScenario, error)
	ListFiscalYears(ctx context.Context, workspaceID int32, q YearQuery) ([]int, error)
	ListWorkspaceIDs(ctx context.Context) ([]int32, error)
}

// ScenarioTx is the write side of scenario storage, only reachable inside a transaction
type ScenarioTx interface {
	ScenarioReader
	CreateScenario(ctx context.Context, s *BudgetScenario) (*BudgetScenario, error)
	UpsertScenario(ctx context.Context, s *BudgetScenario) (*BudgetScenario, error)
	CreateDetails(ctx context.Context, scenarioID int32, entries []*BudgetDetailEntry) error
	ReplaceDetails(ctx context.Context, scenarioID int32, entries []*BudgetDetailEntry) error
}

// ScenarioStore persists scenarios and their detail rows.
// RunInTx commits when fn returns nil and rolls back otherwise.
type ScenarioStore interface {
	ScenarioReader
	RunInTx(ctx context.Context, fn func(tx ScenarioTx) error) error
}
