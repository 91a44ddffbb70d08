package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allocationColumns lists the flat allocation columns in Allocation order:
// total, halves, quarters, months; each as an expense/income pair.
var allocationColumns = func() []string {
	periods := []string{"total", "h1", "h2", "q1", "q2", "q3", "q4"}
	for m := 1; m <= 12; m++ {
		periods = append(periods, fmt.Sprintf("m%d", m))
	}
	cols := make([]string, 0, len(periods)*2)
	for _, p := range periods {
		cols = append(cols, p+"_expense", p+"_income")
	}
	return cols
}()

var scenarioColumns = "id, workspace_id, fiscal_year, scenario_type, " +
	strings.Join(allocationColumns, ", ") +
	", currency, description, icon, created_by, updated_by, created_at, updated_at"

// ScenarioRepository implements domain.ScenarioStore using PostgreSQL
type ScenarioRepository struct {
	pool *pgxpool.Pool
	*scenarioQueries
}

// NewScenarioRepository creates a new ScenarioRepository
func NewScenarioRepository(pool *pgxpool.Pool) *ScenarioRepository {
	return &ScenarioRepository{
		pool:            pool,
		scenarioQueries: &scenarioQueries{db: pool},
	}
}

// RunInTx runs fn inside a database transaction
func (r *ScenarioRepository) RunInTx(ctx context.Context, fn func(tx domain.ScenarioTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&scenarioQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// scenarioQueries runs scenario statements against a pool or a transaction
type scenarioQueries struct {
	db querier
}

// GetScenario retrieves one scenario of a fiscal year
func (q *scenarioQueries) GetScenario(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType) (*domain.BudgetScenario, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+scenarioColumns+` FROM budget_scenarios
		WHERE workspace_id = $1 AND fiscal_year = $2 AND scenario_type = $3`,
		workspaceID, fiscalYear, string(scenarioType))
	scenario, err := scanScenario(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScenarioNotFound
		}
		return nil, err
	}
	return scenario, nil
}

// GetScenariosByYears retrieves every scenario for the given fiscal years
func (q *scenarioQueries) GetScenariosByYears(ctx context.Context, workspaceID int32, years []int) ([]*domain.BudgetScenario, error) {
	if len(years) == 0 {
		return []*domain.BudgetScenario{}, nil
	}
	rows, err := q.db.Query(ctx,
		`SELECT `+scenarioColumns+` FROM budget_scenarios
		WHERE workspace_id = $1 AND fiscal_year = ANY($2)
		ORDER BY fiscal_year DESC, scenario_type`,
		workspaceID, years)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.BudgetScenario
	for rows.Next() {
		scenario, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, scenario)
	}
	return result, rows.Err()
}

// GetDetails retrieves the detail rows of a scenario ordered by month
func (q *scenarioQueries) GetDetails(ctx context.Context, scenarioID int32) ([]*domain.BudgetDetailEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, scenario_id, kind, month, amount, created_at FROM budget_details
		WHERE scenario_id = $1 ORDER BY month, kind`,
		scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.BudgetDetailEntry
	for rows.Next() {
		var (
			entry     domain.BudgetDetailEntry
			kind      string
			month     int32
			amount    pgtype.Numeric
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&entry.ID, &entry.ScenarioID, &kind, &month, &amount, &createdAt); err != nil {
			return nil, err
		}
		entry.Kind = domain.TransactionKind(kind)
		entry.Month = int(month)
		entry.Amount = pgNumericToDecimal(amount)
		entry.CreatedAt = createdAt.Time
		result = append(result, &entry)
	}
	return result, rows.Err()
}

// CountByYear counts scenarios that exist for a fiscal year
func (q *scenarioQueries) CountByYear(ctx context.Context, workspaceID int32, fiscalYear int) (int, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM budget_scenarios WHERE workspace_id = $1 AND fiscal_year = $2`,
		workspaceID, fiscalYear).Scan(&count)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// GetLatestBefore retrieves the most recent scenario of a type before fiscalYear
func (q *scenarioQueries) GetLatestBefore(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType) (*domain.BudgetScenario, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+scenarioColumns+` FROM budget_scenarios
		WHERE workspace_id = $1 AND scenario_type = $2 AND fiscal_year < $3
		ORDER BY fiscal_year DESC LIMIT 1`,
		workspaceID, string(scenarioType), fiscalYear)
	scenario, err := scanScenario(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}
	return scenario, nil
}

// ListFiscalYears lists distinct fiscal years in descending order
func (q *scenarioQueries) ListFiscalYears(ctx context.Context, workspaceID int32, yq domain.YearQuery) ([]int, error) {
	conditions := []string{"workspace_id = $1", "fiscal_year <= $2"}
	args := []any{workspaceID, yq.MaxYear}
	addCondition := func(cond string, value int) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if yq.Cursor != nil {
		addCondition("fiscal_year < $%d", *yq.Cursor)
	}
	if yq.ExactYear != nil {
		addCondition("fiscal_year = $%d", *yq.ExactYear)
	} else {
		if yq.FromYear != nil {
			addCondition("fiscal_year >= $%d", *yq.FromYear)
		}
		if yq.ToYear != nil {
			addCondition("fiscal_year <= $%d", *yq.ToYear)
		}
	}
	args = append(args, yq.Take)

	sql := fmt.Sprintf(
		`SELECT DISTINCT fiscal_year FROM budget_scenarios WHERE %s ORDER BY fiscal_year DESC LIMIT $%d`,
		strings.Join(conditions, " AND "), len(args))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var year int32
		if err := rows.Scan(&year); err != nil {
			return nil, err
		}
		years = append(years, int(year))
	}
	return years, rows.Err()
}

// ListWorkspaceIDs lists every workspace that owns at least one scenario
func (q *scenarioQueries) ListWorkspaceIDs(ctx context.Context) ([]int32, error) {
	rows, err := q.db.Query(ctx, `SELECT DISTINCT workspace_id FROM budget_scenarios ORDER BY workspace_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateScenario inserts a scenario. A duplicate (workspace, year, type) maps to ErrDuplicateScenario.
func (q *scenarioQueries) CreateScenario(ctx context.Context, s *domain.BudgetScenario) (*domain.BudgetScenario, error) {
	args, err := scenarioArgs(s)
	if err != nil {
		return nil, err
	}
	row := q.db.QueryRow(ctx,
		`INSERT INTO budget_scenarios (`+insertColumns+`)
		VALUES (`+placeholders(len(args))+`)
		RETURNING `+scenarioColumns,
		args...)
	created, err := scanScenario(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrDuplicateScenario
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScenarioCreateFailed
		}
		return nil, err
	}
	return created, nil
}

// UpsertScenario inserts a scenario or overwrites the allocation of the existing one.
// created_by and created_at of an existing row are preserved.
func (q *scenarioQueries) UpsertScenario(ctx context.Context, s *domain.BudgetScenario) (*domain.BudgetScenario, error) {
	args, err := scenarioArgs(s)
	if err != nil {
		return nil, err
	}
	updates := make([]string, 0, len(allocationColumns)+4)
	for _, col := range allocationColumns {
		updates = append(updates, col+" = EXCLUDED."+col)
	}
	updates = append(updates,
		"currency = EXCLUDED.currency",
		"description = EXCLUDED.description",
		"icon = EXCLUDED.icon",
		"updated_by = EXCLUDED.updated_by",
		"updated_at = NOW()",
	)

	row := q.db.QueryRow(ctx,
		`INSERT INTO budget_scenarios (`+insertColumns+`)
		VALUES (`+placeholders(len(args))+`)
		ON CONFLICT (workspace_id, fiscal_year, scenario_type) DO UPDATE SET `+strings.Join(updates, ", ")+`
		RETURNING `+scenarioColumns,
		args...)
	upserted, err := scanScenario(row)
	if err != nil {
		return nil, fmt.Errorf("upsert scenario: %w", err)
	}
	return upserted, nil
}

// CreateDetails bulk inserts detail rows for a scenario
func (q *scenarioQueries) CreateDetails(ctx context.Context, scenarioID int32, entries []*domain.BudgetDetailEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		amount, err := decimalToPgNumeric(e.Amount)
		if err != nil {
			return fmt.Errorf("invalid detail amount: %w", err)
		}
		rows = append(rows, []any{scenarioID, string(e.Kind), int32(e.Month), amount})
	}

	count, err := q.db.CopyFrom(ctx,
		pgx.Identifier{"budget_details"},
		[]string{"scenario_id", "kind", "month", "amount"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDetailsCreateFailed, err)
	}
	if count != int64(len(entries)) {
		return domain.ErrDetailsCreateFailed
	}
	return nil
}

// ReplaceDetails deletes the detail rows of a scenario and inserts entries
func (q *scenarioQueries) ReplaceDetails(ctx context.Context, scenarioID int32, entries []*domain.BudgetDetailEntry) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM budget_details WHERE scenario_id = $1`, scenarioID); err != nil {
		return fmt.Errorf("delete details: %w", err)
	}
	return q.CreateDetails(ctx, scenarioID, entries)
}

// Helper functions

var insertColumns = "workspace_id, fiscal_year, scenario_type, " +
	strings.Join(allocationColumns, ", ") +
	", currency, description, icon, created_by, updated_by"

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(p, ", ")
}

func allocationAmounts(a *domain.Allocation) []domain.PeriodAmount {
	amounts := make([]domain.PeriodAmount, 0, 19)
	amounts = append(amounts, a.Total)
	amounts = append(amounts, a.Halves[:]...)
	amounts = append(amounts, a.Quarters[:]...)
	amounts = append(amounts, a.Months[:]...)
	return amounts
}

func scenarioArgs(s *domain.BudgetScenario) ([]any, error) {
	args := []any{s.WorkspaceID, s.FiscalYear, string(s.ScenarioType)}
	for _, p := range allocationAmounts(&s.Allocation) {
		expense, err := decimalToPgNumeric(p.Expense)
		if err != nil {
			return nil, fmt.Errorf("invalid expense amount: %w", err)
		}
		income, err := decimalToPgNumeric(p.Income)
		if err != nil {
			return nil, fmt.Errorf("invalid income amount: %w", err)
		}
		args = append(args, expense, income)
	}
	updatedBy := s.UpdatedBy
	if updatedBy == "" {
		updatedBy = s.CreatedBy
	}
	return append(args, s.Currency, s.Description, s.Icon, s.CreatedBy, updatedBy), nil
}

func scanScenario(row pgx.Row) (*domain.BudgetScenario, error) {
	var (
		s            domain.BudgetScenario
		fiscalYear   int32
		scenarioType string
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
		numerics     = make([]pgtype.Numeric, len(allocationColumns))
	)

	dest := make([]any, 0, len(allocationColumns)+11)
	dest = append(dest, &s.ID, &s.WorkspaceID, &fiscalYear, &scenarioType)
	for i := range numerics {
		dest = append(dest, &numerics[i])
	}
	dest = append(dest, &s.Currency, &s.Description, &s.Icon, &s.CreatedBy, &s.UpdatedBy, &createdAt, &updatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	periods := make([]domain.PeriodAmount, len(numerics)/2)
	for i := range periods {
		periods[i] = domain.PeriodAmount{
			Expense: pgNumericToDecimal(numerics[2*i]),
			Income:  pgNumericToDecimal(numerics[2*i+1]),
		}
	}
	s.Total = periods[0]
	copy(s.Halves[:], periods[1:3])
	copy(s.Quarters[:], periods[3:7])
	copy(s.Months[:], periods[7:19])

	s.FiscalYear = int(fiscalYear)
	s.ScenarioType = domain.ScenarioType(scenarioType)
	s.Currency = strings.TrimSpace(s.Currency)
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	return &s, nil
}
