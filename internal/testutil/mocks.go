package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"github.com/shopspring/decimal"
)

type scenarioKey struct {
	workspaceID  int32
	fiscalYear   int
	scenarioType domain.ScenarioType
}

// scenarioState is the in-memory contents of a MockScenarioStore
type scenarioState struct {
	scenarios    map[scenarioKey]*domain.BudgetScenario
	details      map[int32][]*domain.BudgetDetailEntry
	nextID       int32
	nextDetailID int32
}

func newScenarioState() *scenarioState {
	return &scenarioState{
		scenarios:    make(map[scenarioKey]*domain.BudgetScenario),
		details:      make(map[int32][]*domain.BudgetDetailEntry),
		nextID:       1,
		nextDetailID: 1,
	}
}

func (s *scenarioState) clone() *scenarioState {
	c := &scenarioState{
		scenarios:    make(map[scenarioKey]*domain.BudgetScenario, len(s.scenarios)),
		details:      make(map[int32][]*domain.BudgetDetailEntry, len(s.details)),
		nextID:       s.nextID,
		nextDetailID: s.nextDetailID,
	}
	for k, v := range s.scenarios {
		c.scenarios[k] = copyScenario(v)
	}
	for id, entries := range s.details {
		c.details[id] = copyDetails(entries)
	}
	return c
}

func copyScenario(s *domain.BudgetScenario) *domain.BudgetScenario {
	c := *s
	return &c
}

func copyDetails(entries []*domain.BudgetDetailEntry) []*domain.BudgetDetailEntry {
	c := make([]*domain.BudgetDetailEntry, len(entries))
	for i, e := range entries {
		entry := *e
		c[i] = &entry
	}
	return c
}

// MockScenarioStore is an in-memory implementation of domain.ScenarioStore.
// Transactions run one at a time against a copy of the state that is only
// kept when the callback succeeds.
type MockScenarioStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state *scenarioState

	// CreateScenarioFn, when set, runs before each insert and aborts it on error
	CreateScenarioFn func(s *domain.BudgetScenario) error
	// CreateDetailsFn, when set, runs before each detail insert and aborts it on error
	CreateDetailsFn func(scenarioID int32, entries []*domain.BudgetDetailEntry) error
	// ListFiscalYearsErr is returned by ListFiscalYears when set
	ListFiscalYearsErr error

	Now func() time.Time
}

// NewMockScenarioStore creates a new MockScenarioStore
func NewMockScenarioStore() *MockScenarioStore {
	return &MockScenarioStore{
		state: newScenarioState(),
		Now:   time.Now,
	}
}

// AddScenario seeds a scenario without details and returns the stored copy
func (m *MockScenarioStore) AddScenario(s *domain.BudgetScenario) *domain.BudgetScenario {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockScenarioTx{store: m, state: m.state}
	created, err := tx.insert(s)
	if err != nil {
		panic(err)
	}
	return created
}

// ScenarioCount returns the number of stored scenarios across all workspaces
func (m *MockScenarioStore) ScenarioCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.scenarios)
}

// DetailCount returns the number of stored detail rows across all scenarios
func (m *MockScenarioStore) DetailCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entries := range m.state.details {
		n += len(entries)
	}
	return n
}

func (m *MockScenarioStore) read() *mockScenarioTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &mockScenarioTx{store: m, state: m.state.clone()}
}

// GetScenario retrieves one scenario
func (m *MockScenarioStore) GetScenario(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType) (*domain.BudgetScenario, error) {
	return m.read().GetScenario(ctx, workspaceID, fiscalYear, scenarioType)
}

// GetScenariosByYears retrieves every scenario for the given years
func (m *MockScenarioStore) GetScenariosByYears(ctx context.Context, workspaceID int32, years []int) ([]*domain.BudgetScenario, error) {
	return m.read().GetScenariosByYears(ctx, workspaceID, years)
}

// GetDetails retrieves the detail rows of a scenario ordered by month
func (m *MockScenarioStore) GetDetails(ctx context.Context, scenarioID int32) ([]*domain.BudgetDetailEntry, error) {
	return m.read().GetDetails(ctx, scenarioID)
}

// CountByYear counts scenarios for a year
func (m *MockScenarioStore) CountByYear(ctx context.Context, workspaceID int32, fiscalYear int) (int, error) {
	return m.read().CountByYear(ctx, workspaceID, fiscalYear)
}

// GetLatestBefore retrieves the most recent scenario of a type before fiscalYear
func (m *MockScenarioStore) GetLatestBefore(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType) (*domain.BudgetScenario, error) {
	return m.read().GetLatestBefore(ctx, workspaceID, fiscalYear, scenarioType)
}

// ListFiscalYears lists distinct fiscal years in descending order
func (m *MockScenarioStore) ListFiscalYears(ctx context.Context, workspaceID int32, q domain.YearQuery) ([]int, error) {
	return m.read().ListFiscalYears(ctx, workspaceID, q)
}

// ListWorkspaceIDs lists every workspace that owns a scenario
func (m *MockScenarioStore) ListWorkspaceIDs(ctx context.Context) ([]int32, error) {
	return m.read().ListWorkspaceIDs(ctx)
}

// RunInTx runs fn against a copy of the state and keeps it only on success
func (m *MockScenarioStore) RunInTx(ctx context.Context, fn func(tx domain.ScenarioTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(&mockScenarioTx{store: m, state: snapshot}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = snapshot
	m.mu.Unlock()
	return nil
}

// mockScenarioTx operates on a single scenarioState
type mockScenarioTx struct {
	store *MockScenarioStore
	state *scenarioState
}

func (t *mockScenarioTx) GetScenario(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType) (*domain.BudgetScenario, error) {
	s, ok := t.state.scenarios[scenarioKey{workspaceID, fiscalYear, scenarioType}]
	if !ok {
		return nil, domain.ErrScenarioNotFound
	}
	return copyScenario(s), nil
}

func (t *mockScenarioTx) GetScenariosByYears(ctx context.Context, workspaceID int32, years []int) ([]*domain.BudgetScenario, error) {
	wanted := make(map[int]bool, len(years))
	for _, y := range years {
		wanted[y] = true
	}
	var result []*domain.BudgetScenario
	for k, s := range t.state.scenarios {
		if k.workspaceID == workspaceID && wanted[k.fiscalYear] {
			result = append(result, copyScenario(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FiscalYear != result[j].FiscalYear {
			return result[i].FiscalYear > result[j].FiscalYear
		}
		return result[i].ScenarioType < result[j].ScenarioType
	})
	return result, nil
}

func (t *mockScenarioTx) GetDetails(ctx context.Context, scenarioID int32) ([]*domain.BudgetDetailEntry, error) {
	entries := copyDetails(t.state.details[scenarioID])
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Month != entries[j].Month {
			return entries[i].Month < entries[j].Month
		}
		return entries[i].Kind < entries[j].Kind
	})
	return entries, nil
}

func (t *mockScenarioTx) CountByYear(ctx context.Context, workspaceID int32, fiscalYear int) (int, error) {
	count := 0
	for k := range t.state.scenarios {
		if k.workspaceID == workspaceID && k.fiscalYear == fiscalYear {
			count++
		}
	}
	return count, nil
}

func (t *mockScenarioTx) GetLatestBefore(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType) (*domain.BudgetScenario, error) {
	var latest *domain.BudgetScenario
	for k, s := range t.state.scenarios {
		if k.workspaceID != workspaceID || k.scenarioType != scenarioType || k.fiscalYear >= fiscalYear {
			continue
		}
		if latest == nil || s.FiscalYear > latest.FiscalYear {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrTemplateNotFound
	}
	return copyScenario(latest), nil
}

func (t *mockScenarioTx) ListFiscalYears(ctx context.Context, workspaceID int32, q domain.YearQuery) ([]int, error) {
	if t.store.ListFiscalYearsErr != nil {
		return nil, t.store.ListFiscalYearsErr
	}
	seen := make(map[int]bool)
	for k := range t.state.scenarios {
		y := k.fiscalYear
		if k.workspaceID != workspaceID || y > q.MaxYear {
			continue
		}
		if q.Cursor != nil && y >= *q.Cursor {
			continue
		}
		if q.ExactYear != nil {
			if y != *q.ExactYear {
				continue
			}
		} else {
			if q.FromYear != nil && y < *q.FromYear {
				continue
			}
			if q.ToYear != nil && y > *q.ToYear {
				continue
			}
		}
		seen[y] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	if q.Take > 0 && len(years) > q.Take {
		years = years[:q.Take]
	}
	return years, nil
}

func (t *mockScenarioTx) ListWorkspaceIDs(ctx context.Context) ([]int32, error) {
	seen := make(map[int32]bool)
	for k := range t.state.scenarios {
		seen[k.workspaceID] = true
	}
	ids := make([]int32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *mockScenarioTx) CreateScenario(ctx context.Context, s *domain.BudgetScenario) (*domain.BudgetScenario, error) {
	if t.store.CreateScenarioFn != nil {
		if err := t.store.CreateScenarioFn(s); err != nil {
			return nil, err
		}
	}
	return t.insert(s)
}

func (t *mockScenarioTx) insert(s *domain.BudgetScenario) (*domain.BudgetScenario, error) {
	key := scenarioKey{s.WorkspaceID, s.FiscalYear, s.ScenarioType}
	if _, exists := t.state.scenarios[key]; exists {
		return nil, domain.ErrDuplicateScenario
	}
	stored := copyScenario(s)
	stored.ID = t.state.nextID
	t.state.nextID++
	now := t.store.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.UpdatedBy == "" {
		stored.UpdatedBy = stored.CreatedBy
	}
	t.state.scenarios[key] = stored
	return copyScenario(stored), nil
}

func (t *mockScenarioTx) UpsertScenario(ctx context.Context, s *domain.BudgetScenario) (*domain.BudgetScenario, error) {
	key := scenarioKey{s.WorkspaceID, s.FiscalYear, s.ScenarioType}
	existing, ok := t.state.scenarios[key]
	if !ok {
		return t.insert(s)
	}
	stored := copyScenario(s)
	stored.ID = existing.ID
	stored.CreatedBy = existing.CreatedBy
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = t.store.Now()
	if stored.UpdatedBy == "" {
		stored.UpdatedBy = stored.CreatedBy
	}
	t.state.scenarios[key] = stored
	return copyScenario(stored), nil
}

func (t *mockScenarioTx) CreateDetails(ctx context.Context, scenarioID int32, entries []*domain.BudgetDetailEntry) error {
	if t.store.CreateDetailsFn != nil {
		if err := t.store.CreateDetailsFn(scenarioID, entries); err != nil {
			return err
		}
	}
	now := t.store.Now()
	for _, e := range entries {
		entry := *e
		entry.ID = t.state.nextDetailID
		t.state.nextDetailID++
		entry.ScenarioID = scenarioID
		entry.CreatedAt = now
		t.state.details[scenarioID] = append(t.state.details[scenarioID], &entry)
	}
	return nil
}

func (t *mockScenarioTx) ReplaceDetails(ctx context.Context, scenarioID int32, entries []*domain.BudgetDetailEntry) error {
	delete(t.state.details, scenarioID)
	return t.CreateDetails(ctx, scenarioID, entries)
}

// MockTransactionLedger is an in-memory implementation of domain.TransactionLedger
type MockTransactionLedger struct {
	mu      sync.Mutex
	records []*domain.TransactionRecord
	nextID  int32

	// FindManyErr is returned by FindMany and SumByYearAndCurrency when set
	FindManyErr error
	// Queries records every range passed to FindMany
	Queries []domain.DateRange
}

// NewMockTransactionLedger creates a new MockTransactionLedger
func NewMockTransactionLedger() *MockTransactionLedger {
	return &MockTransactionLedger{nextID: 1}
}

// AddTransaction records a transaction dated on the given day (YYYY-MM-DD)
func (m *MockTransactionLedger) AddTransaction(workspaceID int32, txType domain.TransactionType, amount, currency, date string) *domain.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	rec := &domain.TransactionRecord{
		ID:              m.nextID,
		WorkspaceID:     workspaceID,
		Type:            txType,
		Amount:          decimal.RequireFromString(amount),
		Currency:        currency,
		TransactionDate: d,
	}
	m.nextID++
	m.records = append(m.records, rec)
	return rec
}

// SoftDelete marks a transaction as deleted
func (m *MockTransactionLedger) SoftDelete(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			now := time.Now()
			r.DeletedAt = &now
		}
	}
}

func (m *MockTransactionLedger) matching(workspaceID int32, r domain.DateRange, types []domain.TransactionType) []*domain.TransactionRecord {
	var result []*domain.TransactionRecord
	for _, rec := range m.records {
		if rec.WorkspaceID != workspaceID || rec.DeletedAt != nil || !r.Contains(rec.TransactionDate) {
			continue
		}
		for _, t := range types {
			if rec.Type == t {
				c := *rec
				result = append(result, &c)
				break
			}
		}
	}
	return result
}

// FindMany retrieves non-deleted transactions of the given types dated inside r
func (m *MockTransactionLedger) FindMany(ctx context.Context, workspaceID int32, r domain.DateRange, types []domain.TransactionType) ([]*domain.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindManyErr != nil {
		return nil, m.FindManyErr
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	m.Queries = append(m.Queries, r)
	return m.matching(workspaceID, r, types), nil
}

// SumByYearAndCurrency sums income and expense grouped by year and currency
func (m *MockTransactionLedger) SumByYearAndCurrency(ctx context.Context, workspaceID int32, r domain.DateRange) ([]*domain.YearCurrencyTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindManyErr != nil {
		return nil, m.FindManyErr
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	type groupKey struct {
		year     int
		currency string
	}
	groups := make(map[groupKey]*domain.YearCurrencyTotal)
	for _, rec := range m.matching(workspaceID, r, domain.BudgetedTypes) {
		k := groupKey{rec.TransactionDate.Year(), rec.Currency}
		g, ok := groups[k]
		if !ok {
			g = &domain.YearCurrencyTotal{Year: k.year, Currency: k.currency, Income: decimal.Zero, Expense: decimal.Zero}
			groups[k] = g
		}
		if rec.Type == domain.TransactionTypeIncome {
			g.Income = g.Income.Add(rec.Amount)
		} else {
			g.Expense = g.Expense.Add(rec.Amount)
		}
	}

	result := make([]*domain.YearCurrencyTotal, 0, len(groups))
	for _, g := range groups {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Currency < result[j].Currency
	})
	return result, nil
}

// DistinctYears lists every year with a non-deleted transaction
func (m *MockTransactionLedger) DistinctYears(ctx context.Context, workspaceID int32) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int]bool)
	for _, rec := range m.records {
		if rec.WorkspaceID == workspaceID && rec.DeletedAt == nil {
			seen[rec.TransactionDate.Year()] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// PublishedEvent is an event captured by RecordingPublisher
type PublishedEvent struct {
	WorkspaceID int32
	Event       websocket.Event
}

// RecordingPublisher captures published websocket events
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// Publish records the event
func (p *RecordingPublisher) Publish(workspaceID int32, event websocket.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{WorkspaceID: workspaceID, Event: event})
}

// Events returns the recorded events in publish order
func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}
