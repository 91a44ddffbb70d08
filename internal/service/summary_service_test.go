package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSummaryService(t *testing.T, now string) (*SummaryService, *budgetFixture) {
	t.Helper()
	f := setupBudgetService(t, now)
	svc := NewSummaryService(f.store, f.service, f.aggregator, newTestConverter(t))
	svc.SetClock(fixedClock(now))
	return svc, f
}

func seedYears(t *testing.T, f *budgetFixture, years ...int) {
	t.Helper()
	for _, y := range years {
		_, err := f.service.CreateBudget(context.Background(), 1, validInput(y))
		require.NoError(t, err)
	}
}

func pageYears(page *domain.SummaryPage) []int {
	years := make([]int, len(page.Data))
	for i, s := range page.Data {
		years[i] = s.Year
	}
	return years
}

func TestListAnnualSummary_BootstrapsFromLatestTop(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2023)
	ctx := context.Background()

	page, err := svc.ListAnnualSummary(ctx, 1, SummaryQuery{Currency: "USD"})

	require.NoError(t, err)
	assert.Equal(t, []int{2025, 2023}, pageYears(page))
	assertDecimal(t, "120000", page.Data[0].TopExpense)
	assertDecimal(t, "240000", page.Data[0].BotIncome)

	top, err := f.store.GetScenario(ctx, 1, 2025, domain.ScenarioTop)
	require.NoError(t, err)
	assert.Equal(t, domain.SystemActor, top.CreatedBy)
	assert.Equal(t, "Household", top.Description)
	assert.Equal(t, 6, f.store.ScenarioCount())
}

func TestListAnnualSummary_BootstrapWithoutTemplate(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")

	page, err := svc.ListAnnualSummary(context.Background(), 1, SummaryQuery{Currency: "EUR"})

	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 2025, page.Data[0].Year)
	assert.True(t, page.Data[0].TopExpense.IsZero())
	assert.Nil(t, page.NextCursor)

	act, err := f.store.GetScenario(context.Background(), 1, 2025, domain.ScenarioAct)
	require.NoError(t, err)
	assert.Equal(t, "EUR", act.Currency)
}

func TestListAnnualSummary_BootstrapRunsOnce(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	ctx := context.Background()

	_, err := svc.ListAnnualSummary(ctx, 1, SummaryQuery{Currency: "USD"})
	require.NoError(t, err)
	_, err = svc.ListAnnualSummary(ctx, 1, SummaryQuery{Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, 3, f.store.ScenarioCount())
}

func TestListAnnualSummary_PaginationIsComplete(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2016, 2017, 2018, 2019, 2020, 2021, 2022, 2023, 2024)
	ctx := context.Background()

	var all []int
	var cursor *int
	for pages := 0; pages < 10; pages++ {
		page, err := svc.ListAnnualSummary(ctx, 1, SummaryQuery{Currency: "USD", Take: 4, Cursor: cursor})
		require.NoError(t, err)
		all = append(all, pageYears(page)...)
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []int{2025, 2024, 2023, 2022, 2021, 2020, 2019, 2018, 2017, 2016}, all)
}

func TestListAnnualSummary_FullLastPageHasCursor(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2024)
	ctx := context.Background()

	page, err := svc.ListAnnualSummary(ctx, 1, SummaryQuery{Currency: "USD", Take: 2})
	require.NoError(t, err)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, 2024, *page.NextCursor)

	next, err := svc.ListAnnualSummary(ctx, 1, SummaryQuery{Currency: "USD", Take: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Empty(t, next.Data)
	assert.Nil(t, next.NextCursor)
}

func TestListAnnualSummary_ExcludesFutureYears(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2027, 2024)

	page, err := svc.ListAnnualSummary(context.Background(), 1, SummaryQuery{Currency: "USD"})

	require.NoError(t, err)
	assert.Equal(t, []int{2025, 2024}, pageYears(page))
}

func TestListAnnualSummary_SearchAndFilters(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2020, 2021, 2022, 2023, 2024)
	ctx := context.Background()
	from, to := 2021, 2023

	page, err := svc.ListAnnualSummary(ctx, 1, SummaryQuery{
		Currency: "USD",
		Filters:  domain.SummaryFilters{FromYear: &from, ToYear: &to},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2022, 2021}, pageYears(page))

	// search overrides the range filters
	page, err = svc.ListAnnualSummary(ctx, 1, SummaryQuery{
		Currency: "USD",
		Search:   " 2020 ",
		Filters:  domain.SummaryFilters{FromYear: &from, ToYear: &to},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2020}, pageYears(page))
}

func TestListAnnualSummary_ConvertsToDisplayCurrency(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2024)

	page, err := svc.ListAnnualSummary(context.Background(), 1, SummaryQuery{Currency: "eur"})

	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assertDecimal(t, "60000", page.Data[1].TopExpense)
	assertDecimal(t, "120000", page.Data[1].BotIncome)
}

func TestListAnnualSummary_TentativeOverlay(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	f.ledger.AddTransaction(1, domain.TransactionTypeExpense, "25", "USD", "2025-02-20")
	f.ledger.AddTransaction(1, domain.TransactionTypeIncome, "5", "EUR", "2025-03-01")

	page, err := svc.ListAnnualSummary(context.Background(), 1, SummaryQuery{Currency: "USD"})

	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assertDecimal(t, "25", page.Data[0].ActExpense)
	assertDecimal(t, "10", page.Data[0].ActIncome)
	assert.True(t, page.Data[0].TopExpense.IsZero())

	act, err := f.store.GetScenario(context.Background(), 1, 2025, domain.ScenarioAct)
	require.NoError(t, err)
	assert.True(t, act.Total.Expense.IsZero(), "overlay is never persisted")
}

func TestListAnnualSummary_Validation(t *testing.T) {
	tests := []struct {
		name     string
		query    SummaryQuery
		expected error
	}{
		{"unsupported currency", SummaryQuery{Currency: "JPY"}, domain.ErrUnsupportedCurrency},
		{"negative take", SummaryQuery{Currency: "USD", Take: -1}, domain.ErrInvalidPageSize},
		{"take too large", SummaryQuery{Currency: "USD", Take: 51}, domain.ErrInvalidPageSize},
		{"non numeric search", SummaryQuery{Currency: "USD", Search: "twenty"}, domain.ErrInvalidFiscalYear},
		{"inverted range", SummaryQuery{Currency: "USD", Filters: domain.SummaryFilters{FromYear: intPtr(2024), ToYear: intPtr(2020)}}, domain.ErrInvalidYearFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := setupSummaryService(t, "2025-03-15")

			_, err := svc.ListAnnualSummary(context.Background(), 1, tt.query)

			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
			assert.Equal(t, 0, f.store.ScenarioCount(), "invalid queries do not bootstrap")
		})
	}
}

func TestListAnnualSummary_DefaultTake(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	seedYears(t, f, 2010, 2011, 2012, 2013, 2014, 2015, 2016, 2017, 2018, 2019, 2020, 2021)

	page, err := svc.ListAnnualSummary(context.Background(), 1, SummaryQuery{Currency: "USD"})

	require.NoError(t, err)
	assert.Len(t, page.Data, domain.DefaultSummaryTake)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, 2013, *page.NextCursor)
}

func TestListAnnualSummary_StoreFailure(t *testing.T) {
	svc, f := setupSummaryService(t, "2025-03-15")
	f.store.ListFiscalYearsErr = errors.New("timeout")

	_, err := svc.ListAnnualSummary(context.Background(), 1, SummaryQuery{Currency: "USD"})

	assert.Error(t, err)
}

func intPtr(v int) *int {
	return &v
}
