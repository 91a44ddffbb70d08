package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/shopspring/decimal"
)

// SummaryService serves the multi-year annual budget rollup
type SummaryService struct {
	store         domain.ScenarioStore
	budgetService *BudgetService
	aggregator    *ActualsAggregator
	converter     domain.CurrencyConverter
	now           Clock
}

// NewSummaryService creates a new SummaryService
func NewSummaryService(
	store domain.ScenarioStore,
	budgetService *BudgetService,
	aggregator *ActualsAggregator,
	converter domain.CurrencyConverter,
) *SummaryService {
	return &SummaryService{
		store:         store,
		budgetService: budgetService,
		aggregator:    aggregator,
		converter:     converter,
		now:           time.Now,
	}
}

// SetClock overrides the time source
func (s *SummaryService) SetClock(now Clock) {
	s.now = now
}

// SummaryQuery holds the list parameters.
// Search, when set, must be a fiscal year and overrides the range filters.
type SummaryQuery struct {
	Cursor   *int
	Take     int
	Currency string
	Search   string
	Filters  domain.SummaryFilters
}

func (s *SummaryService) buildYearQuery(q SummaryQuery, currentYear int) (domain.YearQuery, error) {
	take := q.Take
	if take == 0 {
		take = domain.DefaultSummaryTake
	}
	if take < 0 || take > domain.MaxSummaryTake {
		return domain.YearQuery{}, domain.ErrInvalidPageSize
	}

	yq := domain.YearQuery{Cursor: q.Cursor, Take: take, MaxYear: currentYear}
	if search := strings.TrimSpace(q.Search); search != "" {
		year, err := strconv.Atoi(search)
		if err != nil {
			return domain.YearQuery{}, domain.ErrInvalidFiscalYear
		}
		yq.ExactYear = &year
		return yq, nil
	}

	if q.Filters.FromYear != nil && q.Filters.ToYear != nil && *q.Filters.FromYear > *q.Filters.ToYear {
		return domain.YearQuery{}, domain.ErrInvalidYearFilter
	}
	yq.FromYear = q.Filters.FromYear
	yq.ToYear = q.Filters.ToYear
	return yq, nil
}

// ListAnnualSummary bootstraps the current year's triad when missing, then
// returns one descending page of per-year Top/Bot/Act totals in the requested
// currency. Act totals include tentative activity that is not locked yet.
func (s *SummaryService) ListAnnualSummary(ctx context.Context, workspaceID int32, q SummaryQuery) (*domain.SummaryPage, error) {
	q.Currency = NormalizeCurrency(q.Currency)
	if !s.converter.Supports(q.Currency) {
		return nil, domain.ErrUnsupportedCurrency
	}
	currentYear := s.now().Year()
	yq, err := s.buildYearQuery(q, currentYear)
	if err != nil {
		return nil, err
	}

	// 1. Bootstrap
	if err := s.bootstrapCurrentYear(ctx, workspaceID, currentYear, q.Currency); err != nil {
		return nil, err
	}

	// 2. Page of fiscal years
	years, err := s.store.ListFiscalYears(ctx, workspaceID, yq)
	if err != nil {
		return nil, err
	}
	page := &domain.SummaryPage{Data: make([]*domain.AnnualBudgetSummary, 0, len(years))}
	if len(years) == 0 {
		return page, nil
	}

	// 3. Scenario totals in the display currency
	scenarios, err := s.store.GetScenariosByYears(ctx, workspaceID, years)
	if err != nil {
		return nil, err
	}
	byYear := make(map[int]map[domain.ScenarioType]domain.PeriodAmount, len(years))
	for _, sc := range scenarios {
		total, err := s.convertAmount(sc.Total, sc.Currency, q.Currency)
		if err != nil {
			return nil, err
		}
		if byYear[sc.FiscalYear] == nil {
			byYear[sc.FiscalYear] = make(map[domain.ScenarioType]domain.PeriodAmount, 3)
		}
		byYear[sc.FiscalYear][sc.ScenarioType] = total
	}

	// 4. Tentative overlay
	tentative, err := s.aggregator.TentativeTotals(ctx, workspaceID, q.Currency)
	if err != nil {
		return nil, err
	}

	for _, year := range years {
		top := amountOrZero(byYear[year], domain.ScenarioTop)
		bot := amountOrZero(byYear[year], domain.ScenarioBot)
		act := amountOrZero(byYear[year], domain.ScenarioAct).Add(tentativeFor(tentative, year))
		page.Data = append(page.Data, &domain.AnnualBudgetSummary{
			Year:       year,
			TopIncome:  top.Income,
			TopExpense: top.Expense,
			BotIncome:  bot.Income,
			BotExpense: bot.Expense,
			ActIncome:  act.Income,
			ActExpense: act.Expense,
		})
	}

	// 5. Keyset cursor
	if len(page.Data) == yq.Take {
		next := page.Data[len(page.Data)-1].Year
		page.NextCursor = &next
	}
	return page, nil
}

// bootstrapCurrentYear synthesizes the current year's triad from the most
// recent prior Top scenario, or from zero estimates when there is none.
func (s *SummaryService) bootstrapCurrentYear(ctx context.Context, workspaceID int32, currentYear int, currency string) error {
	count, err := s.store.CountByYear(ctx, workspaceID, currentYear)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	input := CreateBudgetInput{
		FiscalYear:            currentYear,
		EstimatedTotalExpense: decimal.Zero,
		EstimatedTotalIncome:  decimal.Zero,
		Currency:              currency,
		IsSystemGenerated:     true,
	}
	template, err := s.store.GetLatestBefore(ctx, workspaceID, currentYear, domain.ScenarioTop)
	switch {
	case err == nil:
		input.EstimatedTotalExpense = template.Total.Expense
		input.EstimatedTotalIncome = template.Total.Income
		input.Currency = template.Currency
		input.Description = template.Description
		input.Icon = template.Icon
	case errors.Is(err, domain.ErrTemplateNotFound):
	default:
		return err
	}

	_, err = s.budgetService.EnsureBudget(ctx, workspaceID, input)
	return err
}

func (s *SummaryService) convertAmount(p domain.PeriodAmount, from, to string) (domain.PeriodAmount, error) {
	expense, err := s.converter.Convert(p.Expense, from, to)
	if err != nil {
		return domain.PeriodAmount{}, err
	}
	income, err := s.converter.Convert(p.Income, from, to)
	if err != nil {
		return domain.PeriodAmount{}, err
	}
	return domain.PeriodAmount{Expense: expense, Income: income}, nil
}

func amountOrZero(m map[domain.ScenarioType]domain.PeriodAmount, t domain.ScenarioType) domain.PeriodAmount {
	if p, ok := m[t]; ok {
		return p
	}
	return zeroAmount()
}
