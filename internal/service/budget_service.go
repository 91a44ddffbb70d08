package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"github.com/shopspring/decimal"
)

// BudgetService creates budget triads and serves single scenarios
type BudgetService struct {
	store      domain.ScenarioStore
	aggregator *ActualsAggregator
	converter  domain.CurrencyConverter
	publisher  websocket.EventPublisher
}

// NewBudgetService creates a new BudgetService
func NewBudgetService(
	store domain.ScenarioStore,
	aggregator *ActualsAggregator,
	converter domain.CurrencyConverter,
	publisher websocket.EventPublisher,
) *BudgetService {
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &BudgetService{
		store:      store,
		aggregator: aggregator,
		converter:  converter,
		publisher:  publisher,
	}
}

// CreateBudgetInput holds the estimate used for the Top and Bot scenarios
type CreateBudgetInput struct {
	FiscalYear            int
	EstimatedTotalExpense decimal.Decimal
	EstimatedTotalIncome  decimal.Decimal
	Description           string
	Icon                  string
	Currency              string
	IsSystemGenerated     bool
	Actor                 string
}

func (s *BudgetService) validate(input *CreateBudgetInput) error {
	if input.FiscalYear < domain.MinFiscalYear || input.FiscalYear > domain.MaxFiscalYear {
		return domain.ErrInvalidFiscalYear
	}
	if input.EstimatedTotalExpense.IsNegative() || input.EstimatedTotalIncome.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if len(input.Description) > domain.MaxDescriptionLength {
		return domain.ErrDescriptionTooLong
	}
	input.Currency = NormalizeCurrency(input.Currency)
	if !s.converter.Supports(input.Currency) {
		return domain.ErrUnsupportedCurrency
	}
	if input.IsSystemGenerated || input.Actor == "" {
		input.Actor = domain.SystemActor
	}
	return nil
}

// CreateBudget atomically creates the Top, Bot and Act scenarios for a fiscal
// year, each with its 24 detail rows. Nothing is written unless all of it is.
func (s *BudgetService) CreateBudget(ctx context.Context, workspaceID int32, input CreateBudgetInput) (*domain.BudgetTriad, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	estimate := AllocateEvenly(input.EstimatedTotalExpense, input.EstimatedTotalIncome)
	triad := &domain.BudgetTriad{}

	err := s.store.RunInTx(ctx, func(tx domain.ScenarioTx) error {
		// 1. Reject when any scenario already exists for the year
		count, err := tx.CountByYear(ctx, workspaceID, input.FiscalYear)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrDuplicateScenario
		}

		// 2. Actuals from the ledger
		actuals, err := s.aggregator.Aggregate(ctx, workspaceID, input.FiscalYear, input.Currency)
		if err != nil {
			return err
		}

		// 3. Persist each scenario followed by its detail rows
		for _, scenarioType := range domain.ScenarioTypes {
			alloc := estimate
			if scenarioType == domain.ScenarioAct {
				alloc = actuals
			}
			created, err := createScenarioWithDetails(ctx, tx, &domain.BudgetScenario{
				WorkspaceID:  workspaceID,
				FiscalYear:   input.FiscalYear,
				ScenarioType: scenarioType,
				Allocation:   alloc,
				Currency:     input.Currency,
				Description:  input.Description,
				Icon:         input.Icon,
				CreatedBy:    input.Actor,
				UpdatedBy:    input.Actor,
			})
			if err != nil {
				return err
			}
			switch scenarioType {
			case domain.ScenarioTop:
				triad.Top = created
			case domain.ScenarioBot:
				triad.Bot = created
			case domain.ScenarioAct:
				triad.Act = created
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(workspaceID, websocket.BudgetCreated(triad))
	return triad, nil
}

// EnsureBudget creates the triad unless another request already did.
// A duplicate is reported as created=false with no error.
func (s *BudgetService) EnsureBudget(ctx context.Context, workspaceID int32, input CreateBudgetInput) (created bool, err error) {
	if _, err := s.CreateBudget(ctx, workspaceID, input); err != nil {
		if errors.Is(err, domain.ErrDuplicateScenario) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func createScenarioWithDetails(ctx context.Context, tx domain.ScenarioTx, scenario *domain.BudgetScenario) (*domain.BudgetScenario, error) {
	created, err := tx.CreateScenario(ctx, scenario)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateScenario) || errors.Is(err, domain.ErrScenarioCreateFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s scenario: %w", domain.ErrScenarioCreateFailed, scenario.ScenarioType, err)
	}
	if err := tx.CreateDetails(ctx, created.ID, domain.DetailEntriesFor(created)); err != nil {
		if errors.Is(err, domain.ErrDetailsCreateFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s scenario: %w", domain.ErrDetailsCreateFailed, scenario.ScenarioType, err)
	}
	return created, nil
}

// ScenarioView is a scenario with its detail rows.
// Live is set when tentative activity was added to an Act scenario's totals.
type ScenarioView struct {
	Scenario  *domain.BudgetScenario      `json:"scenario"`
	Details   []*domain.BudgetDetailEntry `json:"details"`
	Live      bool                        `json:"live"`
	Tentative *domain.PeriodAmount        `json:"tentative,omitempty"`
}

// GetScenario returns one scenario. With live set on an Act scenario the
// tentative (not yet locked) activity is folded into each month and the
// allocation is rebuilt from those months. Storage is not touched.
func (s *BudgetService) GetScenario(ctx context.Context, workspaceID int32, fiscalYear int, scenarioType domain.ScenarioType, live bool) (*ScenarioView, error) {
	if fiscalYear < domain.MinFiscalYear || fiscalYear > domain.MaxFiscalYear {
		return nil, domain.ErrInvalidFiscalYear
	}
	scenario, err := s.store.GetScenario(ctx, workspaceID, fiscalYear, scenarioType)
	if err != nil {
		return nil, err
	}
	details, err := s.store.GetDetails(ctx, scenario.ID)
	if err != nil {
		return nil, err
	}

	view := &ScenarioView{Scenario: scenario, Details: details}
	if !live || scenarioType != domain.ScenarioAct {
		return view, nil
	}

	recent, err := s.aggregator.TentativeMonths(ctx, workspaceID, fiscalYear, scenario.Currency)
	if err != nil {
		return nil, err
	}
	months := scenario.Months
	for i := range months {
		months[i] = months[i].Add(recent[i])
	}
	tentative := AllocateFromMonths(recent).Total

	augmented := *scenario
	augmented.Allocation = AllocateFromMonths(months)
	view.Scenario = &augmented
	view.Live = true
	view.Tentative = &tentative
	return view, nil
}

// ActualsSnapshot returns the stored Act scenarios a new event subscriber
// starts from, ordered by fiscal year. Without years it picks the latest
// fiscal year up to the current one.
func (s *BudgetService) ActualsSnapshot(ctx context.Context, workspaceID int32, years []int) ([]*domain.BudgetScenario, error) {
	if len(years) == 0 {
		latest, err := s.store.ListFiscalYears(ctx, workspaceID, domain.YearQuery{Take: 1, MaxYear: s.aggregator.now().Year()})
		if err != nil {
			return nil, fmt.Errorf("find latest fiscal year: %w", err)
		}
		years = latest
	}

	acts := make([]*domain.BudgetScenario, 0, len(years))
	if len(years) == 0 {
		return acts, nil
	}
	scenarios, err := s.store.GetScenariosByYears(ctx, workspaceID, years)
	if err != nil {
		return nil, err
	}
	for _, sc := range scenarios {
		if sc.ScenarioType == domain.ScenarioAct {
			acts = append(acts, sc)
		}
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].FiscalYear < acts[j].FiscalYear })
	return acts, nil
}
