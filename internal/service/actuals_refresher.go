package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshConcurrency bounds how many fiscal years are refreshed at once
const DefaultRefreshConcurrency = 4

// ActualsRefresher recomputes the Act scenario from the ledger
type ActualsRefresher struct {
	store       domain.ScenarioStore
	ledger      domain.TransactionLedger
	aggregator  *ActualsAggregator
	publisher   websocket.EventPublisher
	concurrency int
}

// NewActualsRefresher creates a new ActualsRefresher
func NewActualsRefresher(
	store domain.ScenarioStore,
	ledger domain.TransactionLedger,
	aggregator *ActualsAggregator,
	publisher websocket.EventPublisher,
	concurrency int,
) *ActualsRefresher {
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &ActualsRefresher{
		store:       store,
		ledger:      ledger,
		aggregator:  aggregator,
		publisher:   publisher,
		concurrency: concurrency,
	}
}

// RefreshResult lists the fiscal years touched by a bulk refresh, ascending
type RefreshResult struct {
	Refreshed []int `json:"refreshed"`
	Skipped   []int `json:"skipped"`
}

// RefreshYear recomputes and upserts the Act scenario for one fiscal year.
// An existing Act keeps its currency, description, icon and creator; a missing
// one is created in the given currency.
func (r *ActualsRefresher) RefreshYear(ctx context.Context, workspaceID int32, fiscalYear int, currency, actor string) (*domain.BudgetScenario, error) {
	if fiscalYear < domain.MinFiscalYear || fiscalYear > domain.MaxFiscalYear {
		return nil, domain.ErrInvalidFiscalYear
	}
	if actor == "" {
		actor = domain.SystemActor
	}

	var refreshed *domain.BudgetScenario
	err := r.store.RunInTx(ctx, func(tx domain.ScenarioTx) error {
		existing, err := tx.GetScenario(ctx, workspaceID, fiscalYear, domain.ScenarioAct)
		if err != nil && !errors.Is(err, domain.ErrScenarioNotFound) {
			return err
		}

		scenario := &domain.BudgetScenario{
			WorkspaceID:  workspaceID,
			FiscalYear:   fiscalYear,
			ScenarioType: domain.ScenarioAct,
			Currency:     NormalizeCurrency(currency),
			CreatedBy:    actor,
		}
		if existing != nil {
			scenario.ID = existing.ID
			scenario.Currency = existing.Currency
			scenario.Description = existing.Description
			scenario.Icon = existing.Icon
			scenario.CreatedBy = existing.CreatedBy
		}
		scenario.UpdatedBy = actor

		scenario.Allocation, err = r.aggregator.Aggregate(ctx, workspaceID, fiscalYear, scenario.Currency)
		if err != nil {
			return err
		}

		refreshed, err = tx.UpsertScenario(ctx, scenario)
		if err != nil {
			return err
		}
		return tx.ReplaceDetails(ctx, refreshed.ID, domain.DetailEntriesFor(refreshed))
	})
	if err != nil {
		return nil, err
	}

	r.publisher.Publish(workspaceID, websocket.ActualsRefreshed(refreshed))
	return refreshed, nil
}

// RefreshAll refreshes the Act scenario of every fiscal year the ledger has
// activity in. Years without an Act scenario are skipped; a bulk refresh never
// creates scenarios. Each year runs in its own transaction, in parallel.
func (r *ActualsRefresher) RefreshAll(ctx context.Context, workspaceID int32, actor string) (*RefreshResult, error) {
	years, err := r.ledger.DistinctYears(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{Refreshed: []int{}, Skipped: []int{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, year := range years {
		g.Go(func() error {
			if year < domain.MinFiscalYear || year > domain.MaxFiscalYear {
				mu.Lock()
				result.Skipped = append(result.Skipped, year)
				mu.Unlock()
				return nil
			}
			act, err := r.store.GetScenario(gctx, workspaceID, year, domain.ScenarioAct)
			if errors.Is(err, domain.ErrScenarioNotFound) {
				mu.Lock()
				result.Skipped = append(result.Skipped, year)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := r.RefreshYear(gctx, workspaceID, year, act.Currency, actor); err != nil {
				return err
			}
			mu.Lock()
			result.Refreshed = append(result.Refreshed, year)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Ints(result.Refreshed)
	sort.Ints(result.Skipped)
	return result, nil
}
