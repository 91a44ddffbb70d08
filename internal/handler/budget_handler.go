package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/storage"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// BudgetHandler handles annual budget HTTP requests
type BudgetHandler struct {
	budgetService   *service.BudgetService
	summaryService  *service.SummaryService
	refresher       *service.ActualsRefresher
	iconService     *service.IconService
	defaultCurrency string
}

// NewBudgetHandler creates a new BudgetHandler
func NewBudgetHandler(
	budgetService *service.BudgetService,
	summaryService *service.SummaryService,
	refresher *service.ActualsRefresher,
	iconService *service.IconService,
	defaultCurrency string,
) *BudgetHandler {
	return &BudgetHandler{
		budgetService:   budgetService,
		summaryService:  summaryService,
		refresher:       refresher,
		iconService:     iconService,
		defaultCurrency: defaultCurrency,
	}
}

// CreateBudgetRequest represents the create budget request body
type CreateBudgetRequest struct {
	FiscalYear            int    `json:"fiscalYear"`
	EstimatedTotalExpense string `json:"estimatedTotalExpense"`
	EstimatedTotalIncome  string `json:"estimatedTotalIncome"`
	Description           string `json:"description"`
	Icon                  string `json:"icon"`
	Currency              string `json:"currency"`
}

// PeriodAmountResponse represents an expense/income pair
type PeriodAmountResponse struct {
	Expense string `json:"expense"`
	Income  string `json:"income"`
}

// AllocationResponse represents a scenario's breakdown by period
type AllocationResponse struct {
	Total    PeriodAmountResponse   `json:"total"`
	Halves   []PeriodAmountResponse `json:"halves"`
	Quarters []PeriodAmountResponse `json:"quarters"`
	Months   []PeriodAmountResponse `json:"months"`
}

// ScenarioResponse represents a budget scenario in API responses
type ScenarioResponse struct {
	ID           int32              `json:"id"`
	FiscalYear   int                `json:"fiscalYear"`
	ScenarioType string             `json:"scenarioType"`
	Currency     string             `json:"currency"`
	Description  string             `json:"description"`
	Icon         string             `json:"icon"`
	Allocation   AllocationResponse `json:"allocation"`
	CreatedBy    string             `json:"createdBy"`
	UpdatedBy    string             `json:"updatedBy"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt"`
}

// BudgetTriadResponse represents the three scenarios created for a year
type BudgetTriadResponse struct {
	Top ScenarioResponse `json:"top"`
	Bot ScenarioResponse `json:"bot"`
	Act ScenarioResponse `json:"act"`
}

// DetailResponse represents a single monthly detail row
type DetailResponse struct {
	Kind   string `json:"kind"`
	Month  int    `json:"month"`
	Amount string `json:"amount"`
}

// ScenarioDetailResponse represents a scenario read with its detail rows
type ScenarioDetailResponse struct {
	Scenario  ScenarioResponse      `json:"scenario"`
	Details   []DetailResponse      `json:"details"`
	Live      bool                  `json:"live"`
	Tentative *PeriodAmountResponse `json:"tentative,omitempty"`
}

// AnnualSummaryResponse represents one year of the annual summary
type AnnualSummaryResponse struct {
	Year       int    `json:"year"`
	TopIncome  string `json:"topIncome"`
	TopExpense string `json:"topExpense"`
	BotIncome  string `json:"botIncome"`
	BotExpense string `json:"botExpense"`
	ActIncome  string `json:"actIncome"`
	ActExpense string `json:"actExpense"`
}

// SummaryPageResponse represents one page of the annual summary
type SummaryPageResponse struct {
	Data       []AnnualSummaryResponse `json:"data"`
	NextCursor *int                    `json:"nextCursor"`
	Currency   string                  `json:"currency"`
}

// IconUploadResponse represents a stored icon
type IconUploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// CreateBudget handles POST /api/v1/budgets
func (h *BudgetHandler) CreateBudget(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	var req CreateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	expense, err := decimal.NewFromString(req.EstimatedTotalExpense)
	if err != nil {
		return NewValidationError(c, "Invalid amount format", []ValidationError{
			{Field: "estimatedTotalExpense", Message: "Must be a valid decimal number"},
		})
	}
	income, err := decimal.NewFromString(req.EstimatedTotalIncome)
	if err != nil {
		return NewValidationError(c, "Invalid amount format", []ValidationError{
			{Field: "estimatedTotalIncome", Message: "Must be a valid decimal number"},
		})
	}

	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}

	triad, err := h.budgetService.CreateBudget(c.Request().Context(), workspaceID, service.CreateBudgetInput{
		FiscalYear:            req.FiscalYear,
		EstimatedTotalExpense: expense,
		EstimatedTotalIncome:  income,
		Description:           req.Description,
		Icon:                  req.Icon,
		Currency:              currency,
		Actor:                 middleware.GetAuth0ID(c),
	})
	if err != nil {
		return NewDomainError(c, err, "Failed to create budget")
	}

	log.Info().Int32("workspace_id", workspaceID).Int("fiscal_year", req.FiscalYear).Msg("Budget created")

	return c.JSON(http.StatusCreated, BudgetTriadResponse{
		Top: toScenarioResponse(triad.Top),
		Bot: toScenarioResponse(triad.Bot),
		Act: toScenarioResponse(triad.Act),
	})
}

// GetSummary handles GET /api/v1/budgets/summary
func (h *BudgetHandler) GetSummary(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	q := service.SummaryQuery{
		Currency: c.QueryParam("currency"),
		Search:   c.QueryParam("search"),
	}
	if q.Currency == "" {
		q.Currency = h.defaultCurrency
	}

	var fieldErrors []ValidationError
	var err error
	if q.Cursor, err = optionalIntParam(c, "cursor"); err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "cursor", Message: "Must be a year"})
	}
	if q.Filters.FromYear, err = optionalIntParam(c, "fromYear"); err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "fromYear", Message: "Must be a year"})
	}
	if q.Filters.ToYear, err = optionalIntParam(c, "toYear"); err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "toYear", Message: "Must be a year"})
	}
	take, err := optionalIntParam(c, "take")
	if err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "take", Message: "Must be an integer"})
	} else if take != nil {
		q.Take = *take
	}
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Invalid query parameters", fieldErrors)
	}

	page, err := h.summaryService.ListAnnualSummary(c.Request().Context(), workspaceID, q)
	if err != nil {
		return NewDomainError(c, err, "Failed to get budget summary")
	}

	resp := SummaryPageResponse{
		Data:       make([]AnnualSummaryResponse, len(page.Data)),
		NextCursor: page.NextCursor,
		Currency:   service.NormalizeCurrency(q.Currency),
	}
	for i, s := range page.Data {
		resp.Data[i] = AnnualSummaryResponse{
			Year:       s.Year,
			TopIncome:  s.TopIncome.StringFixed(2),
			TopExpense: s.TopExpense.StringFixed(2),
			BotIncome:  s.BotIncome.StringFixed(2),
			BotExpense: s.BotExpense.StringFixed(2),
			ActIncome:  s.ActIncome.StringFixed(2),
			ActExpense: s.ActExpense.StringFixed(2),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetScenario handles GET /api/v1/budgets/:year/:type
func (h *BudgetHandler) GetScenario(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return NewValidationError(c, "Invalid year", nil)
	}
	scenarioType, err := domain.ParseScenarioType(c.Param("type"))
	if err != nil {
		return NewValidationError(c, "Invalid scenario type", []ValidationError{
			{Field: "type", Message: "Must be one of: top, bot, act"},
		})
	}
	live := false
	if raw := c.QueryParam("live"); raw != "" {
		if live, err = strconv.ParseBool(raw); err != nil {
			return NewValidationError(c, "Invalid live flag", nil)
		}
	}

	view, err := h.budgetService.GetScenario(c.Request().Context(), workspaceID, year, scenarioType, live)
	if err != nil {
		return NewDomainError(c, err, "Failed to get budget scenario")
	}

	resp := ScenarioDetailResponse{
		Scenario: toScenarioResponse(view.Scenario),
		Details:  make([]DetailResponse, len(view.Details)),
		Live:     view.Live,
	}
	for i, d := range view.Details {
		resp.Details[i] = DetailResponse{Kind: string(d.Kind), Month: d.Month, Amount: d.Amount.StringFixed(2)}
	}
	if view.Tentative != nil {
		tentative := toPeriodAmountResponse(*view.Tentative)
		resp.Tentative = &tentative
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshYear handles POST /api/v1/budgets/:year/refresh
func (h *BudgetHandler) RefreshYear(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return NewValidationError(c, "Invalid year", nil)
	}
	currency := c.QueryParam("currency")
	if currency == "" {
		currency = h.defaultCurrency
	}

	scenario, err := h.refresher.RefreshYear(c.Request().Context(), workspaceID, year, currency, middleware.GetAuth0ID(c))
	if err != nil {
		return NewDomainError(c, err, "Failed to refresh actuals")
	}
	return c.JSON(http.StatusOK, toScenarioResponse(scenario))
}

// RefreshAll handles POST /api/v1/budgets/refresh
func (h *BudgetHandler) RefreshAll(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	result, err := h.refresher.RefreshAll(c.Request().Context(), workspaceID, middleware.GetAuth0ID(c))
	if err != nil {
		return NewDomainError(c, err, "Failed to refresh actuals")
	}

	log.Info().
		Int32("workspace_id", workspaceID).
		Ints("refreshed", result.Refreshed).
		Ints("skipped", result.Skipped).
		Msg("Actuals refreshed")
	return c.JSON(http.StatusOK, result)
}

// UploadIcon handles POST /api/v1/budgets/icons
func (h *BudgetHandler) UploadIcon(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	if !h.iconService.IsEnabled() {
		return NewServiceUnavailableError(c, "Icon uploads are disabled (storage not configured)")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}
	if file.Size > service.MaxIconSize {
		return NewValidationError(c, service.ErrIconTooLarge.Error(), nil)
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, service.MaxIconSize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to process file")
	}

	ctx := c.Request().Context()
	key, err := h.iconService.Upload(ctx, workspaceID, data, file.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIconTooLarge),
			errors.Is(err, service.ErrInvalidIconFormat),
			errors.Is(err, service.ErrIconTooSmall),
			errors.Is(err, service.ErrInvalidIconData):
			return NewValidationError(c, err.Error(), nil)
		}
		log.Error().Err(err).Int32("workspace_id", workspaceID).Msg("Failed to upload icon")
		return NewInternalError(c, "Failed to upload icon")
	}

	url, err := h.iconService.URL(ctx, workspaceID, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to sign icon URL")
		return NewInternalError(c, "Failed to upload icon")
	}
	return c.JSON(http.StatusCreated, IconUploadResponse{Key: key, URL: url})
}

// DeleteIcon handles DELETE /api/v1/budgets/icons?key=
func (h *BudgetHandler) DeleteIcon(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	if !h.iconService.IsEnabled() {
		return NewServiceUnavailableError(c, "Icon deletion is disabled (storage not configured)")
	}

	key := c.QueryParam("key")
	if err := h.iconService.Remove(c.Request().Context(), workspaceID, key); err != nil {
		if errors.Is(err, storage.ErrIconNotOwned) {
			return NewNotFoundError(c, "Icon not found")
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to delete icon")
		return NewInternalError(c, "Failed to delete icon")
	}
	return c.NoContent(http.StatusNoContent)
}

// Helper functions

func optionalIntParam(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func toPeriodAmountResponse(p domain.PeriodAmount) PeriodAmountResponse {
	return PeriodAmountResponse{Expense: p.Expense.StringFixed(2), Income: p.Income.StringFixed(2)}
}

func toPeriodAmountResponses(amounts []domain.PeriodAmount) []PeriodAmountResponse {
	result := make([]PeriodAmountResponse, len(amounts))
	for i, p := range amounts {
		result[i] = toPeriodAmountResponse(p)
	}
	return result
}

func toScenarioResponse(s *domain.BudgetScenario) ScenarioResponse {
	return ScenarioResponse{
		ID:           s.ID,
		FiscalYear:   s.FiscalYear,
		ScenarioType: string(s.ScenarioType),
		Currency:     s.Currency,
		Description:  s.Description,
		Icon:         s.Icon,
		Allocation: AllocationResponse{
			Total:    toPeriodAmountResponse(s.Total),
			Halves:   toPeriodAmountResponses(s.Halves[:]),
			Quarters: toPeriodAmountResponses(s.Quarters[:]),
			Months:   toPeriodAmountResponses(s.Months[:]),
		},
		CreatedBy: s.CreatedBy,
		UpdatedBy: s.UpdatedBy,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}
