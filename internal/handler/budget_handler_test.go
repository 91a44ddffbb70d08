package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/dafibh/fortuna/fortuna-budget/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// Helper to set up auth context with workspace ID
func setupAuthContextWithWorkspace(c echo.Context, auth0ID string, workspaceID int32) {
	ctx := middleware.WithIdentity(c.Request().Context(), &middleware.Identity{
		Auth0ID:     auth0ID,
		WorkspaceID: workspaceID,
	})
	c.SetRequest(c.Request().WithContext(ctx))
}

type budgetHandlerFixture struct {
	handler *BudgetHandler
	store   *testutil.MockScenarioStore
	ledger  *testutil.MockTransactionLedger
	icons   *testutil.MockIconRepository
}

func setupBudgetHandler(t *testing.T, withIcons bool) *budgetHandlerFixture {
	t.Helper()
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	converter, err := service.NewRateTableConverter("USD", map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("0.5"),
	})
	if err != nil {
		t.Fatalf("Failed to create converter: %v", err)
	}

	store := testutil.NewMockScenarioStore()
	store.Now = clock
	ledger := testutil.NewMockTransactionLedger()
	aggregator := service.NewActualsAggregator(ledger, converter)
	aggregator.SetClock(clock)
	budgetService := service.NewBudgetService(store, aggregator, converter, nil)
	summaryService := service.NewSummaryService(store, budgetService, aggregator, converter)
	summaryService.SetClock(clock)
	refresher := service.NewActualsRefresher(store, ledger, aggregator, nil, 2)

	f := &budgetHandlerFixture{store: store, ledger: ledger}
	iconService := service.NewIconService(nil)
	if withIcons {
		f.icons = testutil.NewMockIconRepository()
		iconService = service.NewIconService(f.icons)
	}
	f.handler = NewBudgetHandler(budgetService, summaryService, refresher, iconService, "USD")
	return f
}

func newJSONContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateBudget_Success(t *testing.T) {
	f := setupBudgetHandler(t, false)
	f.ledger.AddTransaction(1, domain.TransactionTypeExpense, "100", "USD", "2024-03-01")

	reqBody := `{"fiscalYear": 2024, "estimatedTotalExpense": "120000", "estimatedTotalIncome": "240000", "description": "Household"}`
	c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets", reqBody)
	setupAuthContextWithWorkspace(c, "auth0|test", 1)

	if err := f.handler.CreateBudget(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var response BudgetTriadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Top.Allocation.Months[0].Expense != "10000.00" {
		t.Errorf("Expected monthly expense '10000.00', got %s", response.Top.Allocation.Months[0].Expense)
	}
	if response.Bot.Allocation.Quarters[0].Income != "60000.00" {
		t.Errorf("Expected quarterly income '60000.00', got %s", response.Bot.Allocation.Quarters[0].Income)
	}
	if response.Act.Allocation.Total.Expense != "100.00" {
		t.Errorf("Expected actual expense '100.00', got %s", response.Act.Allocation.Total.Expense)
	}
	if response.Act.Currency != "USD" {
		t.Errorf("Expected default currency USD, got %s", response.Act.Currency)
	}
	if response.Top.CreatedBy != "auth0|test" {
		t.Errorf("Expected creator 'auth0|test', got %s", response.Top.CreatedBy)
	}
}

func TestCreateBudget_Duplicate(t *testing.T) {
	f := setupBudgetHandler(t, false)
	reqBody := `{"fiscalYear": 2024, "estimatedTotalExpense": "1", "estimatedTotalIncome": "1"}`

	for i, expected := range []int{http.StatusCreated, http.StatusConflict} {
		c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets", reqBody)
		setupAuthContextWithWorkspace(c, "auth0|test", 1)
		if err := f.handler.CreateBudget(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if rec.Code != expected {
			t.Errorf("Request %d: expected status %d, got %d", i+1, expected, rec.Code)
		}
	}

	if f.store.ScenarioCount() != 3 {
		t.Errorf("Expected 3 scenarios, got %d", f.store.ScenarioCount())
	}
}

func TestCreateBudget_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid amount", `{"fiscalYear": 2024, "estimatedTotalExpense": "abc", "estimatedTotalIncome": "1"}`},
		{"missing income", `{"fiscalYear": 2024, "estimatedTotalExpense": "1"}`},
		{"negative amount", `{"fiscalYear": 2024, "estimatedTotalExpense": "-5", "estimatedTotalIncome": "1"}`},
		{"year out of range", `{"fiscalYear": 1800, "estimatedTotalExpense": "1", "estimatedTotalIncome": "1"}`},
		{"unsupported currency", `{"fiscalYear": 2024, "estimatedTotalExpense": "1", "estimatedTotalIncome": "1", "currency": "JPY"}`},
		{"malformed body", `{"fiscalYear": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupBudgetHandler(t, false)
			c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets", tt.body)
			setupAuthContextWithWorkspace(c, "auth0|test", 1)

			if err := f.handler.CreateBudget(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
			if f.store.ScenarioCount() != 0 {
				t.Errorf("Expected nothing persisted, got %d scenarios", f.store.ScenarioCount())
			}
		})
	}
}

func TestCreateBudget_MissingWorkspaceID(t *testing.T) {
	f := setupBudgetHandler(t, false)
	c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets", `{}`)

	if err := f.handler.CreateBudget(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestGetSummary_Success(t *testing.T) {
	f := setupBudgetHandler(t, false)
	c, rec := newJSONContext(http.MethodGet, "/api/v1/budgets/summary?currency=eur&take=5", "")
	setupAuthContextWithWorkspace(c, "auth0|test", 1)

	if err := f.handler.GetSummary(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response SummaryPageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response.Data) != 1 || response.Data[0].Year != 2025 {
		t.Fatalf("Expected bootstrapped 2025 row, got %+v", response.Data)
	}
	if response.Data[0].TopExpense != "0.00" {
		t.Errorf("Expected top expense '0.00', got %s", response.Data[0].TopExpense)
	}
	if response.Currency != "EUR" {
		t.Errorf("Expected currency EUR, got %s", response.Currency)
	}
	if response.NextCursor != nil {
		t.Errorf("Expected no next cursor, got %d", *response.NextCursor)
	}
}

func TestGetSummary_InvalidQuery(t *testing.T) {
	targets := []string{
		"/api/v1/budgets/summary?take=abc",
		"/api/v1/budgets/summary?take=51",
		"/api/v1/budgets/summary?cursor=last",
		"/api/v1/budgets/summary?search=latest",
		"/api/v1/budgets/summary?fromYear=2024&toYear=2020",
		"/api/v1/budgets/summary?currency=XXX",
	}

	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			f := setupBudgetHandler(t, false)
			c, rec := newJSONContext(http.MethodGet, target, "")
			setupAuthContextWithWorkspace(c, "auth0|test", 1)

			if err := f.handler.GetSummary(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetScenario(t *testing.T) {
	f := setupBudgetHandler(t, false)
	c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets", `{"fiscalYear": 2024, "estimatedTotalExpense": "1200", "estimatedTotalIncome": "0"}`)
	setupAuthContextWithWorkspace(c, "auth0|test", 1)
	if err := f.handler.CreateBudget(c); err != nil || rec.Code != http.StatusCreated {
		t.Fatalf("Failed to seed budget: %v %d", err, rec.Code)
	}

	c, rec = newJSONContext(http.MethodGet, "/api/v1/budgets/2024/top", "")
	c.SetParamNames("year", "type")
	c.SetParamValues("2024", "TOP")
	setupAuthContextWithWorkspace(c, "auth0|test", 1)

	if err := f.handler.GetScenario(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response ScenarioDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response.Details) != 24 {
		t.Errorf("Expected 24 details, got %d", len(response.Details))
	}
	if response.Details[0].Amount != "100.00" {
		t.Errorf("Expected detail amount '100.00', got %s", response.Details[0].Amount)
	}
	if response.Scenario.ScenarioType != "top" {
		t.Errorf("Expected scenario type top, got %s", response.Scenario.ScenarioType)
	}
}

func TestGetScenario_Errors(t *testing.T) {
	tests := []struct {
		name     string
		year     string
		typ      string
		query    string
		expected int
	}{
		{"not found", "2020", "act", "", http.StatusNotFound},
		{"bad type", "2020", "mid", "", http.StatusBadRequest},
		{"bad year", "twenty", "act", "", http.StatusBadRequest},
		{"bad live flag", "2020", "act", "?live=maybe", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupBudgetHandler(t, false)
			c, rec := newJSONContext(http.MethodGet, "/api/v1/budgets/x/y"+tt.query, "")
			c.SetParamNames("year", "type")
			c.SetParamValues(tt.year, tt.typ)
			setupAuthContextWithWorkspace(c, "auth0|test", 1)

			if err := f.handler.GetScenario(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestRefreshYear_Success(t *testing.T) {
	f := setupBudgetHandler(t, false)
	f.ledger.AddTransaction(1, domain.TransactionTypeIncome, "10", "EUR", "2024-08-01")

	c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets/2024/refresh", "")
	c.SetParamNames("year")
	c.SetParamValues("2024")
	setupAuthContextWithWorkspace(c, "auth0|test", 1)

	if err := f.handler.RefreshYear(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response ScenarioResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.Allocation.Total.Income != "20.00" {
		t.Errorf("Expected income '20.00', got %s", response.Allocation.Total.Income)
	}
	if response.Allocation.Months[7].Income != "20.00" {
		t.Errorf("Expected august income '20.00', got %s", response.Allocation.Months[7].Income)
	}
}

func TestRefreshAll_Success(t *testing.T) {
	f := setupBudgetHandler(t, false)
	f.ledger.AddTransaction(1, domain.TransactionTypeIncome, "10", "USD", "2023-08-01")

	c, rec := newJSONContext(http.MethodPost, "/api/v1/budgets/refresh", "")
	setupAuthContextWithWorkspace(c, "auth0|test", 1)

	if err := f.handler.RefreshAll(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response service.RefreshResult
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response.Skipped) != 1 || response.Skipped[0] != 2023 {
		t.Errorf("Expected 2023 skipped, got %+v", response.Skipped)
	}
}

func newIconUploadContext(t *testing.T, filename string, data []byte) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	writer.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/budgets/icons", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func testIconPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadIcon_Success(t *testing.T) {
	f := setupBudgetHandler(t, true)
	c, rec := newIconUploadContext(t, "house.png", testIconPNG(t))
	setupAuthContextWithWorkspace(c, "auth0|test", 4)

	if err := f.handler.UploadIcon(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var response IconUploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if !strings.HasPrefix(response.Key, "icons/4/") {
		t.Errorf("Expected key under icons/4/, got %s", response.Key)
	}
	if f.icons.Count() != 1 {
		t.Errorf("Expected 1 stored icon, got %d", f.icons.Count())
	}
}

func TestUploadIcon_InvalidFile(t *testing.T) {
	f := setupBudgetHandler(t, true)
	c, rec := newIconUploadContext(t, "notes.txt", []byte("hello"))
	setupAuthContextWithWorkspace(c, "auth0|test", 4)

	if err := f.handler.UploadIcon(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestUploadIcon_StorageDisabled(t *testing.T) {
	f := setupBudgetHandler(t, false)
	c, rec := newIconUploadContext(t, "house.png", testIconPNG(t))
	setupAuthContextWithWorkspace(c, "auth0|test", 4)

	if err := f.handler.UploadIcon(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
}

func TestDeleteIcon_OtherWorkspace(t *testing.T) {
	f := setupBudgetHandler(t, true)
	f.icons.Seed("icons/9/abc.png", []byte("x"))

	c, rec := newJSONContext(http.MethodDelete, "/api/v1/budgets/icons?key=icons/9/abc.png", "")
	setupAuthContextWithWorkspace(c, "auth0|test", 4)

	if err := f.handler.DeleteIcon(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
	if f.icons.Count() != 1 {
		t.Errorf("Expected icon to be kept")
	}
}

func TestDeleteIcon_OwnWorkspace(t *testing.T) {
	f := setupBudgetHandler(t, true)
	f.icons.Seed("icons/4/abc.png", []byte("x"))

	c, rec := newJSONContext(http.MethodDelete, "/api/v1/budgets/icons?key=icons/4/abc.png", "")
	setupAuthContextWithWorkspace(c, "auth0|test", 4)

	if err := f.handler.DeleteIcon(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
	if f.icons.Has("icons/4/abc.png") {
		t.Errorf("Expected icon to be removed")
	}
}

func TestDeleteIcon_MalformedKey(t *testing.T) {
	f := setupBudgetHandler(t, true)

	c, rec := newJSONContext(http.MethodDelete, "/api/v1/budgets/icons?key=icons/4/../9/abc.png", "")
	setupAuthContextWithWorkspace(c, "auth0|test", 4)

	if err := f.handler.DeleteIcon(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
