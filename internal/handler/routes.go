package handler

import (
	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, budgetHandler *BudgetHandler, wsHandler *WebSocketHandler) {
	// WebSocket (authenticates via query token)
	e.GET("/ws", wsHandler.HandleWS)

	// API version 1
	api := e.Group("/api/v1")

	// Budget routes (protected)
	budgets := api.Group("/budgets")
	budgets.Use(authMiddleware.Authenticate())
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("/summary", budgetHandler.GetSummary)
	budgets.POST("/icons", budgetHandler.UploadIcon)
	budgets.DELETE("/icons", budgetHandler.DeleteIcon)
	budgets.GET("/:year/:type", budgetHandler.GetScenario)

	// Refresh recomputes from the ledger; rate limited per workspace
	limit := middleware.RateLimitMiddleware(rateLimiter)
	budgets.POST("/refresh", budgetHandler.RefreshAll, limit)
	budgets.POST("/:year/refresh", budgetHandler.RefreshYear, limit)
}
