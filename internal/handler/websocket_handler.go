package handler

import (
	"context"
	"net/http"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// JWTValidator validates a query-string JWT and returns the workspace ID it grants
type JWTValidator interface {
	ValidateToken(token string) (workspaceID int32, err error)
}

// ActualsSnapshotter loads the Act scenarios a new subscriber starts from
type ActualsSnapshotter interface {
	ActualsSnapshot(ctx context.Context, workspaceID int32, years []int) ([]*domain.BudgetScenario, error)
}

// WebSocketHandler streams budget events of one workspace, optionally
// narrowed to a set of fiscal years with ?years=2024,2025
type WebSocketHandler struct {
	hub       *websocket.Hub
	validator JWTValidator
	snapshots ActualsSnapshotter
	upgrader  ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *websocket.Hub, validator JWTValidator, snapshots ActualsSnapshotter, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
		snapshots: snapshots,
		upgrader:  ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker accepts listed origins and requests without an Origin header
// (non-browser clients)
func originChecker(allowed []string) func(r *http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := origins[origin]; ok {
			return true
		}
		log.Warn().Str("origin", origin).Msg("Budget event subscription rejected: origin not allowed")
		return false
	}
}

// subscriptionRequest is an authenticated GET /ws request
type subscriptionRequest struct {
	workspaceID int32
	years       websocket.YearFilter
}

func (h *WebSocketHandler) parseSubscription(c echo.Context) (subscriptionRequest, error) {
	token := c.QueryParam("token")
	if token == "" {
		return subscriptionRequest{}, echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	workspaceID, err := h.validator.ValidateToken(token)
	if err != nil {
		log.Debug().Err(err).Msg("Budget event subscription rejected: invalid token")
		return subscriptionRequest{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	years, err := websocket.ParseYearFilter(c.QueryParam("years"))
	if err != nil {
		return subscriptionRequest{}, echo.NewHTTPError(http.StatusBadRequest, "invalid years")
	}
	return subscriptionRequest{workspaceID: workspaceID, years: years}, nil
}

// HandleWS handles GET /ws. The first message on a new connection is an
// actuals.snapshot event; later messages are live budget events.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	req, err := h.parseSubscription(c)
	if err != nil {
		return err
	}

	// Loaded before the upgrade so a failure still gets an HTTP status
	acts, err := h.snapshots.ActualsSnapshot(c.Request().Context(), req.workspaceID, req.years.Years())
	if err != nil {
		log.Error().Err(err).Int32("workspace_id", req.workspaceID).Msg("Failed to load actuals snapshot")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load actuals")
	}
	greeting, err := websocket.ActualsSnapshot(acts).ToJSON()
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Debug().Err(err).Msg("Budget event subscription upgrade failed")
		return err
	}

	subscriber := websocket.NewSubscriber(conn, req.workspaceID, req.years)
	_ = subscriber.Send(greeting)
	h.hub.Register(subscriber)

	log.Info().
		Int32("workspace_id", req.workspaceID).
		Str("client_id", subscriber.ID()).
		Ints("years", req.years.Years()).
		Msg("Budget event subscriber connected")

	go func() {
		defer h.hub.Unregister(subscriber)
		subscriber.Run()
	}()
	return nil
}
