package middleware

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// CustomClaims contains the custom claims from the Auth0 JWT.
// The workspace ID is a namespaced claim added by an Auth0 action.
type CustomClaims struct {
	Email       string `json:"email"`
	WorkspaceID int32  `json:"https://fortuna.app/workspace_id"`
}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	if c.WorkspaceID <= 0 {
		return errors.New("missing workspace claim")
	}
	return nil
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// Auth0IDKey is the context key for the Auth0 user ID (subject)
	Auth0IDKey contextKey = "auth0_id"
	// WorkspaceIDKey is the context key for the user's workspace ID
	WorkspaceIDKey contextKey = "workspace_id"
)

// Identity is the authenticated caller
type Identity struct {
	Auth0ID     string
	WorkspaceID int32
}

// TokenValidator validates Auth0 access tokens
type TokenValidator struct {
	validator *validator.Validator
}

// NewTokenValidator creates a TokenValidator for an Auth0 tenant
func NewTokenValidator(domain, audience string) (*TokenValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &TokenValidator{validator: jwtValidator}, nil
}

// Validate checks a raw token and returns the caller identity
func (v *TokenValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	custom, ok := validated.CustomClaims.(*CustomClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &Identity{
		Auth0ID:     validated.RegisteredClaims.Subject,
		WorkspaceID: custom.WorkspaceID,
	}, nil
}

// ValidateToken returns the workspace of a raw token (websocket handshake)
func (v *TokenValidator) ValidateToken(token string) (int32, error) {
	identity, err := v.Validate(context.Background(), token)
	if err != nil {
		return 0, err
	}
	return identity.WorkspaceID, nil
}

// IdentityValidator resolves a bearer token to an identity
type IdentityValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// AuthMiddleware provides JWT validation middleware
type AuthMiddleware struct {
	validator IdentityValidator
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator IdentityValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate returns an Echo middleware that validates bearer tokens
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "Missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "Invalid authorization header format")
			}

			identity, err := m.validator.Validate(c.Request().Context(), parts[1])
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				return unauthorizedError(c, "Invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), identity)))
			return next(c)
		}
	}
}

// WithIdentity stores the caller identity on a context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = context.WithValue(ctx, Auth0IDKey, identity.Auth0ID)
	return context.WithValue(ctx, WorkspaceIDKey, identity.WorkspaceID)
}

// GetAuth0ID extracts the Auth0 user ID from the context
func GetAuth0ID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(Auth0IDKey).(string); ok {
		return id
	}
	return ""
}

// GetWorkspaceID extracts the workspace ID from the context
func GetWorkspaceID(c echo.Context) int32 {
	if id, ok := c.Request().Context().Value(WorkspaceIDKey).(int32); ok {
		return id
	}
	return 0
}
