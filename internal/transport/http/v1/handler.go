// Package v1 provides the HTTP handlers for the relay API.
package v1

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/auth"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/config"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/policy"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/relay"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/store"
)

// identityKey is the echo context key holding the resolved caller identity.
const identityKey = "identity"

// Handler handles HTTP requests.
type Handler struct {
	svc          *relay.Service
	store        store.Store
	resolver     auth.TokenResolver
	policyEngine *policy.Engine
	config       *config.Config
}

// NewHandler creates a new handler.
func NewHandler(svc *relay.Service, metaStore store.Store, resolver auth.TokenResolver, policyEngine *policy.Engine, cfg *config.Config) *Handler {
	return &Handler{
		svc:          svc,
		store:        metaStore,
		resolver:     resolver,
		policyEngine: policyEngine,
		config:       cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1", h.AuthMiddleware)
	g.POST("/turns/stream", h.StreamTurn)
	g.GET("/executions/:execution_id/resume", h.Resume)
	g.GET("/executions/:execution_id/status", h.Status)
	g.POST("/executions/:execution_id/stop", h.Stop)

	e.GET("/healthz", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// AuthMiddleware resolves the bearer token to a caller identity.
func (h *Handler) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c.Request().Header.Get("Authorization"))
		ident, err := h.resolver.Resolve(c.Request().Context(), token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		}
		c.Set(identityKey, ident)
		return next(c)
	}
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

// identityFrom returns the resolved identity for the request.
func identityFrom(c echo.Context) *auth.Identity {
	if ident, ok := c.Get(identityKey).(*auth.Identity); ok {
		return ident
	}
	return &auth.Identity{}
}

// authorize evaluates the stream-access policy for the request.
func (h *Handler) authorize(c echo.Context, sessionID, executionID string) bool {
	if h.policyEngine == nil {
		return true
	}
	decision, err := h.policyEngine.Evaluate(c.Request().Context(), map[string]interface{}{
		"user_id":      identityFrom(c).UserID,
		"session_id":   sessionID,
		"execution_id": executionID,
	})
	if err != nil {
		log.Printf("ERROR: policy evaluation failed: %v", err)
		return false
	}
	return decision == "allow"
}
