// Package http provides the HTTP server implementation for the relay.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/auth"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/config"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/policy"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/relay"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/store"
	v1 "github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/transport/http/v1"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/ws"
)

// NewServer creates and configures the relay HTTP server.
func NewServer(svc *relay.Service, metaStore store.Store, resolver auth.TokenResolver, policyEngine *policy.Engine, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, metaStore, resolver, policyEngine, cfg)
	wsServer := ws.NewServer(svc.Buffer())

	// Register routes
	v1Handler.RegisterRoutes(e)
	e.GET("/v1/executions/:execution_id/tail", wsServer.HandleTail)

	return e
}
