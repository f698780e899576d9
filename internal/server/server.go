// Package server assembles the orchestrator HTTP surface: the operator
// API, the agent-facing internal API, the websocket session endpoint,
// and the health probe.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	agenthandlers "github.com/botcrew/botcrew/internal/agent/handlers"
	"github.com/botcrew/botcrew/internal/bootcfg"
	"github.com/botcrew/botcrew/internal/bus"
	commshandlers "github.com/botcrew/botcrew/internal/comms/handlers"
	"github.com/botcrew/botcrew/internal/common/logger"
	workspacehandlers "github.com/botcrew/botcrew/internal/workspace/handlers"
)

// Pinger reports database liveness. Nil means the orchestrator runs
// without persistent storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries everything the router needs.
type Options struct {
	Logger *logger.Logger
	Debug  bool

	Agents     *agenthandlers.Handler
	Comms      *commshandlers.Handler
	WS         *commshandlers.WSHandler
	Workspace  *workspacehandlers.Handler
	BootConfig *bootcfg.Handler

	DB  Pinger
	Bus bus.Bus
}

// NewRouter builds the gin engine with all endpoints mounted.
func NewRouter(opts Options) *gin.Engine {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	api := router.Group("/api/v1")
	opts.Agents.RegisterRoutes(api)
	opts.Comms.RegisterRoutes(api)
	opts.Workspace.RegisterRoutes(api)
	opts.Workspace.RegisterActivityRoutes(api)

	// Agent-facing internal API and the realtime endpoint live at the
	// root, outside the operator prefix.
	opts.BootConfig.RegisterRoutes(router)
	opts.WS.RegisterRoutes(router)

	router.GET("/system/health", healthHandler(opts.DB, opts.Bus))

	return router
}

// healthHandler reports orchestrator health. The probe is healthy only
// when every configured dependency is reachable.
func healthHandler(db Pinger, b bus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		healthy := true

		dbStatus := "not_configured"
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				dbStatus = "unreachable"
				healthy = false
			} else {
				dbStatus = "ok"
			}
		}

		busStatus := "ok"
		if b == nil || !b.IsConnected() {
			busStatus = "disconnected"
			healthy = false
		}

		status := "healthy"
		code := http.StatusOK
		if !healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"database": dbStatus,
			"bus":      busStatus,
		})
	}
}

// corsMiddleware allows browser clients on any origin, including the
// websocket upgrade headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
