// Package api is the reference HTTP/WS transport over the core: gin routes
// for the session/workflow/deployment/backtest contracts of spec.md §6 and
// a gorilla/websocket progress stream. Handler shape ((s *Server)
// handleXxx, userID from gin context, gin.H responses) follows the
// teacher's api/tactics.go. Authentication itself is out of scope for the
// core (spec.md §1); a header shim resolves user_id so handlers and tests
// run without a real auth middleware in front.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/live"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/store"
	"github.com/bhargavap21/tradeforge/workflow"
)

// Server wires the workflow engine, live engine, and repositories behind
// the transport contract.
type Server struct {
	router *gin.Engine

	engine *workflow.Engine
	live   *live.Engine
	store  *store.Store

	provider  market.Provider
	sentiment condition.SentimentLookup
	news      condition.NewsLookup

	jwtSecret []byte
}

// Options collects the collaborators a Server needs.
type Options struct {
	Engine    *workflow.Engine
	Live      *live.Engine
	Store     *store.Store
	Provider  market.Provider
	Sentiment condition.SentimentLookup
	News      condition.NewsLookup
	JWTSecret string
}

func NewServer(opts Options) *Server {
	s := &Server{
		engine:    opts.Engine,
		live:      opts.Live,
		store:     opts.Store,
		provider:  opts.Provider,
		sentiment: opts.Sentiment,
		news:      opts.News,
		jwtSecret: []byte(opts.JWTSecret),
	}

	router := gin.New()
	router.Use(gin.Recovery(), userIDShim())

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/sessions", s.handleCreateSession)
		apiGroup.POST("/sessions/:id/start", s.handleStartWorkflow)
		apiGroup.GET("/sessions/:id/stream", s.handleProgressStream)
		apiGroup.GET("/events/:id", s.handlePollEvents)
		apiGroup.GET("/result/:id", s.handleFetchResult)

		apiGroup.POST("/backtest", s.handleRunBacktest)

		apiGroup.POST("/deployments", s.handleCreateDeployment)
		apiGroup.GET("/deployments", s.handleListDeployments)
		apiGroup.GET("/deployments/:id", s.handleGetDeployment)
		apiGroup.POST("/deployments/:id/pause", s.handlePauseDeployment)
		apiGroup.POST("/deployments/:id/resume", s.handleResumeDeployment)
		apiGroup.POST("/deployments/:id/stop", s.handleStopDeployment)
		apiGroup.POST("/deployments/:id/activate", s.handleActivateDeployment)
		apiGroup.GET("/deployments/:id/trades", s.handleDeploymentTrades)
		apiGroup.GET("/deployments/:id/metrics", s.handleDeploymentMetrics)
		apiGroup.GET("/deployments/:id/positions", s.handleDeploymentPositions)

		apiGroup.GET("/bots", s.handleListBots)
		apiGroup.GET("/bots/:id", s.handleGetBot)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	s.router = router
	return s
}

// Router exposes the configured gin engine for serving and for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error { return s.router.Run(addr) }

// userIDShim resolves the caller's user id. The real deployment fronts this
// with an authentication middleware that sets user_id from a verified
// session; here the X-User-ID header stands in so row ownership still
// applies end to end.
func userIDShim() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader("X-User-ID"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	}
}

func requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}
