package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/store"
)

var validFrequencies = map[string]bool{"1m": true, "5m": true, "15m": true, "30m": true, "1h": true}

// handleCreateDeployment Create a deployment for one of the caller's bots.
// The live engine's next sync pass picks it up (spec.md §4.8).
func (s *Server) handleCreateDeployment(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req struct {
		BotID              string   `json:"bot_id" binding:"required"`
		InitialCapital     float64  `json:"initial_capital" binding:"required"`
		ExecutionFrequency string   `json:"execution_frequency"`
		MaxPositionSize    *float64 `json:"max_position_size"`
		DailyLossLimit     *float64 `json:"daily_loss_limit"`
		BrokerAccountRef   string   `json:"broker_account_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters: " + err.Error()})
		return
	}
	if req.InitialCapital <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "initial_capital must be positive"})
		return
	}
	if req.ExecutionFrequency == "" {
		req.ExecutionFrequency = "5m"
	}
	if !validFrequencies[req.ExecutionFrequency] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution_frequency must be one of 1m, 5m, 15m, 30m, 1h"})
		return
	}

	if _, err := s.store.Bot().Get(userID, req.BotID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}

	id := uuid.New().String()
	token, err := mintDeploymentToken(s.jwtSecret, id, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mint deployment token"})
		return
	}

	d := &store.Deployment{
		ID:                 id,
		UserID:             userID,
		BotID:              req.BotID,
		Status:             store.StatusRunning,
		InitialCapital:     req.InitialCapital,
		CurrentCapital:     req.InitialCapital,
		ExecutionFrequency: req.ExecutionFrequency,
		MaxPositionSize:    req.MaxPositionSize,
		DailyLossLimit:     req.DailyLossLimit,
		BrokerAccountRef:   req.BrokerAccountRef,
		DeploymentToken:    token,
	}
	if err := s.store.Deployment().Create(d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create deployment: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               id,
		"deployment_token": token,
		"message":          "Deployment created",
	})
}

// handleListDeployments List the caller's deployments.
func (s *Server) handleListDeployments(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	deployments, err := s.store.Deployment().List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deployments: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": deployments})
}

// handleGetDeployment Get a single deployment.
func (s *Server) handleGetDeployment(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	d, err := s.store.Deployment().Get(userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// transitionDeployment applies a server-enforced status transition
// (spec.md §3: stopped/error are terminal; paused ↔ running is reversible).
func (s *Server) transitionDeployment(c *gin.Context, target string, allowedFrom map[string]bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	d, err := s.store.Deployment().Get(userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return
	}
	if !allowedFrom[d.Status] {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot transition deployment from status " + d.Status})
		return
	}
	if err := s.store.Deployment().UpdateStatus(d.ID, target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": d.ID, "status": target})
}

func (s *Server) handlePauseDeployment(c *gin.Context) {
	s.transitionDeployment(c, store.StatusPaused, map[string]bool{store.StatusRunning: true})
}

func (s *Server) handleResumeDeployment(c *gin.Context) {
	s.transitionDeployment(c, store.StatusRunning, map[string]bool{store.StatusPaused: true})
}

func (s *Server) handleActivateDeployment(c *gin.Context) {
	s.transitionDeployment(c, store.StatusRunning,
		map[string]bool{store.StatusPaused: true, store.StatusRunning: true})
}

// handleStopDeployment Stop a deployment, optionally closing its virtual
// positions through the broker first.
func (s *Server) handleStopDeployment(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	d, err := s.store.Deployment().Get(userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return
	}
	if d.Status == store.StatusStopped || d.Status == store.StatusError {
		c.JSON(http.StatusConflict, gin.H{"error": "Deployment already stopped"})
		return
	}

	var req struct {
		CloseAllPositions bool `json:"close_all_positions"`
	}
	_ = c.ShouldBindJSON(&req)

	if req.CloseAllPositions {
		if err := s.closeDeploymentPositions(d); err != nil {
			// Stopping still proceeds; the operator asked for a stop, and
			// a close failure is visible in the response.
			logger.Warnf("failed to close positions for deployment %s: %v", d.ID, err)
			c.JSON(http.StatusOK, gin.H{"id": d.ID, "status": store.StatusStopped,
				"warning": "some positions could not be closed: " + err.Error()})
			_ = s.store.Deployment().UpdateStatus(d.ID, store.StatusStopped)
			return
		}
	}

	if err := s.store.Deployment().UpdateStatus(d.ID, store.StatusStopped); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop deployment: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": d.ID, "status": store.StatusStopped})
}

func (s *Server) handleDeploymentTrades(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if _, err := s.store.Deployment().Get(userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return
	}
	trades, err := s.store.Trade().List(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list trades: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleDeploymentMetrics(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if _, err := s.store.Deployment().Get(userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return
	}
	snapshots, err := s.store.Metric().List(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list metrics: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": snapshots})
}

func (s *Server) handleDeploymentPositions(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if _, err := s.store.Deployment().Get(userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
		return
	}
	positions, err := s.store.Position().List(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list positions: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}
