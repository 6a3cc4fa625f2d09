package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bhargavap21/tradeforge/errs"
	"github.com/bhargavap21/tradeforge/workflow"
)

// handleCreateSession Create a workflow session (spec.md §6 endpoint 1).
// The workflow does not start yet — the client attaches its progress
// stream first, then calls start.
func (s *Server) handleCreateSession(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req struct {
		StrategyDescription string `json:"strategy_description"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional at creation time

	session := s.engine.CreateSessionForUser(c.GetString("user_id"), req.StrategyDescription)
	c.JSON(http.StatusOK, gin.H{"sessionId": session.ID})
}

// handleStartWorkflow Start the workflow for a session (spec.md §6
// endpoint 3).
func (s *Server) handleStartWorkflow(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	sessionID := c.Param("id")

	var req struct {
		StrategyDescription string `json:"strategy_description"`
		FastMode            bool   `json:"fast_mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters: " + err.Error()})
		return
	}

	err := s.engine.Start(context.Background(), sessionID, workflow.StartOptions{
		StrategyDescription: req.StrategyDescription,
		FastMode:            req.FastMode,
	})
	if err != nil {
		if errs.Is(err, errs.KindSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if strings.Contains(err.Error(), "already started") {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "message": "Workflow started"})
}

// handlePollEvents Poll buffered events from index `from` onward (spec.md
// §6 endpoint 4), the fallback when streaming is unavailable.
func (s *Server) handlePollEvents(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	sessionID := c.Param("id")

	session, ok := s.engine.Session(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	from, _ := strconv.Atoi(c.DefaultQuery("from", "0"))
	if from < 0 {
		from = 0
	}

	history := session.History()
	total := len(history)
	if from > total {
		from = total
	}

	c.JSON(http.StatusOK, gin.H{
		"events": history[from:],
		"total":  total,
	})
}

// handleFetchResult Fetch the stored result for a completed session
// (spec.md §6 endpoint 5); sessions expire 24h after completion.
func (s *Server) handleFetchResult(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	sessionID := c.Param("id")

	result, ok := s.engine.Result(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No result for session (unknown, unfinished, or expired)"})
		return
	}
	c.JSON(http.StatusOK, result)
}
