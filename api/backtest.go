package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/backtest"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/store"
	"github.com/bhargavap21/tradeforge/strategy"
)

// handleRunBacktest Run a one-off backtest (spec.md §6 "Backtest
// endpoint"): normalize the submitted strategy, replay it over the
// requested window, and — when a user is present — auto-save a bot history
// entry, non-fatal on failure.
func (s *Server) handleRunBacktest(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		Strategy       map[string]any `json:"strategy" binding:"required"`
		Days           int            `json:"days"`
		InitialCapital float64        `json:"initial_capital"`
		TakeProfit     *float64       `json:"take_profit"`
		StopLoss       *float64       `json:"stop_loss"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters: " + err.Error()})
		return
	}
	if req.Days <= 0 {
		req.Days = 180
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = 100_000
	}

	// TP/SL overrides land in the exit group before normalization so the
	// same percentage rules apply to them.
	if req.TakeProfit != nil || req.StopLoss != nil {
		exit, _ := req.Strategy["exit"].(map[string]any)
		if exit == nil {
			exit = map[string]any{}
		}
		if req.TakeProfit != nil {
			exit["take_profit"] = *req.TakeProfit
		}
		if req.StopLoss != nil {
			exit["stop_loss"] = *req.StopLoss
		}
		req.Strategy["exit"] = exit
	}

	spec, verr := strategy.Normalize(req.Strategy)
	if verr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -req.Days)

	began := time.Now()
	result, err := backtest.Run(c.Request.Context(), spec, s.provider, backtest.Options{
		Start:           start,
		End:             end,
		InitialCapital:  req.InitialCapital,
		SentimentLookup: s.sentiment,
		NewsLookup:      s.news,
	})
	metrics.BacktestDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.BacktestRunsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "Backtest failed: " + err.Error()})
		return
	}
	metrics.BacktestRunsTotal.WithLabelValues("ok").Inc()

	if userID != "" {
		s.autoSaveBacktestBot(userID, spec, result)
	}

	c.JSON(http.StatusOK, result)
}

// autoSaveBacktestBot writes a bot history entry for an authenticated
// backtest run. Failure is logged, never surfaced (spec.md §6 "non-fatal
// on failure").
func (s *Server) autoSaveBacktestBot(userID string, spec *strategy.Spec, result *backtest.Result) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		logger.Warnf("failed to serialize strategy for bot history: %v", err)
		return
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		logger.Warnf("failed to serialize backtest for bot history: %v", err)
		return
	}
	bot := &store.Bot{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     spec.Name,
		Strategy: string(specJSON),
		Backtest: string(resultJSON),
		Insights: "{}",
	}
	if err := s.store.Bot().Create(bot); err != nil {
		logger.Warnf("failed to auto-save backtest bot for user %s: %v", userID, err)
	}
}

// handleListBots List the caller's saved bots.
func (s *Server) handleListBots(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	bots, err := s.store.Bot().List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bots: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": bots})
}

// handleGetBot Get a single bot.
func (s *Server) handleGetBot(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	bot, err := s.store.Bot().Get(userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	c.JSON(http.StatusOK, bot)
}
