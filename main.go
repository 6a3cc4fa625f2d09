package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/agents"
	"github.com/bhargavap21/tradeforge/api"
	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/config"
	"github.com/bhargavap21/tradeforge/live"
	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/sentiment"
	"github.com/bhargavap21/tradeforge/store"
	"github.com/bhargavap21/tradeforge/workflow"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.Environment)
	metrics.Init()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("failed to open database: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	var provider market.Provider = market.NewAlpacaProvider(cfg.BrokerAPIKey, cfg.BrokerSecretKey)
	liveBroker := broker.NewAlpaca(cfg.BrokerAPIKey, cfg.BrokerSecretKey, cfg.BrokerPaper)

	adapter := buildSentimentAdapter(cfg, st)
	sentimentLookup := adapter.AsLookup()
	var newsLookup condition.NewsLookup // no news-bundle vendor wired by default

	oracle := llm.NewHTTPClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)

	engine := workflow.NewEngine(
		&agents.Generator{Client: oracle},
		&agents.Backtester{Provider: provider, Sentiment: sentimentLookup, News: newsLookup},
		&agents.Analyst{Client: oracle},
		&agents.Insights{Client: oracle},
	)
	engine.MaxIterations = cfg.WorkflowMaxIterations
	engine.MaxWallTime = cfg.WorkflowMaxWallTime
	engine.OnSave = saveWorkflowResult(st)

	liveEngine := live.New(st, liveBroker, provider)
	liveEngine.Sentiment = sentimentLookup
	liveEngine.News = newsLookup
	liveEngine.SuppressOutsideMarketHours = true
	liveEngine.Start()
	defer liveEngine.Stop()

	server := api.NewServer(api.Options{
		Engine:    engine,
		Live:      liveEngine,
		Store:     st,
		Provider:  provider,
		Sentiment: sentimentLookup,
		News:      newsLookup,
		JWTSecret: cfg.JWTSecret,
	})

	logger.Infof("tradeforge listening on %s (paper=%v)", cfg.HTTPAddr, cfg.BrokerPaper)
	if err := server.Run(cfg.HTTPAddr); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

func buildSentimentAdapter(cfg *config.Config, st *store.Store) *sentiment.Adapter {
	opts := []sentiment.Option{}
	for _, source := range []sentiment.Source{sentiment.SourceReddit, sentiment.SourceTwitter, sentiment.SourceNews} {
		url := cfg.SentimentProviderURLs[string(source)]
		if url == "" {
			continue
		}
		p := sentiment.NewHTTPProvider(source, url, cfg.SentimentProviderKeys[string(source)])
		opts = append(opts, sentiment.WithProvider(p, time.Minute, 60))
	}
	return sentiment.NewAdapter(st.Dataset(), opts...)
}

// saveWorkflowResult is the background persistence step of "complete before
// save" (spec.md §4.7): it runs after the terminal event and its failure is
// logged, never propagated back into the session.
func saveWorkflowResult(st *store.Store) func(sessionID string, result *workflow.SessionResult) {
	return func(sessionID string, result *workflow.SessionResult) {
		specJSON, err := json.Marshal(result.Spec)
		if err != nil {
			logger.Warnf("session %s: failed to serialize strategy: %v", sessionID, err)
			return
		}
		backtestJSON, err := json.Marshal(result.BacktestResult)
		if err != nil {
			logger.Warnf("session %s: failed to serialize backtest: %v", sessionID, err)
			return
		}
		insightsJSON, err := json.Marshal(result.Insights)
		if err != nil {
			insightsJSON = []byte("{}")
		}

		name, _ := result.Spec["name"].(string)
		if name == "" {
			name = "untitled strategy"
		}
		bot := &store.Bot{
			ID:        uuid.NewString(),
			UserID:    result.UserID,
			SessionID: sessionID,
			Name:      name,
			Strategy:  string(specJSON),
			Backtest:  string(backtestJSON),
			Insights:  string(insightsJSON),
		}
		if err := st.Bot().Create(bot); err != nil {
			logger.Warnf("session %s: failed to save bot: %v", sessionID, err)
			return
		}
		// Tie every dataset cache row this session created to the new bot
		// (spec.md §4.6).
		if err := st.Dataset().AssociateSession(sessionID, bot.ID); err != nil {
			logger.Warnf("session %s: failed to associate datasets: %v", sessionID, err)
		}
		logger.Infof("session %s: saved bot %s", sessionID, bot.ID)
	}
}
