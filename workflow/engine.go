package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bhargavap21/tradeforge/agents"
	"github.com/bhargavap21/tradeforge/errs"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/strategy"
)

// heartbeatInterval is the idle-ping cadence spec.md §4.7 caps at "≤ 30 s".
const heartbeatInterval = 20 * time.Second

// terminalGrace is how long the engine waits after a terminal event before
// closing the session's stream (spec.md §4.7 "Terminal event grace").
const terminalGrace = 500 * time.Millisecond

// Engine owns every session's lifecycle and drives the bounded iteration
// loop. Grounded on the teacher's AutoTrader, generalized from "one
// perpetual trading loop per process" to "one bounded, session-scoped loop
// per client request".
type Engine struct {
	Generator  *agents.Generator
	Backtester *agents.Backtester
	Analyst    *agents.Analyst
	Insights   *agents.Insights

	MaxIterations int
	MaxWallTime   time.Duration
	// InitialCapital seeds every backtest call this engine drives.
	InitialCapital float64

	// OnSave persists the completed session (bot row, code, insights,
	// backtest) as a background task; it runs after `complete` has already
	// been emitted and never blocks the stream (spec.md §4.7 "complete
	// before save"). Nil is a valid no-op for engines that don't persist.
	OnSave func(sessionID string, result *SessionResult)

	mu       sync.Mutex
	sessions map[string]*Session
	results  map[string]*resultEntry
}

// NewEngine wires the four agents together with sane defaults for the
// bounded-loop parameters.
func NewEngine(gen *agents.Generator, bt *agents.Backtester, an *agents.Analyst, ins *agents.Insights) *Engine {
	return &Engine{
		Generator:      gen,
		Backtester:     bt,
		Analyst:        an,
		Insights:       ins,
		MaxIterations:  5,
		MaxWallTime:    10 * time.Minute,
		InitialCapital: 100000,
		sessions:       make(map[string]*Session),
		results:        make(map[string]*resultEntry),
	}
}

// CreateSession mints a session_id (spec.md §4.7 "a client first creates a
// session, obtaining a session_id"). The workflow does not start until
// StartWorkflow is called, by design — the client must have a chance to
// attach its progress stream first.
func (e *Engine) CreateSession(userQuery string) *Session {
	return e.CreateSessionForUser("", userQuery)
}

// CreateSessionForUser is CreateSession with the owning user recorded, so
// the background save can scope the resulting bot row.
func (e *Engine) CreateSessionForUser(userID, userQuery string) *Session {
	id := uuid.NewString()
	s := newSession(id, userQuery, time.Now())
	s.UserID = userID

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	s.emit(Event{Type: EventReady, SessionID: id, Timestamp: time.Now()})
	return s
}

// Session looks up a live or recently-finished session by id.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Result returns a session's stored result if it hasn't expired past the
// 24h TTL (spec.md §4.7 "results: map session_id → final result with a
// 24-hour TTL").
func (e *Engine) Result(id string) (*SessionResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.results[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(e.results, id)
		return nil, false
	}
	return entry.result, true
}

// StartOptions carries the §6 "start workflow" request body: the strategy
// description (when the session was created without one) and the fast-mode
// flag, which trades refinement depth for latency.
type StartOptions struct {
	StrategyDescription string
	FastMode            bool
}

// StartWorkflow launches the bounded generate→backtest→analyze loop for an
// already-created session. It runs on its own goroutine; callers observe
// progress via the session's event stream.
func (e *Engine) StartWorkflow(ctx context.Context, sessionID string) error {
	return e.Start(ctx, sessionID, StartOptions{})
}

// Start is StartWorkflow with the full request options. Preconditions
// (spec.md §6): the session exists and its workflow has not already been
// started — a session runs at most one workflow.
func (e *Engine) Start(ctx context.Context, sessionID string, opts StartOptions) error {
	s, ok := e.Session(sessionID)
	if !ok {
		return errs.SessionNotFound(sessionID)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("workflow already started for session %s", sessionID)
	}
	s.started = true
	if opts.StrategyDescription != "" {
		s.UserQuery = opts.StrategyDescription
	}
	s.mu.Unlock()

	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = 5
	}
	if opts.FastMode && maxIter > 2 {
		maxIter = 2
	}

	go e.run(ctx, s, maxIter)
	return nil
}

func (e *Engine) run(ctx context.Context, s *Session, maxIter int) {
	metrics.WorkflowActiveSessions.Inc()
	defer metrics.WorkflowActiveSessions.Dec()

	deadline := time.Now().Add(e.MaxWallTime)
	protected := extractProtectedParams(s.UserQuery)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeatLoop(heartbeatCtx, s)

	s.emit(Event{Type: EventSupervisorStart, SessionID: s.ID, Timestamp: time.Now()})

	var (
		previous     *strategy.Spec
		feedback     string
		dataInsights map[string]any
		changesLog   []string
		lastResult   *SessionResult
	)

	for iteration := 1; iteration <= maxIter; iteration++ {
		if time.Now().After(deadline) {
			break
		}

		s.emit(Event{Type: EventIterationStart, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now()})
		metrics.WorkflowIterationsTotal.Inc()

		genOut, err := e.Generator.Generate(ctx, agents.GeneratorInput{
			UserQuery:        s.UserQuery,
			PreviousStrategy: previous,
			Feedback:         feedback,
			DataInsights:     dataInsights,
			Iteration:        iteration,
		})
		if err != nil {
			e.fail(s, iteration, fmt.Errorf("code generation failed: %w", err))
			return
		}

		downgraded := applyProtection(genOut.Spec, protected)
		syncParameters(genOut.Spec)
		changesLog = append(changesLog, genOut.ChangesMade...)
		changesLog = append(changesLog, downgraded...)

		s.emit(Event{
			Type: EventCodeGenerationComplete, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now(),
			Data: map[string]any{"changes_made": genOut.ChangesMade, "protected_overrides": downgraded},
		})

		// Insights run in parallel with the backtest on iteration 1 only
		// (spec.md §4.7 step 4); the backtest itself stays strictly
		// sequential within the session.
		var insightsDone chan *agents.InsightsOutput
		if iteration == 1 {
			insightsDone = make(chan *agents.InsightsOutput, 1)
			s.emit(Event{Type: EventInsightsGeneration, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now()})
			go func(spec *strategy.Spec) {
				out, err := e.Insights.Generate(ctx, spec)
				if err != nil {
					out = &agents.InsightsOutput{Config: map[string]any{}}
				}
				insightsDone <- out
			}(genOut.Spec)
		}

		s.emit(Event{Type: EventBacktestStart, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now()})
		btResult, err := e.Backtester.Run(ctx, genOut.Spec, e.InitialCapital)
		if err != nil {
			e.fail(s, iteration, fmt.Errorf("backtest failed: %w", err))
			return
		}
		s.emit(Event{Type: EventBacktestComplete, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now(),
			Data: map[string]any{"summary": btResult.Summary}})

		var insightsOut *agents.InsightsOutput
		if iteration == 1 {
			insightsOut = <-insightsDone
			s.emit(Event{Type: EventInsightsComplete, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now(),
				Data: map[string]any{"config": insightsOut.Config}})
		}

		if btResult.Summary.TotalTrades < 10 {
			dataInsights = agents.Recommend(btResult)
		} else {
			dataInsights = nil
		}

		s.emit(Event{Type: EventAnalysisStart, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now()})
		analysis, err := e.Analyst.Analyze(ctx, agents.AnalystInput{
			Result: btResult, Spec: genOut.Spec, UserQuery: s.UserQuery,
			Iteration: iteration, MaxIterations: maxIter,
		})
		if err != nil {
			e.fail(s, iteration, fmt.Errorf("analysis failed: %w", err))
			return
		}
		s.emit(Event{Type: EventAnalysisComplete, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now(),
			Data: map[string]any{"needs_refinement": analysis.NeedsRefinement, "issues": analysis.Issues}})

		lastResult = &SessionResult{
			SessionID:      s.ID,
			UserID:         s.UserID,
			Spec:           specToMap(genOut.Spec),
			BacktestResult: btResult,
			Analysis:       analysis.Analysis,
			Insights:       insightsConfigOf(insightsOut),
			Iterations:     iteration,
			ChangesLog:     changesLog,
			CreatedAt:      s.CreatedAt,
		}
		previous = genOut.Spec

		stop := !analysis.NeedsRefinement || !analysis.ShouldContinue ||
			iteration >= maxIter || time.Now().After(deadline)
		if stop {
			break
		}

		feedback = analysis.Analysis
		if len(analysis.Suggestions) > 0 {
			feedback += " Suggestions: " + joinStrings(analysis.Suggestions)
		}
		s.emit(Event{Type: EventRefinement, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now(),
			Data: map[string]any{"issues": analysis.Issues}})
	}

	if lastResult == nil {
		e.fail(s, maxIter, fmt.Errorf("workflow produced no result within the iteration/time budget"))
		return
	}

	e.succeed(s, lastResult)
}

func (e *Engine) heartbeatLoop(ctx context.Context, s *Session) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emit(Event{Type: EventHeartbeat, SessionID: s.ID, Timestamp: time.Now()})
		}
	}
}

// succeed implements the "complete before save" ordering: write the result,
// emit complete, then schedule the persistent save in the background.
func (e *Engine) succeed(s *Session, result *SessionResult) {
	e.mu.Lock()
	e.results[s.ID] = &resultEntry{result: result, expiresAt: time.Now().Add(resultTTL)}
	e.mu.Unlock()

	s.emit(Event{Type: EventComplete, SessionID: s.ID, Iteration: result.Iterations, Timestamp: time.Now()})
	metrics.WorkflowSessionsTotal.WithLabelValues("complete").Inc()

	if e.OnSave != nil {
		go e.OnSave(s.ID, result)
	}

	e.closeAfterGrace(s)
}

func (e *Engine) fail(s *Session, iteration int, err error) {
	logger.Warnf("workflow session %s failed at iteration %d: %v", s.ID, iteration, err)
	s.emit(Event{Type: EventError, SessionID: s.ID, Iteration: iteration, Timestamp: time.Now(),
		Data: map[string]any{"error": err.Error()}})
	metrics.WorkflowSessionsTotal.WithLabelValues("error").Inc()
	e.closeAfterGrace(s)
}

func (e *Engine) closeAfterGrace(s *Session) {
	time.Sleep(terminalGrace)
	s.close()
}

func joinStrings(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += "; "
		}
		out += it
	}
	return out
}

func specToMap(spec *strategy.Spec) map[string]any {
	return map[string]any{
		"name":             spec.Name,
		"assets":           spec.Assets,
		"entry_signal":     spec.EntrySignal,
		"entry_parameters": spec.EntryParameters,
		"entry_conditions": spec.EntryConditions,
		"exit_conditions":  spec.ExitConditions,
		"exit":             spec.Exit,
		"risk":             spec.Risk,
		"data_sources":     spec.DataSources,
	}
}

func insightsConfigOf(out *agents.InsightsOutput) map[string]any {
	if out == nil {
		return map[string]any{}
	}
	return out.Config
}
