// Package live implements the cron-like live trading supervisor of spec.md
// §4.8: a per-minute synchronization loop over the deployment table plus one
// recurring execution goroutine per active deployment, each maintaining a
// virtual per-deployment portfolio (§4.9) on top of a shared broker
// account. Loop shape (ticker + select over a stop channel, market-hours
// gate, per-cycle runCycle) is grounded on the teacher's
// trader/auto_trader.go AutoTrader.Run, generalized from "one process, one
// trader" to "one goroutine per deployment under a cluster-wide sync task".
package live

import (
	"sync"
	"time"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/store"
)

// Engine supervises all running deployments.
type Engine struct {
	Store  *store.Store
	Broker broker.Broker
	Market market.Provider

	Sentiment condition.SentimentLookup
	News      condition.NewsLookup

	// SyncInterval is the cadence of the cluster-wide deployment sync loop
	// (spec.md §4.8 "Every minute").
	SyncInterval time.Duration
	// TickBudget bounds one deployment tick; exceeding it is a tick failure
	// (spec.md §5 "each tick runs with a per-tick budget").
	TickBudget time.Duration
	// SuppressOutsideMarketHours skips ticks outside regular market hours
	// when set (spec.md §4.8 "whether ticks are suppressed outside hours is
	// a configuration flag").
	SuppressOutsideMarketHours bool
	// LookbackDays is how much bar history each tick feeds the indicator
	// engine before evaluating conditions.
	LookbackDays int

	mu      sync.Mutex
	active  map[string]*runner
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

type runner struct {
	deployment *store.Deployment
	stop       chan struct{}
}

// New constructs an engine with the default cadences.
func New(st *store.Store, b broker.Broker, m market.Provider) *Engine {
	return &Engine{
		Store:        st,
		Broker:       b,
		Market:       m,
		SyncInterval: time.Minute,
		TickBudget:   30 * time.Second,
		LookbackDays: 90,
		active:       make(map[string]*runner),
	}
}

// Start launches the synchronization loop. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	logger.Info("live trading engine started")
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.SyncInterval)
		defer ticker.Stop()
		e.syncOnce()
		for {
			select {
			case <-ticker.C:
				e.syncOnce()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sync loop and every per-deployment goroutine, waiting for
// in-flight ticks to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	for id, r := range e.active {
		close(r.stop)
		delete(e.active, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
	logger.Info("live trading engine stopped")
}

// syncOnce is one pass of the synchronization loop (spec.md §4.8): activate
// deployments newly marked running, deactivate those stopped/paused/errored
// out of band.
func (e *Engine) syncOnce() {
	running, err := e.Store.Deployment().ListByStatus(store.StatusRunning)
	if err != nil {
		logger.Warnf("deployment sync failed: %v", err)
		return
	}

	wanted := make(map[string]*store.Deployment, len(running))
	for _, d := range running {
		wanted[d.ID] = d
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, r := range e.active {
		if _, ok := wanted[id]; !ok {
			close(r.stop)
			delete(e.active, id)
			metrics.ClearDeploymentMetrics(id)
			logger.Infof("deployment %s deactivated", id)
		}
	}

	for id, d := range wanted {
		if _, ok := e.active[id]; ok {
			continue
		}
		r := &runner{deployment: d, stop: make(chan struct{})}
		e.active[id] = r
		e.wg.Add(1)
		go e.runDeployment(r)
		logger.Infof("deployment %s activated (frequency %s)", id, d.ExecutionFrequency)
	}

	metrics.LiveActiveDeployments.Set(float64(len(e.active)))
}

// ActiveCount reports the size of the in-memory active set.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// runDeployment is one deployment's execution goroutine: a recurring timer
// at the configured frequency, one tick per fire. Ticks within a
// deployment are non-overlapping by construction (they run inline on this
// goroutine) and a fire queued behind a slow tick is drained, not executed
// (spec.md §5 "the next scheduled tick is skipped (not queued)").
func (e *Engine) runDeployment(r *runner) {
	defer e.wg.Done()

	interval := frequencyDuration(r.deployment.ExecutionFrequency)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.SuppressOutsideMarketHours && !IsMarketOpen(time.Now()) {
				metrics.RecordTick(r.deployment.ID, "skipped", 0)
				continue
			}
			started := time.Now()
			err := e.tick(r.deployment)
			elapsed := time.Since(started).Seconds()
			if err != nil {
				metrics.RecordTick(r.deployment.ID, "error", elapsed)
				e.failDeployment(r.deployment.ID, err)
				return
			}
			metrics.RecordTick(r.deployment.ID, "ok", elapsed)
			select {
			case <-ticker.C: // drop the fire queued behind a slow tick
			default:
			}
		case <-r.stop:
			return
		}
	}
}

// failDeployment implements spec.md §4.8 "Failure handling": mark the
// deployment error, stamp stopped_at, remove it from the active set, log.
// Other deployments are unaffected.
func (e *Engine) failDeployment(id string, cause error) {
	logger.Errorf("deployment %s tick failed, transitioning to error: %v", id, cause)
	if err := e.Store.Deployment().UpdateStatus(id, store.StatusError); err != nil {
		logger.Warnf("failed to persist error status for deployment %s: %v", id, err)
	}

	e.mu.Lock()
	if r, ok := e.active[id]; ok {
		// The runner goroutine has already returned; just forget it.
		select {
		case <-r.stop:
		default:
			close(r.stop)
		}
		delete(e.active, id)
	}
	metrics.LiveActiveDeployments.Set(float64(len(e.active)))
	e.mu.Unlock()

	metrics.ClearDeploymentMetrics(id)
}

func frequencyDuration(freq string) time.Duration {
	switch freq {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	}
	return 5 * time.Minute
}
