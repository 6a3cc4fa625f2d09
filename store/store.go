// Package store implements the persistence repository contracts of spec.md
// §2 L4 / §6: typed CRUD over users, trading_bots, deployments,
// deployment_trades, deployment_metrics, deployment_positions, and
// trading_datasets, backed by sqlite. One store type per table with
// hand-written SQL, following store.StrategyStore / store.TacticStore in the
// teacher repo.
package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bhargavap21/tradeforge/errs"
)

const timeLayout = "2006-01-02 15:04:05"

// Store aggregates every table-scoped repository over one shared *sql.DB.
type Store struct {
	db *sql.DB

	users       *UserStore
	bots        *BotStore
	deployments *DeploymentStore
	trades      *DeploymentTradeStore
	positions   *DeploymentPositionStore
	metrics     *DeploymentMetricsStore
	datasets    *DatasetStore
}

// Open opens (or creates) the sqlite database at path and initializes every
// table. Pass ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Repository("failed to open database", err)
	}
	// sqlite serializes writes; a single connection avoids SQLITE_BUSY under
	// concurrent deployment ticks.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:          db,
		users:       &UserStore{db: db},
		bots:        &BotStore{db: db},
		deployments: &DeploymentStore{db: db},
		trades:      &DeploymentTradeStore{db: db},
		positions:   &DeploymentPositionStore{db: db},
		metrics:     &DeploymentMetricsStore{db: db},
		datasets:    &DatasetStore{db: db},
	}

	for _, init := range []func() error{
		s.users.initTables,
		s.bots.initTables,
		s.deployments.initTables,
		s.trades.initTables,
		s.positions.initTables,
		s.metrics.initTables,
		s.datasets.initTables,
	} {
		if err := init(); err != nil {
			db.Close()
			return nil, errs.Repository("failed to initialize tables", err)
		}
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) User() *UserStore                   { return s.users }
func (s *Store) Bot() *BotStore                     { return s.bots }
func (s *Store) Deployment() *DeploymentStore       { return s.deployments }
func (s *Store) Trade() *DeploymentTradeStore       { return s.trades }
func (s *Store) Position() *DeploymentPositionStore { return s.positions }
func (s *Store) Metric() *DeploymentMetricsStore    { return s.metrics }
func (s *Store) Dataset() *DatasetStore             { return s.datasets }

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, v)
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
