package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/pkg/types"
)

// QueryInfo is a snapshot of a running statement.
type QueryInfo struct {
	QueryID  types.QueryID
	User     string
	Catalog  string
	Database string
	SQL      string
	State    query.QueryState
	Started  time.Time
}

// QueryTracker holds the state machines of statements currently running,
// keyed by query id, together with table access statistics.
type QueryTracker struct {
	mu      sync.RWMutex
	running map[types.QueryID]*query.QueryStateMachine
	stats   *QueryStats
}

// NewQueryTracker creates a tracker whose table statistics expire after window.
func NewQueryTracker(window time.Duration) *QueryTracker {
	return &QueryTracker{
		running: make(map[types.QueryID]*query.QueryStateMachine),
		stats:   NewQueryStats(window),
	}
}

// Register starts tracking sm. A later statement of the same query replaces
// the earlier one.
func (t *QueryTracker) Register(sm *query.QueryStateMachine) {
	t.mu.Lock()
	t.running[sm.QueryID] = sm
	t.mu.Unlock()
}

// Unregister stops tracking the query.
func (t *QueryTracker) Unregister(id types.QueryID) {
	t.mu.Lock()
	delete(t.running, id)
	t.mu.Unlock()
}

// Get returns the state machine of a running query.
func (t *QueryTracker) Get(id types.QueryID) (*query.QueryStateMachine, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sm, ok := t.running[id]
	return sm, ok
}

// Info returns a snapshot of a running query.
func (t *QueryTracker) Info(id types.QueryID) (QueryInfo, bool) {
	sm, ok := t.Get(id)
	if !ok {
		return QueryInfo{}, false
	}
	return infoOf(sm), true
}

// Running returns snapshots of all running queries ordered by query id.
func (t *QueryTracker) Running() []QueryInfo {
	t.mu.RLock()
	infos := make([]QueryInfo, 0, len(t.running))
	for _, sm := range t.running {
		infos = append(infos, infoOf(sm))
	}
	t.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].QueryID.Compare(infos[j].QueryID) < 0
	})
	return infos
}

// RecordPlan records the table a successfully executed statement touched,
// if any. Dropped tables and databases are forgotten.
func (t *QueryTracker) RecordPlan(plan query.LogicalPlan) {
	switch p := plan.(type) {
	case *query.QueryPlan:
		t.stats.RecordTableAccess(p.Table, "Query")
	case *query.DescribeTablePlan:
		t.stats.RecordTableAccess(p.Table, p.Kind().String())
	case *query.CreateTablePlan:
		t.stats.RecordTableAccess(meta.TableRef{Database: p.Schema.DB(), Table: p.Schema.Name()}, p.Kind().String())
	case *query.CreateExternalTablePlan:
		t.stats.RecordTableAccess(meta.TableRef{Database: p.Schema.DB(), Table: p.Schema.Name()}, p.Kind().String())
	case *query.DropPlan:
		if p.ObjType == query.ObjectTable {
			t.stats.ForgetTable(p.Table)
		} else {
			t.stats.ForgetDatabase(p.Name)
		}
	}
}

// Stats returns the table access statistics.
func (t *QueryTracker) Stats() *QueryStats { return t.stats }

func infoOf(sm *query.QueryStateMachine) QueryInfo {
	info := QueryInfo{
		QueryID: sm.QueryID,
		State:   sm.State(),
	}
	if sm.Query != nil {
		qc := sm.Query.Context()
		info.User, info.Catalog, info.Database = qc.User, qc.Catalog, qc.Database
		info.SQL = sm.Query.Content()
	}
	if sm.Session != nil {
		info.User, info.Catalog, info.Database = sm.Session.User(), sm.Session.Catalog(), sm.Session.Database()
	}
	if h := sm.History(); len(h) > 0 {
		info.Started = h[0].At
	}
	return info
}
