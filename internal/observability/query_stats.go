// Package observability tracks running queries and table access statistics.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/g302ge/cnosdb/internal/meta"
)

// DefaultMaxTables bounds the number of tables QueryStats remembers.
const DefaultMaxTables = 1024

// QueryStats tracks how often tables are accessed and by which kind of
// statement. Entries expire after the window; when maxTables entries are
// live, the least recently seen one is evicted.
type QueryStats struct {
	mu        sync.RWMutex
	tableFreq map[meta.TableRef]*TableStats
	window    time.Duration
	maxTables int
	lastPrune time.Time
	now       func() time.Time
}

// TableStats holds access statistics for one table.
type TableStats struct {
	Table     meta.TableRef
	Frequency int64
	LastSeen  time.Time
	Kinds     map[string]int // statement kind → count (e.g., "Query" → 5, "DescribeTable" → 1)
}

// NewQueryStats creates a statistics tracker whose entries expire after window.
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		tableFreq: make(map[meta.TableRef]*TableStats),
		window:    window,
		maxTables: DefaultMaxTables,
		now:       time.Now,
	}
}

// RecordTableAccess records one statement of the given kind touching table.
// Expired entries are pruned at most once per window.
func (q *QueryStats) RecordTableAccess(table meta.TableRef, kind string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if now.Sub(q.lastPrune) >= q.window {
		q.pruneLocked(now)
	}

	stats, exists := q.tableFreq[table]
	if !exists {
		if len(q.tableFreq) >= q.maxTables {
			q.pruneLocked(now)
		}
		if len(q.tableFreq) >= q.maxTables {
			q.evictOldestLocked()
		}
		stats = &TableStats{
			Table: table,
			Kinds: make(map[string]int),
		}
		q.tableFreq[table] = stats
	}

	stats.Frequency++
	stats.LastSeen = now
	stats.Kinds[kind]++
}

// ForgetTable drops the statistics of one table.
func (q *QueryStats) ForgetTable(table meta.TableRef) {
	q.mu.Lock()
	delete(q.tableFreq, table)
	q.mu.Unlock()
}

// ForgetDatabase drops the statistics of every table of database.
func (q *QueryStats) ForgetDatabase(database string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for ref := range q.tableFreq {
		if ref.Database == database {
			delete(q.tableFreq, ref)
		}
	}
}

// Len returns the number of tables currently tracked.
func (q *QueryStats) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tableFreq)
}

// TopTables returns copies of the n most accessed tables, most frequent first.
func (q *QueryStats) TopTables(n int) []TableStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.tableFreq) == 0 {
		return []TableStats{}
	}

	stats := make([]TableStats, 0, len(q.tableFreq))
	for _, s := range q.tableFreq {
		cp := TableStats{
			Table:     s.Table,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Kinds:     make(map[string]int, len(s.Kinds)),
		}
		for k, c := range s.Kinds {
			cp.Kinds[k] = c
		}
		stats = append(stats, cp)
	}

	// Ties break by name so the order is stable.
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].Table.Database != stats[j].Table.Database {
			return stats[i].Table.Database < stats[j].Table.Database
		}
		return stats[i].Table.Table < stats[j].Table.Table
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes tables not accessed within the window.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(q.now())
}

func (q *QueryStats) pruneLocked(now time.Time) {
	threshold := now.Add(-q.window)
	for table, stats := range q.tableFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.tableFreq, table)
		}
	}
	q.lastPrune = now
}

func (q *QueryStats) evictOldestLocked() {
	var (
		oldest meta.TableRef
		seen   time.Time
		found  bool
	)
	for table, stats := range q.tableFreq {
		if !found || stats.LastSeen.Before(seen) {
			oldest, seen, found = table, stats.LastSeen, true
		}
	}
	if found {
		delete(q.tableFreq, oldest)
	}
}
