// Package dispatcher runs SQL queries statement by statement under a
// concurrency limit.
package dispatcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/observability"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/parser"
	"github.com/g302ge/cnosdb/pkg/types"
)

// QueryDispatcher executes queries and exposes their lifecycle.
type QueryDispatcher interface {
	Start() error
	Stop()
	CreateQueryID() (types.QueryID, error)
	QueryInfo(id types.QueryID) (observability.QueryInfo, bool)
	CancelQuery(id types.QueryID)
	ExecuteQuery(ctx context.Context, id types.QueryID, q *query.Query) ([]query.Output, error)
}

// SimpleQueryDispatcher executes the statements of a query sequentially on
// the calling goroutine. At most queriesLimit queries run at once; excess
// queries are rejected immediately rather than queued.
type SimpleQueryDispatcher struct {
	metadata       meta.Client
	sessionFactory query.SessionFactory
	parser         query.Parser
	planner        query.LogicalPlanner
	factory        query.QueryExecutionFactory
	tracker        *observability.QueryTracker

	queriesLimit int64
	sem          *semaphore.Weighted
	ids          *types.QueryIDGenerator
}

var _ QueryDispatcher = (*SimpleQueryDispatcher)(nil)

// Start logs the dispatcher's limits. It holds no background resources.
func (d *SimpleQueryDispatcher) Start() error {
	log.Info().Int64("queries_limit", d.queriesLimit).Msg("query dispatcher started")
	return nil
}

// Stop is a no-op; running queries finish on their callers' goroutines.
func (d *SimpleQueryDispatcher) Stop() {
	log.Info().Msg("query dispatcher stopped")
}

// CreateQueryID returns a new monotonic query id.
func (d *SimpleQueryDispatcher) CreateQueryID() (types.QueryID, error) {
	return d.ids.Next()
}

// QueryInfo returns a snapshot of a running query. It always reports false
// when no tracker is configured.
func (d *SimpleQueryDispatcher) QueryInfo(id types.QueryID) (observability.QueryInfo, bool) {
	if d.tracker == nil {
		return observability.QueryInfo{}, false
	}
	return d.tracker.Info(id)
}

// CancelQuery does nothing. Callers cancel through the context passed to
// ExecuteQuery.
func (d *SimpleQueryDispatcher) CancelQuery(id types.QueryID) {
	log.Debug().Str("query_id", id.String()).Msg("cancel query is not supported")
}

// ExecuteQuery parses q and runs each statement in order. The first failing
// statement aborts the query and no partial outputs are returned.
func (d *SimpleQueryDispatcher) ExecuteQuery(ctx context.Context, id types.QueryID, q *query.Query) ([]query.Output, error) {
	if !d.sem.TryAcquire(1) {
		log.Warn().
			Str("query_id", id.String()).
			Int64("queries_limit", d.queriesLimit).
			Msg("query rejected: too many concurrent queries")
		return nil, cerrors.RequestLimitError(d.queriesLimit)
	}
	defer d.sem.Release(1)

	session := d.sessionFactory.CreateSession(q.Context())
	view := meta.NewCatalogView(d.metadata).
		WithCatalog(session.Catalog()).
		WithDatabase(session.Database())

	stmts, err := d.parser.Parse(q.Content())
	if err != nil {
		return nil, cerrors.ParseError(err)
	}

	outputs := make([]query.Output, 0, len(stmts))
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			releaseOutputs(outputs)
			return nil, cerrors.ExecutionError(err)
		}
		out, err := d.executeStatement(ctx, id, q, session, view, stmt)
		if err != nil {
			releaseOutputs(outputs)
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (d *SimpleQueryDispatcher) executeStatement(ctx context.Context, id types.QueryID, q *query.Query, session *query.Session, view meta.CatalogView, stmt parser.Statement) (query.Output, error) {
	start := time.Now()
	sm := query.NewQueryStateMachine(id, q, session, view)
	if d.tracker != nil {
		d.tracker.Register(sm)
		defer d.tracker.Unregister(id)
	}

	if err := sm.BeginAnalyze(); err != nil {
		return query.Output{}, err
	}
	plan, err := d.planner.CreateLogicalPlan(ctx, stmt, sm)
	if err != nil {
		_ = sm.Fail()
		return query.Output{}, cerrors.LogicalPlannerError(err)
	}
	if err := sm.EndAnalyze(); err != nil {
		return query.Output{}, err
	}
	out, err := d.factory.CreateQueryExecution(plan, sm).Start(ctx)
	if err != nil {
		return query.Output{}, err
	}
	if d.tracker != nil {
		d.tracker.RecordPlan(plan)
	}

	log.Debug().
		Str("query_id", id.String()).
		Str("plan", plan.String()).
		Dur("analyze", sm.AnalyzeDuration()).
		Dur("execute", sm.ExecuteDuration()).
		Dur("total", time.Since(start)).
		Msg("statement finished")
	return out, nil
}

func releaseOutputs(outputs []query.Output) {
	for _, out := range outputs {
		out.Release()
	}
}
