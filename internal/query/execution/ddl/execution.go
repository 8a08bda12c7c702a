// Package ddl executes catalog definition and introspection plans. Each plan
// variant maps to exactly one task.
package ddl

import (
	"context"

	"github.com/rs/zerolog/log"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/storage"
)

// Task runs one DDL plan against the state machine's catalog view.
type Task interface {
	Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error)
}

// Options are shared by all tasks.
type Options struct {
	// Resolver, when set, is used to check that external table locations exist.
	Resolver *storage.Resolver
}

// DDLExecution runs a DDL plan as a query execution.
type DDLExecution struct {
	plan query.DDLPlan
	sm   *query.QueryStateMachine
	opts Options
}

// NewDDLExecution creates an execution for plan.
func NewDDLExecution(plan query.DDLPlan, sm *query.QueryStateMachine, opts Options) *DDLExecution {
	return &DDLExecution{plan: plan, sm: sm, opts: opts}
}

// Start runs the task. Task failures are returned as EXECUTION errors with
// the original error as cause.
func (e *DDLExecution) Start(ctx context.Context) (query.Output, error) {
	if err := e.sm.BeginExecute(); err != nil {
		return query.Output{}, err
	}

	out, err := taskFor(e.plan, e.opts).Execute(ctx, e.sm)
	if err != nil {
		_ = e.sm.Fail()
		log.Debug().
			Str("query_id", e.sm.QueryID.String()).
			Str("plan", e.plan.Kind().String()).
			Err(err).
			Msg("ddl task failed")
		return query.Output{}, cerrors.ExecutionError(err)
	}
	if err := e.sm.Succeed(); err != nil {
		out.Release()
		return query.Output{}, err
	}
	return out, nil
}

// taskFor maps every DDL plan variant to its task.
func taskFor(plan query.DDLPlan, opts Options) Task {
	b := &taskBuilder{opts: opts}
	plan.Accept(b)
	return b.task
}

// taskBuilder builds the task of the plan it visits.
type taskBuilder struct {
	opts Options
	task Task
}

var _ query.DDLPlanVisitor = (*taskBuilder)(nil)

func (b *taskBuilder) VisitCreateExternalTable(p *query.CreateExternalTablePlan) {
	b.task = &CreateExternalTableTask{plan: p, resolver: b.opts.Resolver}
}

func (b *taskBuilder) VisitDrop(p *query.DropPlan) { b.task = &DropObjectTask{plan: p} }

func (b *taskBuilder) VisitCreateTable(p *query.CreateTablePlan) { b.task = &CreateTableTask{plan: p} }

func (b *taskBuilder) VisitCreateDatabase(p *query.CreateDatabasePlan) {
	b.task = &CreateDatabaseTask{plan: p}
}

func (b *taskBuilder) VisitDescribeDatabase(p *query.DescribeDatabasePlan) {
	b.task = &DescribeDatabaseTask{plan: p}
}

func (b *taskBuilder) VisitDescribeTable(p *query.DescribeTablePlan) {
	b.task = &DescribeTableTask{plan: p}
}

func (b *taskBuilder) VisitShowTables(p *query.ShowTablesPlan) { b.task = &ShowTablesTask{plan: p} }

func (b *taskBuilder) VisitShowDatabases(*query.ShowDatabasesPlan) { b.task = &ShowDatabasesTask{} }
