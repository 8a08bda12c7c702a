// Package execution turns logical plans into runnable query executions.
package execution

import (
	"context"
	"fmt"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/execution/ddl"
	"github.com/g302ge/cnosdb/internal/storage"
)

// SQLQueryExecutionFactory routes DDL plans to the ddl package and query
// plans through the optimizer and scheduler.
type SQLQueryExecutionFactory struct {
	optimizer query.Optimizer
	scheduler query.Scheduler
	resolver  *storage.Resolver
}

// NewSQLQueryExecutionFactory creates a factory. resolver may be nil, in
// which case external table locations are not checked at creation.
func NewSQLQueryExecutionFactory(optimizer query.Optimizer, scheduler query.Scheduler, resolver *storage.Resolver) *SQLQueryExecutionFactory {
	return &SQLQueryExecutionFactory{optimizer: optimizer, scheduler: scheduler, resolver: resolver}
}

// CreateQueryExecution returns the execution for plan.
func (f *SQLQueryExecutionFactory) CreateQueryExecution(plan query.LogicalPlan, sm *query.QueryStateMachine) query.QueryExecution {
	switch p := plan.(type) {
	case query.DDLPlan:
		return ddl.NewDDLExecution(p, sm, ddl.Options{Resolver: f.resolver})
	case *query.QueryPlan:
		return &SQLQueryExecution{plan: p, sm: sm, optimizer: f.optimizer, scheduler: f.scheduler}
	default:
		return failedExecution{err: fmt.Errorf("execution: unsupported plan %T", plan), sm: sm}
	}
}

// SQLQueryExecution optimizes a query plan and schedules the resulting scan.
type SQLQueryExecution struct {
	plan      *query.QueryPlan
	sm        *query.QueryStateMachine
	optimizer query.Optimizer
	scheduler query.Scheduler
}

func (e *SQLQueryExecution) Start(ctx context.Context) (query.Output, error) {
	if err := e.sm.BeginExecute(); err != nil {
		return query.Output{}, err
	}

	physical, err := e.optimizer.Optimize(ctx, e.plan, e.sm)
	if err != nil {
		_ = e.sm.Fail()
		return query.Output{}, cerrors.OptimizerError(err)
	}
	out, err := e.scheduler.Schedule(ctx, physical, e.sm)
	if err != nil {
		_ = e.sm.Fail()
		return query.Output{}, cerrors.ScheduleError(err)
	}
	if err := e.sm.Succeed(); err != nil {
		out.Release()
		return query.Output{}, err
	}
	return out, nil
}

type failedExecution struct {
	err error
	sm  *query.QueryStateMachine
}

func (e failedExecution) Start(context.Context) (query.Output, error) {
	_ = e.sm.Fail()
	return query.Output{}, cerrors.ExecutionError(e.err)
}
