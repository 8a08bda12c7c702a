package dispatcher

import (
	"fmt"

	"golang.org/x/sync/semaphore"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/observability"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/execution"
	"github.com/g302ge/cnosdb/internal/query/planner"
	"github.com/g302ge/cnosdb/internal/storage"
	"github.com/g302ge/cnosdb/pkg/types"
)

// DefaultTargetPartitions is used for external tables when the builder is
// not given a value.
const DefaultTargetPartitions = 8

// Builder assembles a SimpleQueryDispatcher. Metadata, session factory,
// parser, optimizer and scheduler are required.
type Builder struct {
	metadata         meta.Client
	sessionFactory   query.SessionFactory
	parser           query.Parser
	optimizer        query.Optimizer
	scheduler        query.Scheduler
	planner          query.LogicalPlanner
	resolver         *storage.Resolver
	tracker          *observability.QueryTracker
	queriesLimit     int64
	targetPartitions int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{targetPartitions: DefaultTargetPartitions}
}

func (b *Builder) WithMetadata(m meta.Client) *Builder {
	b.metadata = m
	return b
}

func (b *Builder) WithSessionFactory(f query.SessionFactory) *Builder {
	b.sessionFactory = f
	return b
}

func (b *Builder) WithParser(p query.Parser) *Builder {
	b.parser = p
	return b
}

func (b *Builder) WithOptimizer(o query.Optimizer) *Builder {
	b.optimizer = o
	return b
}

func (b *Builder) WithScheduler(s query.Scheduler) *Builder {
	b.scheduler = s
	return b
}

// WithQueriesLimit sets the number of queries allowed to run at once. A
// limit of 0 rejects every query.
func (b *Builder) WithQueriesLimit(limit int64) *Builder {
	b.queriesLimit = limit
	return b
}

// WithTracker registers running statements with t.
func (b *Builder) WithTracker(t *observability.QueryTracker) *Builder {
	b.tracker = t
	return b
}

// WithPlanner replaces the default logical planner.
func (b *Builder) WithPlanner(p query.LogicalPlanner) *Builder {
	b.planner = p
	return b
}

// WithStorageResolver enables location checks when external tables are created.
func (b *Builder) WithStorageResolver(r *storage.Resolver) *Builder {
	b.resolver = r
	return b
}

// WithTargetPartitions sets the partition count recorded on external tables.
func (b *Builder) WithTargetPartitions(n int) *Builder {
	b.targetPartitions = n
	return b
}

// Build returns the dispatcher, or a BUILD_QUERY_DISPATCHER error naming
// the first missing required collaborator.
func (b *Builder) Build() (*SimpleQueryDispatcher, error) {
	switch {
	case b.metadata == nil:
		return nil, lostOf("metadata")
	case b.sessionFactory == nil:
		return nil, lostOf("session_factory")
	case b.parser == nil:
		return nil, lostOf("parser")
	case b.optimizer == nil:
		return nil, lostOf("optimizer")
	case b.scheduler == nil:
		return nil, lostOf("scheduler")
	case b.queriesLimit < 0:
		return nil, cerrors.BuildDispatcherError(fmt.Sprintf("invalid queries limit %d", b.queriesLimit))
	}

	lp := b.planner
	if lp == nil {
		lp = planner.NewDefaultLogicalPlanner(b.targetPartitions)
	}

	return &SimpleQueryDispatcher{
		metadata:       b.metadata,
		sessionFactory: b.sessionFactory,
		parser:         b.parser,
		planner:        lp,
		factory:        execution.NewSQLQueryExecutionFactory(b.optimizer, b.scheduler, b.resolver),
		tracker:        b.tracker,
		queriesLimit:   b.queriesLimit,
		sem:            semaphore.NewWeighted(b.queriesLimit),
		ids:            types.NewQueryIDGenerator(),
	}, nil
}

func lostOf(name string) error {
	return cerrors.BuildDispatcherError("lost of " + name)
}
