// Package query defines the contracts between the dispatcher and its
// collaborators (parser, planner, optimizer, scheduler, execution factory),
// the logical plan set, query outputs, and the per-statement lifecycle
// state machine.
package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/g302ge/cnosdb/internal/query/parser"
)

// Default names used when a query context leaves them empty.
const (
	DefaultCatalog  = "cnosdb"
	DefaultDatabase = "public"
	DefaultUser     = "root"
)

// QueryContext carries the identity and namespace a query runs in.
type QueryContext struct {
	User     string `json:"user"`
	Catalog  string `json:"catalog"`
	Database string `json:"database"`
}

// Query is one client request: a context and SQL text that may hold several
// statements.
type Query struct {
	ctx     QueryContext
	content string
}

// NewQuery creates a query.
func NewQuery(ctx QueryContext, content string) *Query {
	return &Query{ctx: ctx, content: content}
}

func (q *Query) Context() QueryContext { return q.ctx }
func (q *Query) Content() string       { return q.content }

// Session is the resolved execution context of a query.
type Session struct {
	id        uuid.UUID
	user      string
	catalog   string
	database  string
	createdAt time.Time
}

func (s *Session) ID() uuid.UUID        { return s.id }
func (s *Session) User() string         { return s.user }
func (s *Session) Catalog() string      { return s.catalog }
func (s *Session) Database() string     { return s.database }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SessionFactory creates sessions from query contexts.
type SessionFactory interface {
	CreateSession(qc QueryContext) *Session
}

// DefaultSessionFactory fills empty context fields with configured defaults.
type DefaultSessionFactory struct {
	DefaultCatalog  string
	DefaultDatabase string
}

// NewDefaultSessionFactory creates a factory; empty arguments fall back to
// DefaultCatalog and DefaultDatabase.
func NewDefaultSessionFactory(catalog, database string) *DefaultSessionFactory {
	if catalog == "" {
		catalog = DefaultCatalog
	}
	if database == "" {
		database = DefaultDatabase
	}
	return &DefaultSessionFactory{DefaultCatalog: catalog, DefaultDatabase: database}
}

// CreateSession resolves qc into a session with a fresh id.
func (f *DefaultSessionFactory) CreateSession(qc QueryContext) *Session {
	s := &Session{
		id:        uuid.New(),
		user:      qc.User,
		catalog:   qc.Catalog,
		database:  qc.Database,
		createdAt: time.Now(),
	}
	if s.user == "" {
		s.user = DefaultUser
	}
	if s.catalog == "" {
		s.catalog = f.DefaultCatalog
	}
	if s.database == "" {
		s.database = f.DefaultDatabase
	}
	return s
}

// Parser turns SQL text into statements.
type Parser interface {
	Parse(sql string) ([]parser.Statement, error)
}

// LogicalPlanner turns one statement into a logical plan, reading the
// catalog through the state machine's view.
type LogicalPlanner interface {
	CreateLogicalPlan(ctx context.Context, stmt parser.Statement, sm *QueryStateMachine) (LogicalPlan, error)
}

// Optimizer turns a query plan into a physical plan.
type Optimizer interface {
	Optimize(ctx context.Context, plan *QueryPlan, sm *QueryStateMachine) (*PhysicalPlan, error)
}

// Scheduler runs a physical plan to completion.
type Scheduler interface {
	Schedule(ctx context.Context, plan *PhysicalPlan, sm *QueryStateMachine) (Output, error)
}

// QueryExecution runs one planned statement.
type QueryExecution interface {
	Start(ctx context.Context) (Output, error)
}

// QueryExecutionFactory selects the execution for a logical plan.
type QueryExecutionFactory interface {
	CreateQueryExecution(plan LogicalPlan, sm *QueryStateMachine) QueryExecution
}
