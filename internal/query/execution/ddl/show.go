package ddl

import (
	"context"

	"github.com/g302ge/cnosdb/internal/query"
)

// ShowDatabasesTask lists the databases of the session's catalog.
type ShowDatabasesTask struct{}

func (t *ShowDatabasesTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	names, err := sm.Meta.ListDatabases(ctx)
	if err != nil {
		return query.Output{}, err
	}
	return namesOutput("Database", names)
}

// ShowTablesTask lists the tables of the named database, or of the session's
// database when none is named.
type ShowTablesTask struct {
	plan *query.ShowTablesPlan
}

func (t *ShowTablesTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	db := t.plan.Database
	if db == "" {
		db = sm.Meta.CurrentDatabase()
	}
	names, err := sm.Meta.ListTables(ctx, db)
	if err != nil {
		return query.Output{}, err
	}
	return namesOutput("Table", names)
}

func namesOutput(column string, names []string) (query.Output, error) {
	rows := make([][]*string, len(names))
	for i := range names {
		rows[i] = []*string{&names[i]}
	}
	return query.StringOutput([]string{column}, rows)
}
