package ddl

import (
	"context"
	"fmt"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/query"
)

// DropObjectTask drops a table or a database with all of its tables.
type DropObjectTask struct {
	plan *query.DropPlan
}

func (t *DropObjectTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	var (
		err      error
		notFound string
	)
	switch t.plan.ObjType {
	case query.ObjectTable:
		err = sm.Meta.DropTable(ctx, sm.Meta.Resolve(t.plan.Table))
		notFound = cerrors.CodeTableNotFound
	case query.ObjectDatabase:
		err = sm.Meta.DropDatabase(ctx, t.plan.Name)
		notFound = cerrors.CodeDatabaseNotFound
	default:
		return query.Output{}, fmt.Errorf("ddl: unknown object type %v", t.plan.ObjType)
	}

	if err != nil {
		if t.plan.IfExist && cerrors.HasCode(err, cerrors.ErrCategoryCatalog, notFound) {
			return query.NilOutput(), nil
		}
		return query.Output{}, err
	}
	return query.NilOutput(), nil
}
