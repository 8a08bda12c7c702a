package ddl

import (
	"context"
	"fmt"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/storage"
	"github.com/g302ge/cnosdb/pkg/types"
)

// CreateDatabaseTask creates a database from the planned options.
type CreateDatabaseTask struct {
	plan *query.CreateDatabasePlan
}

func (t *CreateDatabaseTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	_, err := sm.Meta.Database(ctx, t.plan.Name)
	switch {
	case err == nil:
		if t.plan.IfNotExists {
			return query.NilOutput(), nil
		}
		return query.Output{}, cerrors.DatabaseExists(t.plan.Name)
	case !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseNotFound):
		return query.Output{}, err
	}

	schema := types.DatabaseSchema{Name: t.plan.Name, Options: t.plan.Options}
	if err := sm.Meta.CreateDatabase(ctx, schema); err != nil {
		return query.Output{}, ignoreExists(err, t.plan.IfNotExists, cerrors.CodeDatabaseExists)
	}
	return query.NilOutput(), nil
}

// CreateTableTask creates a tskv table. Column ids are assigned by the meta client.
type CreateTableTask struct {
	plan *query.CreateTablePlan
}

func (t *CreateTableTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	ref := meta.TableRef{Database: t.plan.Schema.DB(), Table: t.plan.Schema.Name()}
	exists, err := tableExists(ctx, sm.Meta, ref)
	if err != nil {
		return query.Output{}, err
	}
	if exists {
		if t.plan.IfNotExists {
			return query.NilOutput(), nil
		}
		return query.Output{}, cerrors.TableExists(t.plan.Name)
	}

	if err := sm.Meta.CreateTable(ctx, t.plan.Schema); err != nil {
		return query.Output{}, ignoreExists(err, t.plan.IfNotExists, cerrors.CodeTableExists)
	}
	return query.NilOutput(), nil
}

// CreateExternalTableTask registers a file-backed table.
type CreateExternalTableTask struct {
	plan     *query.CreateExternalTablePlan
	resolver *storage.Resolver
}

func (t *CreateExternalTableTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	schema := t.plan.Schema
	ref := meta.TableRef{Database: schema.DB(), Table: schema.Name()}
	exists, err := tableExists(ctx, sm.Meta, ref)
	if err != nil {
		return query.Output{}, err
	}
	if exists {
		if t.plan.IfNotExists {
			return query.NilOutput(), nil
		}
		return query.Output{}, cerrors.TableExists(ref.String())
	}

	if t.resolver != nil {
		if err := t.checkLocation(ctx, schema.Location); err != nil {
			return query.Output{}, err
		}
	}

	if err := sm.Meta.CreateTable(ctx, schema); err != nil {
		return query.Output{}, ignoreExists(err, t.plan.IfNotExists, cerrors.CodeTableExists)
	}
	return query.NilOutput(), nil
}

func (t *CreateExternalTableTask) checkLocation(ctx context.Context, location string) error {
	store, prefix, err := t.resolver.Resolve(ctx, location)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCategoryValidation, cerrors.CodeInvalidOption,
			fmt.Sprintf("invalid location %q", location), err)
	}
	ok, err := store.Exists(ctx, prefix)
	if err != nil {
		return cerrors.NewStorageError(cerrors.CodeDownloadFailed,
			fmt.Sprintf("failed to check location %q", location), err)
	}
	if !ok {
		// Object stores have no directories; a prefix exists if it lists anything.
		objects, err := store.ListObjects(ctx, prefix)
		if err != nil {
			return cerrors.NewStorageError(cerrors.CodeDownloadFailed,
				fmt.Sprintf("failed to list location %q", location), err)
		}
		ok = len(objects) > 0
	}
	if !ok {
		return cerrors.NewStorageError(cerrors.CodeObjectNotFound,
			fmt.Sprintf("location %q does not exist", location), storage.ErrObjectNotFound)
	}
	return nil
}

func tableExists(ctx context.Context, view meta.CatalogView, ref meta.TableRef) (bool, error) {
	_, err := view.Table(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ignoreExists swallows a concurrent create of the same object when the
// statement asked for IF NOT EXISTS.
func ignoreExists(err error, ifNotExists bool, code string) error {
	if ifNotExists && cerrors.HasCode(err, cerrors.ErrCategoryCatalog, code) {
		return nil
	}
	return err
}
