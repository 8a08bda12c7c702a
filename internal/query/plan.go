package query

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/pkg/types"
)

// LogicalPlan is the closed set of planner outputs: the DDL plans below and
// *QueryPlan.
type LogicalPlan interface {
	fmt.Stringer
	logicalPlan()
}

// DDLPlanKind enumerates the DDL plan variants.
type DDLPlanKind int

const (
	DDLCreateExternalTable DDLPlanKind = iota
	DDLDrop
	DDLCreateTable
	DDLCreateDatabase
	DDLDescribeDatabase
	DDLDescribeTable
	DDLShowTables
	DDLShowDatabases

	ddlPlanKindCount
)

// AllDDLPlanKinds returns every DDL plan kind.
func AllDDLPlanKinds() []DDLPlanKind {
	kinds := make([]DDLPlanKind, 0, ddlPlanKindCount)
	for k := DDLPlanKind(0); k < ddlPlanKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k DDLPlanKind) String() string {
	switch k {
	case DDLCreateExternalTable:
		return "CreateExternalTable"
	case DDLDrop:
		return "Drop"
	case DDLCreateTable:
		return "CreateTable"
	case DDLCreateDatabase:
		return "CreateDatabase"
	case DDLDescribeDatabase:
		return "DescribeDatabase"
	case DDLDescribeTable:
		return "DescribeTable"
	case DDLShowTables:
		return "ShowTables"
	case DDLShowDatabases:
		return "ShowDatabases"
	default:
		return fmt.Sprintf("DDLPlanKind(%d)", int(k))
	}
}

// DDLPlan is a catalog mutation or introspection plan.
type DDLPlan interface {
	LogicalPlan
	Kind() DDLPlanKind
	// Accept calls the visitor method matching the plan's variant.
	Accept(v DDLPlanVisitor)
	ddlPlan()
}

// DDLPlanVisitor has one method per DDL plan variant, so a new variant does
// not compile until every visitor handles it.
type DDLPlanVisitor interface {
	VisitCreateExternalTable(p *CreateExternalTablePlan)
	VisitDrop(p *DropPlan)
	VisitCreateTable(p *CreateTablePlan)
	VisitCreateDatabase(p *CreateDatabasePlan)
	VisitDescribeDatabase(p *DescribeDatabasePlan)
	VisitDescribeTable(p *DescribeTablePlan)
	VisitShowTables(p *ShowTablesPlan)
	VisitShowDatabases(p *ShowDatabasesPlan)
}

// ObjectType is the kind of object a DROP targets.
type ObjectType int

const (
	ObjectTable ObjectType = iota
	ObjectDatabase
)

func (o ObjectType) String() string {
	if o == ObjectDatabase {
		return "DATABASE"
	}
	return "TABLE"
}

// CreateExternalTablePlan registers a file-backed table.
type CreateExternalTablePlan struct {
	Schema      *types.ExternalTableSchema
	IfNotExists bool
}

// DropPlan drops a table or a database.
type DropPlan struct {
	// Table is the resolved table for ObjectTable drops.
	Table meta.TableRef
	// Name is the database for ObjectDatabase drops.
	Name    string
	IfExist bool
	ObjType ObjectType
}

// CreateTablePlan creates a tskv table.
type CreateTablePlan struct {
	Name        string
	IfNotExists bool
	Schema      *types.TskvTableSchema
}

// CreateDatabasePlan creates a database.
type CreateDatabasePlan struct {
	Name        string
	IfNotExists bool
	Options     types.DatabaseOptions
}

// DescribeDatabasePlan lists the options of a database.
type DescribeDatabasePlan struct {
	Name string
}

// DescribeTablePlan lists the columns of a table.
type DescribeTablePlan struct {
	Table meta.TableRef
}

// ShowTablesPlan lists tables of Database, or of the session database when empty.
type ShowTablesPlan struct {
	Database string
}

// ShowDatabasesPlan lists the databases of the catalog.
type ShowDatabasesPlan struct{}

func (*CreateExternalTablePlan) logicalPlan() {}
func (*DropPlan) logicalPlan()                {}
func (*CreateTablePlan) logicalPlan()         {}
func (*CreateDatabasePlan) logicalPlan()      {}
func (*DescribeDatabasePlan) logicalPlan()    {}
func (*DescribeTablePlan) logicalPlan()       {}
func (*ShowTablesPlan) logicalPlan()          {}
func (*ShowDatabasesPlan) logicalPlan()       {}
func (*QueryPlan) logicalPlan()               {}

func (*CreateExternalTablePlan) ddlPlan() {}
func (*DropPlan) ddlPlan()                {}
func (*CreateTablePlan) ddlPlan()         {}
func (*CreateDatabasePlan) ddlPlan()      {}
func (*DescribeDatabasePlan) ddlPlan()    {}
func (*DescribeTablePlan) ddlPlan()       {}
func (*ShowTablesPlan) ddlPlan()          {}
func (*ShowDatabasesPlan) ddlPlan()       {}

func (*CreateExternalTablePlan) Kind() DDLPlanKind { return DDLCreateExternalTable }
func (*DropPlan) Kind() DDLPlanKind                { return DDLDrop }
func (*CreateTablePlan) Kind() DDLPlanKind         { return DDLCreateTable }
func (*CreateDatabasePlan) Kind() DDLPlanKind      { return DDLCreateDatabase }
func (*DescribeDatabasePlan) Kind() DDLPlanKind    { return DDLDescribeDatabase }
func (*DescribeTablePlan) Kind() DDLPlanKind       { return DDLDescribeTable }
func (*ShowTablesPlan) Kind() DDLPlanKind          { return DDLShowTables }
func (*ShowDatabasesPlan) Kind() DDLPlanKind       { return DDLShowDatabases }

func (p *CreateExternalTablePlan) Accept(v DDLPlanVisitor) { v.VisitCreateExternalTable(p) }
func (p *DropPlan) Accept(v DDLPlanVisitor)                { v.VisitDrop(p) }
func (p *CreateTablePlan) Accept(v DDLPlanVisitor)         { v.VisitCreateTable(p) }
func (p *CreateDatabasePlan) Accept(v DDLPlanVisitor)      { v.VisitCreateDatabase(p) }
func (p *DescribeDatabasePlan) Accept(v DDLPlanVisitor)    { v.VisitDescribeDatabase(p) }
func (p *DescribeTablePlan) Accept(v DDLPlanVisitor)       { v.VisitDescribeTable(p) }
func (p *ShowTablesPlan) Accept(v DDLPlanVisitor)          { v.VisitShowTables(p) }
func (p *ShowDatabasesPlan) Accept(v DDLPlanVisitor)       { v.VisitShowDatabases(p) }

func (p *CreateExternalTablePlan) String() string {
	return fmt.Sprintf("CreateExternalTable: %s.%s", p.Schema.DB(), p.Schema.Name())
}

func (p *DropPlan) String() string {
	if p.ObjType == ObjectTable {
		return fmt.Sprintf("Drop %s: %s", p.ObjType, p.Table)
	}
	return fmt.Sprintf("Drop %s: %s", p.ObjType, p.Name)
}

func (p *CreateTablePlan) String() string { return "CreateTable: " + p.Name }

func (p *CreateDatabasePlan) String() string { return "CreateDatabase: " + p.Name }

func (p *DescribeDatabasePlan) String() string { return "DescribeDatabase: " + p.Name }

func (p *DescribeTablePlan) String() string { return "DescribeTable: " + p.Table.String() }

func (p *ShowTablesPlan) String() string { return "ShowTables: " + p.Database }

func (p *ShowDatabasesPlan) String() string { return "ShowDatabases" }

// QueryPlan reads rows from one table.
type QueryPlan struct {
	Table  meta.TableRef
	Schema types.TableSchema
	// Columns to return in order; empty means all columns.
	Columns []string
	// Limit is the maximum number of rows; negative means unlimited.
	Limit  int64
	Offset int64
}

func (p *QueryPlan) String() string {
	return fmt.Sprintf("Query: %s columns=%v limit=%d offset=%d", p.Table, p.Columns, p.Limit, p.Offset)
}

// PhysicalPlan is an executable table scan with projection and row window.
type PhysicalPlan struct {
	Table  meta.TableRef
	Source types.TableSchema
	// Projection holds source column indices in output order.
	Projection []int
	// OutputSchema is the schema of produced records.
	OutputSchema *arrow.Schema
	// Fetch is Offset+Limit pushed into the scan; negative means unlimited.
	Fetch  int64
	Limit  int64
	Offset int64
}
