package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Statement represents a parsed SQL statement. The set of implementations
// is closed by the unexported marker.
type Statement interface {
	statementNode()
	String() string
}

// ObjectName is a possibly database-qualified name.
type ObjectName struct {
	Database string
	Name     string
}

func (n ObjectName) String() string {
	if n.Database == "" {
		return n.Name
	}
	return n.Database + "." + n.Name
}

// ObjectType is the target of a DROP.
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

// SelectStatement is SELECT <columns|*> FROM <table> [LIMIT n] [OFFSET m].
type SelectStatement struct {
	// Columns is empty for SELECT *.
	Columns []string
	From    ObjectName
	Limit   *int64
	Offset  *int64
}

// DatabaseOptions holds the raw WITH options of CREATE DATABASE; nil means unset.
type DatabaseOptions struct {
	TTL           *string
	ShardNum      *uint64
	VnodeDuration *string
	Replica       *uint64
	Precision     *string
}

// CreateDatabaseStatement is CREATE DATABASE [IF NOT EXISTS] name [WITH ...].
type CreateDatabaseStatement struct {
	Name        string
	IfNotExists bool
	Options     DatabaseOptions
}

// ColumnOption is one column of CREATE TABLE.
type ColumnOption struct {
	Name     string
	IsTag    bool
	DataType string
	// Encoding is the CODEC argument, empty when omitted.
	Encoding string
}

// CreateTableStatement is CREATE TABLE [IF NOT EXISTS] name (cols..., TAGS(...)).
type CreateTableStatement struct {
	Name        ObjectName
	IfNotExists bool
	Columns     []ColumnOption
}

// ColumnDef is a typed column of CREATE EXTERNAL TABLE.
type ColumnDef struct {
	Name     string
	DataType string
}

// CreateExternalTableStatement registers files at Location as a table.
type CreateExternalTableStatement struct {
	Name          ObjectName
	IfNotExists   bool
	Columns       []ColumnDef
	FileType      string
	HasHeader     bool
	Delimiter     byte
	Compression   string
	PartitionedBy []string
	Location      string
}

// DropStatement is DROP TABLE|DATABASE [IF EXISTS] name.
type DropStatement struct {
	ObjType ObjectType
	Name    ObjectName
	IfExist bool
}

type DescribeDatabaseStatement struct {
	Name string
}

type DescribeTableStatement struct {
	Name ObjectName
}

type ShowDatabasesStatement struct{}

// ShowTablesStatement is SHOW TABLES [ON database].
type ShowTablesStatement struct {
	Database string
}

// CreateUserStatement is parsed but cannot be planned.
type CreateUserStatement struct {
	Name        string
	IfNotExists bool
}

// DropUserStatement is parsed but cannot be planned.
type DropUserStatement struct {
	Name    string
	IfExist bool
}

func (*SelectStatement) statementNode()              {}
func (*CreateDatabaseStatement) statementNode()      {}
func (*CreateTableStatement) statementNode()         {}
func (*CreateExternalTableStatement) statementNode() {}
func (*DropStatement) statementNode()                {}
func (*DescribeDatabaseStatement) statementNode()    {}
func (*DescribeTableStatement) statementNode()       {}
func (*ShowDatabasesStatement) statementNode()       {}
func (*ShowTablesStatement) statementNode()          {}
func (*CreateUserStatement) statementNode()          {}
func (*DropUserStatement) statementNode()            {}

func (s *SelectStatement) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(s.Columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(s.Columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.From.String())
	if s.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *s.Limit)
	}
	if s.Offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *s.Offset)
	}
	return sb.String()
}

func (s *CreateDatabaseStatement) String() string {
	var sb strings.Builder
	sb.WriteString("CREATE DATABASE ")
	if s.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.Name)

	var opts []string
	if s.Options.TTL != nil {
		opts = append(opts, "TTL '"+*s.Options.TTL+"'")
	}
	if s.Options.ShardNum != nil {
		opts = append(opts, "SHARD "+strconv.FormatUint(*s.Options.ShardNum, 10))
	}
	if s.Options.VnodeDuration != nil {
		opts = append(opts, "VNODE_DURATION '"+*s.Options.VnodeDuration+"'")
	}
	if s.Options.Replica != nil {
		opts = append(opts, "REPLICA "+strconv.FormatUint(*s.Options.Replica, 10))
	}
	if s.Options.Precision != nil {
		opts = append(opts, "PRECISION '"+*s.Options.Precision+"'")
	}
	if len(opts) > 0 {
		sb.WriteString(" WITH ")
		sb.WriteString(strings.Join(opts, " "))
	}
	return sb.String()
}

func (s *CreateTableStatement) String() string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.Name.String())

	var defs, tags []string
	for _, c := range s.Columns {
		if c.IsTag {
			tags = append(tags, c.Name)
			continue
		}
		def := c.Name + " " + c.DataType
		if c.Encoding != "" {
			def += " CODEC(" + c.Encoding + ")"
		}
		defs = append(defs, def)
	}
	if len(tags) > 0 {
		defs = append(defs, "TAGS("+strings.Join(tags, ", ")+")")
	}
	sb.WriteString("(" + strings.Join(defs, ", ") + ")")
	return sb.String()
}

func (s *CreateExternalTableStatement) String() string {
	var sb strings.Builder
	sb.WriteString("CREATE EXTERNAL TABLE ")
	if s.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.Name.String())
	if len(s.Columns) > 0 {
		defs := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			defs[i] = c.Name + " " + c.DataType
		}
		sb.WriteString("(" + strings.Join(defs, ", ") + ")")
	}
	sb.WriteString(" STORED AS " + s.FileType)
	if s.HasHeader {
		sb.WriteString(" WITH HEADER ROW")
	}
	if s.Delimiter != 0 {
		sb.WriteString(" DELIMITER '" + string(s.Delimiter) + "'")
	}
	if s.Compression != "" {
		sb.WriteString(" COMPRESSION TYPE " + s.Compression)
	}
	if len(s.PartitionedBy) > 0 {
		sb.WriteString(" PARTITIONED BY (" + strings.Join(s.PartitionedBy, ", ") + ")")
	}
	sb.WriteString(" LOCATION '" + s.Location + "'")
	return sb.String()
}

func (s *DropStatement) String() string {
	exists := ""
	if s.IfExist {
		exists = "IF EXISTS "
	}
	return fmt.Sprintf("DROP %s %s%s", s.ObjType, exists, s.Name)
}

func (s *DescribeDatabaseStatement) String() string { return "DESCRIBE DATABASE " + s.Name }

func (s *DescribeTableStatement) String() string { return "DESCRIBE TABLE " + s.Name.String() }

func (s *ShowDatabasesStatement) String() string { return "SHOW DATABASES" }

func (s *ShowTablesStatement) String() string {
	if s.Database == "" {
		return "SHOW TABLES"
	}
	return "SHOW TABLES ON " + s.Database
}

func (s *CreateUserStatement) String() string { return "CREATE USER " + s.Name }

func (s *DropUserStatement) String() string { return "DROP USER " + s.Name }
