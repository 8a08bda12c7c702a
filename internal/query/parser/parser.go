package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %q)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses SQL statements into AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses ';'-separated statements. Empty input yields no statements.
func Parse(input string) ([]Statement, error) {
	return NewParser(input).ParseStatements()
}

// SQLParser adapts Parse to the dispatcher's parser contract.
type SQLParser struct{}

// NewSQLParser returns a stateless parser.
func NewSQLParser() *SQLParser { return &SQLParser{} }

func (*SQLParser) Parse(sql string) ([]Statement, error) {
	return Parse(sql)
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// curKeyword reports whether the current token is the keyword kw.
func (p *Parser) curKeyword(kw string) bool {
	return p.curToken.Type == TokenKeyword && p.curToken.Literal == kw
}

// curWord reports whether the current token is an unquoted identifier equal
// to word, ignoring case. Used for option names that are not reserved.
func (p *Parser) curWord(word string) bool {
	return p.curToken.Type == TokenIdent && strings.EqualFold(p.curToken.Literal, word)
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect consumes the current token if it has type t.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf("expected %s", t.String())
	}
	p.nextToken()
	return nil
}

// expectKeywords consumes the keywords in order.
func (p *Parser) expectKeywords(kws ...string) error {
	for _, kw := range kws {
		if !p.curKeyword(kw) {
			return p.errorf("expected %s", kw)
		}
		p.nextToken()
	}
	return nil
}

// ParseStatements parses statements until EOF.
func (p *Parser) ParseStatements() ([]Statement, error) {
	var stmts []Statement
	for {
		for p.curTokenIs(TokenSemicolon) {
			p.nextToken()
		}
		if p.curTokenIs(TokenEOF) {
			return stmts, nil
		}
		stmt, err := p.ParseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		if !p.curTokenIs(TokenSemicolon) && !p.curTokenIs(TokenEOF) {
			return nil, p.errorf("expected end of statement")
		}
	}
}

// ParseStatement parses one statement starting at the current token.
func (p *Parser) ParseStatement() (Statement, error) {
	if p.curTokenIs(TokenError) {
		return nil, p.errorf("invalid token")
	}
	switch {
	case p.curKeyword("SELECT"):
		return p.parseSelectStatement()
	case p.curKeyword("CREATE"):
		p.nextToken()
		return p.parseCreate()
	case p.curKeyword("DROP"):
		p.nextToken()
		return p.parseDrop()
	case p.curKeyword("DESCRIBE"):
		p.nextToken()
		return p.parseDescribe()
	case p.curKeyword("SHOW"):
		p.nextToken()
		return p.parseShow()
	default:
		return nil, p.errorf("expected SELECT, CREATE, DROP, DESCRIBE or SHOW")
	}
}

// parseSelectStatement parses a SELECT statement.
func (p *Parser) parseSelectStatement() (*SelectStatement, error) {
	stmt := &SelectStatement{}

	// Skip SELECT
	p.nextToken()

	if p.curTokenIs(TokenStar) {
		p.nextToken()
	} else {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.Columns = cols
	}

	if err := p.expectKeywords("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseObjectName()
	if err != nil {
		return nil, err
	}
	stmt.From = from

	if p.curKeyword("LIMIT") {
		p.nextToken()
		limit, err := p.parseInt64("LIMIT")
		if err != nil {
			return nil, err
		}
		stmt.Limit = &limit
	}

	if p.curKeyword("OFFSET") {
		p.nextToken()
		offset, err := p.parseInt64("OFFSET")
		if err != nil {
			return nil, err
		}
		stmt.Offset = &offset
	}

	return stmt, nil
}

func (p *Parser) parseCreate() (Statement, error) {
	switch {
	case p.curKeyword("DATABASE"):
		p.nextToken()
		return p.parseCreateDatabase()
	case p.curKeyword("TABLE"):
		p.nextToken()
		return p.parseCreateTable()
	case p.curKeyword("EXTERNAL"):
		p.nextToken()
		if err := p.expectKeywords("TABLE"); err != nil {
			return nil, err
		}
		return p.parseCreateExternalTable()
	case p.curKeyword("USER"):
		p.nextToken()
		return p.parseCreateUser()
	default:
		return nil, p.errorf("expected DATABASE, TABLE, EXTERNAL TABLE or USER after CREATE")
	}
}

// parseIfNotExists consumes an optional IF NOT EXISTS.
func (p *Parser) parseIfNotExists() (bool, error) {
	if !p.curKeyword("IF") {
		return false, nil
	}
	p.nextToken()
	if err := p.expectKeywords("NOT", "EXISTS"); err != nil {
		return false, err
	}
	return true, nil
}

// parseIfExists consumes an optional IF EXISTS.
func (p *Parser) parseIfExists() (bool, error) {
	if !p.curKeyword("IF") {
		return false, nil
	}
	p.nextToken()
	if err := p.expectKeywords("EXISTS"); err != nil {
		return false, err
	}
	return true, nil
}

var databaseOptions = map[string]bool{
	"TTL":            true,
	"SHARD":          true,
	"VNODE_DURATION": true,
	"REPLICA":        true,
	"PRECISION":      true,
}

func (p *Parser) parseCreateDatabase() (*CreateDatabaseStatement, error) {
	stmt := &CreateDatabaseStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.parseIdent(); err != nil {
		return nil, err
	}
	if !p.curKeyword("WITH") {
		return stmt, nil
	}
	p.nextToken()

	seen := make(map[string]bool)
	for p.curTokenIs(TokenIdent) {
		name := strings.ToUpper(p.curToken.Literal)
		if !databaseOptions[name] {
			return nil, p.errorf("unknown database option %s", name)
		}
		if seen[name] {
			return nil, p.errorf("duplicate database option %s", name)
		}
		seen[name] = true
		p.nextToken()

		switch name {
		case "TTL":
			v, err := p.parseOptionValue(name)
			if err != nil {
				return nil, err
			}
			stmt.Options.TTL = &v
		case "VNODE_DURATION":
			v, err := p.parseOptionValue(name)
			if err != nil {
				return nil, err
			}
			stmt.Options.VnodeDuration = &v
		case "PRECISION":
			v, err := p.parseOptionValue(name)
			if err != nil {
				return nil, err
			}
			stmt.Options.Precision = &v
		case "SHARD":
			v, err := p.parseUint64(name)
			if err != nil {
				return nil, err
			}
			stmt.Options.ShardNum = &v
		case "REPLICA":
			v, err := p.parseUint64(name)
			if err != nil {
				return nil, err
			}
			stmt.Options.Replica = &v
		}
	}
	if len(seen) == 0 {
		return nil, p.errorf("expected database option after WITH")
	}
	return stmt, nil
}

// parseOptionValue accepts a string, number or bare word.
func (p *Parser) parseOptionValue(option string) (string, error) {
	switch p.curToken.Type {
	case TokenString, TokenNumber, TokenIdent:
		v := p.curToken.Literal
		p.nextToken()
		return v, nil
	default:
		return "", p.errorf("expected value for %s", option)
	}
}

func (p *Parser) parseCreateTable() (*CreateTableStatement, error) {
	stmt := &CreateTableStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.parseObjectName(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	for {
		if p.curKeyword("TAGS") {
			p.nextToken()
			if err := p.expect(TokenLParen); err != nil {
				return nil, err
			}
			tags, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			for _, tag := range tags {
				stmt.Columns = append(stmt.Columns, ColumnOption{Name: tag, IsTag: true, DataType: "STRING"})
			}
		} else {
			col, err := p.parseColumnOption()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
		}

		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}

	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseColumnOption() (ColumnOption, error) {
	name, err := p.parseIdent()
	if err != nil {
		return ColumnOption{}, err
	}
	dataType, err := p.parseDataType()
	if err != nil {
		return ColumnOption{}, err
	}
	col := ColumnOption{Name: name, DataType: dataType}

	if p.curKeyword("CODEC") {
		p.nextToken()
		if err := p.expect(TokenLParen); err != nil {
			return ColumnOption{}, err
		}
		if !p.curTokenIs(TokenIdent) {
			return ColumnOption{}, p.errorf("expected encoding name")
		}
		col.Encoding = strings.ToUpper(p.curToken.Literal)
		p.nextToken()
		if err := p.expect(TokenRParen); err != nil {
			return ColumnOption{}, err
		}
	}
	return col, nil
}

// parseDataType reads a type name, joining a trailing UNSIGNED.
func (p *Parser) parseDataType() (string, error) {
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf("expected data type")
	}
	dataType := strings.ToUpper(p.curToken.Literal)
	p.nextToken()
	if p.curWord("UNSIGNED") {
		dataType += " UNSIGNED"
		p.nextToken()
	}
	return dataType, nil
}

func (p *Parser) parseCreateExternalTable() (*CreateExternalTableStatement, error) {
	stmt := &CreateExternalTableStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.parseObjectName(); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenLParen) {
		p.nextToken()
		for {
			name, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			dataType, err := p.parseDataType()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, ColumnDef{Name: name, DataType: dataType})
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeywords("STORED", "AS"); err != nil {
		return nil, err
	}
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected file type after STORED AS")
	}
	stmt.FileType = strings.ToUpper(p.curToken.Literal)
	p.nextToken()

	hasLocation := false
	for {
		switch {
		case p.curKeyword("WITH"):
			p.nextToken()
			if err := p.expectKeywords("HEADER", "ROW"); err != nil {
				return nil, err
			}
			stmt.HasHeader = true
		case p.curKeyword("DELIMITER"):
			p.nextToken()
			if !p.curTokenIs(TokenString) || len(p.curToken.Literal) != 1 {
				return nil, p.errorf("expected single character delimiter")
			}
			stmt.Delimiter = p.curToken.Literal[0]
			p.nextToken()
		case p.curKeyword("COMPRESSION"):
			p.nextToken()
			if err := p.expectKeywords("TYPE"); err != nil {
				return nil, err
			}
			if !p.curTokenIs(TokenIdent) {
				return nil, p.errorf("expected compression type")
			}
			stmt.Compression = strings.ToUpper(p.curToken.Literal)
			p.nextToken()
		case p.curKeyword("PARTITIONED"):
			p.nextToken()
			if err := p.expectKeywords("BY"); err != nil {
				return nil, err
			}
			if err := p.expect(TokenLParen); err != nil {
				return nil, err
			}
			cols, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			stmt.PartitionedBy = cols
		case p.curKeyword("LOCATION"):
			p.nextToken()
			if !p.curTokenIs(TokenString) {
				return nil, p.errorf("expected location string")
			}
			stmt.Location = p.curToken.Literal
			hasLocation = true
			p.nextToken()
		default:
			if !hasLocation {
				return nil, p.errorf("missing LOCATION")
			}
			return stmt, nil
		}
	}
}

func (p *Parser) parseCreateUser() (*CreateUserStatement, error) {
	stmt := &CreateUserStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.parseIdent(); err != nil {
		return nil, err
	}
	if p.curKeyword("WITH") {
		p.nextToken()
		if err := p.expectKeywords("PASSWORD"); err != nil {
			return nil, err
		}
		if p.curTokenIs(TokenEq) {
			p.nextToken()
		}
		if !p.curTokenIs(TokenString) {
			return nil, p.errorf("expected password string")
		}
		p.nextToken()
	}
	return stmt, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	switch {
	case p.curKeyword("TABLE"), p.curKeyword("DATABASE"):
		stmt := &DropStatement{ObjType: ObjectTable}
		if p.curKeyword("DATABASE") {
			stmt.ObjType = ObjectDatabase
		}
		p.nextToken()
		var err error
		if stmt.IfExist, err = p.parseIfExists(); err != nil {
			return nil, err
		}
		if stmt.ObjType == ObjectDatabase {
			stmt.Name.Name, err = p.parseIdent()
		} else {
			stmt.Name, err = p.parseObjectName()
		}
		if err != nil {
			return nil, err
		}
		return stmt, nil
	case p.curKeyword("USER"):
		p.nextToken()
		stmt := &DropUserStatement{}
		var err error
		if stmt.IfExist, err = p.parseIfExists(); err != nil {
			return nil, err
		}
		if stmt.Name, err = p.parseIdent(); err != nil {
			return nil, err
		}
		return stmt, nil
	default:
		return nil, p.errorf("expected TABLE, DATABASE or USER after DROP")
	}
}

func (p *Parser) parseDescribe() (Statement, error) {
	if p.curKeyword("DATABASE") {
		p.nextToken()
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &DescribeDatabaseStatement{Name: name}, nil
	}
	if p.curKeyword("TABLE") {
		p.nextToken()
	}
	name, err := p.parseObjectName()
	if err != nil {
		return nil, err
	}
	return &DescribeTableStatement{Name: name}, nil
}

func (p *Parser) parseShow() (Statement, error) {
	switch {
	case p.curKeyword("DATABASES"):
		p.nextToken()
		return &ShowDatabasesStatement{}, nil
	case p.curKeyword("TABLES"):
		p.nextToken()
		stmt := &ShowTablesStatement{}
		if p.curKeyword("ON") {
			p.nextToken()
			db, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			stmt.Database = db
		}
		return stmt, nil
	default:
		return nil, p.errorf("expected DATABASES or TABLES after SHOW")
	}
}

func (p *Parser) parseIdent() (string, error) {
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf("expected identifier")
	}
	name := p.curToken.Literal
	p.nextToken()
	return name, nil
}

// parseIdentList parses ident (',' ident)*.
func (p *Parser) parseIdentList() ([]string, error) {
	var names []string
	for {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if !p.curTokenIs(TokenComma) {
			return names, nil
		}
		p.nextToken()
	}
}

// parseObjectName parses name or db.name.
func (p *Parser) parseObjectName() (ObjectName, error) {
	first, err := p.parseIdent()
	if err != nil {
		return ObjectName{}, err
	}
	if !p.curTokenIs(TokenDot) {
		return ObjectName{Name: first}, nil
	}
	p.nextToken()
	second, err := p.parseIdent()
	if err != nil {
		return ObjectName{}, err
	}
	return ObjectName{Database: first, Name: second}, nil
}

func (p *Parser) parseInt64(clause string) (int64, error) {
	if !p.curTokenIs(TokenNumber) {
		return 0, p.errorf("expected number after %s", clause)
	}
	v, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid %s value", clause)
	}
	p.nextToken()
	return v, nil
}

func (p *Parser) parseUint64(option string) (uint64, error) {
	if !p.curTokenIs(TokenNumber) {
		return 0, p.errorf("expected number for %s", option)
	}
	v, err := strconv.ParseUint(p.curToken.Literal, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid %s value", option)
	}
	p.nextToken()
	return v, nil
}
