// Package parser provides SQL parsing for the catalog statements and simple
// table scans supported by the query server.
package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenKeyword
	TokenNumber
	TokenString

	// Punctuation
	TokenEq        // =
	TokenStar      // *
	TokenComma     // ,
	TokenLParen    // (
	TokenRParen    // )
	TokenDot       // .
	TokenSemicolon // ;
)

// Token represents a lexical token. Keywords carry their upper-cased literal.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in input
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "ERROR"
	case TokenIdent:
		return "IDENT"
	case TokenKeyword:
		return "KEYWORD"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenEq:
		return "="
	case TokenStar:
		return "*"
	case TokenComma:
		return ","
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenDot:
		return "."
	case TokenSemicolon:
		return ";"
	default:
		return "UNKNOWN"
	}
}

// keywords is the reserved word set. Data type names and option names such
// as TTL or SHARD are plain identifiers matched case-insensitively by the
// parser so that they stay usable as column names.
var keywords = map[string]bool{
	"SELECT":      true,
	"FROM":        true,
	"LIMIT":       true,
	"OFFSET":      true,
	"CREATE":      true,
	"DROP":        true,
	"DESCRIBE":    true,
	"SHOW":        true,
	"DATABASE":    true,
	"DATABASES":   true,
	"TABLE":       true,
	"TABLES":      true,
	"EXTERNAL":    true,
	"USER":        true,
	"IF":          true,
	"NOT":         true,
	"EXISTS":      true,
	"WITH":        true,
	"ON":          true,
	"TAGS":        true,
	"CODEC":       true,
	"STORED":      true,
	"AS":          true,
	"HEADER":      true,
	"ROW":         true,
	"DELIMITER":   true,
	"COMPRESSION": true,
	"TYPE":        true,
	"PARTITIONED": true,
	"BY":          true,
	"LOCATION":    true,
	"PASSWORD":    true,
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // Current position in input
	readPos int  // Reading position (after current char)
	ch      byte // Current character
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// skipWhitespace skips whitespace and "--" line comments.
func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	var tok Token

	switch l.ch {
	case '=':
		tok = Token{Type: TokenEq, Literal: "=", Pos: startPos}
	case '*':
		tok = Token{Type: TokenStar, Literal: "*", Pos: startPos}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: startPos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: startPos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: startPos}
	case '.':
		tok = Token{Type: TokenDot, Literal: ".", Pos: startPos}
	case ';':
		tok = Token{Type: TokenSemicolon, Literal: ";", Pos: startPos}
	case '\'':
		return l.readQuoted('\'', TokenString)
	case '"':
		return l.readQuoted('"', TokenIdent)
	case 0:
		tok = Token{Type: TokenEOF, Literal: "", Pos: startPos}
	default:
		if isLetter(l.ch) || l.ch == '_' {
			return l.readIdentifier()
		} else if isDigit(l.ch) {
			return l.readNumber()
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readIdentifier() Token {
	startPos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[startPos:l.pos]
	upper := strings.ToUpper(literal)

	if keywords[upper] {
		return Token{Type: TokenKeyword, Literal: upper, Pos: startPos}
	}
	return Token{Type: TokenIdent, Literal: literal, Pos: startPos}
}

// readNumber reads an unsigned integer literal.
func (l *Lexer) readNumber() Token {
	startPos := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[startPos:l.pos], Pos: startPos}
}

// readQuoted reads a literal enclosed in quote; a doubled quote is an escaped quote.
func (l *Lexer) readQuoted(quote byte, typ TokenType) Token {
	startPos := l.pos
	l.readChar() // Skip opening quote

	var sb strings.Builder
	for {
		switch {
		case l.ch == 0:
			return Token{Type: TokenError, Literal: "unterminated quoted literal", Pos: startPos}
		case l.ch == quote && l.peekChar() == quote:
			sb.WriteByte(quote)
			l.readChar()
			l.readChar()
		case l.ch == quote:
			l.readChar()
			return Token{Type: typ, Literal: sb.String(), Pos: startPos}
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// Tokenize returns all tokens from the input.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
