package lexer

import (
	"fmt"

	"github.com/Cryptex-github/Terbium/internal/diag"
)

type TokenType string

const (
	// Keywords
	TokenFunc     TokenType = "FUNC"
	TokenLet      TokenType = "LET"
	TokenConst    TokenType = "CONST"
	TokenMut      TokenType = "MUT"
	TokenIf       TokenType = "IF"
	TokenElse     TokenType = "ELSE"
	TokenWhile    TokenType = "WHILE"
	TokenFor      TokenType = "FOR"
	TokenIn       TokenType = "IN"
	TokenBreak    TokenType = "BREAK"
	TokenContinue TokenType = "CONTINUE"
	TokenReturn   TokenType = "RETURN"
	TokenTrue     TokenType = "TRUE"
	TokenFalse    TokenType = "FALSE"
	TokenNull     TokenType = "NULL"

	// Reserved for later language versions. They scan as keywords so
	// programs cannot bind them as names.
	TokenClass   TokenType = "CLASS"
	TokenRequire TokenType = "REQUIRE"
	TokenExport  TokenType = "EXPORT"
	TokenPrivate TokenType = "PRIVATE"
	TokenMatch   TokenType = "MATCH"
	TokenWith    TokenType = "WITH"
	TokenThrows  TokenType = "THROWS"
	TokenWhere   TokenType = "WHERE"

	// Literals
	TokenIdent  TokenType = "IDENT"
	TokenInt    TokenType = "INT"
	TokenFloat  TokenType = "FLOAT"
	TokenString TokenType = "STRING"

	// Symbols
	TokenLParen       TokenType = "("
	TokenRParen       TokenType = ")"
	TokenLBrace       TokenType = "{"
	TokenRBrace       TokenType = "}"
	TokenLBracket     TokenType = "["
	TokenRBracket     TokenType = "]"
	TokenComma        TokenType = ","
	TokenSemicolon    TokenType = ";"
	TokenPlus         TokenType = "+"
	TokenMinus        TokenType = "-"
	TokenStar         TokenType = "*"
	TokenSlash        TokenType = "/"
	TokenPercent      TokenType = "%"
	TokenStarStar     TokenType = "**"
	TokenEqual        TokenType = "="
	TokenPlusEqual    TokenType = "+="
	TokenMinusEqual   TokenType = "-="
	TokenStarEqual    TokenType = "*="
	TokenSlashEqual   TokenType = "/="
	TokenPercentEqual TokenType = "%="
	TokenDoubleEqual  TokenType = "=="
	TokenNotEqual     TokenType = "!="
	TokenLT           TokenType = "<"
	TokenGT           TokenType = ">"
	TokenLE           TokenType = "<="
	TokenGE           TokenType = ">="
	TokenAnd          TokenType = "&&"
	TokenOr           TokenType = "||"
	TokenNot          TokenType = "!"
	TokenAmp          TokenType = "&"
	TokenPipe         TokenType = "|"
	TokenCaret        TokenType = "^"
	TokenTilde        TokenType = "~"
	TokenShl          TokenType = "<<"
	TokenShr          TokenType = ">>"
	TokenDotDot       TokenType = ".."

	TokenError TokenType = "ERROR"
	TokenEOF   TokenType = "EOF"
)

var keywords = map[string]TokenType{
	"func":     TokenFunc,
	"let":      TokenLet,
	"const":    TokenConst,
	"mut":      TokenMut,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"in":       TokenIn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
	"class":    TokenClass,
	"require":  TokenRequire,
	"export":   TokenExport,
	"private":  TokenPrivate,
	"match":    TokenMatch,
	"with":     TokenWith,
	"throws":   TokenThrows,
	"where":    TokenWhere,
}

// LookupKeyword returns the keyword type for ident, or TokenIdent.
func LookupKeyword(ident string) TokenType {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return TokenIdent
}

// Category groups token types for tooling (highlighting, error messages)
type Category int

const (
	CategoryOther Category = iota
	CategoryKeyword
	CategoryIdentifier
	CategoryLiteral
	CategoryOperator
	CategoryPunctuation
)

func (c Category) String() string {
	switch c {
	case CategoryKeyword:
		return "keyword"
	case CategoryIdentifier:
		return "identifier"
	case CategoryLiteral:
		return "literal"
	case CategoryOperator:
		return "operator"
	case CategoryPunctuation:
		return "punctuation"
	default:
		return "other"
	}
}

// Category classifies the token type.
func (t TokenType) Category() Category {
	switch t {
	case TokenIdent:
		return CategoryIdentifier
	case TokenInt, TokenFloat, TokenString, TokenTrue, TokenFalse, TokenNull:
		return CategoryLiteral
	case TokenLParen, TokenRParen, TokenLBrace, TokenRBrace, TokenLBracket, TokenRBracket,
		TokenComma, TokenSemicolon:
		return CategoryPunctuation
	case TokenError, TokenEOF:
		return CategoryOther
	}
	for _, kw := range keywords {
		if kw == t {
			return CategoryKeyword
		}
	}
	return CategoryOperator
}

// IsReserved reports whether t is a keyword with no meaning yet.
func (t TokenType) IsReserved() bool {
	switch t {
	case TokenClass, TokenRequire, TokenExport, TokenPrivate, TokenMatch, TokenWith, TokenThrows, TokenWhere:
		return true
	}
	return false
}

// Token is a lexeme with its classification. Literal holds the cooked
// value of INT, FLOAT and STRING tokens: the canonical decimal digits for
// numbers and the unescaped text for strings.
type Token struct {
	Type    TokenType
	Lexeme  string
	Literal string
	Span    diag.Span
}

func (t Token) String() string {
	return fmt.Sprintf("[%s] '%s'", t.Type, t.Lexeme)
}

// Describe renders the token for "expected X, found Y" messages.
func (t Token) Describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of file"
	case TokenIdent:
		return fmt.Sprintf("identifier %q", t.Lexeme)
	case TokenInt, TokenFloat:
		return fmt.Sprintf("number %s", t.Lexeme)
	case TokenString:
		return "string literal"
	}
	if t.Type.Category() == CategoryKeyword {
		return fmt.Sprintf("keyword '%s'", t.Lexeme)
	}
	return fmt.Sprintf("'%s'", t.Lexeme)
}
