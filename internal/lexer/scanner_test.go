package lexer

import (
	"testing"

	"github.com/nalgeon/be"

	"github.com/Cryptex-github/Terbium/internal/diag"
)

func scan(t *testing.T, src string) ([]Token, []diag.Diagnostic) {
	t.Helper()
	diags := diag.NewCollector()
	return Tokenize(src, diags), diags.All()
}

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestScanLetStatement(t *testing.T) {
	tokens, diags := scan(t, "let x = 10 + 2;")
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{
		TokenLet, TokenIdent, TokenEqual, TokenInt, TokenPlus, TokenInt, TokenSemicolon, TokenEOF,
	})
	be.Equal(t, tokens[1].Lexeme, "x")
	be.Equal(t, tokens[3].Literal, "10")
}

func TestScanOperators(t *testing.T) {
	src := "+ - * / % ** == != < <= > >= || && ! | ^ & ~ << >> .. = += -= *= /= %="
	tokens, diags := scan(t, src)
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenStarStar,
		TokenDoubleEqual, TokenNotEqual, TokenLT, TokenLE, TokenGT, TokenGE,
		TokenOr, TokenAnd, TokenNot, TokenPipe, TokenCaret, TokenAmp, TokenTilde,
		TokenShl, TokenShr, TokenDotDot, TokenEqual, TokenPlusEqual, TokenMinusEqual,
		TokenStarEqual, TokenSlashEqual, TokenPercentEqual, TokenEOF,
	})
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	tokens, diags := scan(t, "func mut while for in break continue return match héllo _tmp x1")
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{
		TokenFunc, TokenMut, TokenWhile, TokenFor, TokenIn, TokenBreak, TokenContinue,
		TokenReturn, TokenMatch, TokenIdent, TokenIdent, TokenIdent, TokenEOF,
	})
	be.Equal(t, tokens[9].Lexeme, "héllo")
	be.True(t, TokenMatch.IsReserved())
	be.Equal(t, TokenIdent.IsReserved(), false)
}

func TestScanNumbers(t *testing.T) {
	tests := []struct {
		src     string
		typ     TokenType
		literal string
	}{
		{"42", TokenInt, "42"},
		{"1_000_000", TokenInt, "1000000"},
		{"0x1F", TokenInt, "31"},
		{"0o17", TokenInt, "15"},
		{"0b1010", TokenInt, "10"},
		{"3.25", TokenFloat, "3.25"},
		{".5", TokenFloat, "0.5"},
		{"1e3", TokenFloat, "1000"},
		{"2.5E-1", TokenFloat, "0.25"},
		{"9223372036854775807", TokenInt, "9223372036854775807"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tokens, diags := scan(t, tt.src)
			be.Equal(t, len(diags), 0)
			be.Equal(t, len(tokens), 2)
			be.Equal(t, tokens[0].Type, tt.typ)
			be.Equal(t, tokens[0].Literal, tt.literal)
		})
	}
}

func TestScanRangeAfterInteger(t *testing.T) {
	tokens, diags := scan(t, "0..10")
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{TokenInt, TokenDotDot, TokenInt, TokenEOF})
}

func TestScanMalformedNumbers(t *testing.T) {
	tests := []struct {
		src     string
		message string
	}{
		{"9223372036854775808", "integer literal 9223372036854775808 out of range"},
		{"0xZZ", "malformed hexadecimal literal 0xZZ"},
		{"1e", "malformed number literal: missing exponent digits"},
		{"1e999", "float literal 1e999 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tokens, diags := scan(t, tt.src)
			be.Equal(t, len(diags), 1)
			be.Equal(t, diags[0].Message, tt.message)
			be.Equal(t, diags[0].Stage, diag.StageLex)
			be.Equal(t, tokens[0].Type, TokenError)
		})
	}
}

func TestScanStrings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"a\nb\tc"`, "a\nb\tc"},
		{`"quote \" and \\"`, `quote " and \`},
		{`'it\'s'`, "it's"},
		{`"\x41é\U0001F600"`, "Aé😀"},
		{`"\b\f\r\0"`, "\b\f\r\x00"},
		{`"naïve"`, "naïve"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tokens, diags := scan(t, tt.src)
			be.Equal(t, len(diags), 0)
			be.Equal(t, tokens[0].Type, TokenString)
			be.Equal(t, tokens[0].Literal, tt.want)
		})
	}
}

func TestScanBadEscapesKeepToken(t *testing.T) {
	tokens, diags := scan(t, `"a\qb" "\uD800" "\x4"`)
	be.Equal(t, len(diags), 3)
	be.Equal(t, diags[0].Message, `unknown escape sequence \q`)
	be.Equal(t, diags[1].Message, `invalid unicode character \uD800`)
	be.Equal(t, diags[2].Message, `invalid escape \x4: expected 2 hex digits`)
	be.Equal(t, types(tokens), []TokenType{TokenString, TokenString, TokenString, TokenEOF})
	be.Equal(t, tokens[0].Literal, "a�b")
	be.Equal(t, tokens[1].Literal, "�")
}

func TestScanUnterminatedString(t *testing.T) {
	tokens, diags := scan(t, "let a = \"abc;\nlet b = 1;")
	be.Equal(t, len(diags), 1)
	be.Equal(t, diags[0].Message, "unterminated string literal")
	be.Equal(t, diags[0].Span.Line, 1)
	be.Equal(t, diags[0].Span.Column, 9)
	be.Equal(t, types(tokens), []TokenType{
		TokenLet, TokenIdent, TokenEqual, TokenError,
		TokenLet, TokenIdent, TokenEqual, TokenInt, TokenSemicolon, TokenEOF,
	})
}

func TestScanInvalidCharacterContinues(t *testing.T) {
	tokens, diags := scan(t, "1 @ 2 $")
	be.Equal(t, len(diags), 2)
	be.Equal(t, diags[0].Message, "unexpected character '@'")
	be.Equal(t, diags[1].Span.Column, 7)
	be.Equal(t, types(tokens), []TokenType{TokenInt, TokenError, TokenInt, TokenError, TokenEOF})
}

func TestScanComments(t *testing.T) {
	src := "// line comment\nlet /* inline */ x = 1; /* multi\nline */ x"
	tokens, diags := scan(t, src)
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{
		TokenLet, TokenIdent, TokenEqual, TokenInt, TokenSemicolon, TokenIdent, TokenEOF,
	})
	last := tokens[5]
	be.Equal(t, last.Span.Line, 3)
	be.Equal(t, last.Span.Column, 9)
}

func TestScanUnterminatedBlockComment(t *testing.T) {
	tokens, diags := scan(t, "x /* never closed")
	be.Equal(t, len(diags), 1)
	be.Equal(t, diags[0].Message, "unterminated block comment")
	be.Equal(t, types(tokens), []TokenType{TokenIdent, TokenEOF})
}

func TestScanSpans(t *testing.T) {
	tokens, _ := scan(t, "let  héllo = 1\n  x")
	be.Equal(t, tokens[1].Span, diag.Span{Start: 5, End: 11, Line: 1, Column: 6})
	be.Equal(t, tokens[2].Span.Column, 12)
	x := tokens[4]
	be.Equal(t, x.Span.Line, 2)
	be.Equal(t, x.Span.Column, 3)
	eof := tokens[5]
	be.Equal(t, eof.Type, TokenEOF)
	be.Equal(t, eof.Span.Start, len("let  héllo = 1\n  x"))
}

func TestScanShebang(t *testing.T) {
	tokens, diags := scan(t, "#!/usr/bin/env terbium\n1")
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{TokenInt, TokenEOF})
	be.Equal(t, tokens[0].Span.Line, 2)
}

func TestScanEmptySource(t *testing.T) {
	tokens, diags := scan(t, "")
	be.Equal(t, len(diags), 0)
	be.Equal(t, types(tokens), []TokenType{TokenEOF})
}

func TestCategories(t *testing.T) {
	be.Equal(t, TokenLet.Category(), CategoryKeyword)
	be.Equal(t, TokenIdent.Category(), CategoryIdentifier)
	be.Equal(t, TokenTrue.Category(), CategoryLiteral)
	be.Equal(t, TokenShl.Category(), CategoryOperator)
	be.Equal(t, TokenSemicolon.Category(), CategoryPunctuation)
	be.Equal(t, TokenEOF.Category(), CategoryOther)
	be.Equal(t, CategoryOperator.String(), "operator")
}

func TestDescribe(t *testing.T) {
	tokens, _ := scan(t, "foo 12 \"s\" let ;")
	be.Equal(t, tokens[0].Describe(), `identifier "foo"`)
	be.Equal(t, tokens[1].Describe(), "number 12")
	be.Equal(t, tokens[2].Describe(), "string literal")
	be.Equal(t, tokens[3].Describe(), "keyword 'let'")
	be.Equal(t, tokens[4].Describe(), "';'")
	be.Equal(t, tokens[5].Describe(), "end of file")
}
