package lexer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Cryptex-github/Terbium/internal/diag"
)

// Scanner turns source text into tokens. Lexical problems are reported to
// the diagnostics collector and scanning continues; the token stream always
// ends with exactly one EOF token.
type Scanner struct {
	source  string
	diags   *diag.Collector
	tokens  []Token
	start   int
	current int

	line      int
	lineStart int

	startLine int
	startCol  int
}

func NewScanner(source string, diags *diag.Collector) *Scanner {
	if diags == nil {
		diags = diag.NewCollector()
	}
	return &Scanner{
		source: source,
		diags:  diags,
		line:   1,
	}
}

// Tokenize scans source with a fresh scanner.
func Tokenize(source string, diags *diag.Collector) []Token {
	return NewScanner(source, diags).ScanTokens()
}

func (s *Scanner) ScanTokens() []Token {
	if strings.HasPrefix(s.source, "#!") {
		s.skipShebang()
	}

	for {
		s.skipTrivia()
		if s.isAtEnd() {
			break
		}
		s.mark()
		s.scanToken()
	}
	s.mark()
	s.tokens = append(s.tokens, Token{Type: TokenEOF, Span: s.span()})
	return s.tokens
}

func (s *Scanner) scanToken() {
	c := s.advance()
	switch c {
	case '(':
		s.addToken(TokenLParen)
	case ')':
		s.addToken(TokenRParen)
	case '{':
		s.addToken(TokenLBrace)
	case '}':
		s.addToken(TokenRBrace)
	case '[':
		s.addToken(TokenLBracket)
	case ']':
		s.addToken(TokenRBracket)
	case ',':
		s.addToken(TokenComma)
	case ';':
		s.addToken(TokenSemicolon)
	case '~':
		s.addToken(TokenTilde)
	case '^':
		s.addToken(TokenCaret)
	case '+':
		s.addToken(s.pick('=', TokenPlusEqual, TokenPlus))
	case '-':
		s.addToken(s.pick('=', TokenMinusEqual, TokenMinus))
	case '/':
		s.addToken(s.pick('=', TokenSlashEqual, TokenSlash))
	case '%':
		s.addToken(s.pick('=', TokenPercentEqual, TokenPercent))
	case '*':
		if s.match('*') {
			s.addToken(TokenStarStar)
		} else {
			s.addToken(s.pick('=', TokenStarEqual, TokenStar))
		}
	case '=':
		s.addToken(s.pick('=', TokenDoubleEqual, TokenEqual))
	case '!':
		s.addToken(s.pick('=', TokenNotEqual, TokenNot))
	case '<':
		if s.match('<') {
			s.addToken(TokenShl)
		} else {
			s.addToken(s.pick('=', TokenLE, TokenLT))
		}
	case '>':
		if s.match('>') {
			s.addToken(TokenShr)
		} else {
			s.addToken(s.pick('=', TokenGE, TokenGT))
		}
	case '&':
		s.addToken(s.pick('&', TokenAnd, TokenAmp))
	case '|':
		s.addToken(s.pick('|', TokenOr, TokenPipe))
	case '.':
		switch {
		case s.match('.'):
			s.addToken(TokenDotDot)
		case isDigit(s.peek()):
			s.number()
		default:
			s.invalid("unexpected character '.'")
		}
	case '"', '\'':
		s.string(c)
	default:
		switch {
		case isDigit(c):
			s.number()
		case c == '_' || isASCIILetter(c):
			s.identifier()
		case c >= utf8.RuneSelf:
			s.current = s.start
			r, size := utf8.DecodeRuneInString(s.source[s.current:])
			s.current += size
			if r == utf8.RuneError && size == 1 {
				s.invalid("invalid UTF-8 encoding")
			} else if unicode.IsLetter(r) {
				s.identifier()
			} else {
				s.invalid("unexpected character %q", r)
			}
		default:
			s.invalid("unexpected character %q", rune(c))
		}
	}
}

func (s *Scanner) identifier() {
	for !s.isAtEnd() {
		r, size := utf8.DecodeRuneInString(s.source[s.current:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		s.current += size
	}
	text := s.source[s.start:s.current]
	s.addToken(LookupKeyword(text))
}

func (s *Scanner) number() {
	if s.source[s.start] == '0' && s.current == s.start+1 {
		switch s.peek() {
		case 'x', 'X':
			s.advance()
			s.radixNumber(16, "hexadecimal")
			return
		case 'o', 'O':
			s.advance()
			s.radixNumber(8, "octal")
			return
		case 'b', 'B':
			s.advance()
			s.radixNumber(2, "binary")
			return
		}
	}

	isFloat := s.source[s.start] == '.'
	s.digits(10)
	if !isFloat && s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance()
		isFloat = true
		s.digits(10)
	}
	if c := s.peek(); c == 'e' || c == 'E' {
		s.advance()
		if c := s.peek(); c == '+' || c == '-' {
			s.advance()
		}
		if !isDigit(s.peek()) {
			s.invalid("malformed number literal: missing exponent digits")
			return
		}
		s.digits(10)
		isFloat = true
	}

	text := strings.ReplaceAll(s.source[s.start:s.current], "_", "")
	if isFloat {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			s.invalid("float literal %s out of range", s.source[s.start:s.current])
			return
		}
		s.addLiteral(TokenFloat, strconv.FormatFloat(v, 'g', -1, 64))
		return
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		s.invalid("integer literal %s out of range", s.source[s.start:s.current])
		return
	}
	s.addLiteral(TokenInt, strconv.FormatInt(v, 10))
}

func (s *Scanner) radixNumber(base int, name string) {
	digitsStart := s.current
	s.digits(base)
	if s.current == digitsStart {
		// Swallow trailing alphanumerics so "0xZZ" is one bad token.
		for isASCIILetter(s.peek()) || isDigit(s.peek()) {
			s.advance()
		}
		s.invalid("malformed %s literal %s", name, s.source[s.start:s.current])
		return
	}
	text := strings.ReplaceAll(s.source[digitsStart:s.current], "_", "")
	v, err := strconv.ParseInt(text, base, 64)
	if err != nil {
		s.invalid("integer literal %s out of range", s.source[s.start:s.current])
		return
	}
	s.addLiteral(TokenInt, strconv.FormatInt(v, 10))
}

// digits consumes digits of the given base. An underscore is accepted
// only between two digits.
func (s *Scanner) digits(base int) {
	for {
		c := s.peek()
		if isBaseDigit(c, base) {
			s.advance()
			continue
		}
		if c == '_' && s.current > s.start && isBaseDigit(s.source[s.current-1], base) && isBaseDigit(s.peekNext(), base) {
			s.advance()
			continue
		}
		return
	}
}

func (s *Scanner) string(quote byte) {
	var sb strings.Builder
	for {
		if s.isAtEnd() || s.peek() == '\n' {
			s.invalid("unterminated string literal")
			return
		}
		c := s.peek()
		if c == quote {
			s.advance()
			break
		}
		if c == '\\' {
			s.escape(&sb)
			continue
		}
		r, size := utf8.DecodeRuneInString(s.source[s.current:])
		s.current += size
		sb.WriteRune(r)
	}
	s.addLiteral(TokenString, sb.String())
}

// escape decodes one escape sequence. Bad sequences are reported and
// replaced with U+FFFD so the string token itself survives.
func (s *Scanner) escape(sb *strings.Builder) {
	escStart := s.current
	s.advance() // backslash
	if s.isAtEnd() || s.peek() == '\n' {
		return
	}
	c := s.advance()
	switch c {
	case '\\', '"', '\'':
		sb.WriteByte(c)
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '0':
		sb.WriteByte(0)
	case 'x':
		s.hexEscape(sb, escStart, 2)
	case 'u':
		s.hexEscape(sb, escStart, 4)
	case 'U':
		s.hexEscape(sb, escStart, 8)
	default:
		if c >= utf8.RuneSelf {
			s.current--
			_, size := utf8.DecodeRuneInString(s.source[s.current:])
			s.current += size
		}
		s.diags.Errorf(diag.StageLex, s.spanAt(escStart, s.current), "unknown escape sequence %s", s.source[escStart:s.current])
		sb.WriteRune(utf8.RuneError)
	}
}

func (s *Scanner) hexEscape(sb *strings.Builder, escStart, n int) {
	digitsStart := s.current
	for i := 0; i < n && isBaseDigit(s.peek(), 16); i++ {
		s.advance()
	}
	text := s.source[digitsStart:s.current]
	if len(text) != n {
		s.diags.Errorf(diag.StageLex, s.spanAt(escStart, s.current), "invalid escape %s: expected %d hex digits", s.source[escStart:s.current], n)
		sb.WriteRune(utf8.RuneError)
		return
	}
	v, _ := strconv.ParseUint(text, 16, 32)
	r := rune(v)
	if n > 2 && !utf8.ValidRune(r) {
		s.diags.Errorf(diag.StageLex, s.spanAt(escStart, s.current), "invalid unicode character %s", s.source[escStart:s.current])
		r = utf8.RuneError
	}
	sb.WriteRune(r)
}

func (s *Scanner) skipTrivia() {
	for !s.isAtEnd() {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.advance()
		case '\n':
			s.advance()
			s.newline()
		case '/':
			switch s.peekNext() {
			case '/':
				for !s.isAtEnd() && s.peek() != '\n' {
					s.advance()
				}
			case '*':
				s.blockComment()
			default:
				return
			}
		default:
			return
		}
	}
}

func (s *Scanner) blockComment() {
	s.mark()
	s.current += 2
	for !s.isAtEnd() {
		if s.peek() == '*' && s.peekNext() == '/' {
			s.current += 2
			return
		}
		if s.advance() == '\n' {
			s.newline()
		}
	}
	s.diags.Errorf(diag.StageLex, diag.Span{Start: s.start, End: s.start + 2, Line: s.startLine, Column: s.startCol}, "unterminated block comment")
}

func (s *Scanner) skipShebang() {
	for !s.isAtEnd() && s.peek() != '\n' {
		s.advance()
	}
}

// invalid reports a lexical error covering the current lexeme and emits
// an ERROR token so the parser can recover without a second message.
func (s *Scanner) invalid(format string, args ...interface{}) {
	s.diags.Errorf(diag.StageLex, s.span(), format, args...)
	s.addToken(TokenError)
}

func (s *Scanner) addToken(t TokenType) {
	s.addLiteral(t, "")
}

func (s *Scanner) addLiteral(t TokenType, literal string) {
	s.tokens = append(s.tokens, Token{
		Type:    t,
		Lexeme:  s.source[s.start:s.current],
		Literal: literal,
		Span:    s.span(),
	})
}

// pick consumes expected and returns yes if it is next, otherwise no.
func (s *Scanner) pick(expected byte, yes, no TokenType) TokenType {
	if s.match(expected) {
		return yes
	}
	return no
}

func (s *Scanner) mark() {
	s.start = s.current
	s.startLine = s.line
	s.startCol = s.column(s.current)
}

func (s *Scanner) span() diag.Span {
	return diag.Span{Start: s.start, End: s.current, Line: s.startLine, Column: s.startCol}
}

// spanAt builds a span for a range on the current line.
func (s *Scanner) spanAt(start, end int) diag.Span {
	return diag.Span{Start: start, End: end, Line: s.line, Column: s.column(start)}
}

func (s *Scanner) column(offset int) int {
	return utf8.RuneCountInString(s.source[s.lineStart:offset]) + 1
}

func (s *Scanner) newline() {
	s.line++
	s.lineStart = s.current
}

func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.source[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) advance() byte {
	s.current++
	return s.source[s.current-1]
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return 0
	}
	return s.source[s.current+1]
}

func (s *Scanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isBaseDigit(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 16:
		return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	default:
		return isDigit(c)
	}
}
