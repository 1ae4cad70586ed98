package parser

import (
	"strconv"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/lexer"
)

// DefaultMaxDepth bounds expression and block nesting.
const DefaultMaxDepth = 256

const (
	precAssign = iota + 1
	precOr
	precAnd
	precEquality
	precComparison
	precRange
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precTerm
	precFactor
	precUnary
	precPower
)

type operator struct {
	prec  int
	right bool
}

var precedence = map[lexer.TokenType]operator{
	lexer.TokenEqual:        {precAssign, true},
	lexer.TokenPlusEqual:    {precAssign, true},
	lexer.TokenMinusEqual:   {precAssign, true},
	lexer.TokenStarEqual:    {precAssign, true},
	lexer.TokenSlashEqual:   {precAssign, true},
	lexer.TokenPercentEqual: {precAssign, true},

	lexer.TokenOr:  {precOr, false},
	lexer.TokenAnd: {precAnd, false},

	lexer.TokenDoubleEqual: {precEquality, false},
	lexer.TokenNotEqual:    {precEquality, false},

	lexer.TokenLT: {precComparison, false},
	lexer.TokenLE: {precComparison, false},
	lexer.TokenGT: {precComparison, false},
	lexer.TokenGE: {precComparison, false},

	lexer.TokenDotDot: {precRange, false},
	lexer.TokenPipe:   {precBitOr, false},
	lexer.TokenCaret:  {precBitXor, false},
	lexer.TokenAmp:    {precBitAnd, false},

	lexer.TokenShl: {precShift, false},
	lexer.TokenShr: {precShift, false},

	lexer.TokenPlus:  {precTerm, false},
	lexer.TokenMinus: {precTerm, false},

	lexer.TokenStar:    {precFactor, false},
	lexer.TokenSlash:   {precFactor, false},
	lexer.TokenPercent: {precFactor, false},

	lexer.TokenStarStar: {precPower, true},
}

// Precedence returns the binding power of a binary or assignment operator
// and whether it associates to the right. Higher binds tighter; unary
// operators sit at UnaryPrecedence.
func Precedence(op string) (prec int, right bool, ok bool) {
	o, ok := precedence[lexer.TokenType(op)]
	return o.prec, o.right, ok
}

const UnaryPrecedence = precUnary

// Parser builds a Program from tokens. It never stops at the first error:
// after reporting one it enters panic mode, stays quiet, and resumes at the
// next statement boundary.
type Parser struct {
	tokens  []lexer.Token
	current int
	diags   *diag.Collector

	panicking bool
	depth     int
	tooDeep   bool

	MaxDepth int
}

func NewParser(tokens []lexer.Token, diags *diag.Collector) *Parser {
	if diags == nil {
		diags = diag.NewCollector()
	}
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != lexer.TokenEOF {
		tokens = append(tokens, lexer.Token{Type: lexer.TokenEOF})
	}
	return &Parser{
		tokens:   tokens,
		diags:    diags,
		MaxDepth: DefaultMaxDepth,
	}
}

// Parse scans and parses source in one step.
func Parse(source string, diags *diag.Collector) *Program {
	if diags == nil {
		diags = diag.NewCollector()
	}
	return NewParser(lexer.Tokenize(source, diags), diags).Parse()
}

func (p *Parser) Parse() *Program {
	start := p.peek().Span
	stmts, tail := p.blockBody(true)
	return &Program{
		Stmts: stmts,
		Tail:  tail,
		Span:  start.Through(p.peek().Span),
	}
}

// blockBody parses statements up to '}' (or EOF at top level). A final
// expression with no semicolon becomes the tail.
func (p *Parser) blockBody(topLevel bool) ([]Stmt, Expr) {
	var stmts []Stmt
	for !p.atBlockEnd(topLevel) {
		if p.check(lexer.TokenRBrace) {
			p.errorAtCurrent("unexpected '}'")
			p.advance()
			p.panicking = false
			continue
		}
		if p.match(lexer.TokenSemicolon) {
			continue
		}

		before := p.current
		stmt, tail := p.declaration(topLevel)
		if tail != nil {
			return stmts, tail
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.panicking {
			p.synchronize()
		}
		if p.current == before && !p.atBlockEnd(topLevel) {
			p.advance()
		}
	}
	return stmts, nil
}

func (p *Parser) atBlockEnd(topLevel bool) bool {
	return p.isAtEnd() || (!topLevel && p.check(lexer.TokenRBrace))
}

func (p *Parser) declaration(topLevel bool) (Stmt, Expr) {
	switch p.peek().Type {
	case lexer.TokenLet:
		return p.letStatement(), nil
	case lexer.TokenConst:
		return p.constStatement(), nil
	case lexer.TokenFunc:
		if p.checkNext(lexer.TokenIdent) {
			return p.functionStatement(), nil
		}
	case lexer.TokenReturn:
		return p.returnStatement(), nil
	case lexer.TokenBreak:
		tok := p.advance()
		p.terminator("'break'")
		return &BreakStmt{Span: tok.Span}, nil
	case lexer.TokenContinue:
		tok := p.advance()
		p.terminator("'continue'")
		return &ContinueStmt{Span: tok.Span}, nil
	}

	if tok := p.peek(); tok.Type.IsReserved() {
		p.errorAtCurrent("'%s' is reserved and cannot be used yet", tok.Lexeme)
		return &ErrorStmt{Span: tok.Span}, nil
	}

	var expr Expr
	switch p.peek().Type {
	case lexer.TokenIf, lexer.TokenWhile, lexer.TokenFor, lexer.TokenLBrace:
		// A block-like expression in statement position ends at its
		// closing brace. "if c { a } -x" is two statements.
		expr = p.primary()
	default:
		expr = p.expression()
	}
	span := expr.Pos()
	if p.match(lexer.TokenSemicolon) {
		p.panicking = false
		return &ExpressionStmt{Expr: expr, Span: span.Through(p.previous().Span)}, nil
	}
	if p.atBlockEnd(topLevel) && !p.panicking {
		return nil, expr
	}
	if !IsBlockLike(expr) {
		p.errorAtCurrent("expected ';' after expression, found %s", p.peek().Describe())
	}
	return &ExpressionStmt{Expr: expr, Span: span}, nil
}

func (p *Parser) letStatement() Stmt {
	start := p.advance()
	mutable := p.match(lexer.TokenMut)
	name, ok := p.consume(lexer.TokenIdent, "expected variable name")
	if !ok {
		return &ErrorStmt{Span: start.Span}
	}
	stmt := &LetStmt{Name: name.Lexeme, NameSpan: name.Span, Mutable: mutable}
	if p.match(lexer.TokenEqual) {
		stmt.Expr = p.expression()
	} else if !p.check(lexer.TokenSemicolon) {
		p.errorAtCurrent("expected '=' after variable name, found %s", p.peek().Describe())
	}
	p.terminator("variable declaration")
	stmt.Span = start.Span.Through(p.previous().Span)
	return stmt
}

func (p *Parser) constStatement() Stmt {
	start := p.advance()
	name, ok := p.consume(lexer.TokenIdent, "expected constant name")
	if !ok {
		return &ErrorStmt{Span: start.Span}
	}
	stmt := &LetStmt{Name: name.Lexeme, NameSpan: name.Span, Const: true}
	if _, ok := p.consume(lexer.TokenEqual, "expected '=' after constant name"); ok {
		stmt.Expr = p.expression()
	} else {
		stmt.Expr = &ErrorExpr{Span: p.peek().Span}
	}
	p.terminator("constant declaration")
	stmt.Span = start.Span.Through(p.previous().Span)
	return stmt
}

func (p *Parser) functionStatement() Stmt {
	start := p.advance()
	name := p.advance()
	lambda := p.function(start, name.Lexeme)
	return &FunctionStmt{
		Name:     name.Lexeme,
		NameSpan: name.Span,
		Lambda:   lambda,
		Span:     lambda.Span,
	}
}

// function parses "(params) { body }" after the func keyword and name.
func (p *Parser) function(start lexer.Token, name string) *LambdaExpr {
	lambda := &LambdaExpr{Name: name}
	if _, ok := p.consume(lexer.TokenLParen, "expected '(' after function name"); ok {
		for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
			mutable := p.match(lexer.TokenMut)
			tok, ok := p.consume(lexer.TokenIdent, "expected parameter name")
			if !ok {
				break
			}
			lambda.Params = append(lambda.Params, &Param{Name: tok.Lexeme, Mutable: mutable, Span: tok.Span})
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.consume(lexer.TokenRParen, "expected ')' after parameters")
	}
	lambda.Body = p.block()
	lambda.Span = start.Span.Through(lambda.Body.Span)
	return lambda
}

func (p *Parser) returnStatement() Stmt {
	start := p.advance()
	stmt := &ReturnStmt{}
	if !p.check(lexer.TokenSemicolon) && !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		stmt.Value = p.expression()
	}
	p.terminator("return value")
	stmt.Span = start.Span.Through(p.previous().Span)
	return stmt
}

// terminator consumes the ';' ending a statement. It may be left out
// right before a closing brace. A consumed ';' is a statement boundary, so
// it also ends panic mode.
func (p *Parser) terminator(what string) {
	if p.match(lexer.TokenSemicolon) {
		p.panicking = false
		return
	}
	if p.check(lexer.TokenRBrace) || p.isAtEnd() {
		return
	}
	p.errorAtCurrent("expected ';' after %s, found %s", what, p.peek().Describe())
}

// synchronize skips to the next statement boundary: past a ';', or up to
// a '}' or a token that starts a statement.
func (p *Parser) synchronize() {
	p.panicking = false
	for !p.isAtEnd() {
		switch p.peek().Type {
		case lexer.TokenSemicolon:
			p.advance()
			return
		case lexer.TokenRBrace, lexer.TokenLet, lexer.TokenConst, lexer.TokenFunc,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenFor, lexer.TokenReturn,
			lexer.TokenBreak, lexer.TokenContinue:
			return
		}
		p.advance()
	}
}

// --- Expression Parsing with Precedence ---
func (p *Parser) expression() Expr {
	return p.parseBinary(precAssign)
}

func (p *Parser) parseBinary(minPrec int) Expr {
	if !p.enter() {
		span := p.peek().Span
		p.skipNested()
		return &ErrorExpr{Span: span}
	}
	defer p.leave()

	left := p.parseUnary()
	for {
		tok := p.peek()
		op, ok := precedence[tok.Type]
		if !ok || op.prec < minPrec {
			break
		}
		p.advance()
		next := op.prec + 1
		if op.right {
			next = op.prec
		}
		right := p.parseBinary(next)
		left = p.makeBinary(left, tok, right)
	}
	return left
}

func (p *Parser) makeBinary(left Expr, op lexer.Token, right Expr) Expr {
	span := left.Pos().Through(right.Pos())
	switch op.Type {
	case lexer.TokenEqual, lexer.TokenPlusEqual, lexer.TokenMinusEqual,
		lexer.TokenStarEqual, lexer.TokenSlashEqual, lexer.TokenPercentEqual:
		switch left.(type) {
		case *Variable, *IndexExpr, *ErrorExpr:
		default:
			p.report(left.Pos(), "invalid assignment target")
		}
		return &Assign{Target: left, Operator: op.Lexeme, Value: right, Span: span}
	case lexer.TokenAnd, lexer.TokenOr:
		return &LogicalExpr{Left: left, Operator: op.Lexeme, Right: right, Span: span}
	}
	return &Binary{Left: left, Operator: op.Lexeme, Right: right, Span: span}
}

// parseUnary binds looser than '**', so -2 ** 2 is -(2 ** 2).
func (p *Parser) parseUnary() Expr {
	switch p.peek().Type {
	case lexer.TokenMinus, lexer.TokenPlus, lexer.TokenNot, lexer.TokenTilde:
		op := p.advance()
		operand := p.parseBinary(precPower)
		return &UnaryExpr{Operator: op.Lexeme, Operand: operand, Span: op.Span.Through(operand.Pos())}
	}
	return p.parseCall()
}

func (p *Parser) parseCall() Expr {
	expr := p.primary()
	for {
		if p.match(lexer.TokenLParen) {
			expr = p.finishCall(expr)
		} else if p.match(lexer.TokenLBracket) {
			index := p.expression()
			end, _ := p.consume(lexer.TokenRBracket, "expected ']' after index")
			expr = &IndexExpr{Object: expr, Index: index, Span: expr.Pos().Through(end.Span)}
		} else {
			break
		}
	}
	return expr
}

func (p *Parser) finishCall(callee Expr) Expr {
	args := []Expr{}
	for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
		args = append(args, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	end, _ := p.consume(lexer.TokenRParen, "expected ')' after arguments")
	return &CallExpr{Callee: callee, Args: args, Span: callee.Pos().Through(end.Span)}
}

func (p *Parser) primary() Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenInt:
		p.advance()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.report(tok.Span, "integer literal %s out of range", tok.Lexeme)
		}
		return &Literal{Value: v, Span: tok.Span}
	case lexer.TokenFloat:
		p.advance()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.report(tok.Span, "float literal %s out of range", tok.Lexeme)
		}
		return &Literal{Value: v, Span: tok.Span}
	case lexer.TokenString:
		p.advance()
		return &Literal{Value: tok.Literal, Span: tok.Span}
	case lexer.TokenTrue:
		p.advance()
		return &Literal{Value: true, Span: tok.Span}
	case lexer.TokenFalse:
		p.advance()
		return &Literal{Value: false, Span: tok.Span}
	case lexer.TokenNull:
		p.advance()
		return &Literal{Value: nil, Span: tok.Span}
	case lexer.TokenIdent:
		p.advance()
		return &Variable{Name: tok.Lexeme, Span: tok.Span}
	case lexer.TokenLParen:
		p.advance()
		expr := p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after expression")
		return expr
	case lexer.TokenLBracket:
		return p.parseArrayLiteral()
	case lexer.TokenLBrace:
		return p.block()
	case lexer.TokenIf:
		return p.ifExpr()
	case lexer.TokenWhile:
		return p.whileExpr()
	case lexer.TokenFor:
		return p.forExpr()
	case lexer.TokenFunc:
		start := p.advance()
		return p.function(start, "")
	case lexer.TokenError:
		// Already reported by the scanner.
		p.advance()
		p.panicking = true
		return &ErrorExpr{Span: tok.Span}
	}
	p.errorAtCurrent("expected expression, found %s", tok.Describe())
	return &ErrorExpr{Span: tok.Span}
}

func (p *Parser) parseArrayLiteral() Expr {
	start := p.advance()
	var elements []Expr
	for !p.check(lexer.TokenRBracket) && !p.isAtEnd() {
		elements = append(elements, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	end, _ := p.consume(lexer.TokenRBracket, "expected ']' after array elements")
	return &ArrayExpr{Elements: elements, Span: start.Span.Through(end.Span)}
}

func (p *Parser) block() *BlockExpr {
	start, ok := p.consume(lexer.TokenLBrace, "expected '{'")
	if !ok {
		return &BlockExpr{Span: start.Span}
	}
	if !p.enter() {
		p.skipBlock()
		return &BlockExpr{Span: start.Span.Through(p.previous().Span)}
	}
	defer p.leave()

	stmts, tail := p.blockBody(false)
	end, _ := p.consume(lexer.TokenRBrace, "expected '}' after block")
	return &BlockExpr{Stmts: stmts, Tail: tail, Span: start.Span.Through(end.Span)}
}

// skipBlock discards tokens up to the matching '}' of a block that is
// nested too deeply to parse.
func (p *Parser) skipBlock() {
	depth := 1
	for !p.isAtEnd() && depth > 0 {
		switch p.advance().Type {
		case lexer.TokenLBrace:
			depth++
		case lexer.TokenRBrace:
			depth--
		}
	}
}

// skipNested discards the rest of an expression that is nested too deeply
// to parse. It stops before a ';' or a closing bracket that belongs to an
// enclosing construct, so each enclosing level still finds its own closer.
func (p *Parser) skipNested() {
	depth := 0
	for !p.isAtEnd() {
		switch p.peek().Type {
		case lexer.TokenLParen, lexer.TokenLBracket, lexer.TokenLBrace:
			depth++
		case lexer.TokenRParen, lexer.TokenRBracket, lexer.TokenRBrace:
			if depth == 0 {
				return
			}
			depth--
		case lexer.TokenSemicolon:
			if depth == 0 {
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) ifExpr() Expr {
	start := p.advance()
	cond := p.expression()
	then := p.block()
	expr := &IfExpr{Cond: cond, ThenBranch: then, Span: start.Span.Through(then.Span)}
	if p.match(lexer.TokenElse) {
		if p.check(lexer.TokenIf) {
			expr.ElseBranch = p.ifExpr()
		} else {
			expr.ElseBranch = p.block()
		}
		expr.Span = start.Span.Through(expr.ElseBranch.Pos())
	}
	return expr
}

func (p *Parser) whileExpr() Expr {
	start := p.advance()
	cond := p.expression()
	body := p.block()
	return &WhileExpr{Cond: cond, Body: body, Span: start.Span.Through(body.Span)}
}

func (p *Parser) forExpr() Expr {
	start := p.advance()
	name, ok := p.consume(lexer.TokenIdent, "expected loop variable after 'for'")
	if !ok {
		return &ErrorExpr{Span: start.Span}
	}
	if _, ok := p.consume(lexer.TokenIn, "expected 'in' after loop variable"); !ok {
		return &ErrorExpr{Span: start.Span.Through(name.Span)}
	}
	collection := p.expression()
	body := p.block()
	return &ForInExpr{
		Variable:   name.Lexeme,
		VarSpan:    name.Span,
		Collection: collection,
		Body:       body,
		Span:       start.Span.Through(body.Span),
	}
}

func (p *Parser) enter() bool {
	p.depth++
	if p.depth > p.MaxDepth {
		if !p.tooDeep {
			p.tooDeep = true
			p.errorAtCurrent("expression nested too deeply (limit %d)", p.MaxDepth)
		}
		p.depth--
		return false
	}
	return true
}

func (p *Parser) leave() {
	p.depth--
}

// errorAtCurrent reports at the next token and enters panic mode.
func (p *Parser) errorAtCurrent(format string, args ...interface{}) {
	if p.panicking {
		return
	}
	p.panicking = true
	p.diags.Errorf(diag.StageParse, p.peek().Span, format, args...)
}

// report records an error without entering panic mode.
func (p *Parser) report(span diag.Span, format string, args ...interface{}) {
	if p.panicking {
		return
	}
	p.diags.Errorf(diag.StageParse, span, format, args...)
}

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, msg string) (lexer.Token, bool) {
	if p.check(t) {
		return p.advance(), true
	}
	tok := p.peek()
	if tok.Type != lexer.TokenError {
		p.errorAtCurrent("%s, found %s", msg, tok.Describe())
	}
	p.panicking = true
	return tok, false
}

func (p *Parser) check(t lexer.TokenType) bool {
	if p.isAtEnd() {
		return t == lexer.TokenEOF
	}
	return p.peek().Type == t
}

func (p *Parser) checkNext(t lexer.TokenType) bool {
	if p.current+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.current+1].Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) previous() lexer.Token {
	if p.current == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.current-1]
}

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.current]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TokenEOF
}
