package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for tern
// ---------------------------------------------------------------------------

// Parser parses tern source code into an AST.
//
// Newlines terminate statements. Inside parentheses and brackets they are
// insignificant, and a newline directly after a binary operator, '=' or ','
// continues the expression. A newline before '(' or '[' does not: the next
// line starts a new statement.
type Parser struct {
	file     string
	tokens   []Token
	pos      int
	ignoreNL bool
	lastEnd  Position
	errors   []Diagnostic
}

// NewParser creates a new parser for the given input. file names the
// source in diagnostics.
func NewParser(file, input string) *Parser {
	return newParserAt(file, input, Position{Line: 1, Column: 1})
}

func newParserAt(file, input string, start Position) *Parser {
	return &Parser{
		file:   file,
		tokens: newLexerAt(input, start).Tokenize(),
	}
}

func (p *Parser) cur() Token { return p.tokens[p.pos] }

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool { return p.tokens[p.pos].Type == t }

// peekTokenIs checks if the token after the current one is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	if p.pos+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.pos+1].Type == t
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.lastEnd = tokenEnd(p.cur())
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	if p.ignoreNL {
		p.skipNewlines()
	}
}

func tokenEnd(t Token) Position {
	n := utf8.RuneCountInString(t.Literal)
	switch t.Type {
	case TokenString, TokenChar:
		n += 2
	case TokenLong:
		n++
	}
	return Position{Offset: t.Pos.Offset + len(t.Literal), Line: t.Pos.Line, Column: t.Pos.Column + n}
}

func (p *Parser) skipNewlines() {
	for p.tokens[p.pos].Type == TokenNewline {
		p.pos++
	}
}

// skipTerminators skips newlines and semicolons between statements and
// declarations.
func (p *Parser) skipTerminators() {
	for p.curTokenIs(TokenNewline) || p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
}

// nextNonNewlineIs reports whether the first token after any newlines has
// type t.
func (p *Parser) nextNonNewlineIs(t TokenType) bool {
	i := p.pos
	for p.tokens[i].Type == TokenNewline {
		i++
	}
	return p.tokens[i].Type == t
}

// nested runs fn with newline significance switched on or off.
func (p *Parser) nested(ignore bool, fn func()) {
	saved := p.ignoreNL
	p.ignoreNL = ignore
	if ignore {
		p.skipNewlines()
	}
	fn()
	p.ignoreNL = saved
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, describe(p.cur()))
	return false
}

func (p *Parser) expectIdent() string {
	tok := p.cur()
	if tok.Type != TokenIdentifier {
		p.errorf("expected identifier, got %s", describe(tok))
		return ""
	}
	p.nextToken()
	return tok.Literal
}

func describe(t Token) string {
	switch t.Type {
	case TokenIdentifier:
		return "'" + t.Literal + "'"
	case TokenError:
		return t.Literal
	case TokenEOF, TokenNewline:
		return t.Type.String()
	}
	return "'" + t.Type.String() + "'"
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errorAt(p.cur().Pos, format, args...)
}

func (p *Parser) errorAt(pos Position, format string, args ...interface{}) {
	p.errors = append(p.errors, Diagnostic{File: p.file, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []Diagnostic {
	return p.errors
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.lastEnd}
}

// sync skips to the end of the current statement.
func (p *Parser) sync() {
	depth := 0
	for {
		switch p.cur().Type {
		case TokenEOF:
			return
		case TokenNewline, TokenSemicolon:
			if depth == 0 {
				return
			}
		case TokenLBrace, TokenLParen, TokenLBracket:
			depth++
		case TokenRBrace, TokenRParen, TokenRBracket:
			if depth == 0 {
				return
			}
			depth--
		}
		p.pos++
	}
}

// syncDecl skips to the next top-level or member declaration.
func (p *Parser) syncDecl() {
	depth := 0
	for {
		switch p.cur().Type {
		case TokenEOF:
			return
		case TokenFun, TokenClass, TokenVal, TokenVar, TokenInit:
			if depth == 0 {
				return
			}
		case TokenLBrace:
			depth++
		case TokenRBrace:
			if depth == 0 {
				return
			}
			depth--
		}
		p.pos++
	}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// ParseFile parses a complete source file.
func (p *Parser) ParseFile() *File {
	start := p.cur().Pos
	f := &File{Name: p.file}

	p.skipTerminators()
	if p.curTokenIs(TokenPackage) {
		p.nextToken()
		f.Package = p.parseQualifiedName()
		p.endOfDecl()
	}
	p.skipTerminators()
	for p.curTokenIs(TokenImport) {
		if imp := p.parseImport(); imp != nil {
			f.Imports = append(f.Imports, imp)
		}
		p.endOfDecl()
		p.skipTerminators()
	}

	for !p.curTokenIs(TokenEOF) {
		override := p.parseModifiers()
		switch p.cur().Type {
		case TokenFun:
			if fn := p.parseFun(override); fn != nil {
				f.Funs = append(f.Funs, fn)
			}
		case TokenClass:
			if c := p.parseClass(); c != nil {
				f.Classes = append(f.Classes, c)
			}
		case TokenImport:
			p.errorf("imports must precede declarations")
			p.nextToken()
			p.syncDecl()
		default:
			p.errorf("expected declaration, got %s", describe(p.cur()))
			p.nextToken()
			p.syncDecl()
		}
		p.skipTerminators()
	}
	f.SpanVal = p.span(start)
	return f
}

func (p *Parser) endOfDecl() {
	if !p.atStatementEnd() {
		p.errorf("unexpected %s", describe(p.cur()))
		p.sync()
	}
}

// parseModifiers consumes open/override and reports whether override was
// present.
func (p *Parser) parseModifiers() bool {
	override := false
	for {
		switch p.cur().Type {
		case TokenOpen:
			p.nextToken()
		case TokenOverride:
			override = true
			p.nextToken()
		default:
			return override
		}
	}
}

func (p *Parser) parseQualifiedName() string {
	parts := []string{p.expectIdent()}
	for p.curTokenIs(TokenDot) && p.peekTokenIs(TokenIdentifier) {
		p.nextToken()
		parts = append(parts, p.expectIdent())
	}
	return strings.Join(parts, ".")
}

func (p *Parser) parseImport() *Import {
	start := p.cur().Pos
	p.expect(TokenImport)
	imp := &Import{Path: p.expectIdent()}
	for p.curTokenIs(TokenDot) {
		p.nextToken()
		if p.curTokenIs(TokenStar) {
			p.nextToken()
			imp.Star = true
			break
		}
		imp.Path += "." + p.expectIdent()
	}
	imp.SpanVal = p.span(start)
	if imp.Path == "" {
		return nil
	}
	return imp
}

func (p *Parser) parseType() *TypeRef {
	start := p.cur().Pos
	t := &TypeRef{Name: p.parseQualifiedName()}
	if p.curTokenIs(TokenQuestion) {
		p.nextToken()
		t.Nullable = true
	}
	t.SpanVal = p.span(start)
	return t
}

func (p *Parser) parseParams(allowProps bool) []*Param {
	var params []*Param
	p.expect(TokenLParen)
	p.nested(true, func() {
		for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
			start := p.cur().Pos
			param := &Param{}
			if allowProps && (p.curTokenIs(TokenVal) || p.curTokenIs(TokenVar)) {
				param.Prop = PropVal
				if p.curTokenIs(TokenVar) {
					param.Prop = PropVar
				}
				p.nextToken()
			}
			param.Name = p.expectIdent()
			if !p.expect(TokenColon) {
				p.sync()
				return
			}
			param.Type = p.parseType()
			param.SpanVal = p.span(start)
			params = append(params, param)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	})
	p.expect(TokenRParen)
	return params
}

func (p *Parser) parseFun(override bool) *FunDecl {
	start := p.cur().Pos
	p.expect(TokenFun)
	fn := &FunDecl{Name: p.expectIdent(), Override: override}
	if fn.Name == "" {
		p.syncDecl()
		return nil
	}
	fn.Params = p.parseParams(false)
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		fn.Result = p.parseType()
	}
	switch {
	case p.curTokenIs(TokenLBrace):
		fn.Body = p.parseBlock()
	case p.curTokenIs(TokenAssign):
		p.nextToken()
		p.skipNewlines()
		fn.ExprBody = p.parseExpression()
	default:
		p.errorf("expected function body, got %s", describe(p.cur()))
		p.syncDecl()
		return nil
	}
	fn.SpanVal = p.span(start)
	return fn
}

func (p *Parser) parseClass() *ClassDecl {
	start := p.cur().Pos
	p.expect(TokenClass)
	c := &ClassDecl{Name: p.expectIdent()}
	if c.Name == "" {
		p.syncDecl()
		return nil
	}
	if p.curTokenIs(TokenLParen) {
		c.Params = p.parseParams(true)
	}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		c.Super = p.parseType()
		if p.curTokenIs(TokenLParen) {
			c.SuperArgs = p.parseArgs()
		} else {
			p.errorf("supertype %s must be initialized with a constructor call", c.Super.Name)
		}
	}
	if p.curTokenIs(TokenLBrace) {
		p.nextToken()
		p.nested(false, func() {
			for {
				p.skipTerminators()
				if p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) {
					return
				}
				if m := p.parseMember(); m != nil {
					c.Members = append(c.Members, m)
				}
			}
		})
		p.expect(TokenRBrace)
	}
	c.SpanVal = p.span(start)
	return c
}

func (p *Parser) parseMember() Node {
	override := p.parseModifiers()
	start := p.cur().Pos
	switch p.cur().Type {
	case TokenFun:
		if fn := p.parseFun(override); fn != nil {
			return fn
		}
		return nil
	case TokenVal, TokenVar:
		prop := &PropDecl{Mutable: p.curTokenIs(TokenVar)}
		p.nextToken()
		prop.Name = p.expectIdent()
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			prop.Type = p.parseType()
		}
		if p.curTokenIs(TokenAssign) {
			p.nextToken()
			p.skipNewlines()
			prop.Init = p.parseExpression()
		}
		prop.SpanVal = p.span(start)
		if prop.Type == nil && prop.Init == nil {
			p.errorAt(start, "property %s must have a type or an initializer", prop.Name)
		}
		p.endOfDecl()
		return prop
	case TokenInit:
		p.nextToken()
		body := p.parseBlock()
		return &InitBlock{SpanVal: p.span(start), Body: body}
	}
	p.errorf("expected member declaration, got %s", describe(p.cur()))
	p.nextToken()
	p.syncDecl()
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlock() *Block {
	start := p.cur().Pos
	b := &Block{}
	if !p.expect(TokenLBrace) {
		b.SpanVal = p.span(start)
		return b
	}
	p.nested(false, func() {
		b.Stmts = p.ParseStatements()
	})
	p.expect(TokenRBrace)
	b.SpanVal = p.span(start)
	return b
}

// ParseStatements parses statements up to a closing brace or EOF.
func (p *Parser) ParseStatements() []Stmt {
	var stmts []Stmt
	for {
		p.skipTerminators()
		if p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) {
			return stmts
		}
		before := p.pos
		s := p.ParseStatement()
		if s != nil {
			stmts = append(stmts, s)
		}
		switch {
		case p.atStatementEnd():
		case p.pos == before:
			p.nextToken()
			p.sync()
		default:
			p.errorf("unexpected %s after statement", describe(p.cur()))
			p.sync()
		}
	}
}

func (p *Parser) atStatementEnd() bool {
	switch p.cur().Type {
	case TokenNewline, TokenSemicolon, TokenRBrace, TokenEOF:
		return true
	}
	return false
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	start := p.cur().Pos
	switch p.cur().Type {
	case TokenVal, TokenVar:
		return p.parseVarDecl()
	case TokenWhile:
		return p.parseWhile()
	case TokenDo:
		return p.parseDoWhile()
	case TokenFor:
		return p.parseFor()
	case TokenReturn:
		p.nextToken()
		r := &ReturnStmt{}
		if !p.atStatementEnd() {
			r.Value = p.parseExpression()
		}
		r.SpanVal = p.span(start)
		return r
	case TokenThrow:
		p.nextToken()
		t := &ThrowStmt{Value: p.parseExpression()}
		t.SpanVal = p.span(start)
		return t
	case TokenBreak, TokenContinue:
		tok := p.cur().Type
		p.nextToken()
		return &BranchStmt{SpanVal: p.span(start), Tok: tok}
	case TokenLBrace:
		return p.parseBlock()
	}

	x := p.parseExpression()
	if x == nil {
		return nil
	}
	switch op := p.cur().Type; op {
	case TokenAssign, TokenPlusEq, TokenMinusEq, TokenStarEq, TokenSlashEq, TokenPercentEq:
		p.nextToken()
		p.skipNewlines()
		v := p.parseExpression()
		if !isAssignable(x) {
			p.errorAt(start, "invalid assignment target")
		}
		return &AssignStmt{SpanVal: p.span(start), Target: x, Op: op, Value: v}
	case TokenIncr, TokenDecr:
		p.nextToken()
		if !isAssignable(x) {
			p.errorAt(start, "invalid %s target", op)
		}
		return &IncDecStmt{SpanVal: p.span(start), Target: x, Op: op}
	}
	return &ExprStmt{SpanVal: x.Span(), Expr: x}
}

func isAssignable(x Expr) bool {
	switch x.(type) {
	case *Ident, *MemberExpr:
		return true
	}
	return false
}

func (p *Parser) parseVarDecl() Stmt {
	start := p.cur().Pos
	d := &VarDecl{Mutable: p.curTokenIs(TokenVar)}
	p.nextToken()
	d.Name = p.expectIdent()
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		d.Type = p.parseType()
	}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		p.skipNewlines()
		d.Init = p.parseExpression()
	} else {
		p.errorf("variable %s must be initialized", d.Name)
	}
	d.SpanVal = p.span(start)
	return d
}

// parseParenExpr parses '(' expr ')'.
func (p *Parser) parseParenExpr() Expr {
	var x Expr
	p.expect(TokenLParen)
	p.nested(true, func() {
		x = p.parseExpression()
	})
	p.expect(TokenRParen)
	return x
}

// parseBody parses a loop or branch body: a block or a single statement.
func (p *Parser) parseBody() *Block {
	if p.curTokenIs(TokenLBrace) {
		return p.parseBlock()
	}
	start := p.cur().Pos
	if p.atStatementEnd() {
		p.errorf("expected statement, got %s", describe(p.cur()))
		return &Block{SpanVal: p.span(start)}
	}
	var s Stmt
	p.nested(false, func() {
		s = p.ParseStatement()
	})
	b := &Block{SpanVal: p.span(start)}
	if s != nil {
		b.Stmts = []Stmt{s}
	}
	return b
}

func (p *Parser) parseWhile() Stmt {
	start := p.cur().Pos
	p.expect(TokenWhile)
	cond := p.parseParenExpr()
	body := p.parseBody()
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile() Stmt {
	start := p.cur().Pos
	p.expect(TokenDo)
	body := p.parseBody()
	if p.nextNonNewlineIs(TokenWhile) {
		p.skipNewlines()
	}
	p.expect(TokenWhile)
	cond := p.parseParenExpr()
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body, DoWhile: true}
}

func (p *Parser) parseFor() Stmt {
	start := p.cur().Pos
	p.expect(TokenFor)
	f := &ForStmt{}
	p.expect(TokenLParen)
	p.nested(true, func() {
		f.Var = p.expectIdent()
		p.expect(TokenIn)
		f.Iter = p.parseExpression()
		switch {
		case p.curTokenIs(TokenDotDot):
			f.Range = RangeClosed
		case p.curTokenIs(TokenIdentifier) && p.cur().Literal == "until":
			f.Range = RangeUntil
		case p.curTokenIs(TokenIdentifier) && p.cur().Literal == "downTo":
			f.Range = RangeDownTo
		default:
			return
		}
		p.nextToken()
		f.End = p.parseExpression()
	})
	p.expect(TokenRParen)
	f.Body = p.parseBody()
	f.SpanVal = p.span(start)
	return f
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr { return p.parseExpression() }

func (p *Parser) parseExpression() Expr { return p.parseOr() }

func (p *Parser) parseBinary(ops []TokenType, next func(*Parser) Expr) Expr {
	start := p.cur().Pos
	x := next(p)
	for x != nil {
		op := p.cur().Type
		matched := false
		for _, o := range ops {
			if op == o {
				matched = true
				break
			}
		}
		if !matched {
			return x
		}
		p.nextToken()
		p.skipNewlines()
		y := next(p)
		if y == nil {
			return nil
		}
		x = &BinaryExpr{SpanVal: p.span(start), Op: op, X: x, Y: y}
	}
	return x
}

func (p *Parser) parseOr() Expr {
	return p.parseBinary([]TokenType{TokenOrOr}, (*Parser).parseAnd)
}

func (p *Parser) parseAnd() Expr {
	return p.parseBinary([]TokenType{TokenAndAnd}, (*Parser).parseEquality)
}

func (p *Parser) parseEquality() Expr {
	return p.parseBinary([]TokenType{TokenEq, TokenNotEq}, (*Parser).parseComparison)
}

func (p *Parser) parseComparison() Expr {
	return p.parseBinary([]TokenType{TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq}, (*Parser).parseAdditive)
}

func (p *Parser) parseAdditive() Expr {
	return p.parseBinary([]TokenType{TokenPlus, TokenMinus}, (*Parser).parseMultiplicative)
}

func (p *Parser) parseMultiplicative() Expr {
	return p.parseBinary([]TokenType{TokenStar, TokenSlash, TokenPercent}, (*Parser).parseUnary)
}

func (p *Parser) parseUnary() Expr {
	start := p.cur().Pos
	switch op := p.cur().Type; op {
	case TokenMinus:
		p.nextToken()
		if p.curTokenIs(TokenInt) || p.curTokenIs(TokenLong) {
			return p.parseNumber(start, true)
		}
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	case TokenBang:
		p.nextToken()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	case TokenPlus:
		p.nextToken()
		return p.parseUnary()
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	start := p.cur().Pos
	x := p.parsePrimary()
	for x != nil {
		switch {
		case p.curTokenIs(TokenDot):
			p.nextToken()
			name := p.expectIdent()
			if name == "" {
				return nil
			}
			x = &MemberExpr{SpanVal: p.span(start), X: x, Name: name}
		case p.curTokenIs(TokenNewline) && p.nextNonNewlineIs(TokenDot):
			p.skipNewlines()
		case p.curTokenIs(TokenLParen):
			switch x.(type) {
			case *Ident, *MemberExpr:
			default:
				p.errorf("expression is not callable")
				return nil
			}
			args := p.parseArgs()
			x = &CallExpr{SpanVal: p.span(start), Fun: x, Args: args}
		case p.curTokenIs(TokenLBracket):
			p.nextToken()
			var idx Expr
			p.nested(true, func() {
				idx = p.parseExpression()
			})
			p.expect(TokenRBracket)
			if idx == nil {
				return nil
			}
			x = &IndexExpr{SpanVal: p.span(start), X: x, Index: idx}
		default:
			return x
		}
	}
	return nil
}

func (p *Parser) parseArgs() []Expr {
	var args []Expr
	p.expect(TokenLParen)
	p.nested(true, func() {
		for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
			a := p.parseExpression()
			if a == nil {
				p.sync()
				return
			}
			args = append(args, a)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	})
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	start := tok.Pos
	switch tok.Type {
	case TokenInt, TokenLong:
		return p.parseNumber(start, false)
	case TokenDouble:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorAt(start, "malformed Double literal %s", tok.Literal)
		}
		return &DoubleLiteral{SpanVal: p.span(start), Value: v}
	case TokenChar:
		p.nextToken()
		return &CharLiteral{SpanVal: p.span(start), Value: p.decodeChar(tok)}
	case TokenString:
		p.nextToken()
		return p.parseTemplate(tok, p.span(start))
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{SpanVal: p.span(start)}
	case TokenThis:
		p.nextToken()
		return &ThisExpr{SpanVal: p.span(start)}
	case TokenIdentifier:
		p.nextToken()
		return &Ident{SpanVal: p.span(start), Name: tok.Literal}
	case TokenLParen:
		return p.parseParenExpr()
	case TokenIf:
		return p.parseIf()
	case TokenTry:
		return p.parseTry()
	case TokenError:
		p.errorf("%s", tok.Literal)
		p.nextToken()
		return nil
	}
	p.errorf("expected expression, got %s", describe(tok))
	return nil
}

func (p *Parser) parseNumber(start Position, negate bool) Expr {
	tok := p.cur()
	p.nextToken()
	lit := tok.Literal
	var u uint64
	var err error
	if strings.HasPrefix(lit, "0x") {
		u, err = strconv.ParseUint(lit[2:], 16, 64)
	} else {
		u, err = strconv.ParseUint(lit, 10, 64)
	}
	limit := uint64(math.MaxInt64)
	if negate {
		limit++
	}
	if err != nil || u > limit {
		p.errorAt(start, "integer literal %s is out of range", lit)
		return &IntLiteral{SpanVal: p.span(start)}
	}
	v := int64(u)
	if negate {
		v = -v
	}
	if tok.Type == TokenInt && v >= math.MinInt32 && v <= math.MaxInt32 {
		return &IntLiteral{SpanVal: p.span(start), Value: int32(v)}
	}
	return &LongLiteral{SpanVal: p.span(start), Value: v}
}

func (p *Parser) parseIf() Expr {
	start := p.cur().Pos
	p.expect(TokenIf)
	n := &IfExpr{Cond: p.parseParenExpr()}
	n.Then = p.parseBody()
	if p.nextNonNewlineIs(TokenElse) {
		p.skipNewlines()
		p.nextToken()
		n.Else = p.parseBody()
	}
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseTry() Expr {
	start := p.cur().Pos
	p.expect(TokenTry)
	n := &TryExpr{Body: p.parseBlock()}
	for p.nextNonNewlineIs(TokenCatch) {
		p.skipNewlines()
		cstart := p.cur().Pos
		p.nextToken()
		c := &CatchClause{}
		p.expect(TokenLParen)
		p.nested(true, func() {
			c.Name = p.expectIdent()
			p.expect(TokenColon)
			c.Type = p.parseType()
		})
		p.expect(TokenRParen)
		c.Body = p.parseBlock()
		c.SpanVal = p.span(cstart)
		n.Catches = append(n.Catches, c)
	}
	if p.nextNonNewlineIs(TokenFinally) {
		p.skipNewlines()
		p.errorf("finally is not supported")
		p.nextToken()
		p.parseBlock()
	} else if len(n.Catches) == 0 {
		p.errorAt(start, "try must have at least one catch")
	}
	n.SpanVal = p.span(start)
	return n
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// decodeEscape decodes the escape sequence at the start of s (after the
// backslash) and returns the code unit and the bytes consumed.
func decodeEscape(s string) (uint16, int, bool) {
	if s == "" {
		return 0, 0, false
	}
	switch s[0] {
	case 't':
		return '\t', 1, true
	case 'b':
		return '\b', 1, true
	case 'n':
		return '\n', 1, true
	case 'r':
		return '\r', 1, true
	case '\'', '"', '\\', '$':
		return uint16(s[0]), 1, true
	case 'u':
		if len(s) < 5 {
			return 0, 0, false
		}
		v, err := strconv.ParseUint(s[1:5], 16, 16)
		if err != nil {
			return 0, 0, false
		}
		return uint16(v), 5, true
	}
	return 0, 0, false
}

func (p *Parser) decodeChar(tok Token) uint16 {
	lit := tok.Literal
	var units []uint16
	for i := 0; i < len(lit); {
		if lit[i] == '\\' {
			u, n, ok := decodeEscape(lit[i+1:])
			if !ok {
				p.errorAt(tok.Pos, "illegal escape in character literal")
				return 0
			}
			units = append(units, u)
			i += 1 + n
			continue
		}
		r, size := utf8.DecodeRuneInString(lit[i:])
		units = append(units, utf16.Encode([]rune{r})...)
		i += size
	}
	if len(units) != 1 {
		p.errorAt(tok.Pos, "character literal must contain exactly one character")
		return 0
	}
	return units[0]
}

// parseTemplate interprets the escapes and $-templates of a string token.
func (p *Parser) parseTemplate(tok Token, span Span) Expr {
	raw := tok.Literal
	var parts []Expr
	var units []uint16
	templated := false
	flush := func() {
		if len(units) > 0 {
			parts = append(parts, &StringLiteral{SpanVal: span, Value: string(utf16.Decode(units))})
			units = units[:0]
		}
	}
	at := func(i int) Position {
		return Position{Offset: tok.Pos.Offset + 1 + i, Line: tok.Pos.Line, Column: tok.Pos.Column + 1 + utf8.RuneCountInString(raw[:i])}
	}

	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case c == '\\':
			u, n, ok := decodeEscape(raw[i+1:])
			if !ok {
				p.errorAt(at(i), "illegal escape in string literal")
				i++
				continue
			}
			units = append(units, u)
			i += 1 + n
		case c == '$' && i+1 < len(raw) && raw[i+1] == '{':
			end := matchBrace(raw, i+2)
			if end < 0 {
				p.errorAt(at(i), "unterminated template expression")
				return &StringLiteral{SpanVal: span}
			}
			sub := newParserAt(p.file, raw[i+2:end], at(i+2))
			x := sub.parseExpression()
			sub.skipNewlines()
			if x != nil && !sub.curTokenIs(TokenEOF) {
				sub.errorf("unexpected %s in template expression", describe(sub.cur()))
			}
			p.errors = append(p.errors, sub.errors...)
			flush()
			if x != nil {
				parts = append(parts, x)
			}
			templated = true
			i = end + 1
		case c == '$' && i+1 < len(raw) && isIdentStart(rune(raw[i+1])):
			j := i + 1
			for j < len(raw) && isIdentPart(rune(raw[j])) {
				j++
			}
			flush()
			parts = append(parts, &Ident{SpanVal: Span{Start: at(i + 1), End: at(j)}, Name: raw[i+1 : j]})
			templated = true
			i = j
		default:
			r, size := utf8.DecodeRuneInString(raw[i:])
			units = append(units, utf16.Encode([]rune{r})...)
			i += size
		}
	}
	if !templated {
		return &StringLiteral{SpanVal: span, Value: string(utf16.Decode(units))}
	}
	flush()
	return &TemplateLiteral{SpanVal: span, Parts: parts}
}

// matchBrace returns the index of the '}' closing a template expression
// whose body starts at i, skipping nested braces and strings.
func matchBrace(s string, i int) int {
	depth := 0
	for ; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		case '"':
			for i++; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		}
	}
	return -1
}
