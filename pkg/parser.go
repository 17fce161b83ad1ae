package beagle

import (
	"fmt"
	"time"
)

// tokenRecvTimeout bounds how long the parser waits on a single token from
// the lexer stage before treating the channel as stalled. A healthy lexer
// never comes close to this; it exists as a backstop against a lexer stage
// that wedges without closing its output.
const tokenRecvTimeout = time.Second

// parseContext tracks whether the parser is reading top-level module
// statements (properties, functions, nested modules) or statements inside a
// function body, where only local variables and expressions are legal.
type parseContext int

const (
	contextTopLevel parseContext = iota
	contextLocal
)

// Parser turns a Token stream into a sequence of HIR Chunks, one per
// top-level or local statement. It holds a two-token lookahead window so the
// expression grammar can tell a literal apart from the operator trailing it
// before committing to either.
type Parser struct {
	moduleName string
	tokens     <-chan Token

	output      chan<- *Chunk
	diagnostics chan<- Diagnostic
	masterIn    chan<- sourceRequest
	halt        *haltFlag

	context parseContext

	lookahead []Token
}

// NewParser creates a parser reading tokens from tokens and writing HIR
// chunks to output.
func NewParser(moduleName string, tokens <-chan Token, output chan<- *Chunk, diagnostics chan<- Diagnostic, masterIn chan<- sourceRequest, halt *haltFlag) *Parser {
	return &Parser{
		moduleName:  moduleName,
		tokens:      tokens,
		output:      output,
		diagnostics: diagnostics,
		masterIn:    masterIn,
		halt:        halt,
		context:     contextTopLevel,
	}
}

// Run parses a complete module: the file's own top-level statements wrapped
// in a Module chunk named after the module the driver assigned this parser,
// then closes output.
func (p *Parser) Run() {
	defer close(p.output)

	chunk := NewChunk()
	chunk.WriteOpcode(byte(HIRModule))
	chunk.WriteString(p.moduleName)
	p.emit(chunk)

	for p.peek().Kind != TokenEOF {
		if p.halted() {
			break
		}
		p.statement()
	}
	p.drain()

	end := NewChunk()
	end.WriteOpcode(byte(HIREndModule))
	p.emit(end)
}

func (p *Parser) halted() bool {
	return p.halt != nil && p.halt.isSet()
}

// drain consumes whatever tokens remain so the lexer goroutine feeding
// p.tokens isn't left blocked on a send once the halt flag cuts Run short.
func (p *Parser) drain() {
	for range p.tokens {
	}
}

func (p *Parser) emit(c *Chunk) {
	p.output <- c
}

// errorf reports a user-facing diagnostic anchored at pos, round-tripping
// through the driver's source-snippet service for the lines to show.
func (p *Parser) errorf(pos BiPos, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	wide := pos.withLineRegion(2)
	snippet := requestSnippet(p.masterIn, wide)
	diag := newUserError("Parser", p.moduleName, msg, wide)
	diag.Snippet = &Snippet{
		StartLine: wide.LineRegion.Line,
		Lines:     splitLines(snippet),
		ColStart:  wide.Start.Col,
		ColEnd:    wide.End.Col,
	}
	p.diagnostics <- diag
}

// fail reports a grammar violation, pushes a Halt chunk so downstream
// consumers see the break in the stream, and resynchronizes at the next
// closing brace or EOF so the caller's enclosing loop can carry on.
func (p *Parser) fail(pos BiPos, format string, args ...interface{}) {
	p.errorf(pos, format, args...)
	halt := NewChunk()
	halt.WriteOpcode(byte(HIRHalt))
	p.emit(halt)
	p.synchronize()
}

func (p *Parser) synchronize() {
	for {
		switch p.peek().Kind {
		case TokenEOF:
			return
		case TokenCloseCurly:
			p.next()
			return
		default:
			p.next()
		}
	}
}

// fill ensures at least n+1 tokens are buffered in lookahead, reading
// TokenEOF forever once the channel closes. A receive that doesn't complete
// within tokenRecvTimeout is treated as a stalled lexer: the parser reports
// a bug diagnostic, halts, and proceeds as if EOF had been seen.
func (p *Parser) fill(n int) {
	for len(p.lookahead) <= n {
		var t Token
		select {
		case tok, ok := <-p.tokens:
			if ok {
				t = tok
			} else {
				t = Token{Kind: TokenEOF}
			}
		case <-time.After(tokenRecvTimeout):
			p.diagnostics <- newBug("Parser", p.moduleName, "timed out waiting for a token from the lexer")
			if p.halt != nil {
				p.halt.set()
			}
			t = Token{Kind: TokenEOF}
		}
		p.lookahead = append(p.lookahead, t)
	}
}

// peek returns the next token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token n positions ahead of the current read position
// without consuming anything.
func (p *Parser) peekAt(n int) Token {
	p.fill(n)
	return p.lookahead[n]
}

// next consumes and returns the next token.
func (p *Parser) next() Token {
	t := p.peek()
	if len(p.lookahead) > 0 {
		p.lookahead = p.lookahead[1:]
	}
	return t
}

func (p *Parser) check(kind TokenKind) bool {
	return p.peek().Kind == kind
}

// consume advances past a token of the given kind, returning false (without
// advancing) if the next token doesn't match.
func (p *Parser) consume(kind TokenKind) bool {
	if !p.check(kind) {
		return false
	}
	p.next()
	return true
}

func (p *Parser) consumeIdentString() (string, bool) {
	if !p.check(TokenIdentifier) {
		return "", false
	}
	t := p.next()
	return t.Payload.String, true
}

func (t Token) String() string {
	return fmt.Sprintf("%v at %s", t.Kind, t.Pos)
}

// statement parses one top-level statement: a nested module, a property, or
// a function declaration.
func (p *Parser) statement() {
	switch p.peek().Kind {
	case TokenMod:
		p.moduleDecl()
	case TokenVal, TokenVar:
		p.property()
	case TokenFun:
		p.function()
	default:
		p.fail(p.peek().Pos, "Unexpected token found: %s", p.peek())
	}
}

// moduleDecl parses a nested module as a fresh Module/EndModule pair inline
// in the parent's chunk stream.
func (p *Parser) moduleDecl() {
	p.next() // mod

	chunk := NewChunk()
	chunk.WriteOpcode(byte(HIRModule))
	name, ok := p.consumeIdentString()
	if !ok {
		p.fail(p.peek().Pos, "Expected an identifier token, but instead got %s", p.peek())
		return
	}
	chunk.WriteString(name)
	p.emit(chunk)

	if !p.consume(TokenOpenCurly) {
		p.fail(p.peek().Pos, "Expected '{' to open module %s", name)
		return
	}

	for !p.check(TokenCloseCurly) {
		if p.peek().Kind == TokenEOF {
			p.fail(p.peek().Pos, "Unclosed module %s", name)
			return
		}
		p.statement()
	}
	p.next() // }

	end := NewChunk()
	end.WriteOpcode(byte(HIREndModule))
	p.emit(end)
}

// property parses `val`/`var` name[: Type] = expr as a module-level or
// nested-module binding.
func (p *Parser) property() {
	lpos := p.peek().Pos
	mutable := p.check(TokenVar)
	if !mutable && !p.check(TokenVal) {
		p.fail(lpos, "Expected a val or var keyword token, but instead got %s", p.peek())
		return
	}
	p.next()

	chunk := NewChunk()
	chunk.WriteOpcode(byte(HIRProperty))
	chunk.WritePos(lpos)
	chunk.WriteBool(mutable)
	chunk.WritePos(lpos)

	namePos := p.peek().Pos
	name, ok := p.consumeIdentString()
	if !ok {
		p.fail(lpos, "Expected an identifier token, but instead got %s", p.peek())
		return
	}
	chunk.WriteString(name)
	chunk.WritePos(namePos)

	if !p.typeSigOrUnknown(chunk) {
		return
	}

	if !p.consume(TokenEqual) {
		p.fail(lpos, "Value property must be initialized.")
		return
	}

	p.emit(chunk)
	p.expression()
}

// function parses `fun` name(params): RetType { block }.
func (p *Parser) function() {
	lpos := p.peek().Pos
	if !p.consume(TokenFun) {
		p.fail(lpos, "Expected a fun keyword token, but instead got %s", p.peek())
		return
	}

	chunk := NewChunk()
	chunk.WriteOpcode(byte(HIRFn))
	chunk.WritePos(lpos)

	namePos := p.peek().Pos
	name, ok := p.consumeIdentString()
	if !ok {
		p.fail(lpos, "Expected an identifier token, but instead got %s", p.peek())
		return
	}
	chunk.WriteString(name)
	chunk.WritePos(namePos)

	if !p.consume(TokenOpenParen) {
		p.fail(p.peek().Pos, "Expected '(' to open parameter list for %s", name)
		return
	}
	for !p.check(TokenCloseParen) {
		ppos := p.peek().Pos
		pname, ok := p.consumeIdentString()
		if !ok {
			p.fail(ppos, "Expected a parameter name, but instead got %s", p.peek())
			return
		}
		param := NewChunk()
		param.WriteOpcode(byte(HIRFnParam))
		param.WritePos(ppos)
		param.WriteString(pname)

		if !p.consume(TokenColon) {
			p.fail(ppos, "Expected ':' before the type of parameter %s", pname)
			return
		}
		if !p.typeSig(param) {
			return
		}
		chunk.WriteChunk(param)

		if p.check(TokenComma) {
			p.next()
		}
	}
	p.next() // )
	chunk.WriteOpcode(byte(HIREndParams))

	if !p.typeSigOrUnit(chunk) {
		return
	}

	p.emit(chunk)

	if !p.consume(TokenOpenCurly) {
		p.fail(p.peek().Pos, "Expected '{' to open function body for %s", name)
		return
	}

	prevContext := p.context
	p.context = contextLocal
	defer func() { p.context = prevContext }()

	block := NewChunk()
	block.WriteOpcode(byte(HIRBlock))
	block.WritePos(p.peek().Pos)
	p.emit(block)

	for !p.check(TokenCloseCurly) {
		if p.peek().Kind == TokenEOF {
			p.fail(p.peek().Pos, "Unclosed function body for %s", name)
			return
		}
		p.localStatement()
	}
	closePos := p.peek().Pos
	p.next() // }

	end := NewChunk()
	end.WriteOpcode(byte(HIREndBlock))
	end.WritePos(closePos)
	end.WriteOpcode(byte(HIREndFn))
	p.emit(end)
}

// localStatement parses one statement inside a function body: a local
// variable declaration, or a bare expression statement.
func (p *Parser) localStatement() {
	switch p.peek().Kind {
	case TokenLet:
		p.localVar()
	case TokenMod, TokenVal, TokenVar, TokenFun:
		p.fail(p.peek().Pos, "Found %s outside of top-level context.", p.peek())
	default:
		p.expression()
	}
}

// localVar parses `let [mut] name[: Type] = expr`.
func (p *Parser) localVar() {
	if p.context != contextLocal {
		p.fail(p.peek().Pos, "Found 'let' outside of local context.")
		return
	}

	lpos := p.peek().Pos
	p.next() // let

	chunk := NewChunk()
	chunk.WriteOpcode(byte(HIRLocalVar))
	chunk.WritePos(lpos)

	if p.check(TokenMut) {
		mutPos := p.peek().Pos
		p.next()
		chunk.WriteBool(true)
		chunk.WritePos(mutPos)
	} else {
		chunk.WriteBool(false)
		chunk.WritePos(BiPos{})
	}

	namePos := p.peek().Pos
	name, ok := p.consumeIdentString()
	if !ok {
		p.fail(lpos, "Expected an identifier token, but instead got %s", p.peek())
		return
	}
	chunk.WriteString(name)
	chunk.WritePos(namePos)

	if !p.typeSigOrUnknown(chunk) {
		return
	}

	p.emit(chunk)

	if !p.consume(TokenEqual) {
		p.fail(lpos, "Local variable %s must be initialized.", name)
		return
	}

	p.expression()
}

// typeSig parses a type annotation and writes it into dst: a BiPos followed
// by one of the primitive opcodes, or Custom followed by the type name.
// Reports false (after calling fail) if the next token isn't a type name.
func (p *Parser) typeSig(dst *Chunk) bool {
	tpos := p.peek().Pos
	name, ok := p.consumeIdentString()
	if !ok {
		p.fail(tpos, "Expected a type identifier but instead got %s", p.peek())
		return false
	}

	dst.WritePos(tpos)
	switch name {
	case "Int":
		dst.WriteOpcode(byte(HIRInteger))
	case "Float":
		dst.WriteOpcode(byte(HIRFloat))
	case "String":
		dst.WriteOpcode(byte(HIRString))
	case "Bool":
		dst.WriteOpcode(byte(HIRBool))
	default:
		dst.WriteOpcode(byte(HIRCustom))
		dst.WriteString(name)
	}
	return true
}

// typeSigOrUnknown consumes a ": Type" annotation if present, else writes an
// Unknown type sub-chunk anchored at the current token's position.
func (p *Parser) typeSigOrUnknown(dst *Chunk) bool {
	if p.consume(TokenColon) {
		return p.typeSig(dst)
	}
	dst.WritePos(p.peek().Pos)
	dst.WriteOpcode(byte(HIRUnknown))
	return true
}

// typeSigOrUnit consumes a ": Type" return-type annotation if present, else
// writes a Unit type sub-chunk anchored at the current token's position.
func (p *Parser) typeSigOrUnit(dst *Chunk) bool {
	if p.consume(TokenColon) {
		return p.typeSig(dst)
	}
	dst.WritePos(p.peek().Pos)
	dst.WriteOpcode(byte(HIRUnit))
	return true
}

// expression parses a literal, optionally followed by a binary operator and
// a recursive right-hand expression, and emits the result as one chunk.
func (p *Parser) expression() {
	chunk := NewChunk()
	if !p.expressionInto(chunk) {
		return
	}
	p.emit(chunk)
}

// expressionInto parses `<literal>` or `<literal> <op> <expression>`: the
// operator, if any, trails its left operand, and the right-hand side
// recurses into a full expression rather than climbing precedence.
func (p *Parser) expressionInto(chunk *Chunk) bool {
	opTok := p.peekAt(1)
	if op, ok := BinaryOpFor(opTok.Kind); ok {
		return p.binaryInto(chunk, op, opTok)
	}
	return p.literalInto(chunk)
}

// binaryInto parses the left literal already known (via lookahead) to be
// followed by op, then the operator itself, then a recursive right-hand
// expression.
func (p *Parser) binaryInto(chunk *Chunk, op HIROp, opTok Token) bool {
	chunk.WriteOpcode(byte(op))
	chunk.WritePos(opTok.Pos)

	if !p.literalInto(chunk) {
		return false
	}
	p.next() // consume the operator
	return p.expressionInto(chunk)
}

// literalInto parses a single literal token into chunk.
func (p *Parser) literalInto(chunk *Chunk) bool {
	tok := p.next()
	switch tok.Kind {
	case TokenDecimal:
		chunk.WriteOpcode(byte(HIRFloat))
		chunk.WritePos(tok.Pos)
		chunk.WriteF32(tok.Payload.Float)
	case TokenNumber:
		chunk.WriteOpcode(byte(HIRInteger))
		chunk.WritePos(tok.Pos)
		chunk.WriteI32(tok.Payload.Int)
	case TokenString:
		chunk.WriteOpcode(byte(HIRString))
		chunk.WritePos(tok.Pos)
		chunk.WriteString(tok.Payload.String)
	case TokenNone:
		chunk.WriteOpcode(byte(HIRNone))
		chunk.WritePos(tok.Pos)
	case TokenTrue:
		chunk.WriteOpcode(byte(HIRBool))
		chunk.WritePos(tok.Pos)
		chunk.WriteBool(true)
	case TokenFalse:
		chunk.WriteOpcode(byte(HIRBool))
		chunk.WritePos(tok.Pos)
		chunk.WriteBool(false)
	case TokenIdentifier:
		chunk.WriteOpcode(byte(HIRIdent))
		chunk.WritePos(tok.Pos)
		chunk.WriteString(tok.Payload.String)
	default:
		p.fail(tok.Pos, "Unrecognized expression literal: %s", tok)
		return false
	}
	return true
}
