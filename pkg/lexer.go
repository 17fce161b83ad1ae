package beagle

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// lexerState is a function that, given the lexer, might emit a Token and
// sets the next state by returning it. A nil state ends lexing.
type lexerState func(l *Lexer) lexerState

// Lexer consumes a source string and produces a sequence of tokens
// terminated by TokenEOF onto its output channel. A Lexer should never be
// reused and is not safe for concurrent use.
type Lexer struct {
	moduleName string
	src        []rune

	// idx is the index of the next unread rune in src.
	idx int
	// line/col track the position of the rune at idx.
	line, col int
	// start is the position the current token began at.
	start Position
	// startIdx is the rune offset l.idx held when start was marked.
	startIdx int

	output      chan<- Token
	diagnostics chan<- Diagnostic
	masterIn    chan<- sourceRequest
	halt        *haltFlag
}

// NewLexer creates a lexer over source, sending tokens to output and
// diagnostics to diagnostics. masterIn is used to request source snippets
// for diagnostics raised mid-token (e.g. an unterminated string).
func NewLexer(moduleName, source string, output chan<- Token, diagnostics chan<- Diagnostic, masterIn chan<- sourceRequest, halt *haltFlag) *Lexer {
	return &Lexer{
		moduleName:  moduleName,
		src:         []rune(source),
		line:        1,
		col:         1,
		start:       Position{Line: 1, Col: 1},
		output:      output,
		diagnostics: diagnostics,
		masterIn:    masterIn,
		halt:        halt,
	}
}

// Run drives the lexer to completion, closing output once TokenEOF has been
// sent or the shared halt flag is observed.
func (l *Lexer) Run() {
	for state := lexStart; state != nil; {
		if l.halt != nil && l.halt.isSet() {
			l.emit(Token{Kind: TokenEOF, Pos: l.pos()})
			break
		}
		state = state(l)
	}
	close(l.output)
}

func (l *Lexer) pos() BiPos {
	p := NewBiPos(l.start, Position{Line: l.line, Col: l.col})
	p.Offset = Position{Line: l.startIdx, Col: l.idx}
	return p
}

// peek returns the next rune without consuming it, or 0 at end of input.
func (l *Lexer) peek() rune {
	if l.idx >= len(l.src) {
		return 0
	}
	return l.src[l.idx]
}

// peekAt returns the rune offset positions ahead of idx without consuming
// anything, or 0 if out of range.
func (l *Lexer) peekAt(offset int) rune {
	i := l.idx + offset
	if i < 0 || i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

// next consumes and returns the next rune, advancing line/col bookkeeping.
func (l *Lexer) next() rune {
	if l.idx >= len(l.src) {
		return 0
	}
	r := l.src[l.idx]
	l.idx++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) markStart() {
	l.start = Position{Line: l.line, Col: l.col}
	l.startIdx = l.idx
}

func (l *Lexer) emit(t Token) {
	l.output <- t
}

func (l *Lexer) emitKind(kind TokenKind, payload TokenPayload) {
	l.emit(Token{Kind: kind, Payload: payload, Pos: l.pos()})
}

func (l *Lexer) emitErrorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.emit(Token{Kind: TokenErr, Payload: TokenPayload{String: msg}, Pos: l.pos()})
	l.diagnostics <- newUserError("Lexer", l.moduleName, msg, l.pos())
}

// lexStart is the default state: skip whitespace, then dispatch on the next
// rune's class.
func lexStart(l *Lexer) lexerState {
	for {
		r := l.peek()
		switch {
		case r == 0:
			return lexEnd
		case unicode.IsSpace(r):
			l.next()
			l.markStart()
			continue
		case unicode.IsDigit(r):
			l.markStart()
			return lexNumber
		case r == '"':
			l.markStart()
			return lexString
		case unicode.IsLetter(r):
			l.markStart()
			return lexIdentifier
		default:
			l.markStart()
			return lexOperator
		}
	}
}

// lexNumber consumes a run of digits, with at most one embedded '.', per
// the grammar: a run with exactly one '.' is a Decimal, else a Number.
func lexNumber(l *Lexer) lexerState {
	var sb strings.Builder
	dots := 0
	for {
		r := l.peek()
		if unicode.IsDigit(r) {
			sb.WriteRune(l.next())
			continue
		}
		if r == '.' && dots == 0 && unicode.IsDigit(l.peekAt(1)) {
			dots++
			sb.WriteRune(l.next())
			continue
		}
		break
	}

	text := sb.String()
	if dots == 1 {
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			l.emitErrorf("invalid decimal literal %q", text)
			return lexStart
		}
		l.emitKind(TokenDecimal, TokenPayload{Float: float32(f)})
		return lexStart
	}

	n, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		l.emitErrorf("invalid integer literal %q", text)
		return lexStart
	}
	l.emitKind(TokenNumber, TokenPayload{Int: int32(n)})
	return lexStart
}

// lexString consumes a "..."-delimited string. No escape handling is
// required for the core language. An unterminated string requests a
// snippet from the driver and reports a diagnostic.
func lexString(l *Lexer) lexerState {
	l.next() // opening quote

	var sb strings.Builder
	for {
		r := l.next()
		if r == '"' {
			l.emitKind(TokenString, TokenPayload{String: sb.String()})
			return lexStart
		}
		if r == 0 {
			pos := l.pos().withLineRegion(2)
			snippet := requestSnippet(l.masterIn, pos)
			diag := newUserError("Lexer", l.moduleName, "Unable to parse string", pos)
			diag.Snippet = &Snippet{
				StartLine: pos.LineRegion.Line,
				Lines:     splitLines(snippet),
				ColStart:  pos.Start.Col,
				ColEnd:    pos.End.Col,
			}
			l.diagnostics <- diag
			l.emit(Token{Kind: TokenErr, Payload: TokenPayload{String: "unclosed string"}, Pos: pos})
			return lexStart
		}
		sb.WriteRune(r)
	}
}

// lexIdentifier consumes an identifier and reclassifies it as a keyword if
// it matches the keyword table.
func lexIdentifier(l *Lexer) lexerState {
	var sb strings.Builder
	for {
		r := l.peek()
		if r == 0 || unicode.IsSpace(r) {
			break
		}
		if _, isDelim := delimiterTable[r]; isDelim {
			break
		}
		sb.WriteRune(l.next())
	}

	text := sb.String()
	if kind, ok := keywordTable[text]; ok {
		l.emitKind(kind, TokenPayload{String: text})
		return lexStart
	}

	l.emitKind(TokenIdentifier, TokenPayload{String: text})
	return lexStart
}

// lexOperator consumes a single delimiter rune, or reports an Err token for
// anything the lexer doesn't recognise.
func lexOperator(l *Lexer) lexerState {
	r := l.next()
	if kind, ok := delimiterTable[r]; ok {
		l.emitKind(kind, TokenPayload{String: string(r)})
		return lexStart
	}

	l.emitErrorf("Invalid character")
	return lexStart
}

func lexEnd(l *Lexer) lexerState {
	l.markStart()
	l.emitKind(TokenEOF, TokenPayload{})
	return nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
