package beagle

import "fmt"

// Typeck consumes the HIR chunks emitted by the parser, resolves every
// Unknown type annotation against its initializer, checks symbol and type
// rules, and forwards a structurally identical chunk stream with every type
// sub-chunk filled in.
type Typeck struct {
	moduleName string
	input      <-chan *Chunk
	output     chan<- *Chunk

	diagnostics chan<- Diagnostic
	masterIn    chan<- sourceRequest
	halt        *haltFlag

	lookahead *Chunk
	failed    bool
}

// NewTypeck creates a type-checker reading HIR chunks from input and
// writing type-checked HIR chunks to output.
func NewTypeck(moduleName string, input <-chan *Chunk, output chan<- *Chunk, diagnostics chan<- Diagnostic, masterIn chan<- sourceRequest, halt *haltFlag) *Typeck {
	return &Typeck{
		moduleName:  moduleName,
		input:       input,
		output:      output,
		diagnostics: diagnostics,
		masterIn:    masterIn,
		halt:        halt,
	}
}

func (t *Typeck) halted() bool {
	return t.halt != nil && t.halt.isSet()
}

func (t *Typeck) bug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	t.diagnostics <- newBug("Typeck", t.moduleName, msg)
	t.halt.set()
	t.failed = true
}

func (t *Typeck) errorAt(pos BiPos, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	wide := pos.withLineRegion(2)
	snippet := requestSnippet(t.masterIn, wide)
	diag := newUserError("Typeck", t.moduleName, msg, wide)
	diag.Snippet = &Snippet{
		StartLine: wide.LineRegion.Line,
		Lines:     splitLines(snippet),
		ColStart:  wide.Start.Col,
		ColEnd:    wide.End.Col,
	}
	t.diagnostics <- diag
	t.halt.set()
	t.failed = true
}

func (t *Typeck) emit(c *Chunk) {
	t.output <- c
}

// drain consumes whatever chunks remain on the input channel so the parser
// goroutine feeding it isn't left blocked on a send once a failure cuts
// Run short.
func (t *Typeck) drain() {
	for range t.input {
	}
}

// next reads the next chunk off the input channel, or a synthetic Halt
// chunk if the channel has been closed (no receive timeout is needed here:
// a closed Go channel reports itself immediately rather than blocking).
func (t *Typeck) next() *Chunk {
	if t.lookahead != nil {
		c := t.lookahead
		t.lookahead = nil
		return c
	}
	c, ok := <-t.input
	if !ok {
		halt := NewChunk()
		halt.WriteOpcode(byte(HIRHalt))
		return halt
	}
	return c
}

// peekOp returns the opcode a just-received chunk starts with without
// consuming it.
func (t *Typeck) peekOp() (HIROp, *Chunk) {
	if t.lookahead == nil {
		t.lookahead = t.next()
	}
	op, err := t.lookahead.PeekByte()
	if err != nil {
		return HIRHalt, t.lookahead
	}
	return HIROp(op), t.lookahead
}

// clone returns a fresh, cursor-reset copy of c for decoding, leaving c
// itself untouched so it can be forwarded to output byte-for-byte.
func clone(c *Chunk) *Chunk {
	cp := NewChunk()
	cp.WriteChunk(c)
	return cp
}

// Run drains the input channel to completion, emitting a type-checked chunk
// stream. On the first error it appends a Halt chunk of its own (unless one
// already arrived from the parser) so memmy sees the same break in the
// stream that a parse failure would have produced.
func (t *Typeck) Run() {
	defer close(t.output)

	modScope := newScope(nil)
	t.module(modScope)
	t.drain()

	if t.failed {
		halt := NewChunk()
		halt.WriteOpcode(byte(HIRHalt))
		t.emit(halt)
	}
}

// module decodes one Module...EndModule run, recursing into nested modules.
// The Module/EndModule chunks themselves carry no types and are forwarded
// unchanged.
func (t *Typeck) module(parent *scope) {
	c := t.next()
	cp := clone(c)
	op, err := cp.ReadByte()
	if err != nil || HIROp(op) != HIRModule {
		t.bug("expected Module chunk, got a malformed chunk")
		return
	}
	t.emit(c)

	sc := newScope(parent)
	for !t.failed {
		op, _ := t.peekOp()
		switch op {
		case HIREndModule:
			t.emit(t.next())
			return
		case HIRModule:
			t.module(sc)
		case HIRProperty:
			t.property(sc)
		case HIRFn:
			t.function(sc)
		case HIRHalt:
			t.emit(t.next())
			return
		default:
			t.bug("unexpected chunk opcode %s at module scope", op)
			return
		}
	}
}

// readType decodes a type sub-chunk (BiPos, opcode, optional Custom name).
func readType(c *Chunk) (BiPos, typeInfo, error) {
	pos, err := c.ReadPos()
	if err != nil {
		return BiPos{}, typeInfo{}, err
	}
	opByte, err := c.ReadByte()
	if err != nil {
		return BiPos{}, typeInfo{}, err
	}
	op := HIROp(opByte)
	ti := typeInfo{Op: op}
	if op == HIRCustom {
		name, err := c.ReadString()
		if err != nil {
			return BiPos{}, typeInfo{}, err
		}
		ti.CustomName = name
	}
	return pos, ti, nil
}

func writeType(dst *Chunk, pos BiPos, ti typeInfo) {
	dst.WritePos(pos)
	dst.WriteOpcode(byte(ti.Op))
	if ti.Op == HIRCustom {
		dst.WriteString(ti.CustomName)
	}
}

// inferLiteral decodes a single operand opcode (the only thing legal on the
// left of a binary operator, and the base case of an expression chunk) and
// returns its type, leaving the cursor past the operand's payload. An
// Ident operand is resolved against sc, raising the "unknown identifier"
// diagnostic itself (via errorAt, which sets t.failed) rather than handing
// callers a plain decode error they'd report a second time.
func (t *Typeck) inferLiteral(c *Chunk, sc *scope) (typeInfo, error) {
	opByte, err := c.ReadByte()
	if err != nil {
		return typeInfo{}, err
	}
	switch HIROp(opByte) {
	case HIRInteger:
		if _, err := c.ReadPos(); err != nil {
			return typeInfo{}, err
		}
		_, err := c.ReadI32()
		return typeInfo{Op: HIRInteger}, err
	case HIRFloat:
		if _, err := c.ReadPos(); err != nil {
			return typeInfo{}, err
		}
		_, err := c.ReadF32()
		return typeInfo{Op: HIRFloat}, err
	case HIRString:
		if _, err := c.ReadPos(); err != nil {
			return typeInfo{}, err
		}
		_, err := c.ReadString()
		return typeInfo{Op: HIRString}, err
	case HIRBool:
		if _, err := c.ReadPos(); err != nil {
			return typeInfo{}, err
		}
		_, err := c.ReadBool()
		return typeInfo{Op: HIRBool}, err
	case HIRNone:
		if _, err := c.ReadPos(); err != nil {
			return typeInfo{}, err
		}
		return typeInfo{Op: HIRUnit}, nil
	case HIRIdent:
		pos, err := c.ReadPos()
		if err != nil {
			return typeInfo{}, err
		}
		name, err := c.ReadString()
		if err != nil {
			return typeInfo{}, err
		}
		sym, ok := sc.lookup(name)
		if !ok {
			t.errorAt(pos, "Unknown identifier %s referenced in expression", name)
			return typeInfo{}, nil
		}
		return sym.Type, nil
	default:
		return typeInfo{}, fmt.Errorf("expected a literal opcode, got %s", HIROp(opByte))
	}
}

// inferExpr decodes an expression chunk (a literal, an identifier reference,
// or a binary chain) and returns its type, reporting a mismatch diagnostic
// if the two sides of a binary operator disagree.
func (t *Typeck) inferExpr(c *Chunk, exprPos BiPos, sc *scope) typeInfo {
	opByte, err := c.PeekByte()
	if err != nil {
		t.bug("expression chunk is empty")
		return typeInfo{}
	}
	if _, ok := BinaryOpFor2(HIROp(opByte)); ok {
		c.ReadByte() // opcode
		pos, err := c.ReadPos()
		if err != nil {
			t.bug("malformed binary expression chunk: %v", err)
			return typeInfo{}
		}
		left, err := t.inferLiteral(c, sc)
		if t.failed {
			return typeInfo{}
		}
		if err != nil {
			t.bug("malformed left operand: %v", err)
			return typeInfo{}
		}
		right := t.inferExpr(c, pos, sc)
		if t.failed {
			return left
		}
		if !left.equals(right) {
			t.errorAt(pos, "Binary expression operands have mismatched types %s and %s", left, right)
			return left
		}
		return left
	}

	lit, err := t.inferLiteral(c, sc)
	if t.failed {
		return typeInfo{}
	}
	if err != nil {
		t.errorAt(exprPos, "Unrecognized expression literal")
		return typeInfo{}
	}
	return lit
}

// property decodes a Property chunk and its trailing expression chunk,
// resolving the declared type and registering the symbol.
func (t *Typeck) property(sc *scope) {
	raw := t.next()
	cp := clone(raw)
	cp.ReadByte() // Property opcode
	lpos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed Property chunk: %v", err)
		return
	}
	mutable, err := cp.ReadBool()
	if err != nil {
		t.bug("malformed Property chunk: %v", err)
		return
	}
	if _, err := cp.ReadPos(); err != nil { // mutability pos
		t.bug("malformed Property chunk: %v", err)
		return
	}
	name, err := cp.ReadString()
	if err != nil {
		t.bug("malformed Property chunk: %v", err)
		return
	}
	namePos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed Property chunk: %v", err)
		return
	}
	typePos, declared, err := readType(cp)
	if err != nil {
		t.bug("malformed Property chunk: %v", err)
		return
	}

	if declared.Op == HIRCustom {
		t.errorAt(typePos, "Unknown type identifier %s", declared.CustomName)
	}

	exprRaw := t.next()
	exprCopy := clone(exprRaw)
	inferred := t.inferExpr(exprCopy, namePos, sc)
	if t.failed {
		return
	}

	final := declared
	if declared.isUnknown() {
		final = inferred
	} else if !declared.equals(inferred) {
		t.errorAt(lpos, "Property %s declared as %s but initialized with %s", name, declared, inferred)
		return
	}

	if !sc.declare(&symbol{Name: name, Kind: symbolProperty, Type: final, Mutable: mutable}) {
		t.errorAt(lpos, "Duplicate symbol %s in this scope", name)
		return
	}

	out := NewChunk()
	out.WriteOpcode(byte(HIRProperty))
	out.WritePos(lpos)
	out.WriteBool(mutable)
	out.WritePos(lpos)
	out.WriteString(name)
	out.WritePos(namePos)
	writeType(out, typePos, final)
	t.emit(out)
	t.emit(exprRaw)
}

// function decodes a Fn chunk's header (name, params, return type) along
// with its separately-chunked Block body, and forwards both.
func (t *Typeck) function(sc *scope) {
	raw := t.next()
	cp := clone(raw)
	cp.ReadByte() // Fn opcode
	lpos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed Fn chunk: %v", err)
		return
	}
	name, err := cp.ReadString()
	if err != nil {
		t.bug("malformed Fn chunk: %v", err)
		return
	}
	namePos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed Fn chunk: %v", err)
		return
	}

	fnScope := newScope(sc)

	out := NewChunk()
	out.WriteOpcode(byte(HIRFn))
	out.WritePos(lpos)
	out.WriteString(name)
	out.WritePos(namePos)

	for {
		opByte, err := cp.PeekByte()
		if err != nil {
			t.bug("Fn chunk missing EndParams marker: %v", err)
			return
		}
		if HIROp(opByte) == HIREndParams {
			cp.ReadByte()
			out.WriteOpcode(byte(HIREndParams))
			break
		}
		cp.ReadByte() // FnParam opcode
		ppos, err := cp.ReadPos()
		if err != nil {
			t.bug("malformed FnParam: %v", err)
			return
		}
		pname, err := cp.ReadString()
		if err != nil {
			t.bug("malformed FnParam: %v", err)
			return
		}
		tpos, pt, err := readType(cp)
		if err != nil {
			t.bug("malformed FnParam type: %v", err)
			return
		}
		if pt.Op == HIRCustom {
			t.errorAt(tpos, "Unknown type identifier %s", pt.CustomName)
		}
		if !fnScope.declare(&symbol{Name: pname, Kind: symbolParam, Type: pt}) {
			t.errorAt(ppos, "Duplicate parameter %s", pname)
		}
		out.WriteOpcode(byte(HIRFnParam))
		out.WritePos(ppos)
		out.WriteString(pname)
		writeType(out, tpos, pt)
	}

	retPos, retType, err := readType(cp)
	if err != nil {
		t.bug("Fn chunk missing return type: %v", err)
		return
	}
	if retType.Op == HIRCustom {
		t.errorAt(retPos, "Unknown type identifier %s", retType.CustomName)
	}
	writeType(out, retPos, retType)

	if !sc.declare(&symbol{Name: name, Kind: symbolFunction, Type: retType}) {
		t.errorAt(lpos, "Duplicate symbol %s in this scope", name)
		return
	}
	if t.failed {
		return
	}
	t.emit(out)

	// Block chunk: forwarded unchanged.
	blockRaw := t.next()
	blockCopy := clone(blockRaw)
	if op, _ := blockCopy.ReadByte(); HIROp(op) != HIRBlock {
		t.bug("expected Block chunk to open function body")
		return
	}
	t.emit(blockRaw)

	var lastExprType typeInfo
	sawExpr := false

	for !t.failed {
		op, _ := t.peekOp()
		switch op {
		case HIRLocalVar:
			t.localVar(fnScope)
			sawExpr = false
		case HIREndBlock:
			endRaw := t.next()
			endCopy := clone(endRaw)
			endCopy.ReadByte() // EndBlock
			if _, err := endCopy.ReadPos(); err != nil {
				t.bug("malformed EndBlock chunk: %v", err)
				return
			}
			if op2, err := endCopy.ReadByte(); err != nil || HIROp(op2) != HIREndFn {
				t.bug("EndBlock chunk missing EndFn marker")
				return
			}
			t.emit(endRaw)
			// Only a body that ends in an expression statement is checked
			// against the return type; a body ending in a let, or an empty
			// one, has no final expression to compare.
			if sawExpr && !lastExprType.equals(retType) {
				t.errorAt(namePos, "Function %s returns %s but its body evaluates to %s", name, retType, lastExprType)
			}
			return
		case HIRHalt:
			t.emit(t.next())
			return
		default:
			exprRaw := t.next()
			exprCopy := clone(exprRaw)
			lastExprType = t.inferExpr(exprCopy, namePos, fnScope)
			sawExpr = true
			t.emit(exprRaw)
		}
	}
}

// localVar decodes a LocalVar chunk and its trailing expression chunk,
// returning the initializer's resolved type and whether one was found.
func (t *Typeck) localVar(sc *scope) (typeInfo, bool) {
	raw := t.next()
	cp := clone(raw)
	cp.ReadByte() // LocalVar opcode
	lpos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed LocalVar chunk: %v", err)
		return typeInfo{}, false
	}
	mutable, err := cp.ReadBool()
	if err != nil {
		t.bug("malformed LocalVar chunk: %v", err)
		return typeInfo{}, false
	}
	mutPos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed LocalVar chunk: %v", err)
		return typeInfo{}, false
	}
	name, err := cp.ReadString()
	if err != nil {
		t.bug("malformed LocalVar chunk: %v", err)
		return typeInfo{}, false
	}
	namePos, err := cp.ReadPos()
	if err != nil {
		t.bug("malformed LocalVar chunk: %v", err)
		return typeInfo{}, false
	}
	typePos, declared, err := readType(cp)
	if err != nil {
		t.bug("malformed LocalVar chunk: %v", err)
		return typeInfo{}, false
	}
	if declared.Op == HIRCustom {
		t.errorAt(typePos, "Unknown type identifier %s", declared.CustomName)
	}

	exprRaw := t.next()
	exprCopy := clone(exprRaw)
	inferred := t.inferExpr(exprCopy, namePos, sc)
	if t.failed {
		return typeInfo{}, false
	}

	final := declared
	if declared.isUnknown() {
		final = inferred
	} else if !declared.equals(inferred) {
		t.errorAt(lpos, "Local variable %s declared as %s but initialized with %s", name, declared, inferred)
		return typeInfo{}, false
	}

	if !sc.declare(&symbol{Name: name, Kind: symbolLocal, Type: final, Mutable: mutable}) {
		t.errorAt(lpos, "Duplicate symbol %s in this scope", name)
		return typeInfo{}, false
	}

	out := NewChunk()
	out.WriteOpcode(byte(HIRLocalVar))
	out.WritePos(lpos)
	out.WriteBool(mutable)
	out.WritePos(mutPos)
	out.WriteString(name)
	out.WritePos(namePos)
	writeType(out, typePos, final)
	t.emit(out)
	t.emit(exprRaw)

	return final, true
}

// BinaryOpFor2 reports whether op is one of the arithmetic HIR opcodes, the
// mirror of BinaryOpFor for decoding rather than encoding.
func BinaryOpFor2(op HIROp) (HIROp, bool) {
	switch op {
	case HIRAdd, HIRSub, HIRMult, HIRDiv:
		return op, true
	default:
		return 0, false
	}
}
