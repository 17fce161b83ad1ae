package beagle

import "fmt"

// Memmy consumes the type-checked HIR chunk stream and lowers it to MIR:
// deciding where every property and local variable lives (HeapAlloc for
// properties, StackAlloc for locals), resolving every initializer
// expression down to either a single constant value or a lowered
// reference, and sequencing ObjInit/Lateinit/Drop around each function
// body.
//
// An expression that's built entirely out of literals folds down to a
// single concrete value at lowering time (writeFoldedLiteral), the same as
// before identifier expressions existed. Once an identifier is involved
// there's no value to fold: memmy instead tracks, per binding, how many
// more static reference sites remain (via the refs field on symbol, using
// its own scope tree built from the type-checked stream rather than
// typeck's) and lowers every reference but the last to Copy (small
// primitives) or Ref (aggregates), and the last one to Move. A binary
// expression with a non-constant operand can't fold to a literal either;
// MIR has no arithmetic opcode of its own, so the operator is carried
// forward as the HIR arithmetic tag it already was, embedded ahead of its
// two lowered operands instead of being evaluated.
type Memmy struct {
	moduleName string
	input      <-chan *Chunk
	output     chan<- *Chunk

	diagnostics chan<- Diagnostic
	masterIn    chan<- sourceRequest
	halt        *haltFlag

	lookahead *Chunk
	failed    bool
}

// NewMemmy creates a lowering stage reading type-checked HIR chunks from
// input and writing MIR chunks to output.
func NewMemmy(moduleName string, input <-chan *Chunk, output chan<- *Chunk, diagnostics chan<- Diagnostic, masterIn chan<- sourceRequest, halt *haltFlag) *Memmy {
	return &Memmy{
		moduleName:  moduleName,
		input:       input,
		output:      output,
		diagnostics: diagnostics,
		masterIn:    masterIn,
		halt:        halt,
	}
}

func (m *Memmy) bug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.diagnostics <- newBug("Memmy", m.moduleName, msg)
	m.halt.set()
	m.failed = true
}

func (m *Memmy) errorAt(pos BiPos, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	wide := pos.withLineRegion(2)
	snippet := requestSnippet(m.masterIn, wide)
	diag := newUserError("Memmy", m.moduleName, msg, wide)
	diag.Snippet = &Snippet{
		StartLine: wide.LineRegion.Line,
		Lines:     splitLines(snippet),
		ColStart:  wide.Start.Col,
		ColEnd:    wide.End.Col,
	}
	m.diagnostics <- diag
	m.halt.set()
	m.failed = true
}

func (m *Memmy) emit(c *Chunk) {
	m.output <- c
}

// drain consumes whatever chunks remain on the input channel so typeck's
// goroutine isn't left blocked on a send once a failure cuts Run short.
func (m *Memmy) drain() {
	for range m.input {
	}
}

func (m *Memmy) next() *Chunk {
	if m.lookahead != nil {
		c := m.lookahead
		m.lookahead = nil
		return c
	}
	c, ok := <-m.input
	if !ok {
		halt := NewChunk()
		halt.WriteOpcode(byte(HIRHalt))
		return halt
	}
	return c
}

func (m *Memmy) peekOp() HIROp {
	if m.lookahead == nil {
		m.lookahead = m.next()
	}
	op, err := m.lookahead.PeekByte()
	if err != nil {
		return HIRHalt
	}
	return HIROp(op)
}

// Run drains the input channel, emitting the complete MIR chunk stream for
// the module, followed by a Halt chunk if lowering failed partway through.
func (m *Memmy) Run() {
	defer close(m.output)

	blob := m.module(nil)
	m.drain()

	for _, c := range blob {
		m.emit(c)
	}
	if m.failed {
		halt := NewChunk()
		halt.WriteOpcode(byte(MIRHalt))
		m.emit(halt)
	}
}

// placement is one property or local variable's lowered allocation and
// initializer, kept apart so a whole scope's allocations can be emitted
// ahead of any of their initializers.
type placement struct {
	name  string
	pos   BiPos
	alloc *Chunk
	init  *Chunk
}

// pendingProperty is a module-level property captured during memmy's
// declare-and-count pass: its symbol is already registered and every
// identifier reference inside its initializer already tallied, but it
// hasn't been lowered yet because a later property in the same module might
// still reference it.
type pendingProperty struct {
	name     string
	lpos     BiPos
	namePos  BiPos
	declared typeInfo
	exprRaw  *Chunk
}

// scannedLocal is the function-scope equivalent of pendingProperty: a
// LocalVar statement whose binding is declared and whose initializer's
// references are tallied, waiting on the rest of the function body to be
// scanned before it lowers.
type scannedLocal struct {
	lpos     BiPos
	name     string
	namePos  BiPos
	declared typeInfo
	initExpr *Chunk
}

// bodyItem is one statement in a function body queued between the scan and
// lower passes: either a LocalVar declaration or a bare expression
// statement.
type bodyItem struct {
	local   *scannedLocal
	exprRaw *Chunk
}

// module lowers one Module...EndModule run into a single ordered MIR blob:
// the header, every direct property's HeapAlloc, every direct property's
// initializer, then each child function or nested module's own blob in
// source order, then the closing marker. parent is the enclosing module's
// scope, or nil at the top level.
func (m *Memmy) module(parent *scope) []*Chunk {
	raw := m.next()
	cp := clone(raw)
	op, err := cp.ReadByte()
	if err != nil || HIROp(op) != HIRModule {
		m.bug("expected Module chunk, got a malformed chunk")
		return nil
	}
	name, err := cp.ReadString()
	if err != nil {
		m.bug("malformed Module chunk: %v", err)
		return nil
	}

	header := NewChunk()
	header.WriteOpcode(byte(MIRModule))
	header.WriteString(name)

	mscope := newScope(parent)

	var pending []pendingProperty
	var rest []*Chunk

	for !m.failed {
		switch m.peekOp() {
		case HIREndModule:
			m.next()
			return m.assembleModule(header, m.lowerProperties(mscope, pending), rest, true)
		case HIRModule:
			rest = append(rest, m.module(mscope)...)
		case HIRProperty:
			if p, ok := m.scanProperty(mscope); ok {
				pending = append(pending, p)
			}
		case HIRFn:
			rest = append(rest, m.function(mscope)...)
		case HIRHalt:
			m.next()
			m.failed = true
			return m.assembleModule(header, m.lowerProperties(mscope, pending), rest, false)
		default:
			m.bug("unexpected chunk opcode %s at module scope", m.peekOp())
			return m.assembleModule(header, m.lowerProperties(mscope, pending), rest, false)
		}
	}
	return m.assembleModule(header, m.lowerProperties(mscope, pending), rest, false)
}

// assembleModule concatenates a module's pieces in the order memmy commits
// to: header, all property allocations, all property initializers, then
// child functions and nested modules as they appeared in the source.
// complete is false when lowering stopped early (error or upstream Halt);
// the caller's Run appends its own Halt chunk in that case, so no
// EndModule marker is added here for a plain propagated failure, only for
// a genuine EndModule.
func (m *Memmy) assembleModule(header *Chunk, properties []placement, rest []*Chunk, complete bool) []*Chunk {
	out := make([]*Chunk, 0, 2+2*len(properties)+len(rest)+1)
	out = append(out, header)
	for _, p := range properties {
		out = append(out, p.alloc)
	}
	for _, p := range properties {
		out = append(out, p.init)
	}
	out = append(out, rest...)
	if complete {
		end := NewChunk()
		end.WriteOpcode(byte(MIREndModule))
		out = append(out, end)
	}
	return out
}

// scanProperty reads a Property chunk and its trailing expression chunk off
// the channel without lowering either: it registers the property in mscope
// and tallies every identifier reference its initializer makes. Lowering is
// deferred to lowerProperties, once every property in the module has been
// scanned this way, so every reference that later properties make to an
// earlier one is tallied before any of them lowers. A reference to a
// property declared further down is not tallied, since that property isn't
// declared yet when the scan reaches it; typeck rejects such references as
// unknown identifiers.
func (m *Memmy) scanProperty(mscope *scope) (pendingProperty, bool) {
	raw := m.next()
	cp := clone(raw)
	cp.ReadByte() // Property opcode
	lpos, err := cp.ReadPos()
	if err != nil {
		m.bug("malformed Property chunk: %v", err)
		return pendingProperty{}, false
	}
	cp.ReadBool() // mutable, not needed for placement
	if _, err := cp.ReadPos(); err != nil {
		m.bug("malformed Property chunk: %v", err)
		return pendingProperty{}, false
	}
	name, err := cp.ReadString()
	if err != nil {
		m.bug("malformed Property chunk: %v", err)
		return pendingProperty{}, false
	}
	namePos, err := cp.ReadPos()
	if err != nil {
		m.bug("malformed Property chunk: %v", err)
		return pendingProperty{}, false
	}
	_, declared, err := readType(cp)
	if err != nil {
		m.bug("malformed Property chunk: %v", err)
		return pendingProperty{}, false
	}

	exprRaw := m.next()

	mscope.declare(&symbol{Name: name, Kind: symbolProperty, Type: declared})
	scanExprRefs(clone(exprRaw), mscope)

	return pendingProperty{name: name, lpos: lpos, namePos: namePos, declared: declared, exprRaw: exprRaw}, true
}

// lowerProperties lowers every pending property now that the whole module's
// properties are declared in mscope and every reference site has been
// tallied, so Copy/Ref/Move assignment during lowering sees each earlier
// property's full reference count.
func (m *Memmy) lowerProperties(mscope *scope, pending []pendingProperty) []placement {
	var out []placement
	for _, p := range pending {
		if m.failed {
			break
		}
		initChunk, val, ok := m.lowerInit(p.namePos, p.exprRaw, mscope)
		if !ok {
			continue
		}
		size := sizeOf(p.declared.Op, stringLenOf(val))
		alloc := NewChunk()
		alloc.WriteOpcode(byte(MIRHeapAlloc))
		alloc.WritePos(p.lpos)
		alloc.WriteU64(uint64(size))
		out = append(out, placement{name: p.name, pos: p.lpos, alloc: alloc, init: initChunk})
	}
	return out
}

// function lowers a Fn chunk, its separately-chunked Block body, and the
// combined EndBlock/EndFn marker into a single ordered MIR blob: header,
// every local's StackAlloc, every local's initializer and every bare
// expression statement's lowered value, then Drops in reverse declaration
// order, then EndFun. parent is the enclosing module's scope, so the body
// can reference a property by name in addition to its own params/locals.
func (m *Memmy) function(parent *scope) []*Chunk {
	raw := m.next()
	cp := clone(raw)
	cp.ReadByte() // Fn opcode
	lpos, err := cp.ReadPos()
	if err != nil {
		m.bug("malformed Fn chunk: %v", err)
		return nil
	}
	name, err := cp.ReadString()
	if err != nil {
		m.bug("malformed Fn chunk: %v", err)
		return nil
	}
	namePos, err := cp.ReadPos()
	if err != nil {
		m.bug("malformed Fn chunk: %v", err)
		return nil
	}

	header := NewChunk()
	header.WriteOpcode(byte(MIRFun))
	header.WritePos(lpos)
	header.WriteString(name)

	fnScope := newScope(parent)

	for {
		opByte, err := cp.PeekByte()
		if err != nil {
			m.bug("Fn chunk missing EndParams marker: %v", err)
			return nil
		}
		if HIROp(opByte) == HIREndParams {
			cp.ReadByte()
			break
		}
		cp.ReadByte() // FnParam opcode
		ppos, err := cp.ReadPos()
		if err != nil {
			m.bug("malformed FnParam: %v", err)
			return nil
		}
		pname, err := cp.ReadString()
		if err != nil {
			m.bug("malformed FnParam: %v", err)
			return nil
		}
		_, pt, err := readType(cp)
		if err != nil {
			m.bug("malformed FnParam type: %v", err)
			return nil
		}
		fnScope.declare(&symbol{Name: pname, Kind: symbolParam, Type: pt})
		header.WriteOpcode(byte(MIRFunParam))
		header.WritePos(ppos)
		header.WriteString(pname)
		header.WriteOpcode(byte(mirTypeFor(pt)))
	}

	if _, _, err := readType(cp); err != nil { // return type, not needed for placement
		m.bug("Fn chunk missing return type: %v", err)
		return nil
	}

	blockRaw := m.next()
	blockCopy := clone(blockRaw)
	if op, _ := blockCopy.ReadByte(); HIROp(op) != HIRBlock {
		m.bug("expected Block chunk to open function body")
		return nil
	}

	// First pass: buffer every body statement, declaring each local and
	// tallying every identifier reference site into fnScope, before any of
	// them lower. A statement can reference anything already declared,
	// including a local declared earlier in this same pass, so a single
	// forward walk is enough to know every binding's total reference count
	// before the second pass assigns Copy/Ref/Move to any of them.
	var items []bodyItem
	complete := false

scan:
	for !m.failed {
		switch m.peekOp() {
		case HIRLocalVar:
			sl, ok := m.scanLocalVar(fnScope)
			if !ok {
				break scan
			}
			items = append(items, bodyItem{local: sl})
		case HIREndBlock:
			endRaw := m.next()
			endCopy := clone(endRaw)
			endCopy.ReadByte() // EndBlock
			if _, err := endCopy.ReadPos(); err != nil {
				m.bug("malformed EndBlock chunk: %v", err)
				break scan
			}
			if op2, err := endCopy.ReadByte(); err != nil || HIROp(op2) != HIREndFn {
				m.bug("EndBlock chunk missing EndFn marker")
				break scan
			}
			complete = true
			break scan
		case HIRHalt:
			m.next()
			m.failed = true
			break scan
		default:
			exprRaw := m.next()
			scanExprRefs(clone(exprRaw), fnScope)
			items = append(items, bodyItem{exprRaw: exprRaw})
		}
	}

	// Second pass: lower every buffered item in source order, now that
	// every binding's total reference count is known.
	var locals []placement
	var other []*Chunk
	for _, it := range items {
		if m.failed {
			complete = false
			break
		}
		if it.local != nil {
			p, ok := m.lowerLocalVar(fnScope, *it.local)
			if !ok {
				complete = false
				break
			}
			locals = append(locals, p)
			continue
		}
		exprCopy := clone(it.exprRaw)
		val, ok := m.lowerExpr(exprCopy, fnScope)
		if !ok {
			complete = false
			break
		}
		obj := NewChunk()
		obj.WriteOpcode(byte(MIRObjInit))
		obj.WritePos(namePos)
		writeExprValue(obj, val)
		other = append(other, obj)
	}

	return m.assembleFunction(header, locals, other, complete)
}

// assembleFunction concatenates a function's pieces: header, every local's
// StackAlloc, then every local's initializer in declaration order, then the
// bare expression statements in source order, then Drops in reverse
// declaration order, then
// EndFun. complete is false when the body was cut short by an error or an
// upstream Halt, in which case no EndFun is synthesized.
func (m *Memmy) assembleFunction(header *Chunk, locals []placement, other []*Chunk, complete bool) []*Chunk {
	out := make([]*Chunk, 0, 2+2*len(locals)+len(other)+len(locals)+1)
	out = append(out, header)
	for _, p := range locals {
		out = append(out, p.alloc)
	}
	for _, p := range locals {
		out = append(out, p.init)
	}
	out = append(out, other...)
	for i := len(locals) - 1; i >= 0; i-- {
		drop := NewChunk()
		drop.WriteOpcode(byte(MIRDrop))
		drop.WritePos(locals[i].pos)
		out = append(out, drop)
	}
	if complete {
		end := NewChunk()
		end.WriteOpcode(byte(MIREndFun))
		out = append(out, end)
	}
	return out
}

// scanLocalVar reads a LocalVar chunk and its trailing expression chunk off
// the channel, declares the binding into fnScope, and tallies every
// identifier reference its initializer makes, deferring the actual
// lowering to lowerLocalVar once every reference site in the function has
// been counted.
func (m *Memmy) scanLocalVar(fnScope *scope) (*scannedLocal, bool) {
	raw := m.next()
	cp := clone(raw)
	cp.ReadByte() // LocalVar opcode
	lpos, err := cp.ReadPos()
	if err != nil {
		m.bug("malformed LocalVar chunk: %v", err)
		return nil, false
	}
	cp.ReadBool() // mutable, not needed for placement
	if _, err := cp.ReadPos(); err != nil {
		m.bug("malformed LocalVar chunk: %v", err)
		return nil, false
	}
	name, err := cp.ReadString()
	if err != nil {
		m.bug("malformed LocalVar chunk: %v", err)
		return nil, false
	}
	namePos, err := cp.ReadPos()
	if err != nil {
		m.bug("malformed LocalVar chunk: %v", err)
		return nil, false
	}
	_, declared, err := readType(cp)
	if err != nil {
		m.bug("malformed LocalVar chunk: %v", err)
		return nil, false
	}

	exprRaw := m.next()

	fnScope.declare(&symbol{Name: name, Kind: symbolLocal, Type: declared})
	scanExprRefs(clone(exprRaw), fnScope)

	return &scannedLocal{lpos: lpos, name: name, namePos: namePos, declared: declared, initExpr: exprRaw}, true
}

// lowerLocalVar lowers an already-scanned LocalVar into a StackAlloc/ObjInit
// (or StackAlloc/Lateinit) pair, using the raw initializer chunk captured
// during the scan pass.
func (m *Memmy) lowerLocalVar(fnScope *scope, sl scannedLocal) (placement, bool) {
	initChunk, val, ok := m.lowerInit(sl.namePos, sl.initExpr, fnScope)
	if !ok {
		return placement{}, false
	}
	size := sizeOf(sl.declared.Op, stringLenOf(val))
	alloc := NewChunk()
	alloc.WriteOpcode(byte(MIRStackAlloc))
	alloc.WritePos(sl.lpos)
	alloc.WriteU64(uint64(size))
	return placement{name: sl.name, pos: sl.lpos, alloc: alloc, init: initChunk}, true
}

// foldedValue is a single concrete value a literal-only expression folded
// down to, tagged with the HIR literal opcode it folded to.
type foldedValue struct {
	op HIROp
	i  int32
	f  float32
	s  string
	b  bool
}

// refValue is a single identifier reference, resolved to the memory
// operation (Move, Copy, or Ref) its position among that binding's
// reference sites assigns it.
type refValue struct {
	name string
	pos  BiPos
	kind MIROp
}

// exprValueKind tags which case of exprValue is populated.
type exprValueKind int

const (
	exprConstant exprValueKind = iota
	exprRef
	exprBinary
)

// exprValue is the outcome of lowering one expression chunk. The common
// case, every operand a literal, folds to a single constant exactly as a
// purely-literal language would. Once an identifier is involved there's no
// concrete value to fold to at lowering time: the reference itself (exprRef)
// or, for a binary expression with at least one non-constant operand, the
// operator plus both lowered operands (exprBinary) is preserved instead.
type exprValue struct {
	kind exprValueKind

	lit foldedValue // valid when kind == exprConstant
	ref refValue    // valid when kind == exprRef

	op          HIROp // valid when kind == exprBinary
	pos         BiPos // valid when kind == exprBinary
	left, right *exprValue
}

// stringLenOf returns the byte length memmy should reserve for a String
// initializer, when the value folded to a concrete string. A non-constant
// String-typed reference has no length known at lowering time and reserves
// zero, the same fallback already used for Custom types.
func stringLenOf(v exprValue) int {
	if v.kind == exprConstant && v.lit.op == HIRString {
		return len(v.lit.s)
	}
	return 0
}

// lowerInit lowers a property or local variable's initializer expression: a
// bare None literal becomes Lateinit, anything else lowers via lowerExpr
// and becomes ObjInit.
func (m *Memmy) lowerInit(namePos BiPos, exprRaw *Chunk, sc *scope) (*Chunk, exprValue, bool) {
	exprCopy := clone(exprRaw)
	if opByte, err := exprCopy.PeekByte(); err == nil && HIROp(opByte) == HIRNone {
		exprCopy.ReadByte()
		pos, err := exprCopy.ReadPos()
		if err != nil {
			m.bug("malformed None literal: %v", err)
			return nil, exprValue{}, false
		}
		out := NewChunk()
		out.WriteOpcode(byte(MIRLateinit))
		out.WritePos(pos)
		return out, exprValue{kind: exprConstant, lit: foldedValue{op: HIRUnit}}, true
	}

	val, ok := m.lowerExpr(exprCopy, sc)
	if !ok {
		return nil, exprValue{}, false
	}

	out := NewChunk()
	out.WriteOpcode(byte(MIRObjInit))
	out.WritePos(namePos)
	writeExprValue(out, val)
	return out, val, true
}

// writeExprValue writes a lowered expression's wire representation: a plain
// literal for a folded constant, a Move/Copy/Ref opcode plus name for a
// reference, or the embedded arithmetic tag plus both recursively-written
// operands for a binary expression MIR couldn't fold.
func writeExprValue(dst *Chunk, v exprValue) {
	switch v.kind {
	case exprRef:
		dst.WriteOpcode(byte(v.ref.kind))
		dst.WritePos(v.ref.pos)
		dst.WriteString(v.ref.name)
	case exprBinary:
		dst.WriteOpcode(byte(v.op))
		dst.WritePos(v.pos)
		writeExprValue(dst, *v.left)
		writeExprValue(dst, *v.right)
	default:
		writeFoldedLiteral(dst, v.lit)
	}
}

func writeFoldedLiteral(dst *Chunk, v foldedValue) {
	mirOp, _ := mirLiteralFor(v.op)
	dst.WriteOpcode(byte(mirOp))
	switch v.op {
	case HIRInteger:
		dst.WriteI32(v.i)
	case HIRFloat:
		dst.WriteF32(v.f)
	case HIRString:
		dst.WriteString(v.s)
	case HIRBool:
		dst.WriteBool(v.b)
	}
}

// lowerExpr decodes an expression chunk (a literal, an identifier
// reference, or a chain of arithmetic operators) into an exprValue.
func (m *Memmy) lowerExpr(c *Chunk, sc *scope) (exprValue, bool) {
	opByte, err := c.PeekByte()
	if err != nil {
		m.bug("expression chunk is empty")
		return exprValue{}, false
	}
	if _, ok := BinaryOpFor2(HIROp(opByte)); ok {
		binOp := HIROp(opByte)
		c.ReadByte()
		pos, err := c.ReadPos()
		if err != nil {
			m.bug("malformed binary expression chunk: %v", err)
			return exprValue{}, false
		}
		left, ok := m.lowerOperand(c, sc)
		if !ok {
			return exprValue{}, false
		}
		right, ok := m.lowerExpr(c, sc)
		if !ok {
			return exprValue{}, false
		}
		return m.combineBinary(pos, binOp, left, right)
	}
	return m.lowerOperand(c, sc)
}

// lowerOperand decodes a single operand: a literal, folded in place, or an
// identifier reference resolved and consumed against sc.
func (m *Memmy) lowerOperand(c *Chunk, sc *scope) (exprValue, bool) {
	opByte, err := c.ReadByte()
	if err != nil {
		m.bug("malformed literal: %v", err)
		return exprValue{}, false
	}
	switch HIROp(opByte) {
	case HIRInteger:
		if _, err := c.ReadPos(); err != nil {
			m.bug("malformed integer literal: %v", err)
			return exprValue{}, false
		}
		v, err := c.ReadI32()
		if err != nil {
			m.bug("malformed integer literal: %v", err)
			return exprValue{}, false
		}
		return exprValue{kind: exprConstant, lit: foldedValue{op: HIRInteger, i: v}}, true
	case HIRFloat:
		if _, err := c.ReadPos(); err != nil {
			m.bug("malformed float literal: %v", err)
			return exprValue{}, false
		}
		v, err := c.ReadF32()
		if err != nil {
			m.bug("malformed float literal: %v", err)
			return exprValue{}, false
		}
		return exprValue{kind: exprConstant, lit: foldedValue{op: HIRFloat, f: v}}, true
	case HIRString:
		if _, err := c.ReadPos(); err != nil {
			m.bug("malformed string literal: %v", err)
			return exprValue{}, false
		}
		v, err := c.ReadString()
		if err != nil {
			m.bug("malformed string literal: %v", err)
			return exprValue{}, false
		}
		return exprValue{kind: exprConstant, lit: foldedValue{op: HIRString, s: v}}, true
	case HIRBool:
		if _, err := c.ReadPos(); err != nil {
			m.bug("malformed bool literal: %v", err)
			return exprValue{}, false
		}
		v, err := c.ReadBool()
		if err != nil {
			m.bug("malformed bool literal: %v", err)
			return exprValue{}, false
		}
		return exprValue{kind: exprConstant, lit: foldedValue{op: HIRBool, b: v}}, true
	case HIRNone:
		if _, err := c.ReadPos(); err != nil {
			m.bug("malformed none literal: %v", err)
			return exprValue{}, false
		}
		return exprValue{kind: exprConstant, lit: foldedValue{op: HIRUnit}}, true
	case HIRIdent:
		pos, err := c.ReadPos()
		if err != nil {
			m.bug("malformed identifier reference: %v", err)
			return exprValue{}, false
		}
		name, err := c.ReadString()
		if err != nil {
			m.bug("malformed identifier reference: %v", err)
			return exprValue{}, false
		}
		sym, ok := sc.lookup(name)
		if !ok {
			m.bug("reference to unresolved identifier %s (typeck should have rejected this)", name)
			return exprValue{}, false
		}
		sym.refs--
		kind := MIRCopy
		if !isPrimitiveType(sym.Type.Op) {
			kind = MIRRef
		}
		if sym.refs <= 0 {
			kind = MIRMove
		}
		return exprValue{kind: exprRef, ref: refValue{name: name, pos: pos, kind: kind}}, true
	default:
		m.bug("expected a literal opcode, got %s", HIROp(opByte))
		return exprValue{}, false
	}
}

// combineBinary evaluates one arithmetic operator over two lowered operands.
// If both are constants the result folds to a single constant, exactly as
// it would with no identifiers in the language at all. Otherwise the
// operator and both operands are preserved as a binary exprValue, since MIR
// has no arithmetic opcode of its own to evaluate it into.
func (m *Memmy) combineBinary(pos BiPos, op HIROp, left, right exprValue) (exprValue, bool) {
	if left.kind != exprConstant || right.kind != exprConstant {
		return exprValue{kind: exprBinary, op: op, pos: pos, left: &left, right: &right}, true
	}
	_, folded, ok := m.applyBinary(pos, op, left.lit, right.lit)
	if !ok {
		return exprValue{}, false
	}
	return exprValue{kind: exprConstant, lit: folded}, true
}

// isPrimitiveType reports whether op is one of the small built-in value
// types, which lower to Copy; anything else (a Custom aggregate) lowers to
// Ref instead. Custom types are rejected outright during type-checking
// today, so the Ref branch isn't reachable yet, but it's realized here
// rather than left out so lifting that restriction doesn't also require
// revisiting this rule.
func isPrimitiveType(op HIROp) bool {
	switch op {
	case HIRInteger, HIRFloat, HIRBool, HIRString:
		return true
	default:
		return false
	}
}

// scanExprRefs walks an expression chunk tallying every identifier
// reference it contains into sc's symbols, without lowering anything.
// Malformed input is left for the lowering pass to diagnose properly; this
// pass silently stops rather than reporting anything itself, since running
// it twice (once here, once for real) would otherwise double-report the
// same decode failure.
func scanExprRefs(c *Chunk, sc *scope) {
	opByte, err := c.PeekByte()
	if err != nil {
		return
	}
	if _, ok := BinaryOpFor2(HIROp(opByte)); ok {
		c.ReadByte()
		if _, err := c.ReadPos(); err != nil {
			return
		}
		scanOperandRefs(c, sc)
		scanExprRefs(c, sc)
		return
	}
	scanOperandRefs(c, sc)
}

func scanOperandRefs(c *Chunk, sc *scope) {
	opByte, err := c.ReadByte()
	if err != nil {
		return
	}
	switch HIROp(opByte) {
	case HIRInteger:
		c.ReadPos()
		c.ReadI32()
	case HIRFloat:
		c.ReadPos()
		c.ReadF32()
	case HIRString:
		c.ReadPos()
		c.ReadString()
	case HIRBool:
		c.ReadPos()
		c.ReadBool()
	case HIRNone:
		c.ReadPos()
	case HIRIdent:
		c.ReadPos()
		name, err := c.ReadString()
		if err != nil {
			return
		}
		if sym, ok := sc.lookup(name); ok {
			sym.refs++
		}
	}
}

// applyBinary evaluates one arithmetic operator over two already-folded
// operands. Type-checking has already guaranteed both sides agree, so any
// mismatch here is a compiler bug rather than a user error; an actual
// division by zero is the one case left for memmy itself to catch.
func (m *Memmy) applyBinary(pos BiPos, op HIROp, left, right foldedValue) (HIROp, foldedValue, bool) {
	if left.op != right.op {
		m.bug("binary expression operands disagree in type after type-checking (%s vs %s)", left.op, right.op)
		return 0, foldedValue{}, false
	}
	switch left.op {
	case HIRInteger:
		var v int32
		switch op {
		case HIRAdd:
			v = left.i + right.i
		case HIRSub:
			v = left.i - right.i
		case HIRMult:
			v = left.i * right.i
		case HIRDiv:
			if right.i == 0 {
				m.errorAt(pos, "Division by zero in constant expression")
				return 0, foldedValue{}, false
			}
			v = left.i / right.i
		}
		return HIRInteger, foldedValue{op: HIRInteger, i: v}, true
	case HIRFloat:
		var v float32
		switch op {
		case HIRAdd:
			v = left.f + right.f
		case HIRSub:
			v = left.f - right.f
		case HIRMult:
			v = left.f * right.f
		case HIRDiv:
			v = left.f / right.f
		}
		return HIRFloat, foldedValue{op: HIRFloat, f: v}, true
	case HIRString:
		if op != HIRAdd {
			m.bug("operator %s is not defined for strings", op)
			return 0, foldedValue{}, false
		}
		return HIRString, foldedValue{op: HIRString, s: left.s + right.s}, true
	default:
		m.bug("operator %s is not defined for %s", op, left.op)
		return 0, foldedValue{}, false
	}
}

// mirTypeFor maps a resolved HIR type to the MIR opcode used to describe a
// function parameter's type. Custom and Unknown never legitimately survive
// type-checking (every Custom annotation is rejected as an unknown
// identifier), so they fall back to Unit defensively on the already-failing
// path that produced one anyway.
func mirTypeFor(ti typeInfo) MIROp {
	if op, ok := mirLiteralFor(ti.Op); ok {
		return op
	}
	return MIRUnit
}
