package beagle

import (
	"fmt"
	"strings"
)

// DisassembleHIR renders a stream of HIR chunks as one line per chunk, for
// the beaglec parse subcommand. It's a best-effort debug view, not a parser:
// malformed input renders as an error placeholder rather than panicking.
func DisassembleHIR(chunks []*Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintln(&b, disassembleHIRChunk(clone(c)))
	}
	return b.String()
}

func disassembleHIRChunk(c *Chunk) string {
	opByte, err := c.ReadByte()
	if err != nil {
		return "<empty chunk>"
	}
	op := HIROp(opByte)
	switch op {
	case HIRModule:
		name, _ := c.ReadString()
		return fmt.Sprintf("Module %q", name)
	case HIREndModule:
		return "EndModule"
	case HIRBlock:
		return "Block"
	case HIREndBlock:
		_, _ = c.ReadPos()
		if next, err := c.ReadByte(); err == nil && HIROp(next) == HIREndFn {
			return "EndBlock; EndFn"
		}
		return "EndBlock"
	case HIRProperty, HIRLocalVar:
		_, _ = c.ReadPos()
		mutable, _ := c.ReadBool()
		_, _ = c.ReadPos()
		name, _ := c.ReadString()
		_, _ = c.ReadPos()
		_, ti, err := readType(c)
		if err != nil {
			return fmt.Sprintf("%s %s mutable=%v <malformed type>", op, name, mutable)
		}
		return fmt.Sprintf("%s %s mutable=%v type=%s", op, name, mutable, ti)
	case HIRFn:
		return disassembleFn(c)
	case HIRHalt:
		return "Halt"
	default:
		return disassembleExpr(c, op)
	}
}

func disassembleFn(c *Chunk) string {
	if _, err := c.ReadPos(); err != nil {
		return "Fn <malformed>"
	}
	name, err := c.ReadString()
	if err != nil {
		return "Fn <malformed>"
	}
	if _, err := c.ReadPos(); err != nil {
		return "Fn <malformed>"
	}

	var params []string
	for {
		b, err := c.PeekByte()
		if err != nil {
			return "Fn <malformed>"
		}
		if HIROp(b) == HIREndParams {
			c.ReadByte()
			break
		}
		c.ReadByte() // FnParam
		if _, err := c.ReadPos(); err != nil {
			return "Fn <malformed>"
		}
		pname, err := c.ReadString()
		if err != nil {
			return "Fn <malformed>"
		}
		_, pti, err := readType(c)
		if err != nil {
			return "Fn <malformed>"
		}
		params = append(params, fmt.Sprintf("%s: %s", pname, pti))
	}

	_, retType, err := readType(c)
	if err != nil {
		return "Fn <malformed>"
	}
	return fmt.Sprintf("Fn %s(%s): %s", name, strings.Join(params, ", "), retType)
}

// disassembleExpr renders an expression chunk whose leading opcode has
// already been consumed as op: either a binary chain or a single literal.
func disassembleExpr(c *Chunk, op HIROp) string {
	if _, ok := BinaryOpFor2(op); ok {
		if _, err := c.ReadPos(); err != nil {
			return "<malformed expression>"
		}
		left, err := literalString(c)
		if err != nil {
			return "<malformed expression>"
		}
		rightOp, err := c.ReadByte()
		if err != nil {
			return "<malformed expression>"
		}
		return fmt.Sprintf("(%s %s %s)", left, op, disassembleExpr(c, HIROp(rightOp)))
	}
	s, err := literalStringFor(c, op)
	if err != nil {
		return "<malformed expression>"
	}
	return s
}

func literalString(c *Chunk) (string, error) {
	opByte, err := c.ReadByte()
	if err != nil {
		return "", err
	}
	return literalStringFor(c, HIROp(opByte))
}

func literalStringFor(c *Chunk, op HIROp) (string, error) {
	if _, err := c.ReadPos(); err != nil {
		return "", err
	}
	switch op {
	case HIRInteger:
		v, err := c.ReadI32()
		return fmt.Sprintf("%d", v), err
	case HIRFloat:
		v, err := c.ReadF32()
		return fmt.Sprintf("%g", v), err
	case HIRString:
		v, err := c.ReadString()
		return fmt.Sprintf("%q", v), err
	case HIRBool:
		v, err := c.ReadBool()
		return fmt.Sprintf("%v", v), err
	case HIRNone:
		return "None", nil
	case HIRIdent:
		v, err := c.ReadString()
		return v, err
	default:
		return "", fmt.Errorf("expected a literal opcode, got %s", op)
	}
}

// DisassembleMIR renders a stream of MIR chunks as one line per chunk, for
// the beaglec compile subcommand's human-readable --emit mir view.
func DisassembleMIR(chunks []*Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintln(&b, disassembleMIRChunk(clone(c)))
	}
	return b.String()
}

func disassembleMIRChunk(c *Chunk) string {
	opByte, err := c.ReadByte()
	if err != nil {
		return "<empty chunk>"
	}
	op := MIROp(opByte)
	switch op {
	case MIRModule:
		name, _ := c.ReadString()
		return fmt.Sprintf("%s %q", op, name)
	case MIRFun:
		return disassembleMIRFun(c)
	case MIREndModule, MIREndFun, MIRHalt:
		return op.String()
	case MIRFunParam:
		_, _ = c.ReadPos()
		name, _ := c.ReadString()
		t, _ := c.ReadByte()
		return fmt.Sprintf("FunParam %s: %s", name, MIROp(t))
	case MIRHeapAlloc, MIRStackAlloc:
		_, _ = c.ReadPos()
		size, _ := c.ReadU64()
		return fmt.Sprintf("%s size=%d", op, size)
	case MIRObjInit, MIRLateinit:
		_, _ = c.ReadPos()
		return fmt.Sprintf("%s %s", op, mirValueString(c))
	case MIRDrop:
		_, _ = c.ReadPos()
		return "Drop"
	default:
		return op.String()
	}
}

// disassembleMIRFun renders a Fun header chunk: opcode, BiPos, name, then
// zero or more FunParam stanzas concatenated in the same chunk with no
// terminal marker, per memmy's function() header assembly.
func disassembleMIRFun(c *Chunk) string {
	if _, err := c.ReadPos(); err != nil {
		return "Fun <malformed>"
	}
	name, err := c.ReadString()
	if err != nil {
		return "Fun <malformed>"
	}

	var params []string
	for c.CanRead() {
		opByte, err := c.ReadByte()
		if err != nil || MIROp(opByte) != MIRFunParam {
			return "Fun <malformed trailing bytes>"
		}
		if _, err := c.ReadPos(); err != nil {
			return "Fun <malformed>"
		}
		pname, err := c.ReadString()
		if err != nil {
			return "Fun <malformed>"
		}
		t, err := c.ReadByte()
		if err != nil {
			return "Fun <malformed>"
		}
		params = append(params, fmt.Sprintf("%s: %s", pname, MIROp(t)))
	}
	return fmt.Sprintf("Fun %s(%s)", name, strings.Join(params, ", "))
}

// mirValueString renders a lowered expression value: a plain literal, a
// Move/Copy/Ref reference, or (recursively) a binary expression MIR
// couldn't fold to a constant, carrying its operator as the embedded HIR
// arithmetic tag byte memmy wrote in place of a dedicated MIR opcode.
func mirValueString(c *Chunk) string {
	opByte, err := c.ReadByte()
	if err != nil {
		return "<empty>"
	}
	switch MIROp(opByte) {
	case MIRInteger:
		v, _ := c.ReadI32()
		return fmt.Sprintf("%d", v)
	case MIRFloat:
		v, _ := c.ReadF32()
		return fmt.Sprintf("%g", v)
	case MIRString:
		v, _ := c.ReadString()
		return fmt.Sprintf("%q", v)
	case MIRBool:
		v, _ := c.ReadBool()
		return fmt.Sprintf("%v", v)
	case MIRUnit:
		return "Unit"
	case MIRMove, MIRCopy, MIRRef:
		_, _ = c.ReadPos()
		name, _ := c.ReadString()
		return fmt.Sprintf("%s %s", MIROp(opByte), name)
	default:
		if _, ok := BinaryOpFor2(HIROp(opByte)); ok {
			_, _ = c.ReadPos()
			left := mirValueString(c)
			right := mirValueString(c)
			return fmt.Sprintf("(%s %s %s)", left, HIROp(opByte), right)
		}
		return "<unrecognized>"
	}
}
