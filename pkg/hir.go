package beagle

// HIROp is a one-byte HIR opcode, as written by the parser and consumed (and
// rewritten) by the type-checker.
type HIROp byte

//go:generate stringer -type=HIROp -trimprefix=HIR
const (
	HIRModule HIROp = iota
	HIREndModule
	HIRFn
	HIREndFn
	HIRBlock
	HIREndBlock
	HIRFnParam
	HIREndParams
	HIRProperty
	HIRLocalVar
	HIRInteger
	HIRFloat
	HIRBool
	HIRString
	HIRUnit
	HIRUnknown
	HIRCustom
	HIRAdd
	HIRSub
	HIRMult
	HIRDiv
	HIRNone
	// HIRIdent references a symbol by name from within an expression: a
	// BiPos followed by the referenced name. Typeck resolves it against the
	// current scope; memmy lowers it to Copy, Ref, or Move depending on how
	// many reference sites the binding has left.
	HIRIdent
	HIRHalt
)

// isTypeOpcode reports whether op is one of the opcodes that can open a type
// sub-chunk (Integer, Float, String, Bool, Custom, Unknown, Unit).
func (op HIROp) isTypeOpcode() bool {
	switch op {
	case HIRInteger, HIRFloat, HIRString, HIRBool, HIRCustom, HIRUnknown, HIRUnit:
		return true
	default:
		return false
	}
}

func (op HIROp) String() string {
	switch op {
	case HIRModule:
		return "Module"
	case HIREndModule:
		return "EndModule"
	case HIRFn:
		return "Fn"
	case HIREndFn:
		return "EndFn"
	case HIRBlock:
		return "Block"
	case HIREndBlock:
		return "EndBlock"
	case HIRFnParam:
		return "FnParam"
	case HIREndParams:
		return "EndParams"
	case HIRProperty:
		return "Property"
	case HIRLocalVar:
		return "LocalVar"
	case HIRInteger:
		return "Integer"
	case HIRFloat:
		return "Float"
	case HIRBool:
		return "Bool"
	case HIRString:
		return "String"
	case HIRUnit:
		return "Unit"
	case HIRUnknown:
		return "Unknown"
	case HIRCustom:
		return "Custom"
	case HIRAdd:
		return "Add"
	case HIRSub:
		return "Sub"
	case HIRMult:
		return "Mult"
	case HIRDiv:
		return "Div"
	case HIRNone:
		return "None"
	case HIRIdent:
		return "Ident"
	case HIRHalt:
		return "Halt"
	default:
		return "HIROp(?)"
	}
}

// BinaryOpFor maps an arithmetic operator token to its HIR opcode. ok is
// false if tok isn't an arithmetic operator.
func BinaryOpFor(tok TokenKind) (HIROp, bool) {
	switch tok {
	case TokenPlus:
		return HIRAdd, true
	case TokenMinus:
		return HIRSub, true
	case TokenStar:
		return HIRMult, true
	case TokenSlash:
		return HIRDiv, true
	default:
		return 0, false
	}
}
