package beagle

// MIROp is a one-byte MIR opcode, as emitted by memmy.
type MIROp byte

//go:generate stringer -type=MIROp -trimprefix=MIR
const (
	MIRModule MIROp = iota
	MIREndModule
	MIRFun
	MIREndFun
	MIRFunParam
	MIRInteger
	MIRFloat
	MIRString
	MIRBool
	MIRUnit
	MIRObjInit
	MIRDrop
	MIRRef
	MIRMove
	MIRCopy
	MIRHeapAlloc
	MIRStackAlloc
	MIRLateinit
	MIRObjMut
	MIRHalt
)

func (op MIROp) String() string {
	switch op {
	case MIRModule:
		return "Module"
	case MIREndModule:
		return "EndModule"
	case MIRFun:
		return "Fun"
	case MIREndFun:
		return "EndFun"
	case MIRFunParam:
		return "FunParam"
	case MIRInteger:
		return "Integer"
	case MIRFloat:
		return "Float"
	case MIRString:
		return "String"
	case MIRBool:
		return "Bool"
	case MIRUnit:
		return "Unit"
	case MIRObjInit:
		return "ObjInit"
	case MIRDrop:
		return "Drop"
	case MIRRef:
		return "Ref"
	case MIRMove:
		return "Move"
	case MIRCopy:
		return "Copy"
	case MIRHeapAlloc:
		return "HeapAlloc"
	case MIRStackAlloc:
		return "StackAlloc"
	case MIRLateinit:
		return "Lateinit"
	case MIRObjMut:
		return "ObjMut"
	case MIRHalt:
		return "Halt"
	default:
		return "MIROp(?)"
	}
}

// sizeOf returns the byte size memmy reserves for a declared primitive type,
// per the placement policy: Int=4, Float=4, Bool=1, String is the
// byte-length of its initializer, Custom types reserve 0 pending a layout
// computation that's out of scope here.
func sizeOf(op HIROp, stringLen int) int {
	switch op {
	case HIRInteger:
		return 4
	case HIRFloat:
		return 4
	case HIRBool:
		return 1
	case HIRString:
		return stringLen
	default:
		return 0
	}
}

// mirLiteralFor maps a HIR literal opcode to its MIR literal opcode. Both
// enums share the same literal subset by design, but they're distinct types
// so the mapping is made explicit rather than relying on numeric coincidence.
func mirLiteralFor(op HIROp) (MIROp, bool) {
	switch op {
	case HIRInteger:
		return MIRInteger, true
	case HIRFloat:
		return MIRFloat, true
	case HIRString:
		return MIRString, true
	case HIRBool:
		return MIRBool, true
	case HIRUnit:
		return MIRUnit, true
	default:
		return 0, false
	}
}
