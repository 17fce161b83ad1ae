package beagle

import "sync/atomic"

// haltFlag is shared read-write state across every stage of one module's
// pipeline. Typeck and memmy set it on their first error or bug, and the
// parser sets it when a token receive times out; lexer and parser user
// errors do not set it. Only the lexer and parser check it between
// iterations: the lexer then sends TokenEOF and closes its output, and the
// parser stops reading statements, drains its input and closes the module.
// Typeck and memmy do not read it; they stop on their own failure. It's the only
// state shared between stages that isn't a channel — everything else is
// message passing by design.
type haltFlag struct {
	v atomic.Bool
}

func (h *haltFlag) set() {
	h.v.Store(true)
}

func (h *haltFlag) isSet() bool {
	return h.v.Load()
}
