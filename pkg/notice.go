package beagle

import (
	"fmt"
	"strings"
)

// NoticeLevel is the severity of a Diagnostic.
type NoticeLevel uint8

const (
	LevelNotice NoticeLevel = iota
	LevelWarning
	LevelError
	LevelHalt
)

func (l NoticeLevel) String() string {
	switch l {
	case LevelNotice:
		return "notice"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// Snippet is a slice of source lines with a column range to annotate,
// attached to user-facing diagnostics so the driver's report writer can draw
// a squiggly underline under the offending span.
type Snippet struct {
	StartLine int
	Lines     []string
	ColStart  int
	ColEnd    int
}

// Diagnostic is a single user-facing error, warning, or note, optionally
// carrying a source snippet and a chain of sub-sources (nested causes, most
// often the stack of statements a compiler-bug unwound through).
type Diagnostic struct {
	Level      NoticeLevel
	Stage      string
	Module     string
	Message    string
	Pos        BiPos
	Snippet    *Snippet
	SubSources []Diagnostic
	// Bug marks this diagnostic as a compiler-internal bug rather than a
	// user error; bugs never carry a snippet and are reported urging the
	// user to file an issue.
	Bug bool
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s): %s", d.Level, d.Stage, d.Module, d.Message)
	if d.Bug {
		b.WriteString(" (this is a compiler bug, please file an issue)")
	}
	if d.Snippet != nil {
		b.WriteString("\n")
		for i, line := range d.Snippet.Lines {
			fmt.Fprintf(&b, "\t%4d | %s\n", d.Snippet.StartLine+i, line)
		}
	}
	for _, sub := range d.SubSources {
		b.WriteString("\tcaused by: ")
		b.WriteString(sub.String())
		b.WriteString("\n")
	}
	return b.String()
}

// newUserError builds an Error-level diagnostic anchored at pos, without a
// snippet — the caller is expected to fill Snippet in once the driver's
// source-snippet service responds.
func newUserError(stage, module, message string, pos BiPos) Diagnostic {
	return Diagnostic{
		Level:   LevelError,
		Stage:   stage,
		Module:  module,
		Message: message,
		Pos:     pos,
	}
}

// newBug builds a Halt-level diagnostic for a compiler-internal invariant
// violation: malformed chunk, unexpected opcode, or a channel that closed
// when it shouldn't have.
func newBug(stage, module, message string) Diagnostic {
	return Diagnostic{
		Level:   LevelHalt,
		Stage:   stage,
		Module:  module,
		Message: message,
		Bug:     true,
	}
}
