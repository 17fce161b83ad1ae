package beagle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullPipeline lexes, parses, and type-checks src, returning the final
// chunk stream and every diagnostic raised along the way.
func fullPipeline(t *testing.T, src string) ([]*Chunk, []Diagnostic) {
	t.Helper()

	tokOut := make(chan Token)
	lexDiags := make(chan Diagnostic, 16)
	masterIn := make(chan sourceRequest, 16)
	halt := &haltFlag{}

	lexer := NewLexer("test", src, tokOut, lexDiags, masterIn, halt)
	go lexer.Run()

	hirOut := make(chan *Chunk)
	parseDiags := make(chan Diagnostic, 16)
	parser := NewParser("test", tokOut, hirOut, parseDiags, masterIn, halt)
	go parser.Run()

	typedOut := make(chan *Chunk)
	typeDiags := make(chan Diagnostic, 16)
	tc := NewTypeck("test", hirOut, typedOut, typeDiags, masterIn, halt)
	go tc.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for req := range masterIn {
			req.Reply <- ""
		}
	}()

	var chunks []*Chunk
	for c := range typedOut {
		chunks = append(chunks, c)
	}

	close(lexDiags)
	close(parseDiags)
	close(typeDiags)
	var diags []Diagnostic
	for d := range lexDiags {
		diags = append(diags, d)
	}
	for d := range parseDiags {
		diags = append(diags, d)
	}
	for d := range typeDiags {
		diags = append(diags, d)
	}
	return chunks, diags
}

func decodeTypedProperty(t *testing.T, c *Chunk) (name string, mutable bool, typeOp HIROp) {
	t.Helper()
	cp := clone(c)
	op, err := cp.ReadByte()
	require.NoError(t, err)
	require.Equal(t, HIRProperty, HIROp(op))
	_, err = cp.ReadPos()
	require.NoError(t, err)
	mutable, err = cp.ReadBool()
	require.NoError(t, err)
	_, err = cp.ReadPos()
	require.NoError(t, err)
	name, err = cp.ReadString()
	require.NoError(t, err)
	_, err = cp.ReadPos()
	require.NoError(t, err)
	_, err = cp.ReadPos()
	require.NoError(t, err)
	top, err := cp.ReadByte()
	require.NoError(t, err)
	return name, mutable, HIROp(top)
}

func TestTypeckInfersIntegerProperty(t *testing.T) {
	chunks, diags := fullPipeline(t, `val x = 1`)
	require.Empty(t, diags)
	require.Len(t, chunks, 4)

	name, mutable, typeOp := decodeTypedProperty(t, chunks[1])
	assert.Equal(t, "x", name)
	assert.False(t, mutable)
	assert.Equal(t, HIRInteger, typeOp)
}

func TestTypeckInfersStringProperty(t *testing.T) {
	chunks, diags := fullPipeline(t, `val s = "hi"`)
	require.Empty(t, diags)
	_, _, typeOp := decodeTypedProperty(t, chunks[1])
	assert.Equal(t, HIRString, typeOp)
}

func TestTypeckDeclaredMatchesInferred(t *testing.T) {
	chunks, diags := fullPipeline(t, `val x: Int = 1`)
	require.Empty(t, diags)
	_, _, typeOp := decodeTypedProperty(t, chunks[1])
	assert.Equal(t, HIRInteger, typeOp)
}

func TestTypeckDeclaredMismatchIsError(t *testing.T) {
	_, diags := fullPipeline(t, `val x: String = 1`)
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestTypeckBinaryOperandMismatchIsError(t *testing.T) {
	_, diags := fullPipeline(t, `val x = 1 + "a"`)
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestTypeckBinaryOperandMatchInfersOperandType(t *testing.T) {
	chunks, diags := fullPipeline(t, `val x = 1 + 2`)
	require.Empty(t, diags)
	_, _, typeOp := decodeTypedProperty(t, chunks[1])
	assert.Equal(t, HIRInteger, typeOp)
}

func TestTypeckDuplicatePropertyIsError(t *testing.T) {
	_, diags := fullPipeline(t, "val x = 1\nval x = 2")
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestTypeckCustomTypeIsUnknownIdentifier(t *testing.T) {
	_, diags := fullPipeline(t, `val x: Widget = 1`)
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestTypeckFunctionReturnTypeMatches(t *testing.T) {
	_, diags := fullPipeline(t, "fun f(): Int { 1 }")
	assert.Empty(t, diags)
}

func TestTypeckFunctionReturnTypeMismatchIsError(t *testing.T) {
	_, diags := fullPipeline(t, `fun f(): Int { "oops" }`)
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestTypeckFunctionWithNoBodyExpressionIsUnit(t *testing.T) {
	_, diags := fullPipeline(t, "fun f() { let x = 1 }")
	assert.Empty(t, diags)
}

func TestTypeckDuplicateParamIsError(t *testing.T) {
	_, diags := fullPipeline(t, "fun f(a: Int, a: Int): Int { 1 }")
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestTypeckNestedModulesForwarded(t *testing.T) {
	chunks, diags := fullPipeline(t, "mod outer { val x = 1 }")
	require.Empty(t, diags)

	var modules, endModules int
	for _, c := range chunks {
		cp := clone(c)
		op, err := cp.ReadByte()
		require.NoError(t, err)
		switch HIROp(op) {
		case HIRModule:
			modules++
		case HIREndModule:
			endModules++
		}
	}
	assert.Equal(t, 2, modules)
	assert.Equal(t, 2, endModules)
}
