package beagle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowerPipeline runs the full lexer/parser/typeck/memmy pipeline over src
// and returns the final MIR chunk stream and every diagnostic raised.
func lowerPipeline(t *testing.T, src string) ([]*Chunk, []Diagnostic) {
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

	mirOut := make(chan *Chunk)
	memDiags := make(chan Diagnostic, 16)
	mm := NewMemmy("test", typedOut, mirOut, memDiags, masterIn, halt)
	go mm.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for req := range masterIn {
			req.Reply <- ""
		}
	}()

	var chunks []*Chunk
	for c := range mirOut {
		chunks = append(chunks, c)
	}

	close(lexDiags)
	close(parseDiags)
	close(typeDiags)
	close(memDiags)
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
	for d := range memDiags {
		diags = append(diags, d)
	}
	return chunks, diags
}

func mirHeaderOp(t *testing.T, c *Chunk) MIROp {
	t.Helper()
	cp := clone(c)
	b, err := cp.ReadByte()
	require.NoError(t, err)
	return MIROp(b)
}

func TestMemmyPropertyHeapAllocated(t *testing.T) {
	chunks, diags := lowerPipeline(t, `val x = 1`)
	require.Empty(t, diags)
	require.True(t, len(chunks) >= 4)

	assert.Equal(t, MIRModule, mirHeaderOp(t, chunks[0]))
	assert.Equal(t, MIRHeapAlloc, mirHeaderOp(t, chunks[1]))
	assert.Equal(t, MIRObjInit, mirHeaderOp(t, chunks[2]))
	assert.Equal(t, MIREndModule, mirHeaderOp(t, chunks[len(chunks)-1]))
}

func TestMemmyHeapAllocSizeMatchesInteger(t *testing.T) {
	chunks, diags := lowerPipeline(t, `val x = 1`)
	require.Empty(t, diags)

	cp := clone(chunks[1])
	cp.ReadByte()
	_, err := cp.ReadPos()
	require.NoError(t, err)
	size, err := cp.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), size)
}

func TestMemmyHeapAllocSizeMatchesStringLength(t *testing.T) {
	chunks, diags := lowerPipeline(t, `val s = "hello"`)
	require.Empty(t, diags)

	cp := clone(chunks[1])
	cp.ReadByte()
	_, err := cp.ReadPos()
	require.NoError(t, err)
	size, err := cp.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size)
}

func TestMemmyFoldsBinaryExpression(t *testing.T) {
	chunks, diags := lowerPipeline(t, `val x = 1 + 2`)
	require.Empty(t, diags)

	cp := clone(chunks[2])
	op, err := cp.ReadByte()
	require.NoError(t, err)
	require.Equal(t, MIRObjInit, MIROp(op))
	_, err = cp.ReadPos()
	require.NoError(t, err)
	litOp, err := cp.ReadByte()
	require.NoError(t, err)
	require.Equal(t, MIRInteger, MIROp(litOp))
	v, err := cp.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)
}

func TestMemmyNoneInitializerIsLateinit(t *testing.T) {
	chunks, diags := lowerPipeline(t, `val x = None`)
	require.Empty(t, diags)
	assert.Equal(t, MIRLateinit, mirHeaderOp(t, chunks[2]))
}

func TestMemmyDivisionByZeroIsError(t *testing.T) {
	_, diags := lowerPipeline(t, `val x = 1 / 0`)
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[len(diags)-1].Level)
}

func TestMemmyLocalVarStackAllocatedAndDropped(t *testing.T) {
	chunks, diags := lowerPipeline(t, "fun f() { let x = 1 }")
	require.Empty(t, diags)

	var ops []MIROp
	for _, c := range chunks {
		ops = append(ops, mirHeaderOp(t, c))
	}
	require.Contains(t, ops, MIRStackAlloc)
	require.Contains(t, ops, MIRDrop)

	var allocIdx, dropIdx, endIdx int
	for i, op := range ops {
		switch op {
		case MIRStackAlloc:
			allocIdx = i
		case MIRDrop:
			dropIdx = i
		case MIREndFun:
			endIdx = i
		}
	}
	assert.True(t, allocIdx < dropIdx)
	assert.True(t, dropIdx < endIdx)
}

func TestMemmyMultipleLocalsDroppedInReverseOrder(t *testing.T) {
	chunks, diags := lowerPipeline(t, "fun f() { let a = 1\nlet b = 2 }")
	require.Empty(t, diags)

	var dropPositions []BiPos
	for _, c := range chunks {
		if mirHeaderOp(t, c) == MIRDrop {
			cp := clone(c)
			cp.ReadByte()
			pos, err := cp.ReadPos()
			require.NoError(t, err)
			dropPositions = append(dropPositions, pos)
		}
	}
	require.Len(t, dropPositions, 2)
	assert.True(t, dropPositions[0].Start.Line >= dropPositions[1].Start.Line)
}

func TestMemmyStopsOnTypeckFailure(t *testing.T) {
	chunks, diags := lowerPipeline(t, `val x: String = 1`)
	require.NotEmpty(t, diags)

	require.NotEmpty(t, chunks)
	assert.Equal(t, MIRHalt, mirHeaderOp(t, chunks[len(chunks)-1]))
}
