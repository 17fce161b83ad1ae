package beagle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexAndParse runs the lexer and parser over src, with a fake snippet
// servicer so neither stage blocks waiting for a driver, and returns the HIR
// chunk stream and every diagnostic raised.
func lexAndParse(t *testing.T, src string) ([]*Chunk, []Diagnostic) {
	t.Helper()

	tokOut := make(chan Token)
	lexDiags := make(chan Diagnostic, 16)
	masterIn := make(chan sourceRequest, 16)
	halt := &haltFlag{}

	lexer := NewLexer("test", src, tokOut, lexDiags, masterIn, halt)
	go lexer.Run()

	chunkOut := make(chan *Chunk)
	parseDiags := make(chan Diagnostic, 16)
	parser := NewParser("test", tokOut, chunkOut, parseDiags, masterIn, halt)
	go parser.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for req := range masterIn {
			req.Reply <- ""
		}
	}()

	var chunks []*Chunk
	for c := range chunkOut {
		chunks = append(chunks, c)
	}

	close(lexDiags)
	close(parseDiags)
	var diags []Diagnostic
	for d := range lexDiags {
		diags = append(diags, d)
	}
	for d := range parseDiags {
		diags = append(diags, d)
	}
	return chunks, diags
}

// headerOp returns the opcode a chunk opens with, without disturbing its
// read cursor for later assertions.
func headerOp(t *testing.T, c *Chunk) HIROp {
	t.Helper()
	cp := NewChunk()
	cp.WriteChunk(c)
	b, err := cp.ReadByte()
	require.NoError(t, err)
	return HIROp(b)
}

func TestParserEmptyFile(t *testing.T) {
	chunks, diags := lexAndParse(t, "")
	assert.Empty(t, diags)
	require.Len(t, chunks, 2)
	assert.Equal(t, HIRModule, headerOp(t, chunks[0]))
	assert.Equal(t, HIREndModule, headerOp(t, chunks[1]))
}

func TestParserPropertyWithInferredType(t *testing.T) {
	chunks, diags := lexAndParse(t, `val greeting = "hi"`)
	assert.Empty(t, diags)
	require.Len(t, chunks, 4)

	c := NewChunk()
	c.WriteChunk(chunks[1])
	op, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, HIRProperty, HIROp(op))
	_, err = c.ReadPos()
	require.NoError(t, err)
	mutable, err := c.ReadBool()
	require.NoError(t, err)
	assert.False(t, mutable)
	_, err = c.ReadPos()
	require.NoError(t, err)
	name, err := c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "greeting", name)
	_, err = c.ReadPos()
	require.NoError(t, err)
	_, err = c.ReadPos() // type sub-chunk's leading BiPos
	require.NoError(t, err)
	typeOp, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, HIRUnknown, HIROp(typeOp))
}

func TestParserFunctionWithParams(t *testing.T) {
	chunks, diags := lexAndParse(t, "fun add(a: Int, b: Int): Int { let s = 1 }")
	assert.Empty(t, diags)
	require.True(t, len(chunks) > 3)

	assert.Equal(t, HIRFn, headerOp(t, chunks[1]))
}

func TestParserMissingPropertyInitializer(t *testing.T) {
	_, diags := lexAndParse(t, "val x: Int")
	require.NotEmpty(t, diags)
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestParserBinaryExpression(t *testing.T) {
	chunks, diags := lexAndParse(t, "val total = 1 + 2")
	assert.Empty(t, diags)
	require.True(t, len(chunks) >= 3)
}

func TestParserModuleNestingBalanced(t *testing.T) {
	chunks, diags := lexAndParse(t, "mod outer { mod inner { val x = 1 } }")
	assert.Empty(t, diags)

	var modules, endModules int
	for _, c := range chunks {
		switch headerOp(t, c) {
		case HIRModule:
			modules++
		case HIREndModule:
			endModules++
		}
	}
	assert.Equal(t, 3, modules)
	assert.Equal(t, 3, endModules)
}
