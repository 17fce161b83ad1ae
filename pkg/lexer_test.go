package beagle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beagle.dev/internal/fuzzsrc"
)

// runLexer drains a freshly-started Lexer's output channel into a slice,
// along with whatever diagnostics it raised along the way.
func runLexer(t *testing.T, src string) ([]Token, []Diagnostic) {
	t.Helper()

	out := make(chan Token)
	diags := make(chan Diagnostic, 16)
	masterIn := make(chan sourceRequest, 4)
	halt := &haltFlag{}

	l := NewLexer("test", src, out, diags, masterIn, halt)
	go l.Run()

	// Service any source-snippet requests with an empty snippet; no lexer
	// test checks the snippet content.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case req, ok := <-masterIn:
				if !ok {
					return
				}
				req.Reply <- ""
			case <-done:
				return
			}
		}
	}()

	var toks []Token
	for tok := range out {
		toks = append(toks, tok)
		if tok.Kind == TokenEOF {
			break
		}
	}

	close(diags)
	var gotDiags []Diagnostic
	for d := range diags {
		gotDiags = append(gotDiags, d)
	}

	return toks, gotDiags
}

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexerKeywordsAndPunctuation(t *testing.T) {
	toks, diags := runLexer(t, "fun main() { let mut x = 1 }")
	assert.Empty(t, diags)
	require.NotEmpty(t, toks)
	assert.Equal(t, []TokenKind{
		TokenFun, TokenIdentifier, TokenOpenParen, TokenCloseParen,
		TokenOpenCurly, TokenLet, TokenMut, TokenIdentifier, TokenEqual,
		TokenNumber, TokenCloseCurly, TokenEOF,
	}, kinds(toks))
}

func TestLexerIntegerLiteral(t *testing.T) {
	toks, diags := runLexer(t, "42")
	assert.Empty(t, diags)
	require.Len(t, toks, 2)
	assert.Equal(t, TokenNumber, toks[0].Kind)
	assert.Equal(t, int32(42), toks[0].Payload.Int)
}

func TestLexerDecimalLiteral(t *testing.T) {
	toks, diags := runLexer(t, "1.5")
	assert.Empty(t, diags)
	require.Len(t, toks, 2)
	assert.Equal(t, TokenDecimal, toks[0].Kind)
	assert.Equal(t, float32(1.5), toks[0].Payload.Float)
}

func TestLexerStringLiteral(t *testing.T) {
	toks, diags := runLexer(t, `"hello there"`)
	assert.Empty(t, diags)
	require.Len(t, toks, 2)
	assert.Equal(t, TokenString, toks[0].Kind)
	assert.Equal(t, "hello there", toks[0].Payload.String)
}

func TestLexerEmptyString(t *testing.T) {
	toks, diags := runLexer(t, `""`)
	assert.Empty(t, diags)
	require.Len(t, toks, 2)
	assert.Equal(t, TokenString, toks[0].Kind)
	assert.Equal(t, "", toks[0].Payload.String)
}

func TestLexerUnterminatedString(t *testing.T) {
	toks, diags := runLexer(t, `"unclosed`)
	require.Len(t, diags, 1)
	assert.Equal(t, LevelError, diags[0].Level)
	assert.Equal(t, "Unable to parse string", diags[0].Message)
	assert.Equal(t, TokenErr, toks[0].Kind)
}

func TestLexerInvalidCharacter(t *testing.T) {
	toks, diags := runLexer(t, "~")
	require.Len(t, diags, 1)
	assert.Equal(t, TokenErr, toks[0].Kind)
	assert.Equal(t, "Invalid character", diags[0].Message)
}

func TestLexerHaltStopsEarly(t *testing.T) {
	out := make(chan Token)
	diags := make(chan Diagnostic, 4)
	masterIn := make(chan sourceRequest, 4)
	halt := &haltFlag{}
	halt.set()

	l := NewLexer("test", "fun main() {}", out, diags, masterIn, halt)
	go l.Run()

	tok, ok := <-out
	require.True(t, ok)
	assert.Equal(t, TokenEOF, tok.Kind)

	_, ok = <-out
	assert.False(t, ok)
}

func TestLexerIdentifierUnicode(t *testing.T) {
	toks, diags := runLexer(t, "café = 1")
	assert.Empty(t, diags)
	require.True(t, len(toks) >= 1)
	assert.Equal(t, TokenIdentifier, toks[0].Kind)
	assert.Equal(t, "café", toks[0].Payload.String)
}

// Use a package-level variable to avoid compiler optimisation.
var benchResult []Token

func benchmarkLexer(size int, b *testing.B) {
	for n := 0; n < b.N; n++ {
		b.StopTimer()
		src := fuzzsrc.GetRandomSource(size)
		out := make(chan Token)
		diags := make(chan Diagnostic, 16)
		masterIn := make(chan sourceRequest, 4)
		halt := &haltFlag{}
		l := NewLexer("bench", src, out, diags, masterIn, halt)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for req := range masterIn {
				req.Reply <- ""
			}
		}()

		b.StartTimer()
		go l.Run()

		var toks []Token
		for tok := range out {
			toks = append(toks, tok)
			if tok.Kind == TokenEOF {
				break
			}
		}
		close(diags)
		for range diags {
		}
		close(masterIn)
		<-done
		benchResult = toks
	}
}

func BenchmarkLexer100(b *testing.B) {
	benchmarkLexer(100, b)
}

func BenchmarkLexer1000(b *testing.B) {
	benchmarkLexer(1000, b)
}
