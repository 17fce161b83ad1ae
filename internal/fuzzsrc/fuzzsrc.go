// Package fuzzsrc generates random but lexically valid beagle source text,
// for lexer benchmarks that want realistic input without hand-writing a
// corpus.
package fuzzsrc

import (
	"fmt"
	"math/rand"
	"strings"
)

var identifiers = []string{"x", "y", "total", "acc", "left", "right", "n", "result", "tmp", "value"}

var types = []string{"Int", "Float", "String", "Bool"}

var literals = []string{
	`1`, `42`, `-7`, `0`,
	`1.5`, `3.14`, `-0.5`,
	`"hello"`, `"a longer string with a few words in it"`, `""`,
	`true`, `false`,
	`None`,
}

// GetRandomTokens returns a sequence of size random whole tokens (keywords,
// punctuation, literals) joined by sep, for flat token-stream benchmarks. It
// never assembles statement-shaped text; GetRandomSource does that.
func GetRandomTokens(size int, sep string) string {
	vocab := []string{
		"val", "var", "mut", "fun", "mod", "let", "if", "else", "while",
		"true", "false", "None", "return", "(", ")", "{", "}", "[", "]",
		":", ",", "=", "+", "-", "*", "/", "<", ">",
	}
	vocab = append(vocab, literals...)
	vocab = append(vocab, identifiers...)

	toks := make([]string, 0, size)
	for len(toks) < size {
		toks = append(toks, vocab[rand.Intn(len(vocab))])
	}
	return strings.Join(toks, sep)
}

// GetRandomSource returns a module body of count top-level statements, each
// shaped like a property declaration or a small function. The text lexes
// without errors, but the parser does not accept it: names carry an
// underscore-joined index ("x_0", "f_1") and '_' lexes as its own token,
// some properties read "var mut", and some literals start with '-'.
func GetRandomSource(count int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		if rand.Intn(2) == 0 {
			b.WriteString(randomProperty(i))
		} else {
			b.WriteString(randomFunction(i))
		}
	}
	return b.String()
}

func randomProperty(i int) string {
	kw := "val"
	if rand.Intn(2) == 0 {
		kw = "var"
	}
	mut := ""
	if kw == "var" && rand.Intn(2) == 0 {
		mut = "mut "
	}
	return fmt.Sprintf("%s %s%s_%d = %s", kw, mut, identifiers[rand.Intn(len(identifiers))], i, literals[rand.Intn(len(literals))])
}

func randomFunction(i int) string {
	a, bName := identifiers[rand.Intn(len(identifiers))], identifiers[rand.Intn(len(identifiers))]
	ty := types[rand.Intn(len(types))]
	return fmt.Sprintf("fun f_%d(%s: %s, %s: %s): %s { let s = %s }", i, a, ty, bName, ty, ty, a)
}
