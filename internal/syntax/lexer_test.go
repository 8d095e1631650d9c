package syntax

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenKinds(tokens []Token) []TokenKind {
	kinds := make([]TokenKind, 0, len(tokens))
	for _, t := range tokens {
		if !t.IsTrivia() {
			kinds = append(kinds, t.Kind)
		}
	}
	return kinds
}

func concat(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func TestTokenizeSimpleModule(t *testing.T) {
	src := "-module(foo).\n"
	tokens := Tokenize([]byte(src))

	assert.Equal(t, []TokenKind{
		TokenMinus, TokenAtom, TokenLParen, TokenAtom, TokenRParen, TokenDot,
	}, tokenKinds(tokens))
	assert.Equal(t, src, concat(tokens))
}

func TestTokenizeAtomsAndVariables(t *testing.T) {
	tokens := Tokenize([]byte("foo Bar _baz 'quoted atom' _"))
	kinds := tokenKinds(tokens)
	assert.Equal(t, []TokenKind{
		TokenAtom, TokenVariable, TokenVariable, TokenAtom, TokenVariable,
	}, kinds)
}

func TestTokenizeNumbers(t *testing.T) {
	tests := []struct {
		src  string
		kind TokenKind
	}{
		{"42", TokenInteger},
		{"16#FF", TokenInteger},
		{"2#1010", TokenInteger},
		{"3.14", TokenFloat},
		{"1.0e10", TokenFloat},
		{"2.5e-3", TokenFloat},
	}
	for _, tt := range tests {
		tokens := Tokenize([]byte(tt.src))
		require.Len(t, tokens, 1, "src %q", tt.src)
		assert.Equal(t, tt.kind, tokens[0].Kind, "src %q", tt.src)
		assert.Equal(t, tt.src, tokens[0].Text)
	}
}

func TestTokenizeDotDisambiguation(t *testing.T) {
	// Form-terminating dot: followed by whitespace or EOF.
	tokens := Tokenize([]byte("ok.\n"))
	assert.Equal(t, []TokenKind{TokenAtom, TokenDot}, tokenKinds(tokens))

	tokens = Tokenize([]byte("ok."))
	assert.Equal(t, []TokenKind{TokenAtom, TokenDot}, tokenKinds(tokens))

	// Record access dot: X#rec.field
	tokens = Tokenize([]byte("X#rec.field"))
	assert.Equal(t, []TokenKind{
		TokenVariable, TokenHash, TokenAtom, TokenPeriod, TokenAtom,
	}, tokenKinds(tokens))
}

func TestTokenizeOperators(t *testing.T) {
	tokens := Tokenize([]byte("=:= =/= == /= =< >= -> <- << >> ++ -- => := :: ||"))
	assert.Equal(t, []TokenKind{
		TokenExactEq, TokenExactNe, TokenEq, TokenNotEq, TokenLtEq, TokenGtEq,
		TokenArrow, TokenLArrow, TokenBinOpen, TokenBinClose, TokenPlusPlus,
		TokenMinusMinus, TokenMapAssoc, TokenMapExact, TokenDoubleColon,
		TokenDoubleBar,
	}, tokenKinds(tokens))
}

func TestTokenizeKeywords(t *testing.T) {
	tokens := Tokenize([]byte("case X of _ -> end"))
	kinds := tokenKinds(tokens)
	assert.Equal(t, []TokenKind{
		TokenKeyword, TokenVariable, TokenKeyword, TokenVariable, TokenArrow, TokenKeyword,
	}, kinds)
}

func TestTokenizeCharAndString(t *testing.T) {
	tokens := Tokenize([]byte(`$a $\n "hi \"there\""`))
	kinds := tokenKinds(tokens)
	assert.Equal(t, []TokenKind{TokenChar, TokenChar, TokenString}, kinds)
	assert.Equal(t, `hi "there"`, StringText(tokens[len(tokens)-1]))
}

func TestTokenizeComment(t *testing.T) {
	src := "foo() -> ok. % trailing note\n"
	tokens := Tokenize([]byte(src))
	assert.Equal(t, src, concat(tokens))

	found := false
	for _, tok := range tokens {
		if tok.Kind == TokenComment {
			found = true
			assert.Equal(t, "% trailing note", tok.Text)
		}
	}
	assert.True(t, found)
}

func TestUnterminatedStringRunsToEOF(t *testing.T) {
	src := `foo() -> "never closed`
	tokens := Tokenize([]byte(src))
	assert.Equal(t, src, concat(tokens))
	last := tokens[len(tokens)-1]
	assert.Equal(t, TokenString, last.Kind)
}

func TestAtomTextQuoted(t *testing.T) {
	tokens := Tokenize([]byte(`'hello world'`))
	require.Len(t, tokens, 1)
	assert.Equal(t, "hello world", AtomText(tokens[0]))
}

// Lossless tokenization must hold for arbitrary byte input, including
// binary garbage.
func TestTokenizeLosslessRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := rng.Intn(256)
		buf := make([]byte, n)
		rng.Read(buf)
		tokens := Tokenize(buf)
		assert.Equal(t, string(buf), concat(tokens), "iteration %d", i)
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	src := []byte("-module(m).\nfoo(X) when X > 0 -> {ok, X};\nfoo(_) -> error.\n")
	a := Tokenize(src)
	b := Tokenize(src)
	require.Equal(t, a, b)
}
