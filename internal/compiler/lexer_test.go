package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeKeywordsAndIdents(t *testing.T) {
	toks, err := Tokenize("t.hx", "N::Person { name: String }")
	require.NoError(t, err)
	kinds := make([]TokenKind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, TokColonColon)
	assert.Contains(t, kinds, TokLBrace)
	assert.Contains(t, kinds, TokRBrace)
	assert.Equal(t, TokEOF, kinds[len(kinds)-1])
}

func TestTokenizeArrowsAndComparisons(t *testing.T) {
	toks, err := Tokenize("t.hx", "a <- b -> c == d != e <= f => g")
	require.NoError(t, err)
	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	assert.Contains(t, texts, "<-")
	assert.Contains(t, texts, "->")
	assert.Contains(t, texts, "==")
	assert.Contains(t, texts, "!=")
	assert.Contains(t, texts, "<=")
	assert.Contains(t, texts, "=>")
}

func TestTokenizeStringEscapes(t *testing.T) {
	toks, err := Tokenize("t.hx", `"hello\nworld"`)
	require.NoError(t, err)
	require.Equal(t, TokString, toks[0].Kind)
	assert.Equal(t, "hello\nworld", toks[0].Text)
}

func TestTokenizeNumbers(t *testing.T) {
	toks, err := Tokenize("t.hx", "42 3.14")
	require.NoError(t, err)
	require.Equal(t, TokInt, toks[0].Kind)
	assert.Equal(t, "42", toks[0].Text)
	require.Equal(t, TokFloat, toks[1].Kind)
	assert.Equal(t, "3.14", toks[1].Text)
}

func TestTokenizeUnterminatedStringErrors(t *testing.T) {
	_, err := Tokenize("t.hx", `"unterminated`)
	assert.Error(t, err)
}

func TestTokenizeSkipsComments(t *testing.T) {
	toks, err := Tokenize("t.hx", "// line comment\nfoo /* block */ bar")
	require.NoError(t, err)
	var idents []string
	for _, tok := range toks {
		if tok.Kind == TokIdent {
			idents = append(idents, tok.Text)
		}
	}
	assert.Equal(t, []string{"foo", "bar"}, idents)
}
