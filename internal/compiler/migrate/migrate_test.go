package migrate

import (
	"testing"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseAndAnalyze(t *testing.T, src string) (*compiler.File, *compiler.SemFile) {
	t.Helper()
	f, err := compiler.Parse("t.hx", src)
	require.NoError(t, err)
	sem := compiler.Analyze(f)
	return f, sem
}

func TestAnalyzeValidMigrationHasNoErrors(t *testing.T) {
	f, sem := parseAndAnalyze(t, `
N::PersonV1 { name: String, age: I32 }
N::PersonV2 { full_name: String, years: I64 }
MIGRATION PersonV1 -> PersonV2 {
	full_name: name,
	years: age AS I64
}
`)
	diags := Analyze(f.Migrations[0], sem.Schema)
	assert.False(t, compiler.HasErrors(diags), "unexpected errors: %+v", diags)
}

func TestAnalyzeUnknownSourceFieldReportsError(t *testing.T) {
	f, sem := parseAndAnalyze(t, `
N::PersonV1 { name: String }
N::PersonV2 { full_name: String }
MIGRATION PersonV1 -> PersonV2 {
	full_name: nickname
}
`)
	diags := Analyze(f.Migrations[0], sem.Schema)
	assert.True(t, compiler.HasErrors(diags))
}

func TestAnalyzeUnmappedTargetFieldWarnsOnly(t *testing.T) {
	f, sem := parseAndAnalyze(t, `
N::PersonV1 { name: String }
N::PersonV2 { full_name: String, extra: String }
MIGRATION PersonV1 -> PersonV2 {
	full_name: name
}
`)
	diags := Analyze(f.Migrations[0], sem.Schema)
	require.False(t, compiler.HasErrors(diags))
	require.NotEmpty(t, diags)
	assert.Equal(t, compiler.SevWarning, diags[0].Severity)
}

func TestApplyRewritesAndRecasts(t *testing.T) {
	f, _ := parseAndAnalyze(t, `
N::PersonV1 { name: String, age: I32 }
N::PersonV2 { full_name: String, years: I64 }
MIGRATION PersonV1 -> PersonV2 {
	full_name: name,
	years: age AS I64
}
`)
	plan := Lower(f.Migrations[0])
	out := Apply(plan, codec.Properties{
		"name": codec.String("Ada"),
		"age":  codec.I32(36),
	})
	assert.Equal(t, "Ada", out["full_name"].Str)
	assert.Equal(t, int64(36), out["years"].I64)
}
