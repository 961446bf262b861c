// Package migrate analyzes and lowers MIGRATION blocks: the per-item field
// rename/recast mapping between two schema versions, the one migration form
// the engine supports.
package migrate

import (
	"fmt"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/compiler"
)

// Plan is the validated, lowered form of one MIGRATION block: a one-shot
// rewrite over every stored item of the From schema, producing an item of
// the To schema.
type Plan struct {
	From, To string
	Mappings []FieldMapping
}

// FieldMapping renames (and optionally recasts) one field during rewrite.
type FieldMapping struct {
	NewField string
	OldField string
	Recast   codec.Kind // zero value means no recast, copy the value as-is
}

// Analyze validates m against schema, the schema table produced by
// compiler.Analyze, and returns diagnostics for any unresolved field or
// schema reference.
func Analyze(m *compiler.MigrationDecl, schema *compiler.SchemaTable) []compiler.Diagnostic {
	var diags []compiler.Diagnostic
	fromDecl, ok := schema.Nodes[m.From]
	if !ok {
		fromDecl, ok = schema.Vectors[m.From]
	}
	if !ok {
		diags = append(diags, compiler.Diagnostic{Severity: compiler.SevError, Pos: m.Pos,
			Message: fmt.Sprintf("migration source schema %q is not declared", m.From)})
		return diags
	}
	toDecl, ok := schema.Nodes[m.To]
	if !ok {
		toDecl, ok = schema.Vectors[m.To]
	}
	if !ok {
		diags = append(diags, compiler.Diagnostic{Severity: compiler.SevError, Pos: m.Pos,
			Message: fmt.Sprintf("migration target schema %q is not declared", m.To)})
		return diags
	}

	oldFields := fieldSet(fromDecl)
	newFields := fieldSet(toDecl)
	seen := map[string]bool{}
	for _, fm := range m.Fields {
		if seen[fm.NewField] {
			diags = append(diags, compiler.Diagnostic{Severity: compiler.SevError, Pos: fm.Pos,
				Message: fmt.Sprintf("field %q mapped more than once", fm.NewField)})
		}
		seen[fm.NewField] = true
		if _, ok := oldFields[fm.OldField]; !ok {
			diags = append(diags, compiler.Diagnostic{Severity: compiler.SevError, Pos: fm.Pos,
				Message: fmt.Sprintf("source schema %q has no field %q", m.From, fm.OldField)})
		}
		if _, ok := newFields[fm.NewField]; !ok {
			diags = append(diags, compiler.Diagnostic{Severity: compiler.SevError, Pos: fm.Pos,
				Message: fmt.Sprintf("target schema %q has no field %q", m.To, fm.NewField)})
		}
	}
	for name := range newFields {
		if !seen[name] {
			diags = append(diags, compiler.Diagnostic{Severity: compiler.SevWarning, Pos: m.Pos,
				Message: fmt.Sprintf("target field %q has no mapping and will be absent from migrated items", name)})
		}
	}
	return diags
}

func fieldSet(s *compiler.SchemaDecl) map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Type
	}
	return out
}

// Lower produces the rewrite Plan for an already-validated MIGRATION block.
// Lower does not re-validate; callers must check Analyze's diagnostics for
// errors first.
func Lower(m *compiler.MigrationDecl) *Plan {
	p := &Plan{From: m.From, To: m.To}
	for _, fm := range m.Fields {
		mapping := FieldMapping{NewField: fm.NewField, OldField: fm.OldField}
		if fm.Recast != "" {
			mapping.Recast = parseKind(fm.Recast)
		}
		p.Mappings = append(p.Mappings, mapping)
	}
	return p
}

func parseKind(typeName string) codec.Kind {
	switch typeName {
	case "String":
		return codec.KindString
	case "I8":
		return codec.KindI8
	case "I16":
		return codec.KindI16
	case "I32":
		return codec.KindI32
	case "I64":
		return codec.KindI64
	case "U8":
		return codec.KindU8
	case "U16":
		return codec.KindU16
	case "U32":
		return codec.KindU32
	case "U64":
		return codec.KindU64
	case "F32":
		return codec.KindF32
	case "F64":
		return codec.KindF64
	case "Boolean", "Bool":
		return codec.KindBool
	default:
		return codec.KindString
	}
}

// Apply rewrites props according to p, returning a new Properties value for
// the migrated item. Fields with no mapping are dropped.
func Apply(p *Plan, props codec.Properties) codec.Properties {
	out := make(codec.Properties, len(p.Mappings))
	for _, m := range p.Mappings {
		v, ok := props[m.OldField]
		if !ok {
			continue
		}
		if m.Recast != 0 {
			v = recast(v, m.Recast)
		}
		out[m.NewField] = v
	}
	return out
}

func recast(v codec.Value, kind codec.Kind) codec.Value {
	converted, err := codec.Coerce(v, kind)
	if err != nil {
		return v
	}
	return converted
}
