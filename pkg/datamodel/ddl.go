package datamodel

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ColumnType returns the PostgreSQL column type of an attribute.
func (a Attribute) ColumnType() string {
	switch a.Type {
	case TypeString:
		if a.MaxLength > 0 {
			return fmt.Sprintf("varchar(%d)", a.MaxLength)
		}
		return "text"
	case TypeText:
		return "text"
	case TypeInteger:
		return "bigint"
	case TypeNumber:
		return "double precision"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "timestamptz"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "jsonb"
	default:
		return "text"
	}
}

func quote(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// columnDefinition renders the column clause of a CREATE TABLE statement.
func columnDefinition(m *Model, a Attribute) string {
	var b strings.Builder
	b.WriteString(quote(a.Column))
	b.WriteString(" ")
	b.WriteString(a.ColumnType())

	switch {
	case a.AutoIncrement():
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY")
	case a.PrimaryKey:
		b.WriteString(" PRIMARY KEY")
	default:
		if a.Required {
			b.WriteString(" NOT NULL")
		}
		if a.Unique {
			b.WriteString(" UNIQUE")
		}
	}

	if a.generated && m.Timestamps && (a.Name == "createdAt" || a.Name == "updatedAt") {
		b.WriteString(" NOT NULL DEFAULT now()")
	} else if a.Default != nil {
		if lit, ok := defaultLiteral(a); ok {
			b.WriteString(" DEFAULT ")
			b.WriteString(lit)
		}
	}

	if len(a.Enum) > 0 {
		vals := make([]string, 0, len(a.Enum))
		for _, e := range a.Enum {
			vals = append(vals, sqlString(e))
		}
		fmt.Fprintf(&b, " CHECK (%s IN (%s))", quote(a.Column), strings.Join(vals, ", "))
	}
	return b.String()
}

// defaultLiteral renders the default value of an attribute as a SQL literal.
func defaultLiteral(a Attribute) (string, bool) {
	v, err := a.Coerce(a.Default)
	if err != nil || v == nil {
		return "", false
	}

	switch a.Type {
	case TypeInteger, TypeNumber, TypeBoolean:
		return fmt.Sprint(v), true
	case TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return sqlString(string(data)) + "::jsonb", true
	case TypeDate:
		return sqlString(fmt.Sprint(a.Default)) + "::date", true
	case TypeDateTime:
		return sqlString(fmt.Sprint(a.Default)) + "::timestamptz", true
	default:
		return sqlString(fmt.Sprint(v)), true
	}
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Migration returns the up and down SQL scripts creating and dropping every table of the schema.
//
// Foreign keys are added once all tables exist, so declaration order does not matter.
func (s *Schema) Migration() (up, down string) {
	var u strings.Builder
	for _, m := range s.models {
		fmt.Fprintf(&u, "CREATE TABLE IF NOT EXISTS %s (\n", quote(m.Table))
		cols := make([]string, 0, len(m.Attributes))
		for _, a := range m.Attributes {
			cols = append(cols, "    "+columnDefinition(m, a))
		}
		u.WriteString(strings.Join(cols, ",\n"))
		u.WriteString("\n);\n\n")
	}

	for _, m := range s.models {
		for _, r := range m.Relationships {
			if r.Kind != BelongsTo {
				continue
			}
			target := s.byName[r.Model]
			fk, _ := m.Attribute(r.ForeignKey)
			constraint := fmt.Sprintf("fk_%s_%s", m.Table, fk.Column)
			fmt.Fprintf(&u, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
				quote(m.Table), quote(constraint), quote(fk.Column), quote(target.Table), quote(target.PrimaryKey().Column))
			if r.OnDelete != "" {
				u.WriteString(" ON DELETE " + strings.ToUpper(r.OnDelete))
			}
			u.WriteString(";\n")
		}
	}

	var d strings.Builder
	for _, m := range slices.Backward(s.models) {
		fmt.Fprintf(&d, "DROP TABLE IF EXISTS %s CASCADE;\n", quote(m.Table))
	}

	return strings.TrimSpace(u.String()) + "\n", d.String()
}
