package orm

import (
	"slices"
	"strings"

	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mode int

const (
	modeCreate mode = iota
	modeUpdate
	modeReplace
)

// readOnly returns true for attributes assigned by the database or the repository.
func readOnly(a datamodel.Attribute) bool {
	if a.AutoIncrement() {
		return true
	}
	return a.Generated() && (a.Name == "createdAt" || a.Name == "updatedAt")
}

// validate coerces the input attributes and collects every problem.
func (r *Repository) validate(in Record, m mode) (map[string]any, error) {
	var problems []FieldError
	values := make(map[string]any)

	for _, a := range r.model.Attributes {
		raw, present := in[a.Name]
		if readOnly(a) {
			if present {
				problems = append(problems, FieldError{Field: a.Name, Message: "is read-only"})
			}
			continue
		}
		if a.PrimaryKey && m != modeCreate {
			continue
		}

		if !present {
			switch {
			case m == modeUpdate:
				continue
			case m == modeCreate && (a.Default != nil || a.PrimaryKey):
				continue
			case a.Required:
				problems = append(problems, FieldError{Field: a.Name, Message: "is required"})
				continue
			case m == modeCreate:
				continue
			}
			values[a.Name] = nil
			continue
		}

		v, err := a.Coerce(raw)
		if err != nil {
			problems = append(problems, FieldError{Field: a.Name, Message: err.Error()})
			continue
		}
		if v == nil && a.Required {
			problems = append(problems, FieldError{Field: a.Name, Message: "is required"})
			continue
		}
		values[a.Name] = v
	}

	var unknown []string
	for k := range in {
		if _, ok := r.model.Attribute(k); !ok {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	for _, k := range unknown {
		problems = append(problems, FieldError{Field: k, Message: "is not an attribute of " + r.model.Name})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Model: r.model.Name, Problems: problems}
	}
	return values, nil
}

// bind converts a coerced value into a query argument.
func bind(v any) any {
	if id, ok := v.(uuid.UUID); ok {
		return id.String()
	}
	return v
}

func collect(rows pgx.Rows) ([]Record, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(maps))
	for _, m := range maps {
		records = append(records, nest(m))
	}
	return records, nil
}

// nest turns "relationship.attribute" columns into nested records.
// A joined relationship without any matching row is nil.
func nest(row map[string]any) Record {
	out := make(Record, len(row))
	nested := make(map[string]Record)

	for k, v := range row {
		if b, ok := v.([16]byte); ok {
			v = uuid.UUID(b).String()
		}

		rel, attr, ok := strings.Cut(k, ".")
		if !ok {
			out[k] = v
			continue
		}
		if nested[rel] == nil {
			nested[rel] = make(Record)
		}
		nested[rel][attr] = v
	}

	for rel, rec := range nested {
		empty := true
		for _, v := range rec {
			if v != nil {
				empty = false
				break
			}
		}
		if empty {
			out[rel] = nil
			continue
		}
		out[rel] = rec
	}
	return out
}
