package datamodel

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// reservedNames cannot be used as model names as they collide with built-in API routes.
var reservedNames = map[string]struct{}{
	"series": {},
	"models": {},
}

var onDeleteActions = []string{"", "cascade", "set null", "restrict", "no action"}

func invalid(m *Model, format string, args ...any) error {
	return fmt.Errorf("%w %q (%s): %s", ErrInvalidModel, m.Name, sourceName(m), fmt.Sprintf(format, args...))
}

// normalize fills the defaults of a model: columns, primary key, foreign keys and timestamps.
func (s *Schema) normalize(m *Model) error {
	if !identifierRE.MatchString(m.Name) {
		return invalid(m, "name is not a valid identifier")
	}

	for i := range m.Attributes {
		if m.Attributes[i].Column == "" {
			m.Attributes[i].Column = SnakeCase(m.Attributes[i].Name)
		}
	}

	if !slices.ContainsFunc(m.Attributes, func(a Attribute) bool { return a.PrimaryKey }) {
		if i := slices.IndexFunc(m.Attributes, func(a Attribute) bool { return a.Name == "id" }); i >= 0 {
			m.Attributes[i].PrimaryKey = true
		} else {
			id := Attribute{Name: "id", Type: TypeInteger, Column: "id", PrimaryKey: true, generated: true}
			m.Attributes = append([]Attribute{id}, m.Attributes...)
		}
	}

	if m.Timestamps {
		for _, name := range []string{"createdAt", "updatedAt"} {
			if _, ok := m.Attribute(name); ok {
				continue
			}
			m.Attributes = append(m.Attributes, Attribute{
				Name:      name,
				Type:      TypeDateTime,
				Column:    SnakeCase(name),
				generated: true,
			})
		}
	}
	return nil
}

// normalizeRelationships resolves relationship targets and adds missing foreign key attributes.
// It runs after every model went through normalize so primary keys are known.
func (s *Schema) normalizeRelationships(m *Model) error {
	for i := range m.Relationships {
		r := &m.Relationships[i]
		r.OnDelete = strings.ToLower(strings.TrimSpace(r.OnDelete))

		target, ok := s.byName[r.Model]
		if !ok {
			return invalid(m, "relationship %q targets unknown model %q", r.Name, r.Model)
		}

		switch r.Kind {
		case BelongsTo:
			if r.ForeignKey == "" {
				r.ForeignKey = LowerCamel(r.Name) + "Id"
			}
			addForeignKey(m, r.ForeignKey, target.PrimaryKey().Type, r.Required)
		case HasOne, HasMany:
			if r.ForeignKey == "" {
				r.ForeignKey = LowerCamel(m.Name) + "Id"
			}
			addForeignKey(target, r.ForeignKey, m.PrimaryKey().Type, false)
		default:
			return invalid(m, "relationship %q has unknown type %q", r.Name, r.Kind)
		}
	}
	return nil
}

func addForeignKey(m *Model, name string, typ AttributeType, required bool) {
	if i := slices.IndexFunc(m.Attributes, func(a Attribute) bool { return a.Name == name }); i >= 0 {
		if m.Attributes[i].generated && required {
			m.Attributes[i].Required = true
		}
		return
	}
	m.Attributes = append(m.Attributes, Attribute{
		Name:      name,
		Type:      typ,
		Column:    SnakeCase(name),
		Required:  required,
		generated: true,
	})
}

// validate checks a normalized model.
func (s *Schema) validate(m *Model) error {
	var errs []error

	if _, ok := reservedNames[m.Name]; ok {
		errs = append(errs, invalid(m, "name is reserved"))
	}
	if !identifierRE.MatchString(m.Table) {
		errs = append(errs, invalid(m, "table %q is not a valid identifier", m.Table))
	}

	names := make(map[string]struct{})
	columns := make(map[string]struct{})
	var pks int
	for _, a := range m.Attributes {
		if !identifierRE.MatchString(a.Name) {
			errs = append(errs, invalid(m, "attribute %q is not a valid identifier", a.Name))
		}
		if !identifierRE.MatchString(a.Column) {
			errs = append(errs, invalid(m, "column %q of attribute %q is not a valid identifier", a.Column, a.Name))
		}
		if _, ok := names[a.Name]; ok {
			errs = append(errs, invalid(m, "attribute %q is declared more than once", a.Name))
		}
		names[a.Name] = struct{}{}
		if _, ok := columns[a.Column]; ok {
			errs = append(errs, invalid(m, "column %q is used by more than one attribute", a.Column))
		}
		columns[a.Column] = struct{}{}

		if !a.Type.Valid() {
			errs = append(errs, invalid(m, "attribute %q has unknown type %q", a.Name, a.Type))
		}
		if a.MaxLength < 0 || (a.MaxLength > 0 && a.Type != TypeString) {
			errs = append(errs, invalid(m, "attribute %q: maxLength applies to positive string lengths only", a.Name))
		}
		if len(a.Enum) > 0 && a.Type != TypeString && a.Type != TypeText {
			errs = append(errs, invalid(m, "attribute %q: enum applies to string attributes only", a.Name))
		}
		if a.PrimaryKey {
			pks++
			if a.Type != TypeInteger && a.Type != TypeUUID {
				errs = append(errs, invalid(m, "primary key %q must be an integer or uuid", a.Name))
			}
		}
		if a.Default != nil {
			if _, err := a.Coerce(a.Default); err != nil {
				errs = append(errs, invalid(m, "attribute %q has an invalid default: %v", a.Name, err))
			}
		}
	}
	if pks != 1 {
		errs = append(errs, invalid(m, "expected exactly one primary key, got %d", pks))
	}

	rels := make(map[string]struct{})
	for _, r := range m.Relationships {
		if !identifierRE.MatchString(r.Name) {
			errs = append(errs, invalid(m, "relationship %q is not a valid identifier", r.Name))
		}
		if _, ok := rels[r.Name]; ok {
			errs = append(errs, invalid(m, "relationship %q is declared more than once", r.Name))
		}
		rels[r.Name] = struct{}{}
		if _, ok := names[r.Name]; ok {
			errs = append(errs, invalid(m, "relationship %q collides with an attribute", r.Name))
		}
		if !slices.Contains(onDeleteActions, r.OnDelete) {
			errs = append(errs, invalid(m, "relationship %q has unknown onDelete action %q", r.Name, r.OnDelete))
		}

		target := s.byName[r.Model]
		owner, referenced := m, target
		if r.Kind != BelongsTo {
			owner, referenced = target, m
		}
		fk, ok := owner.Attribute(r.ForeignKey)
		if !ok {
			errs = append(errs, invalid(m, "relationship %q: foreign key %q not found on %q", r.Name, r.ForeignKey, owner.Name))
			continue
		}
		if pk := referenced.PrimaryKey(); fk.Type != pk.Type {
			errs = append(errs, invalid(m, "relationship %q: foreign key %q is %s but %q primary key is %s",
				r.Name, r.ForeignKey, fk.Type, referenced.Name, pk.Type))
		}
	}

	return errors.Join(errs...)
}
