// Package datamodel describes the entities of an application and compiles them into a Schema.
//
// A data model is declared in a JSON (or YAML) document listing models with their
// attributes and relationships. Documents may pull in package data models, which are merged
// together; model and table names must be unique across all merged documents.
package datamodel

import (
	"errors"
	"slices"
)

// AttributeType is the logical type of an attribute.
type AttributeType string

// Supported attribute types.
const (
	TypeString   AttributeType = "string"
	TypeText     AttributeType = "text"
	TypeInteger  AttributeType = "integer"
	TypeNumber   AttributeType = "number"
	TypeBoolean  AttributeType = "boolean"
	TypeDate     AttributeType = "date"
	TypeDateTime AttributeType = "datetime"
	TypeUUID     AttributeType = "uuid"
	TypeJSON     AttributeType = "json"
)

var knownTypes = []AttributeType{
	TypeString, TypeText, TypeInteger, TypeNumber, TypeBoolean,
	TypeDate, TypeDateTime, TypeUUID, TypeJSON,
}

// Valid returns true if t is a supported attribute type.
func (t AttributeType) Valid() bool {
	return slices.Contains(knownTypes, t)
}

// RelationshipKind is the cardinality of a relationship.
type RelationshipKind string

// Supported relationship kinds.
const (
	BelongsTo RelationshipKind = "belongsTo"
	HasOne    RelationshipKind = "hasOne"
	HasMany   RelationshipKind = "hasMany"
)

// Attribute is a single field of a model, mapped to a table column.
type Attribute struct {
	Name        string        `json:"name" yaml:"name"`
	Type        AttributeType `json:"type" yaml:"type"`
	Column      string        `json:"column,omitempty" yaml:"column,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Unique      bool          `json:"unique,omitempty" yaml:"unique,omitempty"`
	PrimaryKey  bool          `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	MaxLength   int           `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Enum        []string      `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default     any           `json:"default,omitempty" yaml:"default,omitempty"`

	// generated is set on attributes the schema adds itself (implicit keys, timestamps).
	generated bool
}

// Generated returns true if the attribute was added by the schema compiler.
func (a Attribute) Generated() bool {
	return a.generated
}

// AutoIncrement returns true if the database assigns the attribute value.
func (a Attribute) AutoIncrement() bool {
	return a.PrimaryKey && a.Type == TypeInteger
}

// Relationship links a model to another one.
//
// For belongsTo, ForeignKey names an attribute of the declaring model.
// For hasOne and hasMany, ForeignKey names an attribute of the target model.
type Relationship struct {
	Name       string           `json:"name" yaml:"name"`
	Kind       RelationshipKind `json:"type" yaml:"type"`
	Model      string           `json:"model" yaml:"model"`
	ForeignKey string           `json:"foreignKey,omitempty" yaml:"foreignKey,omitempty"`
	OnDelete   string           `json:"onDelete,omitempty" yaml:"onDelete,omitempty"`
	Required   bool             `json:"required,omitempty" yaml:"required,omitempty"`
}

// Access lists the roles allowed to read and write a model.
//
// An empty list allows any authenticated principal, "*" allows anyone.
type Access struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty"`
}

// Model is an entity of the application, mapped to a table.
type Model struct {
	Name          string         `json:"name" yaml:"name"`
	Table         string         `json:"table,omitempty" yaml:"table,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes    []Attribute    `json:"attributes" yaml:"attributes"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Timestamps    bool           `json:"timestamps,omitempty" yaml:"timestamps,omitempty"`
	Access        Access         `json:"access,omitzero" yaml:"access,omitempty"`

	source string
}

// Source returns the path of the document the model was declared in, if any.
func (m *Model) Source() string {
	return m.source
}

// Attribute returns the attribute with the given name.
func (m *Model) Attribute(name string) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// PrimaryKey returns the primary key attribute of a compiled model.
func (m *Model) PrimaryKey() Attribute {
	for _, a := range m.Attributes {
		if a.PrimaryKey {
			return a
		}
	}
	return Attribute{}
}

// Relationship returns the relationship with the given name.
func (m *Model) Relationship(name string) (Relationship, bool) {
	for _, r := range m.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Document is a single data model file.
type Document struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Models   []Model  `json:"models" yaml:"models"`
	Packages []string `json:"packages,omitempty" yaml:"packages,omitempty"`

	source string
}

// Source returns the path the document was loaded from, if any.
func (d *Document) Source() string {
	return d.source
}

var (
	// ErrDuplicateModel is returned when two merged documents declare the same model or table.
	ErrDuplicateModel = errors.New("duplicate model")

	// ErrInvalidModel is returned when a model declaration is not valid.
	ErrInvalidModel = errors.New("invalid model")
)

// Schema is a compiled, merged set of models. It is safe for concurrent reads.
type Schema struct {
	models []*Model
	byName map[string]*Model
}

// Models returns the models in declaration order.
func (s *Schema) Models() []*Model {
	return slices.Clone(s.models)
}

// Model returns the model with the given name.
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.byName[name]
	return m, ok
}
