// Package query builds parameterized SQL statements from declarative data series.
//
// A Series names a base model, the fields to select, the relationships to join, filters, sort
// order and pagination. The Builder resolves every reference against a datamodel.Schema so only
// known tables and columns reach the generated SQL; all values are passed as arguments.
package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Op is a filter comparison operator.
type Op string

// Supported filter operators.
const (
	OpEq    Op = "eq"
	OpNe    Op = "ne"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLike  Op = "like"
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpNin   Op = "nin"
	OpNull  Op = "null"
)

// JoinType is the SQL join flavor.
type JoinType string

// Supported join types.
const (
	JoinLeft  JoinType = "left"
	JoinInner JoinType = "inner"
)

// Join joins a relationship of the base model.
type Join struct {
	Relationship string   `json:"relationship"`
	Type         JoinType `json:"type,omitempty"`
}

// Filter restricts the rows of a series.
//
// When Or is set, Field, Op and Value are ignored and the filters of Or are combined with OR.
type Filter struct {
	Field string   `json:"field,omitempty"`
	Op    Op       `json:"op,omitempty"`
	Value any      `json:"value,omitempty"`
	Or    []Filter `json:"or,omitempty"`
}

// Sort orders a series by a field.
type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Series is a declarative query over a model.
//
// Fields reference base model attributes by name, or joined attributes as "relationship.attribute".
type Series struct {
	Name     string   `json:"name,omitempty"`
	Model    string   `json:"model"`
	Fields   []string `json:"fields,omitempty"`
	Joins    []Join   `json:"joins,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
	Sort     []Sort   `json:"sort,omitempty"`
	Page     int      `json:"page,omitempty"`
	PageSize int      `json:"pageSize,omitempty"`
}

// Statement is a SQL statement with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// ErrInvalidSeries is returned when a series references unknown models, fields or operators.
var ErrInvalidSeries = errors.New("invalid series")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSeries, fmt.Sprintf(format, args...))
}

// Merge applies request overrides on top of a named series.
//
// Page and page size replace the base ones when set, filters are appended and sort replaces the
// base ordering when given. Model, fields and joins of the base series are kept.
func Merge(base, overrides Series) Series {
	out := base
	out.Fields = append([]string(nil), base.Fields...)
	out.Joins = append([]Join(nil), base.Joins...)
	out.Filters = append(append([]Filter(nil), base.Filters...), overrides.Filters...)
	out.Sort = append([]Sort(nil), base.Sort...)

	if len(overrides.Sort) > 0 {
		out.Sort = append([]Sort(nil), overrides.Sort...)
	}
	if overrides.Page > 0 {
		out.Page = overrides.Page
	}
	if overrides.PageSize > 0 {
		out.PageSize = overrides.PageSize
	}
	for _, j := range overrides.Joins {
		if !hasJoin(out.Joins, j.Relationship) {
			out.Joins = append(out.Joins, j)
		}
	}
	return out
}

func hasJoin(joins []Join, rel string) bool {
	for _, j := range joins {
		if j.Relationship == rel {
			return true
		}
	}
	return false
}

// Relationships returns the relationships the series joins or references through
// "relationship.attribute" fields, filters and sort keys, in order of first use.
func (s Series) Relationships() []string {
	var rels []string
	add := func(name string) {
		if name != "" && !slices.Contains(rels, name) {
			rels = append(rels, name)
		}
	}
	ref := func(field string) {
		if rel, _, dotted := strings.Cut(field, "."); dotted {
			add(rel)
		}
	}

	for _, j := range s.Joins {
		add(j.Relationship)
	}
	for _, f := range s.Fields {
		ref(f)
	}
	var walk func([]Filter)
	walk = func(filters []Filter) {
		for _, f := range filters {
			if len(f.Or) > 0 {
				walk(f.Or)
				continue
			}
			ref(f.Field)
		}
	}
	walk(s.Filters)
	for _, o := range s.Sort {
		ref(o.Field)
	}
	return rels
}
