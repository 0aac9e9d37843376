package query

import (
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cast"
)

const (
	// DefaultPageSize is the page size used when a series does not set one.
	DefaultPageSize = 25
	// MaxPageSize is the largest page size accepted by default.
	MaxPageSize = 500
)

// Builder turns series into SQL statements for a schema. It is safe for concurrent use.
type Builder struct {
	schema *datamodel.Schema
	opts   options
}

type options struct {
	defaultPageSize int
	maxPageSize     int
}

// Options represents an optional function to override Builder default values.
type Options func(*options)

// WithPageSizes overrides the default and maximum page sizes.
func WithPageSizes(def, maximum int) Options {
	return func(o *options) {
		if def > 0 {
			o.defaultPageSize = def
		}
		if maximum > 0 {
			o.maxPageSize = maximum
		}
	}
}

// NewBuilder returns a Builder resolving series against schema.
func NewBuilder(schema *datamodel.Schema, args ...Options) *Builder {
	opts := options{
		defaultPageSize: DefaultPageSize,
		maxPageSize:     MaxPageSize,
	}
	for _, opt := range args {
		opt(&opts)
	}
	opts.defaultPageSize = min(opts.defaultPageSize, opts.maxPageSize)

	return &Builder{schema: schema, opts: opts}
}

// Schema returns the schema the builder resolves against.
func (b *Builder) Schema() *datamodel.Schema {
	return b.schema
}

// Pagination returns the effective 1-based page and page size of a series.
func (b *Builder) Pagination(s Series) (page, size int, err error) {
	if s.Page < 0 {
		return 0, 0, invalidf("page must be positive, got %d", s.Page)
	}
	if s.PageSize < 0 {
		return 0, 0, invalidf("page size must be positive, got %d", s.PageSize)
	}

	page, size = max(s.Page, 1), s.PageSize
	if size == 0 {
		size = b.opts.defaultPageSize
	}
	size = min(size, b.opts.maxPageSize)
	if page-1 > math.MaxInt64/size {
		return 0, 0, invalidf("page %d is out of range", s.Page)
	}
	return page, size, nil
}

// Select returns the paginated SELECT statement of a series.
//
// Each selected column is aliased with its field reference, e.g. "customer.name".
func (b *Builder) Select(s Series) (Statement, error) {
	p, err := b.resolve(s)
	if err != nil {
		return Statement{}, err
	}
	page, size, err := b.Pagination(s)
	if err != nil {
		return Statement{}, err
	}

	cols := make([]string, 0, len(p.columns))
	for _, c := range p.columns {
		cols = append(cols, c.expr+" AS "+quote(c.ref))
	}

	sel := p.from(builder().Select(cols...))
	if len(p.orderBy) > 0 {
		sel = sel.OrderBy(p.orderBy...)
	}
	sel = sel.Limit(uint64(size)).Offset(uint64((page - 1) * size))

	return toStatement(sel)
}

// Count returns the statement counting every row of a series, ignoring pagination.
//
// Rows multiplied by hasOne and hasMany joins are counted once per joined row.
func (b *Builder) Count(s Series) (Statement, error) {
	p, err := b.resolve(s)
	if err != nil {
		return Statement{}, err
	}
	return toStatement(p.from(builder().Select("count(*)")))
}

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func toStatement(sel sq.SelectBuilder) (Statement, error) {
	sql, args, err := sel.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("%w: %v", ErrInvalidSeries, err)
	}
	return Statement{SQL: sql, Args: args}, nil
}

func quote(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

type column struct {
	ref  string
	expr string
	attr datamodel.Attribute
}

type join struct {
	rel    datamodel.Relationship
	target *datamodel.Model
	kind   JoinType
}

// plan is a series resolved against the schema.
type plan struct {
	base    *datamodel.Model
	joins   []join
	columns []column
	where   []sq.Sqlizer
	orderBy []string
}

func (b *Builder) resolve(s Series) (*plan, error) {
	base, ok := b.schema.Model(s.Model)
	if !ok {
		return nil, invalidf("unknown model %q", s.Model)
	}
	p := &plan{base: base}

	for _, j := range s.Joins {
		kind := j.Type
		if kind == "" {
			kind = JoinLeft
		}
		if kind != JoinLeft && kind != JoinInner {
			return nil, invalidf("unknown join type %q", j.Type)
		}
		if _, err := p.join(b.schema, j.Relationship, kind); err != nil {
			return nil, err
		}
	}

	if len(s.Fields) == 0 {
		for _, a := range base.Attributes {
			p.columns = append(p.columns, column{ref: a.Name, expr: quote(base.Table, a.Column), attr: a})
		}
		for _, j := range p.joins {
			for _, a := range j.target.Attributes {
				ref := j.rel.Name + "." + a.Name
				p.columns = append(p.columns, column{ref: ref, expr: quote(j.rel.Name, a.Column), attr: a})
			}
		}
	}
	seen := make(map[string]bool)
	for _, f := range s.Fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		c, err := p.field(b.schema, f)
		if err != nil {
			return nil, err
		}
		p.columns = append(p.columns, c)
	}

	for _, f := range s.Filters {
		pred, err := p.filter(b.schema, f)
		if err != nil {
			return nil, err
		}
		p.where = append(p.where, pred)
	}

	for _, o := range s.Sort {
		c, err := p.field(b.schema, o.Field)
		if err != nil {
			return nil, err
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		p.orderBy = append(p.orderBy, c.expr+dir)
	}
	// Stable pages need a total order.
	if pk := base.PrimaryKey(); pk.Name != "" {
		expr := quote(base.Table, pk.Column)
		if !containsPrefix(p.orderBy, expr+" ") {
			p.orderBy = append(p.orderBy, expr+" ASC")
		}
	}

	return p, nil
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// join adds a relationship join once and returns its alias.
func (p *plan) join(schema *datamodel.Schema, name string, kind JoinType) (join, error) {
	for _, j := range p.joins {
		if j.rel.Name == name {
			return j, nil
		}
	}

	rel, ok := p.base.Relationship(name)
	if !ok {
		return join{}, invalidf("model %q has no relationship %q", p.base.Name, name)
	}
	if rel.Name == p.base.Table {
		return join{}, invalidf("relationship %q shadows table %q", rel.Name, p.base.Table)
	}
	target, ok := schema.Model(rel.Model)
	if !ok {
		return join{}, invalidf("relationship %q targets unknown model %q", name, rel.Model)
	}

	j := join{rel: rel, target: target, kind: kind}
	p.joins = append(p.joins, j)
	return j, nil
}

// field resolves "attr" or "relationship.attr", joining the relationship when needed.
func (p *plan) field(schema *datamodel.Schema, ref string) (column, error) {
	relName, attrName, dotted := strings.Cut(ref, ".")
	if !dotted {
		a, ok := p.base.Attribute(ref)
		if !ok {
			return column{}, invalidf("model %q has no attribute %q", p.base.Name, ref)
		}
		return column{ref: ref, expr: quote(p.base.Table, a.Column), attr: a}, nil
	}

	j, err := p.join(schema, relName, JoinLeft)
	if err != nil {
		return column{}, err
	}
	a, ok := j.target.Attribute(attrName)
	if !ok {
		return column{}, invalidf("model %q has no attribute %q", j.target.Name, attrName)
	}
	return column{ref: ref, expr: quote(relName, a.Column), attr: a}, nil
}

// from applies the FROM, JOIN and WHERE clauses of the plan.
func (p *plan) from(sel sq.SelectBuilder) sq.SelectBuilder {
	sel = sel.From(quote(p.base.Table))

	for _, j := range p.joins {
		var on string
		if j.rel.Kind == datamodel.BelongsTo {
			fk, _ := p.base.Attribute(j.rel.ForeignKey)
			on = fmt.Sprintf("%s = %s", quote(p.base.Table, fk.Column), quote(j.rel.Name, j.target.PrimaryKey().Column))
		} else {
			fk, _ := j.target.Attribute(j.rel.ForeignKey)
			on = fmt.Sprintf("%s = %s", quote(j.rel.Name, fk.Column), quote(p.base.Table, p.base.PrimaryKey().Column))
		}

		clause := fmt.Sprintf("%s AS %s ON %s", quote(j.target.Table), quote(j.rel.Name), on)
		if j.kind == JoinInner {
			sel = sel.InnerJoin(clause)
		} else {
			sel = sel.LeftJoin(clause)
		}
	}

	for _, w := range p.where {
		sel = sel.Where(w)
	}
	return sel
}

func (p *plan) filter(schema *datamodel.Schema, f Filter) (sq.Sqlizer, error) {
	if len(f.Or) > 0 {
		or := make(sq.Or, 0, len(f.Or))
		for _, sub := range f.Or {
			pred, err := p.filter(schema, sub)
			if err != nil {
				return nil, err
			}
			or = append(or, pred)
		}
		return or, nil
	}

	c, err := p.field(schema, f.Field)
	if err != nil {
		return nil, err
	}

	op := f.Op
	if op == "" {
		op = OpEq
	}

	switch op {
	case OpNull:
		isNull, err := cast.ToBoolE(f.Value)
		if err != nil {
			return nil, invalidf("filter %q: null expects a boolean: %v", f.Field, err)
		}
		if isNull {
			return sq.Eq{c.expr: nil}, nil
		}
		return sq.NotEq{c.expr: nil}, nil

	case OpIn, OpNin:
		values, err := listValues(c.attr, f.Value)
		if err != nil {
			return nil, invalidf("filter %q: %v", f.Field, err)
		}
		if op == OpIn {
			return sq.Eq{c.expr: values}, nil
		}
		return sq.NotEq{c.expr: values}, nil

	case OpLike, OpILike:
		if c.attr.Type != datamodel.TypeString && c.attr.Type != datamodel.TypeText {
			return nil, invalidf("filter %q: %s only applies to strings", f.Field, op)
		}
		pattern, err := cast.ToStringE(f.Value)
		if err != nil {
			return nil, invalidf("filter %q: %v", f.Field, err)
		}
		if op == OpLike {
			return sq.Like{c.expr: pattern}, nil
		}
		return sq.ILike{c.expr: pattern}, nil
	}

	v, err := value(c.attr, f.Value)
	if err != nil {
		return nil, invalidf("filter %q: %v", f.Field, err)
	}

	switch op {
	case OpEq:
		return sq.Eq{c.expr: v}, nil
	case OpNe:
		return sq.NotEq{c.expr: v}, nil
	}
	if v == nil {
		return nil, invalidf("filter %q: %s needs a value", f.Field, op)
	}
	switch op {
	case OpLt:
		return sq.Lt{c.expr: v}, nil
	case OpLte:
		return sq.LtOrEq{c.expr: v}, nil
	case OpGt:
		return sq.Gt{c.expr: v}, nil
	case OpGte:
		return sq.GtOrEq{c.expr: v}, nil
	default:
		return nil, invalidf("filter %q: unknown operator %q", f.Field, op)
	}
}

// value coerces a filter value to the attribute type. Array-backed values are flattened to
// scalars so they are bound as a single argument.
func value(a datamodel.Attribute, raw any) (any, error) {
	v, err := a.Coerce(raw)
	if err != nil {
		return nil, err
	}
	if id, ok := v.(uuid.UUID); ok {
		return id.String(), nil
	}
	return v, nil
}

func listValues(a datamodel.Attribute, raw any) ([]any, error) {
	var items []string
	switch l := raw.(type) {
	case string:
		items = strings.Split(l, ",")
	case nil:
		return nil, fmt.Errorf("expected a list")
	default:
		var err error
		if items, err = cast.ToStringSliceE(raw); err != nil {
			return nil, fmt.Errorf("expected a list: %v", err)
		}
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		v, err := value(a, strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
