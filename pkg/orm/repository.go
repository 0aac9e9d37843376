package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/forgeapi/forgeapi/pkg/query"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository reads and writes the records of one model.
type Repository struct {
	db      Querier
	builder *query.Builder
	model   *datamodel.Model

	now   func() time.Time
	newID func() uuid.UUID
}

type options struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// Options represents an optional function to override Repository default values.
type Options func(*options)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator sets the generator of uuid primary keys.
func WithIDGenerator(gen func() uuid.UUID) Options {
	return func(o *options) {
		o.newID = gen
	}
}

// NewRepository returns a repository of the named model of the builder schema.
func NewRepository(db Querier, builder *query.Builder, model string, args ...Options) (*Repository, error) {
	m, ok := builder.Schema().Model(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}

	opts := options{
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Repository{
		db:      db,
		builder: builder,
		model:   m,
		now:     opts.now,
		newID:   opts.newID,
	}, nil
}

// Model returns the model of the repository.
func (r *Repository) Model() *datamodel.Model {
	return r.model
}

// Find returns the record with the given primary key, with the attributes of joined relationships.
//
// When a hasOne or hasMany join matches several rows, only the first one is returned.
// An id that is not a valid primary key value returns ErrNotFound.
func (r *Repository) Find(ctx context.Context, id any, joins ...query.Join) (Record, error) {
	pk := r.model.PrimaryKey()
	key, err := r.key(id)
	if err != nil {
		return nil, err
	}

	stmt, err := r.builder.Select(query.Series{
		Model:    r.model.Name,
		Joins:    joins,
		Filters:  []query.Filter{{Field: pk.Name, Op: query.OpEq, Value: key}},
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %v", r.model.Name, err)
	}
	records, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", r.model.Name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s %v: %w", r.model.Name, id, ErrNotFound)
	}
	return records[0], nil
}

// List returns one page of the series, run against the repository model.
func (r *Repository) List(ctx context.Context, s query.Series) (Page, error) {
	s.Model = r.model.Name

	page, size, err := r.builder.Pagination(s)
	if err != nil {
		return Page{}, err
	}
	stmt, err := r.builder.Select(s)
	if err != nil {
		return Page{}, err
	}

	total, err := r.Count(ctx, s)
	if err != nil {
		return Page{}, err
	}

	rows, err := r.db.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return Page{}, fmt.Errorf("failed to query %s: %v", r.model.Name, err)
	}
	items, err := collect(rows)
	if err != nil {
		return Page{}, fmt.Errorf("failed to read %s: %v", r.model.Name, err)
	}

	return Page{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Count returns the number of rows of the series, ignoring its pagination.
func (r *Repository) Count(ctx context.Context, s query.Series) (int64, error) {
	s.Model = r.model.Name
	stmt, err := r.builder.Count(s)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %v", r.model.Name, err)
	}
	return total, nil
}

// Create validates and inserts a record, returning it as stored.
//
// Missing uuid primary keys are generated and timestamps are set.
func (r *Repository) Create(ctx context.Context, in Record) (Record, error) {
	values, err := r.validate(in, modeCreate)
	if err != nil {
		return nil, err
	}

	pk := r.model.PrimaryKey()
	if pk.Type == datamodel.TypeUUID {
		if _, ok := values[pk.Name]; !ok {
			values[pk.Name] = r.newID()
		}
	}
	now := r.now().UTC()
	r.stamp(values, now, "createdAt", "updatedAt")

	cols := make([]string, 0, len(values))
	vals := make([]any, 0, len(values))
	for _, a := range r.model.Attributes {
		v, ok := values[a.Name]
		if !ok {
			continue
		}
		cols = append(cols, quote(a.Column))
		vals = append(vals, bind(v))
	}

	if len(cols) == 0 {
		sql := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", quote(r.model.Table), r.returning())
		return r.one(ctx, sql, nil, nil)
	}

	sql, args, err := builder().Insert(quote(r.model.Table)).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING " + r.returning()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert of %s: %v", r.model.Name, err)
	}
	return r.one(ctx, sql, args, nil)
}

// Update applies a partial change to a record. Only given attributes are validated.
func (r *Repository) Update(ctx context.Context, id any, in Record) (Record, error) {
	return r.update(ctx, id, in, modeUpdate)
}

// Replace overwrites every writable attribute of a record. Omitted attributes are cleared.
func (r *Repository) Replace(ctx context.Context, id any, in Record) (Record, error) {
	return r.update(ctx, id, in, modeReplace)
}

func (r *Repository) update(ctx context.Context, id any, in Record, m mode) (Record, error) {
	key, err := r.key(id)
	if err != nil {
		return nil, err
	}

	pk := r.model.PrimaryKey()
	if v, ok := in[pk.Name]; ok {
		if given, err := pk.Coerce(v); err != nil || fmt.Sprint(given) != fmt.Sprint(key) {
			return nil, &ValidationError{Model: r.model.Name, Problems: []FieldError{{Field: pk.Name, Message: "is immutable"}}}
		}
		in = cloneWithout(in, pk.Name)
	}

	values, err := r.validate(in, m)
	if err != nil {
		return nil, err
	}
	r.stamp(values, r.now().UTC(), "updatedAt")

	if len(values) == 0 {
		return r.Find(ctx, key)
	}

	upd := builder().Update(quote(r.model.Table))
	for _, a := range r.model.Attributes {
		if v, ok := values[a.Name]; ok {
			upd = upd.Set(quote(a.Column), bind(v))
		}
	}
	sql, args, err := upd.
		Where(sq.Eq{quote(pk.Column): bind(key)}).
		Suffix("RETURNING " + r.returning()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update of %s: %v", r.model.Name, err)
	}
	return r.one(ctx, sql, args, id)
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, id any) error {
	key, err := r.key(id)
	if err != nil {
		return err
	}

	pk := r.model.PrimaryKey()
	sql, args, err := builder().Delete(quote(r.model.Table)).Where(sq.Eq{quote(pk.Column): bind(key)}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete of %s: %v", r.model.Name, err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s %v: %v", r.model.Name, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %v: %w", r.model.Name, id, ErrNotFound)
	}
	return nil
}

// key coerces a primary key value. Invalid keys cannot match any row.
func (r *Repository) key(id any) (any, error) {
	key, err := r.model.PrimaryKey().Coerce(id)
	if err != nil || key == nil {
		return nil, fmt.Errorf("%s %v: %w", r.model.Name, id, ErrNotFound)
	}
	return key, nil
}

// stamp sets the given generated timestamps of the model.
func (r *Repository) stamp(values map[string]any, now time.Time, names ...string) {
	if !r.model.Timestamps {
		return
	}
	for _, name := range names {
		if a, ok := r.model.Attribute(name); ok && a.Generated() {
			values[name] = now
		}
	}
}

// returning lists every column of the model aliased with its attribute name.
func (r *Repository) returning() string {
	cols := make([]string, 0, len(r.model.Attributes))
	for _, a := range r.model.Attributes {
		cols = append(cols, quote(a.Column)+" AS "+quote(a.Name))
	}
	return strings.Join(cols, ", ")
}

// one runs a statement returning a single row. id is used for not found errors.
func (r *Repository) one(ctx context.Context, sql string, args []any, id any) (Record, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %v", r.model.Name, err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %v: %w", r.model.Name, id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to write %s: %v", r.model.Name, err)
	}
	return nest(row), nil
}

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func quote(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func cloneWithout(in Record, key string) Record {
	out := make(Record, len(in))
	for k, v := range in {
		if k != key {
			out[k] = v
		}
	}
	return out
}
