// Package orm reads and writes records of a data model over PostgreSQL.
package orm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Record is a single row of a model, keyed by attribute name.
//
// Attributes of joined relationships are nested under the relationship name.
type Record map[string]any

// Page is one page of records of a series.
type Page struct {
	Items    []Record `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
}

// Querier is the database handle used by repositories. *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotFound is returned when no record matches a primary key.
var ErrNotFound = errors.New("record not found")

// FieldError is a validation problem of a single attribute.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every attribute that failed validation.
type ValidationError struct {
	Model    string
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Field+": "+p.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Model, strings.Join(msgs, "; "))
}

// Decode maps a record onto a struct using its json tags.
// Nested records decode into struct fields and json attributes into json.RawMessage.
func Decode(r Record, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			func(_ reflect.Type, to reflect.Type, data any) (any, error) {
				if to != reflect.TypeOf(json.RawMessage{}) {
					return data, nil
				}
				b, err := json.Marshal(data)
				if err != nil {
					return nil, err
				}
				return json.RawMessage(b), nil
			},
		),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}

	if err := decoder.Decode(map[string]any(r)); err != nil {
		return fmt.Errorf("record does not match %T: %w", out, err)
	}
	return nil
}
