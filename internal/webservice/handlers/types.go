// Package handlers provides HTTP handlers for the server.
package handlers

import (
	"context"
	"time"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/forgeapi/forgeapi/pkg/orm"
	"github.com/forgeapi/forgeapi/pkg/query"
)

// Store reads and writes the records of one model. *orm.Repository satisfies it.
type Store interface {
	Model() *datamodel.Model
	Find(ctx context.Context, id any, joins ...query.Join) (orm.Record, error)
	List(ctx context.Context, s query.Series) (orm.Page, error)
	Create(ctx context.Context, in orm.Record) (orm.Record, error)
	Update(ctx context.Context, id any, in orm.Record) (orm.Record, error)
	Replace(ctx context.Context, id any, in orm.Record) (orm.Record, error)
	Delete(ctx context.Context, id any) error
}

// Stores looks up the store of a model by name.
type Stores interface {
	Store(model string) (Store, bool)
}

// SeriesProvider returns the named data series of the current configuration.
type SeriesProvider interface {
	Series(name string) (query.Series, bool)
}

// ClientProvider returns the API clients of the current configuration.
type ClientProvider interface {
	Client(id string) (auth.Client, bool)
}

// TokenIssuer issues bearer tokens.
type TokenIssuer interface {
	Issue(subject string, roles []string) (string, time.Time, error)
}

// Pinger checks the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
