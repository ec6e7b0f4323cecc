// Package datasource describes registered data sources and the persistence
// collaborators the query router and pipeline engine depend on.
package datasource

import (
	"context"
	"sort"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// DataSource is a registered, owned connection description plus its cached
// table list.
type DataSource struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Owner       string               `json:"owner"`
	Config      core.ConnectorConfig `json:"config"`
	Certified   bool                 `json:"certified"`
	Tables      []core.TableSchema   `json:"tables,omitempty"`
	RefreshedAt *time.Time           `json:"refreshed_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Kind reports whether the source is file or database backed.
func (d *DataSource) Kind() connector.Kind {
	kind, _ := connector.KindOf(d.Config.Type)
	return kind
}

// HasTable reports whether the cached table list names table exactly.
func (d *DataSource) HasTable(table string) bool {
	for _, t := range d.Tables {
		if t.Name == table {
			return true
		}
	}
	return false
}

// SortByPreference orders sources certified first, then newest first.
// Ties keep their existing order.
func SortByPreference(sources []DataSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Certified != sources[j].Certified {
			return sources[i].Certified
		}
		return sources[i].CreatedAt.After(sources[j].CreatedAt)
	})
}

// Lister lists the data sources an owner can query, certified first then
// newest first.
type Lister interface {
	ListDataSources(ctx context.Context, owner string) ([]DataSource, error)
}

// Getter loads one data source. A missing id is a *core.NotFoundError.
type Getter interface {
	GetDataSource(ctx context.Context, id string) (*DataSource, error)
}

// SchemaCache replaces the cached table list of a data source.
type SchemaCache interface {
	ReplaceTables(ctx context.Context, id string, tables []core.TableSchema) error
}

// Store combines every data source collaborator.
type Store interface {
	Lister
	Getter
	SchemaCache
}
