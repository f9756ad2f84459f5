// Package datasource defines the abstract data-source fetch boundary
// (spec.md §6): fetchers normalize into model.TimeSeries and nothing
// else.
package datasource

import (
	"context"

	"github.com/volcengine/ite/engine/model"
)

// Fetcher fetches historical series for one data source over
// [startUnix, endUnix), sampled at intervalSeconds. An empty slice means
// "no data available". Implementations must be idempotent and
// side-effect-free.
type Fetcher interface {
	FetchData(ctx context.Context, datasourceID string, startUnix, endUnix int64, intervalSeconds int) ([]model.TimeSeries, error)
}
