package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/query"
)

// MaxViewIDLength bounds client-chosen view ids.
const MaxViewIDLength = 128

// Views keeps one Datasource per client view, so a slow response for a
// view's previous search or sort is reported stale instead of being served
// as rows of the current one. Idle views expire after the TTL and the least
// recently used view is dropped once the registry is full.
type Views struct {
	log    logrus.FieldLogger
	loader *Loader

	mu    sync.Mutex
	views *expirable.LRU[string, *Datasource]
}

// NewViews creates a registry holding at most maxViews views, each kept
// for ttl after its last request.
func NewViews(log logrus.FieldLogger, loader *Loader, maxViews int, ttl time.Duration) *Views {
	return &Views{
		log:    log.WithField("component", "views"),
		loader: loader,
		views:  expirable.NewLRU[string, *Datasource](maxViews, nil, ttl),
	}
}

// GetRows loads vp for the view id, creating the view on first use.
func (v *Views) GetRows(ctx context.Context, id string, vp Viewport) ([]query.Record, *int64, error) {
	if id == "" || len(id) > MaxViewIDLength {
		return nil, nil, fmt.Errorf("%w: view id must be 1-%d bytes", ErrInvalidViewport, MaxViewIDLength)
	}

	return v.view(id, vp).Fetch(ctx, vp)
}

// Len returns the number of live views.
func (v *Views) Len() int {
	return v.views.Len()
}

func (v *Views) view(id string, vp Viewport) *Datasource {
	v.mu.Lock()
	defer v.mu.Unlock()

	ds, ok := v.views.Get(id)
	if !ok {
		ds = NewDatasource(v.log.WithField("view", id), v.loader, vp.State, vp.BlockSize)

		v.log.WithField("view", id).Debug("Created view")
	}

	// Re-adding refreshes the idle TTL.
	v.views.Add(id, ds)
	activeViews.Set(float64(v.views.Len()))

	return ds
}
