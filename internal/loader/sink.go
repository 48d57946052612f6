package loader

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/querycache"
)

// Compile-time interface compliance check.
var (
	_ RecordSink = (*CachePrimer)(nil)
	_ RecordSink = RecordSinkFunc(nil)
)

// RecordSink receives every record the loader has fetched for a viewport,
// in row order, before the rows are returned to the caller.
type RecordSink interface {
	OnRecordsLoaded(ctx context.Context, records []query.Record)
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func(ctx context.Context, records []query.Record)

// OnRecordsLoaded calls f.
func (f RecordSinkFunc) OnRecordsLoaded(ctx context.Context, records []query.Record) {
	f(ctx, records)
}

type noopSink struct{}

func (noopSink) OnRecordsLoaded(context.Context, []query.Record) {}

// CachePrimer warms the detail lookup entry of every loaded record so
// opening a row's detail panel does not hit the query service.
type CachePrimer struct {
	log     logrus.FieldLogger
	cache   querycache.Cache
	route   string
	idField string
	depth   int
}

// NewCachePrimer creates a sink writing record entries under route,
// keyed by the record identifier and the fixed neighbour depth.
func NewCachePrimer(
	log logrus.FieldLogger,
	cache querycache.Cache,
	route, idField string,
	depth int,
) *CachePrimer {
	return &CachePrimer{
		log:     log.WithField("component", "cache_primer"),
		cache:   cache,
		route:   route,
		idField: idField,
		depth:   depth,
	}
}

// RecordKey returns the cache key of a record detail lookup.
func RecordKey(route, id string, depth int) querycache.Key {
	return querycache.NewKey(route, query.BuildRecordPayload(id, depth))
}

// OnRecordsLoaded implements RecordSink. Priming is best effort: failures
// are logged and never fail the viewport.
func (p *CachePrimer) OnRecordsLoaded(ctx context.Context, records []query.Record) {
	var (
		primed  int
		skipped int
	)

	for _, record := range records {
		id, ok := record.ID(p.idField)
		if !ok {
			skipped++

			continue
		}

		// Stored in the same shape the query service answers a lookup with.
		data, err := json.Marshal([]query.Record{record})
		if err != nil {
			p.log.WithError(err).WithField("id", id).Warn("Failed to encode record for priming")

			continue
		}

		if err := p.cache.SetQueryData(ctx, RecordKey(p.route, id, p.depth), data); err != nil {
			p.log.WithError(err).WithField("id", id).Warn("Failed to prime record cache")

			continue
		}

		primed++
	}

	p.log.WithFields(logrus.Fields{
		"primed":  primed,
		"skipped": skipped,
	}).Debug("Primed record cache")
}
